// Package actual reconstructs the installed dependency graph from node_modules.
package actual

import (
	"context"
	"maps"
	"path/filepath"
	"strings"

	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/zerr"
)

// Options configures a Build.
type Options struct {
	// ProjectRoot is the project directory.
	ProjectRoot string
	// Workspaces lists workspace directories relative to ProjectRoot.
	Workspaces []string
	// Registries maps registry aliases to base URLs, used to parse declared specifiers.
	Registries map[string]string
	Observer   ports.StepObserver
}

// Builder walks the installed tree. It never touches the network.
type Builder struct {
	reader ports.ManifestReader
	walker ports.ModulesWalker
	logger ports.Logger
}

// NewBuilder creates a new Builder.
func NewBuilder(reader ports.ManifestReader, walker ports.ModulesWalker, logger ports.Logger) *Builder {
	return &Builder{reader: reader, walker: walker, logger: logger}
}

type walk struct {
	b          *Builder
	root       string
	graph      *domain.Graph
	workspaces map[string]domain.DepID
	queue      []*domain.Node
}

// Build returns the graph of what is currently installed under opts.ProjectRoot.
// Corrupted entries become missing edges; only an unreadable importer manifest
// or a cancelled context fail the build.
func (b *Builder) Build(ctx context.Context, opts Options) (*domain.Graph, error) {
	observer := opts.Observer
	if observer == nil {
		observer = ports.NoopObserver{}
	}
	observer.OnStep("load actual tree", ports.PhaseStart)

	g, err := b.build(ctx, opts)
	if err != nil {
		observer.OnStep("load actual tree", ports.PhaseError)
		return nil, err
	}
	observer.OnStep("load actual tree", ports.PhaseEnd)
	return g, nil
}

func (b *Builder) build(ctx context.Context, opts Options) (*domain.Graph, error) {
	root, err := filepath.Abs(opts.ProjectRoot)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to resolve project root"), "path", opts.ProjectRoot)
	}

	w := &walk{
		b:          b,
		root:       root,
		graph:      domain.NewGraph(root),
		workspaces: make(map[string]domain.DepID, len(opts.Workspaces)),
	}
	maps.Copy(w.graph.Registries, opts.Registries)

	if err := w.addImporter(".", domain.NewFileID(".")); err != nil {
		return nil, err
	}
	for _, rel := range opts.Workspaces {
		rel = filepath.ToSlash(filepath.Clean(rel))
		id := domain.NewWorkspaceID(rel)
		w.workspaces[filepath.Join(root, filepath.FromSlash(rel))] = id
		if err := w.addImporter(rel, id); err != nil {
			return nil, err
		}
	}

	for len(w.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, zerr.Wrap(err, "actual tree walk cancelled")
		}
		n := w.queue[0]
		w.queue = w.queue[1:]
		w.visit(n)
	}
	return w.graph, nil
}

func (w *walk) addImporter(rel string, id domain.DepID) error {
	m, err := w.b.reader.Read(filepath.Join(w.root, filepath.FromSlash(rel)))
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to read importer manifest"), "importer", rel)
	}
	n := domain.NewNode(id, m.Name, m.Version, m)
	n.Location = rel
	w.queue = append(w.queue, w.graph.AddImporter(n))
	return nil
}

// visit adds an edge for every entry of n's dependency directory, then a
// missing edge for every declared dependency that has no entry.
func (w *walk) visit(parent *domain.Node) {
	dir := w.abs(parent.DependencyDir())
	self := w.abs(parent.Location)
	linked := make(map[string]bool)

	for entry := range w.b.walker.Entries(dir) {
		// A store package sits next to its own dependencies.
		if entry.Target == "" && entry.Path == self {
			continue
		}

		target, ok := w.resolve(entry)
		edge := w.declaredEdge(parent, entry.Name)
		if ok {
			edge.To = target.ID
		}
		if err := w.graph.AddEdge(edge); err != nil {
			w.b.logger.Warn("skipping " + entry.Path + ": " + err.Error())
			continue
		}
		linked[entry.Name] = true
	}

	for _, name := range parent.Manifest.DependencyNames(parent.Importer) {
		if linked[name] {
			continue
		}
		// Missing edges have no target, so AddEdge cannot fail.
		_ = w.graph.AddEdge(w.declaredEdge(parent, name))
	}
}

// declaredEdge builds the edge from parent's manifest. Undeclared entries are prod edges with spec "*".
func (w *walk) declaredEdge(parent *domain.Node, name string) *domain.Edge {
	e := &domain.Edge{From: parent.ID, Name: name, Type: domain.DepProd}
	bare := "*"
	if typ, spec, ok := parent.Manifest.DependencyOf(name, parent.Importer); ok {
		e.Type = parent.Manifest.EdgeType(typ, name)
		bare = spec
	}
	spec, err := domain.ParseSpec(name, bare, w.graph.Registries)
	if err != nil {
		spec = domain.Spec{Name: name, Bare: bare}
	}
	e.Spec = spec
	return e
}

// resolve returns the node an entry points at, adding it to the graph on first sight.
func (w *walk) resolve(entry ports.ModuleEntry) (*domain.Node, bool) {
	if entry.Err != nil {
		w.b.logger.Warn("unreadable link " + entry.Path + ": " + entry.Err.Error())
		return nil, false
	}

	target := entry.Path
	if entry.Target != "" {
		target = entry.Target
	}
	if id, ok := w.workspaces[target]; ok {
		return w.graph.Node(id)
	}

	rel, err := filepath.Rel(w.root, target)
	if err != nil {
		return nil, false
	}
	rel = filepath.ToSlash(rel)

	id := domain.NewFileID(rel)
	if domain.IsStoreLocation(rel) {
		segment, _, _ := strings.Cut(strings.TrimPrefix(rel, domain.StorePrefix), "/")
		if _, err := domain.ParseDepID(segment); err != nil {
			w.b.logger.Warn("unrecognized store entry " + segment)
			return nil, false
		}
		id = domain.DepID(segment)
	}

	if n, ok := w.graph.Node(id); ok {
		return n, true
	}

	m, err := w.b.reader.Read(target)
	if err != nil {
		w.b.logger.Warn("missing package at " + rel)
		return nil, false
	}

	version := m.Version
	if fields, err := id.Fields(); err == nil && fields.Kind == domain.KindRegistry {
		version = fields.Version
	}
	n := domain.NewNode(id, m.Name, version, m)
	n.Location = rel
	if dist := m.Dist; dist != nil {
		n.Integrity = dist.Integrity
		n.Resolved = dist.Tarball
	}
	w.graph.AddNode(n)
	w.queue = append(w.queue, n)
	return n, true
}

func (w *walk) abs(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}
