// Package ideal resolves the dependency graph a project's manifests describe.
package ideal

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"path/filepath"
	"runtime"
	"slices"

	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Options configures a Build.
type Options struct {
	// ProjectRoot is the project directory.
	ProjectRoot string
	// Add lists "name@spec" arguments written to the root importer as prod dependencies.
	Add []string
	// Remove lists dependency names dropped from the root importer.
	Remove []string
	// Workspaces lists workspace directories relative to ProjectRoot.
	Workspaces []string
	// Overrides replaces the specifier of every non-importer dependency with the given name.
	Overrides map[string]string
	// Registry is the default registry URL.
	Registry string
	// Registries maps registry aliases to base URLs.
	Registries map[string]string
	// Jobs bounds concurrent fetches. Zero means runtime.NumCPU().
	Jobs     int
	Observer ports.StepObserver
	// Lockfile, when set, pins edges whose specifier did not change to their locked target.
	Lockfile *domain.Graph
}

// Builder resolves ideal graphs.
type Builder struct {
	source   ports.PackageSource
	git      ports.GitClient
	unpacker ports.Unpacker
	picker   ports.VersionPicker
	reader   ports.ManifestReader
	logger   ports.Logger
}

// NewBuilder creates a new Builder.
func NewBuilder(
	source ports.PackageSource,
	git ports.GitClient,
	unpacker ports.Unpacker,
	picker ports.VersionPicker,
	reader ports.ManifestReader,
	logger ports.Logger,
) *Builder {
	return &Builder{
		source:   source,
		git:      git,
		unpacker: unpacker,
		picker:   picker,
		reader:   reader,
		logger:   logger,
	}
}

// task is one declared dependency waiting to be resolved.
type task struct {
	from       *domain.Node
	typ        domain.DependencyType
	spec       domain.Spec
	overridden bool
	// settled marks peers that were already checked against existing nodes.
	settled bool
}

func compareTasks(a, b *task) int {
	return cmp.Or(a.from.ID.Compare(b.from.ID), cmp.Compare(a.spec.Name, b.spec.Name))
}

// outcome is what resolving a task produced. It is computed concurrently and
// applied to the graph on the builder goroutine.
type outcome struct {
	node *domain.Node
	err  error
}

type resolution struct {
	b          *Builder
	opts       Options
	root       string
	graph      *domain.Graph
	report     *domain.ResolutionReport
	workspaces map[string]*domain.Node
	peers      []*task
}

// Build resolves the ideal graph. Unresolvable dependencies become missing
// edges listed in the returned report; malformed specifiers and cancellation
// abort the build.
func (b *Builder) Build(ctx context.Context, opts Options) (*domain.Graph, *domain.ResolutionReport, error) {
	observer := opts.Observer
	if observer == nil {
		observer = ports.NoopObserver{}
	}
	observer.OnStep("resolve ideal tree", ports.PhaseStart)

	g, report, err := b.build(ctx, opts)
	if err != nil {
		observer.OnStep("resolve ideal tree", ports.PhaseError)
		return nil, nil, err
	}
	observer.OnStep("resolve ideal tree", ports.PhaseEnd)
	return g, report, nil
}

func (b *Builder) build(ctx context.Context, opts Options) (*domain.Graph, *domain.ResolutionReport, error) {
	root, err := filepath.Abs(opts.ProjectRoot)
	if err != nil {
		return nil, nil, zerr.With(zerr.Wrap(err, "failed to resolve project root"), "path", opts.ProjectRoot)
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}

	r := &resolution{
		b:          b,
		opts:       opts,
		root:       root,
		graph:      domain.NewGraph(root),
		report:     &domain.ResolutionReport{},
		workspaces: make(map[string]*domain.Node),
	}
	maps.Copy(r.graph.Registries, opts.Registries)

	pending, err := r.addImporters()
	if err != nil {
		return nil, nil, err
	}

	for len(pending) > 0 || len(r.peers) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, zerr.Wrap(err, "resolution cancelled")
		}
		if len(pending) == 0 {
			pending = r.settlePeers()
			continue
		}
		if pending, err = r.resolveLevel(ctx, pending); err != nil {
			return nil, nil, err
		}
	}

	r.graph.RecomputeFlags()
	return r.graph, r.report, nil
}

// addImporters adds the root and workspace importers and returns their dependencies.
func (r *resolution) addImporters() ([]*task, error) {
	m, err := r.b.reader.Read(r.root)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read importer manifest"), "importer", ".")
	}
	m, err = r.editRoot(m)
	if err != nil {
		return nil, err
	}
	rootNode := domain.NewNode(domain.NewFileID("."), m.Name, m.Version, m)
	rootNode.Location = "."
	importers := []*domain.Node{r.graph.AddImporter(rootNode)}

	for _, rel := range r.opts.Workspaces {
		rel = filepath.ToSlash(filepath.Clean(rel))
		wm, err := r.b.reader.Read(filepath.Join(r.root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to read importer manifest"), "importer", rel)
		}
		n := domain.NewNode(domain.NewWorkspaceID(rel), wm.Name, wm.Version, wm)
		n.Location = rel
		n = r.graph.AddImporter(n)
		importers = append(importers, n)
		if wm.Name != "" {
			r.workspaces[wm.Name] = n
		}
	}

	var tasks []*task
	for _, n := range importers {
		deps, err := r.dependencies(n)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, deps...)
	}
	return tasks, nil
}

// editRoot applies Add and Remove to a copy of the root manifest.
func (r *resolution) editRoot(m *domain.Manifest) (*domain.Manifest, error) {
	if len(r.opts.Add) == 0 && len(r.opts.Remove) == 0 {
		return m, nil
	}
	edited := *m
	edited.Dependencies = maps.Clone(m.Dependencies)
	edited.DevDependencies = maps.Clone(m.DevDependencies)
	edited.OptionalDependencies = maps.Clone(m.OptionalDependencies)
	edited.PeerDependencies = maps.Clone(m.PeerDependencies)

	drop := func(name string) {
		delete(edited.Dependencies, name)
		delete(edited.DevDependencies, name)
		delete(edited.OptionalDependencies, name)
		delete(edited.PeerDependencies, name)
	}
	for _, name := range r.opts.Remove {
		drop(name)
	}
	for _, arg := range r.opts.Add {
		spec, err := domain.ParseAddSpec(arg, r.graph.Registries)
		if err != nil {
			return nil, err
		}
		drop(spec.Name)
		if edited.Dependencies == nil {
			edited.Dependencies = make(map[string]string)
		}
		edited.Dependencies[spec.Name] = spec.Bare
	}
	return &edited, nil
}

// dependencies returns the tasks declared by n's manifest. Dev dependencies
// are only followed for importers.
func (r *resolution) dependencies(n *domain.Node) ([]*task, error) {
	m := n.Manifest
	names := m.DependencyNames(n.Importer)

	tasks := make([]*task, 0, len(names))
	for _, name := range names {
		typ, bare, _ := m.DependencyOf(name, n.Importer)

		t := &task{from: n, typ: m.EdgeType(typ, name)}
		if override, ok := r.opts.Overrides[name]; ok && !n.Importer {
			bare = override
			t.overridden = true
		}

		spec, err := domain.ParseSpec(name, bare, r.graph.Registries)
		if err != nil {
			return nil, zerr.With(err, "from", n.ID.String())
		}
		t.spec = spec
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// resolveLevel resolves tasks concurrently, applies the outcomes in sorted
// order and returns the dependencies of the nodes it added.
func (r *resolution) resolveLevel(ctx context.Context, tasks []*task) ([]*task, error) {
	var regular []*task
	for _, t := range tasks {
		if t.typ.IsPeer() && !t.settled {
			r.peers = append(r.peers, t)
			continue
		}
		regular = append(regular, t)
	}
	slices.SortFunc(regular, compareTasks)

	outcomes := make([]outcome, len(regular))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Jobs)
	for i, t := range regular {
		g.Go(func() error {
			n, err := r.resolve(gctx, t)
			if err != nil && isFatal(gctx, err) {
				return err
			}
			outcomes[i] = outcome{node: n, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, zerr.Wrap(ctxErr, "resolution cancelled")
		}
		return nil, err
	}

	var next []*task
	for i, t := range regular {
		added, err := r.apply(t, outcomes[i])
		if err != nil {
			return nil, err
		}
		if added == nil {
			continue
		}
		deps, err := r.dependencies(added)
		if err != nil {
			return nil, err
		}
		next = append(next, deps...)
	}
	return next, nil
}

// apply records a task's outcome and returns the node when it is new to the graph.
func (r *resolution) apply(t *task, o outcome) (*domain.Node, error) {
	edge := &domain.Edge{From: t.from.ID, Name: t.spec.Name, Type: t.typ, Spec: t.spec, Overridden: t.overridden}

	if o.err != nil {
		r.report.Add(domain.Unresolved{From: t.from.ID, Spec: t.spec, Type: t.typ, Err: o.err})
		r.b.logger.Warn("could not resolve " + t.spec.String() + ": " + o.err.Error())
		return nil, r.graph.AddEdge(edge)
	}

	var added *domain.Node
	n, ok := r.graph.Node(o.node.ID)
	if !ok {
		n = r.graph.AddNode(o.node)
		added = n
	}
	edge.To = n.ID
	return added, r.graph.AddEdge(edge)
}

// settlePeers links deferred peers to satisfying nodes already in the graph.
// Required peers without one are returned for resolution; optional ones
// become missing edges.
func (r *resolution) settlePeers() []*task {
	peers := r.peers
	r.peers = nil
	slices.SortFunc(peers, compareTasks)

	var unresolved []*task
	for _, t := range peers {
		edge := &domain.Edge{From: t.from.ID, Name: t.spec.Name, Type: t.typ, Spec: t.spec, Overridden: t.overridden}
		if n := r.satisfyingNode(t.spec); n != nil {
			edge.To = n.ID
		} else if !t.typ.IsOptional() {
			t.settled = true
			unresolved = append(unresolved, t)
			continue
		}
		if err := r.graph.AddEdge(edge); err != nil {
			r.b.logger.Warn(err.Error())
		}
	}
	return unresolved
}

// satisfyingNode returns the highest-versioned node that can serve as spec's peer.
func (r *resolution) satisfyingNode(spec domain.Spec) *domain.Node {
	name := spec.Name
	if spec.Type == domain.SpecRegistry {
		name = spec.Package
	}

	candidates := make(map[string]*domain.Node)
	var versions []string
	for n := range r.graph.Nodes() {
		if n.Name.String() != name || n.Version == "" {
			continue
		}
		if _, seen := candidates[n.Version]; seen {
			continue
		}
		candidates[n.Version] = n
		versions = append(versions, n.Version)
	}
	if len(versions) == 0 {
		return nil
	}
	if spec.Type != domain.SpecRegistry {
		return candidates[slices.Max(versions)]
	}

	v, err := r.b.picker.Pick(versions, nil, spec.Range)
	if err != nil {
		return nil
	}
	return candidates[v]
}

// isFatal reports whether err must abort the whole build instead of becoming a missing edge.
func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrSpecParse)
}
