package ideal

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/zerr"
)

// resolve turns a task into a node template. It does not touch the graph
// beyond reading the importers, so it is safe to run concurrently.
func (r *resolution) resolve(ctx context.Context, t *task) (*domain.Node, error) {
	if n, ok := r.fromLockfile(ctx, t); ok {
		return n, nil
	}

	switch t.spec.Type {
	case domain.SpecRegistry:
		if ws, ok := r.workspaces[t.spec.Package]; ok && t.spec.Registry == "" && r.b.picker.Satisfies(ws.Version, t.spec.Range) {
			return ws, nil
		}
		return r.resolveRegistry(ctx, t.spec, "")
	case domain.SpecGit:
		return r.resolveGit(ctx, t.spec.GitRepo, t.spec.GitRef)
	case domain.SpecRemote:
		return r.resolveRemote(ctx, t.spec.URL)
	case domain.SpecFile:
		return r.resolveFile(t.from, t.spec.Path)
	case domain.SpecWorkspace:
		return r.resolveWorkspace(t.spec)
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrResolution, "unsupported specifier"), "spec", t.spec.String())
	}
}

// fromLockfile reuses the locked target of an unchanged edge. Packages already
// present in the store are read from disk; others are fetched at the pinned version.
func (r *resolution) fromLockfile(ctx context.Context, t *task) (*domain.Node, bool) {
	lock := r.opts.Lockfile
	if lock == nil {
		return nil, false
	}
	e, ok := lock.EdgeOut(t.from.ID, t.spec.Name)
	if !ok || e.Missing() || e.Spec.Bare != t.spec.Bare || e.Type != t.typ {
		return nil, false
	}
	locked, ok := lock.Node(e.To)
	if !ok || !locked.ID.IsStoreBacked() {
		return nil, false
	}

	if m, err := r.b.reader.Read(filepath.Join(r.root, filepath.FromSlash(locked.Location))); err == nil {
		n := domain.NewNode(locked.ID, locked.Name.String(), locked.Version, m)
		if n.Version == "" {
			n.Version = m.Version
		}
		n.Integrity = locked.Integrity
		n.Resolved = locked.Resolved
		return n, true
	}

	fields, err := locked.ID.Fields()
	if err != nil {
		return nil, false
	}
	var n *domain.Node
	switch fields.Kind {
	case domain.KindRegistry:
		spec := domain.Spec{Name: t.spec.Name, Type: domain.SpecRegistry, Registry: fields.Registry, Package: fields.Name}
		n, err = r.resolveRegistry(ctx, spec, fields.Version)
	case domain.KindGit:
		n, err = r.resolveGit(ctx, fields.Repo, fields.Committish)
	default:
		return nil, false
	}
	if err != nil {
		r.b.logger.Warn("locked " + locked.ID.String() + " is unavailable, resolving " + t.spec.String() + " again")
		return nil, false
	}
	return n, true
}

// resolveRegistry picks a version of spec.Package. A non-empty pinned version skips picking.
func (r *resolution) resolveRegistry(ctx context.Context, spec domain.Spec, pinned string) (*domain.Node, error) {
	registryURL := r.registryURL(spec.Registry)
	p, err := r.b.source.FetchPackument(ctx, registryURL, spec.Package)
	if err != nil {
		return nil, err
	}

	version := pinned
	if version == "" {
		version, err = r.b.picker.Pick(p.VersionList(), p.DistTags, spec.Range)
		if err != nil {
			return nil, zerr.With(err, "package", spec.Package)
		}
	}
	m, ok := p.Versions[version]
	if !ok || m == nil {
		return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrResolution, "version is not published"), "package", spec.Package), "version", version)
	}

	n := domain.NewNode(domain.NewRegistryID(spec.Registry, spec.Package, version), spec.Package, version, m)
	if m.Dist != nil {
		n.Integrity = integrityOf(m.Dist)
		n.Resolved = m.Dist.Tarball
	}
	return n, nil
}

func (r *resolution) resolveGit(ctx context.Context, repo, ref string) (*domain.Node, error) {
	resolved, err := r.b.git.ResolveRef(ctx, repo, ref, false)
	if err != nil {
		return nil, err
	}
	m, err := r.b.git.ReadManifest(ctx, repo, resolved)
	if err != nil {
		return nil, err
	}
	n := domain.NewNode(domain.NewGitID(repo, resolved.SHA), m.Name, m.Version, m)
	n.Resolved = repo + "#" + resolved.SHA
	return n, nil
}

func (r *resolution) resolveRemote(ctx context.Context, url string) (*domain.Node, error) {
	rc, err := r.b.source.FetchTarball(ctx, ports.TarballRequest{URL: url})
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	m, err := r.b.unpacker.ReadManifest(ctx, rc)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read tarball manifest"), "url", url)
	}
	n := domain.NewNode(domain.NewRemoteID(url), m.Name, m.Version, m)
	n.Resolved = url
	return n, nil
}

// resolveFile reads a local package. Relative paths are taken from the declaring package.
func (r *resolution) resolveFile(from *domain.Node, p string) (*domain.Node, error) {
	var dir string
	switch {
	case strings.HasPrefix(p, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, zerr.Wrap(domain.ErrResolution, "cannot expand home directory")
		}
		dir = filepath.Join(home, p[2:])
	case filepath.IsAbs(p):
		dir = filepath.Clean(p)
	default:
		dir = filepath.Join(r.root, filepath.FromSlash(from.Location), filepath.FromSlash(p))
	}

	rel, err := filepath.Rel(r.root, dir)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrResolution, "path is not reachable from the project"), "path", p)
	}
	rel = filepath.ToSlash(rel)

	for _, ws := range r.workspaces {
		if ws.Location == rel {
			return ws, nil
		}
	}

	m, err := r.b.reader.Read(dir)
	if err != nil {
		return nil, err
	}
	n := domain.NewNode(domain.NewFileID(rel), m.Name, m.Version, m)
	n.Location = rel
	return n, nil
}

func (r *resolution) resolveWorkspace(spec domain.Spec) (*domain.Node, error) {
	ws, ok := r.workspaces[spec.Name]
	if !ok {
		return nil, zerr.With(zerr.Wrap(domain.ErrResolution, "no workspace with this name"), "name", spec.Name)
	}
	switch spec.Range {
	case "*", "^", "~":
		return ws, nil
	}
	if !r.b.picker.Satisfies(ws.Version, spec.Range) {
		return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrResolution, "workspace version does not satisfy range"), "name", spec.Name), "range", spec.Range)
	}
	return ws, nil
}

func (r *resolution) registryURL(alias string) string {
	if u, ok := r.opts.Registries[alias]; ok && alias != "" {
		return u
	}
	if r.opts.Registry != "" {
		return r.opts.Registry
	}
	return domain.DefaultRegistryURL
}

// integrityOf prefers the SRI string and falls back to the legacy sha1 shasum.
func integrityOf(d *domain.Dist) string {
	if d.Integrity != "" {
		return d.Integrity
	}
	sum, err := hex.DecodeString(d.Shasum)
	if err != nil || len(sum) == 0 {
		return ""
	}
	return "sha1-" + base64.StdEncoding.EncodeToString(sum)
}
