package reify

import (
	"context"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"

	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/zerr"
)

// link creates the symlinks of added edges and the .bin entries of their targets.
func (s *run) link(ctx context.Context) error {
	for _, e := range s.opts.Diff.Edges.Add {
		if err := ctx.Err(); err != nil {
			return zerr.Wrap(err, "linking cancelled")
		}
		if e.Missing() {
			continue
		}
		from, ok := s.opts.Ideal.Node(e.From)
		if !ok {
			return zerr.With(zerr.Wrap(domain.ErrUnknownNode, "edge source is not in the ideal graph"), "id", e.From.String())
		}
		to, ok := s.opts.Ideal.Node(e.To)
		if !ok {
			return zerr.With(zerr.Wrap(domain.ErrUnknownNode, "edge target is not in the ideal graph"), "id", e.To.String())
		}

		linkPath := s.linkPath(from, e.Name)
		if linkPath == s.abs(to.Location) {
			continue
		}
		if err := s.symlink(s.abs(to.Location), linkPath); err != nil {
			return zerr.With(err, "dependency", e.Name)
		}
		if err := s.linkBins(from, to); err != nil {
			return err
		}
	}
	return nil
}

// linkBins links the executables of to into from's .bin directory.
func (s *run) linkBins(from, to *domain.Node) error {
	bins := to.Manifest.Bins()
	binDir := s.abs(path.Join(from.DependencyDir(), domain.BinDirName))
	for _, name := range slices.Sorted(maps.Keys(bins)) {
		if !safeBinName(name) {
			s.r.logger.Warn("skipping unsafe bin name " + name + " of " + to.Name.String())
			continue
		}
		target := s.abs(path.Join(to.Location, path.Clean("/" + bins[name])[1:]))
		if err := s.symlink(target, filepath.Join(binDir, name)); err != nil {
			return zerr.With(err, "bin", name)
		}
	}
	return nil
}

// symlink points linkPath at target with a relative link. An existing entry
// that already points there is kept; anything else is moved aside.
func (s *run) symlink(target, linkPath string) error {
	parent := filepath.Dir(linkPath)
	rel, err := filepath.Rel(parent, target)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to compute link target"), "path", linkPath)
	}

	if cur, err := os.Readlink(linkPath); err == nil && cur == rel {
		s.linked[linkPath] = true
		return nil
	}
	if err := s.journal.moveAside(linkPath); err != nil {
		return err
	}
	if err := s.journal.mkdirAll(parent); err != nil {
		return err
	}
	if err := os.Symlink(rel, linkPath); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create link"), "path", linkPath)
	}
	s.journal.created(linkPath)
	s.linked[linkPath] = true
	return nil
}

// chmodBins makes the executables of added nodes executable.
func (s *run) chmodBins(ctx context.Context) error {
	for _, n := range s.opts.Diff.Nodes.Add {
		if err := ctx.Err(); err != nil {
			return zerr.Wrap(err, "chmod cancelled")
		}
		for name, rel := range n.Manifest.Bins() {
			p := s.abs(path.Join(n.Location, path.Clean("/" + rel)[1:]))
			info, err := os.Stat(p)
			if err != nil {
				s.r.logger.Warn("bin " + name + " of " + n.Name.String() + " is missing")
				continue
			}
			if err := os.Chmod(p, info.Mode().Perm()|domain.ExecPerm); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to make bin executable"), "path", p)
			}
		}
	}
	return nil
}

func (s *run) linkPath(from *domain.Node, name string) string {
	return s.abs(path.Join(from.DependencyDir(), name))
}

// safeBinName rejects names that would leave the .bin directory.
func safeBinName(name string) bool {
	return name != "" && name != "." && name != ".." && path.Base(name) == name && filepath.Base(name) == name
}
