package reify

import (
	"context"
	"maps"
	"path"
	"slices"

	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/zerr"
)

// unlink removes the links of deleted edges. Links inside deleted store
// entries go away with the entry, and links replaced in the link step are kept.
func (s *run) unlink(ctx context.Context) error {
	deleted := make(map[domain.DepID]bool)
	for _, n := range s.opts.Diff.Nodes.Delete {
		if n.InStore() {
			deleted[n.ID] = true
		}
	}

	for _, e := range s.opts.Diff.Edges.Delete {
		if err := ctx.Err(); err != nil {
			return zerr.Wrap(err, "unlinking cancelled")
		}
		if deleted[e.From] {
			continue
		}
		from, ok := s.opts.Actual.Node(e.From)
		if !ok {
			continue
		}

		linkPath := s.linkPath(from, e.Name)
		if !s.linked[linkPath] {
			if err := s.journal.moveAside(linkPath); err != nil {
				return err
			}
		}

		if e.Missing() {
			continue
		}
		to, ok := s.opts.Actual.Node(e.To)
		if !ok {
			continue
		}
		binDir := path.Join(from.DependencyDir(), domain.BinDirName)
		for _, name := range slices.Sorted(maps.Keys(to.Manifest.Bins())) {
			if !safeBinName(name) {
				continue
			}
			binPath := s.abs(path.Join(binDir, name))
			if s.linked[binPath] {
				continue
			}
			if err := s.journal.moveAside(binPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// deleteNodes moves the store entries of deleted nodes aside. Importers and
// local packages are never removed.
func (s *run) deleteNodes(ctx context.Context) error {
	for _, n := range s.opts.Diff.Nodes.Delete {
		if err := ctx.Err(); err != nil {
			return zerr.Wrap(err, "deletion cancelled")
		}
		if !n.InStore() {
			continue
		}
		if kept, ok := s.opts.Ideal.Node(n.ID); ok && kept.InStore() {
			continue
		}
		if err := s.journal.moveAside(s.abs(domain.StoreEntryDir(n.ID))); err != nil {
			return err
		}
	}
	return nil
}
