package reify

import (
	"context"
	"io"
	"os"

	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// extract unpacks every added store-backed node that is not already in the store.
func (s *run) extract(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.r.unpacker.Jobs())

	for _, n := range s.opts.Diff.Nodes.Add {
		if !n.ID.IsStoreBacked() {
			continue
		}
		entry := s.abs(domain.StoreEntryDir(n.ID))
		if _, err := os.Stat(s.abs(n.Location)); err == nil {
			continue
		}
		if err := s.journal.mkdirAll(s.abs(domain.StorePrefix)); err != nil {
			return err
		}
		if _, err := os.Lstat(entry); err == nil {
			// A partial entry from an earlier failure.
			if err := s.journal.moveAside(entry); err != nil {
				return err
			}
		}
		s.journal.created(entry)

		g.Go(func() error {
			return s.extractNode(gctx, n)
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zerr.Wrap(ctxErr, "extraction cancelled")
		}
		return err
	}
	return nil
}

func (s *run) extractNode(ctx context.Context, n *domain.Node) error {
	rc, err := s.open(ctx, n)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to fetch package"), "package", n.ID.String())
	}
	defer func() { _ = rc.Close() }()

	dir := s.abs(n.Location)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrExtraction, err.Error()), "path", dir)
	}
	if err := s.r.unpacker.Unpack(ctx, rc, dir); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to extract package"), "package", n.ID.String())
	}
	// Integrity is verified once the whole stream has been read.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to read package"), "package", n.ID.String())
	}
	return nil
}

// open returns the tarball of a store-backed node.
func (s *run) open(ctx context.Context, n *domain.Node) (io.ReadCloser, error) {
	fields, err := n.ID.Fields()
	if err != nil {
		return nil, err
	}
	switch fields.Kind {
	case domain.KindGit:
		return s.r.git.Archive(ctx, fields.Repo, ports.GitRef{SHA: fields.Committish, Type: ports.GitRefCommit})
	case domain.KindRemote:
		return s.r.source.FetchTarball(ctx, ports.TarballRequest{URL: fields.URL, Integrity: n.Integrity})
	default:
		if n.Resolved == "" {
			return nil, zerr.Wrap(domain.ErrResolution, "registry package has no tarball url")
		}
		return s.r.source.FetchTarball(ctx, ports.TarballRequest{URL: n.Resolved, Integrity: n.Integrity})
	}
}
