package git

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"path"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/klauspost/compress/gzip"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/zerr"
)

// archivePrefix is the top-level directory of packed entries, matching registry tarballs.
const archivePrefix = "package"

// Archive streams the tree of the commit as a gzipped tarball.
func (c *Client) Archive(ctx context.Context, repo string, ref ports.GitRef) (io.ReadCloser, error) {
	commit, err := c.commit(ctx, repo, ref)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeArchive(ctx, pw, commit))
	}()
	return pr, nil
}

func writeArchive(ctx context.Context, w io.Writer, commit *object.Commit) error {
	files, err := commit.Files()
	if err != nil {
		return zerr.Wrap(domain.ErrExtraction, err.Error())
	}
	defer files.Close()

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	mtime := commit.Committer.When

	err = files.ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		var mode int64
		switch f.Mode {
		case filemode.Regular, filemode.Deprecated:
			mode = domain.FilePerm
		case filemode.Executable:
			mode = domain.ExecPerm
		default:
			// Symlinks and submodules are not packed.
			return nil
		}

		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     path.Join(archivePrefix, f.Name),
			Mode:     mode,
			Size:     f.Size,
			ModTime:  mtime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		r, err := f.Reader()
		if err != nil {
			return err
		}
		_, copyErr := io.Copy(tw, r)
		return errors.Join(copyErr, r.Close())
	})
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrExtraction, err.Error()), "commit", commit.Hash.String())
	}

	if err := tw.Close(); err != nil {
		return zerr.Wrap(domain.ErrExtraction, err.Error())
	}
	if err := gz.Close(); err != nil {
		return zerr.Wrap(domain.ErrExtraction, err.Error())
	}
	return nil
}
