// Package tarball extracts package tarballs with bounded concurrency.
package tarball

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/zerr"
)

var gzipMagic = []byte{0x1f, 0x8b}

var _ ports.Unpacker = (*Pool)(nil)

// Pool extracts tarballs, at most Jobs at a time.
type Pool struct {
	logger ports.Logger
	sem    chan struct{}
	// StripPrefix removes the single top-level directory shared by all entries.
	StripPrefix bool
}

// DefaultJobs is one less than the number of CPUs, and at least one.
func DefaultJobs() int {
	return max(runtime.NumCPU()-1, 1)
}

// NewPool creates a Pool running at most jobs extractions concurrently.
// A non-positive jobs selects DefaultJobs.
func NewPool(logger ports.Logger, jobs int) *Pool {
	if jobs <= 0 {
		jobs = DefaultJobs()
	}
	return &Pool{logger: logger, sem: make(chan struct{}, jobs), StripPrefix: true}
}

// Jobs returns the concurrency limit.
func (p *Pool) Jobs() int {
	return cap(p.sem)
}

func (p *Pool) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return zerr.Wrap(ctx.Err(), "extraction cancelled")
	}
}

func (p *Pool) release() {
	<-p.sem
}

// Unpack extracts the tarball read from r into dir, creating dir.
func (p *Pool) Unpack(ctx context.Context, r io.Reader, dir string) error {
	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.release()

	tr, err := openTar(r)
	if err != nil {
		return zerr.With(err, "dir", dir)
	}
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrExtraction, err.Error()), "dir", dir)
	}

	for {
		if err := ctx.Err(); err != nil {
			return zerr.Wrap(err, "extraction cancelled")
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return zerr.With(zerr.Wrap(domain.ErrExtraction, err.Error()), "dir", dir)
		}

		if err := p.extractEntry(tr, hdr, dir); err != nil {
			return zerr.With(zerr.With(err, "dir", dir), "entry", hdr.Name)
		}
	}
}

func (p *Pool) extractEntry(tr *tar.Reader, hdr *tar.Header, dir string) error {
	rel, ok := p.entryPath(hdr.Name)
	if !ok {
		p.logger.Warn(fmt.Sprintf("skipping tar entry outside of the package: %s", hdr.Name))
		return nil
	}
	if rel == "" {
		return nil
	}
	target := filepath.Join(dir, filepath.FromSlash(rel))

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, domain.DirPerm); err != nil {
			return zerr.Wrap(domain.ErrExtraction, err.Error())
		}
	case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck // old archives still use TypeRegA
		return writeFile(tr, target, fileMode(hdr.Mode))
	default:
		// Links, devices and fifos are never extracted.
	}
	return nil
}

// entryPath cleans a tar entry name relative to the package root. It reports
// false for entries that would escape the target directory.
func (p *Pool) entryPath(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", false
		}
	}

	clean := path.Clean(name)
	if clean == "." {
		return "", true
	}
	if p.StripPrefix {
		_, rest, found := strings.Cut(clean, "/")
		if !found {
			// A bare top-level entry: the prefix directory itself, or a file beside it.
			return "", true
		}
		clean = rest
	}
	return clean, true
}

func fileMode(mode int64) os.FileMode {
	if mode&0o111 != 0 {
		return domain.ExecPerm
	}
	return domain.FilePerm
}

// writeFile writes r to a temporary file next to target and renames it into place.
func writeFile(r io.Reader, target string, mode os.FileMode) error {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, domain.DirPerm); err != nil {
		return zerr.Wrap(domain.ErrExtraction, err.Error())
	}

	tmp, err := os.CreateTemp(parent, ".nest-tmp-*")
	if err != nil {
		return zerr.Wrap(domain.ErrExtraction, err.Error())
	}
	tmpName := tmp.Name()

	_, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return zerr.Wrap(domain.ErrExtraction, err.Error())
	}

	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return zerr.Wrap(domain.ErrExtraction, err.Error())
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return zerr.Wrap(domain.ErrExtraction, err.Error())
	}
	return nil
}

// openTar returns a tar reader over r, transparently decompressing gzip.
func openTar(r io.Reader) (*tar.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, zerr.Wrap(domain.ErrExtraction, err.Error())
	}
	if !bytes.Equal(magic, gzipMagic) {
		return tar.NewReader(br), nil
	}

	gz, err := gzip.NewReader(br)
	if err != nil {
		return nil, zerr.Wrap(domain.ErrExtraction, err.Error())
	}
	return tar.NewReader(gz), nil
}

// ReadManifest returns the package.json at the package root of the tarball.
func (p *Pool) ReadManifest(ctx context.Context, r io.Reader) (*domain.Manifest, error) {
	tr, err := openTar(r)
	if err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, zerr.Wrap(err, "read cancelled")
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, zerr.Wrap(domain.ErrManifestRead, "tarball has no package.json")
		}
		if err != nil {
			return nil, zerr.Wrap(domain.ErrExtraction, err.Error())
		}

		rel, ok := p.entryPath(hdr.Name)
		if !ok || rel != domain.ManifestFileName || hdr.Typeflag == tar.TypeDir {
			continue
		}

		data, err := io.ReadAll(io.LimitReader(tr, 16<<20))
		if err != nil {
			return nil, zerr.Wrap(domain.ErrExtraction, err.Error())
		}
		m, err := domain.ParseManifest(data)
		if err != nil {
			return nil, zerr.Wrap(domain.ErrManifestRead, err.Error())
		}
		return m, nil
	}
}
