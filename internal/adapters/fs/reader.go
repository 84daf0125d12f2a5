package fs

import (
	"os"
	"path/filepath"
	"sync"

	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.ManifestReader = (*ManifestReader)(nil)

type readResult struct {
	manifest *domain.Manifest
	err      error
}

// ManifestReader reads and memoizes package.json files.
type ManifestReader struct {
	mu    sync.Mutex
	cache map[string]readResult
}

// NewManifestReader creates a new ManifestReader.
func NewManifestReader() *ManifestReader {
	return &ManifestReader{cache: make(map[string]readResult)}
}

// Read parses dir/package.json. Failures are memoized too.
func (r *ManifestReader) Read(dir string) (*domain.Manifest, error) {
	key := filepath.Clean(dir)

	r.mu.Lock()
	res, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return res.manifest, res.err
	}

	m, err := readManifest(key)

	r.mu.Lock()
	r.cache[key] = readResult{manifest: m, err: err}
	r.mu.Unlock()
	return m, err
}

// Forget drops the memoized result for dir.
func (r *ManifestReader) Forget(dir string) {
	r.mu.Lock()
	delete(r.cache, filepath.Clean(dir))
	r.mu.Unlock()
}

func readManifest(dir string) (*domain.Manifest, error) {
	path := filepath.Join(dir, domain.ManifestFileName)
	data, err := os.ReadFile(path) //nolint:gosec // path is a package directory
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrManifestRead, err.Error()), "path", path)
	}
	m, err := domain.ParseManifest(data)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrManifestRead, err.Error()), "path", path)
	}
	return m, nil
}
