package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"
)

// diskCache stores raw response bodies as files named by the xxhash of their
// key. Entries expire by modification time; a zero TTL never expires.
type diskCache struct {
	dir string
	ttl time.Duration
}

func newDiskCache(dir string, ttl time.Duration) *diskCache {
	return &diskCache{dir: dir, ttl: ttl}
}

func (c *diskCache) path(key string) string {
	return filepath.Join(c.dir, strconv.FormatUint(xxhash.Sum64String(key), 16)+".json")
}

// get returns the cached body for key, or false on a miss or an expired entry.
func (c *diskCache) get(key string) ([]byte, bool) {
	p := c.path(key)
	info, err := os.Stat(p)
	if err != nil {
		return nil, false
	}
	if c.ttl > 0 && time.Since(info.ModTime()) > c.ttl {
		return nil, false
	}
	data, err := os.ReadFile(p) //nolint:gosec // path is derived from a hash
	if err != nil {
		return nil, false
	}
	return data, true
}

// set writes the body for key atomically.
func (c *diskCache) set(key string, data []byte) error {
	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		return zerr.Wrap(err, "failed to create cache directory")
	}

	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return zerr.Wrap(err, "failed to create cache file")
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return zerr.Wrap(err, "failed to write cache file")
	}

	if err := os.Rename(tmpName, c.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return zerr.Wrap(err, "failed to commit cache file")
	}
	return nil
}

// invalidate removes the entry for key.
func (c *diskCache) invalidate(key string) {
	_ = os.Remove(c.path(key))
}
