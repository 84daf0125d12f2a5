package fs_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/nest/internal/adapters/fs"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
)

func TestWalker_Entries(t *testing.T) {
	root := t.TempDir()
	nm := filepath.Join(root, "node_modules")
	store := filepath.Join(nm, ".nest", "x", "node_modules", "b")
	require.NoError(t, os.MkdirAll(store, 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(nm, "a"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(nm, "@scope", "c"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(nm, ".bin"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(nm, "README"), nil, 0o600))
	require.NoError(t, os.Symlink(filepath.Join(".nest", "x", "node_modules", "b"), filepath.Join(nm, "b")))
	require.NoError(t, os.Symlink("nowhere", filepath.Join(nm, "dangling")))

	entries := slices.Collect(fs.NewWalker().Entries(nm))

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"@scope/c", "a", "b", "dangling"}, names)

	assert.Empty(t, entries[1].Target)
	assert.Equal(t, store, entries[2].Target)
	assert.Equal(t, filepath.Join(nm, "nowhere"), entries[3].Target)
	assert.Equal(t, filepath.Join(nm, "@scope", "c"), entries[0].Path)
}

func TestWalker_MissingDir(t *testing.T) {
	var got []ports.ModuleEntry
	for e := range fs.NewWalker().Entries(filepath.Join(t.TempDir(), "absent")) {
		got = append(got, e)
	}
	assert.Empty(t, got)
}

func TestManifestReader_Memoizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"a","version":"1.0.0"}`), 0o600))

	r := fs.NewManifestReader()
	m1, err := r.Read(dir)
	require.NoError(t, err)
	assert.Equal(t, "a", m1.Name)

	require.NoError(t, os.WriteFile(path, []byte(`{"name":"b"}`), 0o600))
	m2, err := r.Read(dir + string(filepath.Separator))
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	r.Forget(dir)
	m3, err := r.Read(dir)
	require.NoError(t, err)
	assert.Equal(t, "b", m3.Name)
}

func TestManifestReader_Errors(t *testing.T) {
	r := fs.NewManifestReader()

	_, err := r.Read(t.TempDir())
	require.ErrorIs(t, err, domain.ErrManifestRead)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{`), 0o600))
	_, err = r.Read(dir)
	require.ErrorIs(t, err, domain.ErrManifestRead)
}
