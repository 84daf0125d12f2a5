package lockfile

import (
	"errors"
	"os"
	"path/filepath"

	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/zerr"
)

// Store implements ports.LockfileStore on the project filesystem.
type Store struct {
	reader ports.ManifestReader
}

var _ ports.LockfileStore = (*Store)(nil)

// NewStore creates a store. Manifests of importers and local packages are
// attached on Load through reader.
func NewStore(reader ports.ManifestReader) *Store {
	return &Store{reader: reader}
}

// Load reads root's lockfile. A missing lockfile yields a nil graph.
func (s *Store) Load(root string) (*domain.Graph, error) {
	path := domain.DefaultLockfilePath(root)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read lockfile"), "path", path)
	}

	g, err := Decode(data, root)
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}
	s.attachManifests(g)
	return g, nil
}

// attachManifests reads package.json for nodes whose files live in the project.
// Directories that have disappeared are left without a manifest.
func (s *Store) attachManifests(g *domain.Graph) {
	if s.reader == nil {
		return
	}
	for n := range g.Nodes() {
		if n.ID.IsStoreBacked() {
			continue
		}
		m, err := s.reader.Read(filepath.Join(g.ProjectRoot, filepath.FromSlash(n.Location)))
		if err != nil {
			continue
		}
		n.Manifest = m
		if n.Name.String() == "" {
			n.Name = domain.NewInternedString(m.Name)
		}
		if n.Version == "" {
			n.Version = m.Version
		}
	}
}

// Save writes g as root's lockfile, replacing any previous file atomically.
func (s *Store) Save(root string, g *domain.Graph) error {
	data, err := Encode(g)
	if err != nil {
		return err
	}

	path := domain.DefaultLockfilePath(root)
	tmp, err := os.CreateTemp(root, ".nest-lock-*")
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create lockfile"), "path", path)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return zerr.With(zerr.Wrap(err, "failed to write lockfile"), "path", path)
	}
	if err := tmp.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write lockfile"), "path", path)
	}
	if err := os.Chmod(tmp.Name(), domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write lockfile"), "path", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to replace lockfile"), "path", path)
	}
	return nil
}
