package ports

import "go.trai.ch/nest/internal/core/domain"

// ManifestReader reads package.json files from disk.
//
//go:generate mockgen -source=manifest_reader.go -destination=mocks/mock_manifest_reader.go -package=mocks
type ManifestReader interface {
	// Read parses dir/package.json. Results are memoized for the reader's lifetime.
	Read(dir string) (*domain.Manifest, error)
}
