package ports

import (
	"context"
	"io"

	"go.trai.ch/nest/internal/core/domain"
)

// Unpacker extracts package tarballs.
//
//go:generate mockgen -source=unpacker.go -destination=mocks/mock_unpacker.go -package=mocks
type Unpacker interface {
	// Unpack extracts the tarball read from r into dir. It blocks while all
	// workers are busy.
	Unpack(ctx context.Context, r io.Reader, dir string) error

	// ReadManifest returns the package.json found in the tarball read from r.
	ReadManifest(ctx context.Context, r io.Reader) (*domain.Manifest, error)

	// Jobs returns the configured concurrency.
	Jobs() int
}
