package ports

import (
	"context"
	"io"

	"go.trai.ch/nest/internal/core/domain"
)

// TarballRequest identifies a tarball to download.
type TarballRequest struct {
	URL string
	// Integrity is an SRI string ("sha512-..."). When set, the content is verified.
	Integrity string
}

// PackageSource fetches package metadata and contents from registries.
// Implementations retry transient failures, cache packuments and coalesce
// concurrent identical requests, so they are safe to call concurrently.
//
//go:generate mockgen -source=registry.go -destination=mocks/mock_registry.go -package=mocks
type PackageSource interface {
	// FetchPackument returns the document listing every version of name on the registry at registryURL.
	// A package that does not exist yields domain.ErrNotFound; exhausted retries yield domain.ErrNetwork.
	FetchPackument(ctx context.Context, registryURL, name string) (*domain.Packument, error)

	// FetchTarball opens a tarball stream. The caller closes it. When the
	// request carries an integrity, reading to EOF fails with
	// domain.ErrIntegrityMismatch if the content does not match.
	FetchTarball(ctx context.Context, req TarballRequest) (io.ReadCloser, error)
}
