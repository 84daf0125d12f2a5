package ports

import (
	"context"
	"io"

	"go.trai.ch/nest/internal/core/domain"
)

// GitRefType is the kind of ref a git name resolved through.
type GitRefType string

const (
	// GitRefHead is the remote HEAD.
	GitRefHead GitRefType = "head"
	// GitRefBranch is a branch.
	GitRefBranch GitRefType = "branch"
	// GitRefTag is a tag.
	GitRefTag GitRefType = "tag"
	// GitRefCommit is a full or abbreviated commit hash.
	GitRefCommit GitRefType = "commit"
)

// GitRef is a resolved git ref.
type GitRef struct {
	SHA  string
	Type GitRefType
	// Name is the full ref name, empty for commits.
	Name string
}

// GitClient resolves refs and reads package contents from git repositories.
//
//go:generate mockgen -source=git.go -destination=mocks/mock_git.go -package=mocks
type GitClient interface {
	// ResolveRef resolves ref in repo to a commit. Results are cached with a TTL
	// unless bypassCache is set.
	ResolveRef(ctx context.Context, repo, ref string, bypassCache bool) (GitRef, error)

	// ReadManifest reads package.json at the root of repo at commit sha.
	ReadManifest(ctx context.Context, repo string, ref GitRef) (*domain.Manifest, error)

	// Archive returns a gzipped tarball of repo at the given commit, with
	// entries under a single "package/" directory.
	Archive(ctx context.Context, repo string, ref GitRef) (io.ReadCloser, error)
}
