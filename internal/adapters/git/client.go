// Package git implements ports.GitClient with go-git.
package git

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRefTTL    = 5 * time.Minute
	defaultRefSize   = 512
	defaultCloneSize = 16
	peeledSuffix     = "^{}"
)

var (
	fullSHA  = regexp.MustCompile(`^[0-9a-f]{40}$`)
	shortSHA = regexp.MustCompile(`^[0-9a-f]{7,39}$`)
)

var _ ports.GitClient = (*Client)(nil)

// Client resolves refs with ls-remote and reads commits from in-memory clones.
type Client struct {
	logger ports.Logger

	refs   *expirable.LRU[string, ports.GitRef]
	clones *expirable.LRU[string, *object.Commit]
	group  singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithRefCache sizes the resolved ref cache.
func WithRefCache(size int, ttl time.Duration) Option {
	return func(c *Client) {
		c.refs = expirable.NewLRU[string, ports.GitRef](size, nil, ttl)
	}
}

// NewClient creates a Client.
func NewClient(logger ports.Logger, opts ...Option) *Client {
	c := &Client{
		logger: logger,
		refs:   expirable.NewLRU[string, ports.GitRef](defaultRefSize, nil, defaultRefTTL),
		clones: expirable.NewLRU[string, *object.Commit](defaultCloneSize, nil, defaultRefTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveRef resolves ref against the refs advertised by repo. A full commit
// hash resolves without network access.
func (c *Client) ResolveRef(ctx context.Context, repo, ref string, bypassCache bool) (ports.GitRef, error) {
	if ref == "" {
		ref = domain.DefaultGitRef
	}
	if fullSHA.MatchString(ref) {
		return ports.GitRef{SHA: ref, Type: ports.GitRefCommit}, nil
	}

	key := repo + "#" + ref
	if !bypassCache {
		if r, ok := c.refs.Get(key); ok {
			return r, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		advertised, err := c.listRefs(ctx, repo)
		if err != nil {
			return ports.GitRef{}, err
		}
		resolved, err := matchRef(advertised, ref)
		if err != nil {
			return ports.GitRef{}, zerr.With(zerr.With(err, "repo", repo), "ref", ref)
		}
		c.refs.Add(key, resolved)
		return resolved, nil
	})
	if err != nil {
		return ports.GitRef{}, err
	}
	return v.(ports.GitRef), nil
}

func (c *Client) listRefs(ctx context.Context, repo string) ([]*plumbing.Reference, error) {
	remote := gogit.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{repo},
	})
	refs, err := remote.ListContext(ctx, &gogit.ListOptions{})
	if err != nil {
		return nil, remoteError(ctx, err, repo)
	}
	return refs, nil
}

// matchRef finds ref among the advertised refs: HEAD, then branches, then
// tags (peeled to their commit), then abbreviated commit hashes.
func matchRef(refs []*plumbing.Reference, ref string) (ports.GitRef, error) {
	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, r := range refs {
		byName[r.Name()] = r
	}

	hashOf := func(name plumbing.ReferenceName) (string, bool) {
		r, ok := byName[name]
		if !ok {
			return "", false
		}
		if r.Type() == plumbing.SymbolicReference {
			target, ok := byName[r.Target()]
			if !ok {
				return "", false
			}
			return target.Hash().String(), true
		}
		return r.Hash().String(), true
	}

	if ref == domain.DefaultGitRef {
		sha, ok := hashOf(plumbing.HEAD)
		if !ok {
			return ports.GitRef{}, zerr.Wrap(domain.ErrResolution, "remote has no HEAD")
		}
		return ports.GitRef{SHA: sha, Type: ports.GitRefHead, Name: plumbing.HEAD.String()}, nil
	}

	short := strings.TrimPrefix(strings.TrimPrefix(ref, "refs/heads/"), "refs/tags/")
	branch := plumbing.NewBranchReferenceName(short)
	if sha, ok := hashOf(branch); ok && !strings.HasPrefix(ref, "refs/tags/") {
		return ports.GitRef{SHA: sha, Type: ports.GitRefBranch, Name: branch.String()}, nil
	}

	tag := plumbing.NewTagReferenceName(short)
	if sha, ok := hashOf(plumbing.ReferenceName(tag.String() + peeledSuffix)); ok {
		return ports.GitRef{SHA: sha, Type: ports.GitRefTag, Name: tag.String()}, nil
	}
	if sha, ok := hashOf(tag); ok {
		return ports.GitRef{SHA: sha, Type: ports.GitRefTag, Name: tag.String()}, nil
	}

	if shortSHA.MatchString(ref) {
		return ports.GitRef{SHA: ref, Type: ports.GitRefCommit}, nil
	}
	return ports.GitRef{}, zerr.Wrap(domain.ErrResolution, "git ref not found")
}

// ReadManifest reads package.json from the root of the commit.
func (c *Client) ReadManifest(ctx context.Context, repo string, ref ports.GitRef) (*domain.Manifest, error) {
	commit, err := c.commit(ctx, repo, ref)
	if err != nil {
		return nil, err
	}

	f, err := commit.File(domain.ManifestFileName)
	if err != nil {
		return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrManifestRead, err.Error()), "repo", repo), "commit", ref.SHA)
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrManifestRead, err.Error()), "repo", repo)
	}
	m, err := domain.ParseManifest([]byte(contents))
	if err != nil {
		return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrManifestRead, err.Error()), "repo", repo), "commit", ref.SHA)
	}
	return m, nil
}

// commit returns the commit of ref, cloning repo into memory on first use.
func (c *Client) commit(ctx context.Context, repo string, ref ports.GitRef) (*object.Commit, error) {
	key := repo + "@" + ref.SHA
	if commit, ok := c.clones.Get(key); ok {
		return commit, nil
	}

	v, err, _ := c.group.Do("clone:"+key, func() (any, error) {
		commit, err := c.cloneCommit(ctx, repo, ref)
		if err != nil {
			return nil, err
		}
		c.clones.Add(key, commit)
		return commit, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*object.Commit), nil
}

func (c *Client) cloneCommit(ctx context.Context, repo string, ref ports.GitRef) (*object.Commit, error) {
	if ref.Type != ports.GitRefCommit {
		opts := &gogit.CloneOptions{URL: repo, Depth: 1, Tags: gogit.NoTags, SingleBranch: true}
		if ref.Name != "" && ref.Type != ports.GitRefHead {
			opts.ReferenceName = plumbing.ReferenceName(ref.Name)
		}
		if r, err := gogit.CloneContext(ctx, memory.NewStorage(), nil, opts); err == nil {
			if commit, err := r.CommitObject(plumbing.NewHash(ref.SHA)); err == nil {
				return commit, nil
			}
		} else if ctx.Err() != nil {
			return nil, remoteError(ctx, err, repo)
		}
		c.logger.Warn(fmt.Sprintf("shallow clone of %s did not contain %s, fetching full history", repo, ref.SHA))
	}

	r, err := gogit.CloneContext(ctx, memory.NewStorage(), nil, &gogit.CloneOptions{URL: repo, Tags: gogit.NoTags})
	if err != nil {
		return nil, remoteError(ctx, err, repo)
	}

	hash, err := r.ResolveRevision(plumbing.Revision(ref.SHA))
	if err != nil {
		return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrResolution, "commit not found"), "repo", repo), "commit", ref.SHA)
	}
	commit, err := r.CommitObject(*hash)
	if err != nil {
		return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrResolution, err.Error()), "repo", repo), "commit", ref.SHA)
	}
	return commit, nil
}

func remoteError(ctx context.Context, err error, repo string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zerr.Wrap(ctxErr, "git fetch cancelled")
	}
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrEmptyRemoteRepository):
		return zerr.With(zerr.Wrap(domain.ErrNotFound, err.Error()), "repo", repo)
	default:
		return zerr.With(zerr.Wrap(domain.ErrNetwork, err.Error()), "repo", repo)
	}
}
