// Package registry implements ports.PackageSource over the npm registry HTTP API.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

const (
	// AcceptPackument requests the abbreviated install metadata document.
	AcceptPackument = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8, */*"

	defaultRetries     = 3
	defaultRetryDelay  = 500 * time.Millisecond
	defaultTimeout     = 30 * time.Second
	defaultMemorySize  = 2048
	defaultMemoryTTL   = 15 * time.Minute
	maxPackumentLength = 256 << 20
)

var _ ports.PackageSource = (*Client)(nil)

// Client fetches packuments and tarballs. Packuments are cached in memory and,
// when a cache directory is configured, on disk.
type Client struct {
	http   *http.Client
	logger ports.Logger

	memo  *expirable.LRU[string, *domain.Packument]
	disk  *diskCache
	group singleflight.Group

	retries    int
	retryDelay time.Duration
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithDiskCache stores packuments under dir/packuments for ttl.
func WithDiskCache(dir string, ttl time.Duration) Option {
	return func(cl *Client) {
		if dir != "" {
			cl.disk = newDiskCache(dir, ttl)
		}
	}
}

// WithRetries sets how many times a transient failure is retried and the initial backoff.
func WithRetries(retries int, delay time.Duration) Option {
	return func(cl *Client) {
		cl.retries = retries
		cl.retryDelay = delay
	}
}

// WithMemoryCache sizes the in-memory packument cache.
func WithMemoryCache(size int, ttl time.Duration) Option {
	return func(cl *Client) {
		cl.memo = expirable.NewLRU[string, *domain.Packument](size, nil, ttl)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// NewClient creates a Client.
func NewClient(logger ports.Logger, opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{Timeout: defaultTimeout},
		logger:     logger,
		memo:       expirable.NewLRU[string, *domain.Packument](defaultMemorySize, nil, defaultMemoryTTL),
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
		userAgent:  "nest",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PackumentURL returns the packument URL of name on the registry at base.
func PackumentURL(base, name string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.Replace(name, "/", "%2F", 1)
}

// FetchPackument returns the packument of name. Concurrent calls for the same
// package share one request.
func (c *Client) FetchPackument(ctx context.Context, registryURL, name string) (*domain.Packument, error) {
	key := PackumentURL(registryURL, name)
	if p, ok := c.memo.Get(key); ok {
		return p, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if p, ok := c.memo.Get(key); ok {
			return p, nil
		}
		p, err := c.loadPackument(ctx, key, name)
		if err != nil {
			return nil, err
		}
		c.memo.Add(key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Packument), nil
}

func (c *Client) loadPackument(ctx context.Context, url, name string) (*domain.Packument, error) {
	if c.disk != nil {
		if data, ok := c.disk.get(url); ok {
			if p, err := decodePackument(data, name); err == nil {
				return p, nil
			}
			c.disk.invalidate(url)
		}
	}

	var data []byte
	err := retry(ctx, c.retries+1, c.retryDelay, func() error {
		body, err := c.get(ctx, url, AcceptPackument)
		if err != nil {
			return err
		}
		defer func() { _ = body.Close() }()

		data, err = io.ReadAll(io.LimitReader(body, maxPackumentLength))
		if err != nil {
			return &retryableError{err: err}
		}
		return nil
	})
	if err != nil {
		return nil, c.fetchError(ctx, err, url, name)
	}

	p, err := decodePackument(data, name)
	if err != nil {
		return nil, err
	}

	if c.disk != nil {
		if err := c.disk.set(url, data); err != nil {
			c.logger.Warn(fmt.Sprintf("failed to cache packument of %s: %v", name, err))
		}
	}
	return p, nil
}

// FetchTarball opens the tarball at req.URL, verifying req.Integrity while it is read.
func (c *Client) FetchTarball(ctx context.Context, req ports.TarballRequest) (io.ReadCloser, error) {
	var want *integrity
	if req.Integrity != "" {
		var err error
		if want, err = parseIntegrity(req.Integrity); err != nil {
			return nil, zerr.With(err, "url", req.URL)
		}
		if want == nil {
			c.logger.Warn(fmt.Sprintf("unsupported integrity for %s, skipping verification", req.URL))
		}
	}

	var body io.ReadCloser
	err := retry(ctx, c.retries+1, c.retryDelay, func() error {
		var err error
		body, err = c.get(ctx, req.URL, "application/octet-stream")
		return err
	})
	if err != nil {
		return nil, c.fetchError(ctx, err, req.URL, "")
	}

	if want == nil {
		return body, nil
	}
	return newVerifyingReader(body, want, req.URL), nil
}

func (c *Client) get(ctx context.Context, url, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrNetwork, err.Error()), "url", url)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &retryableError{err: err}
	}

	if err := checkStatus(resp.StatusCode); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// statusError is a non-200 response.
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return domain.ErrNotFound
	case code == http.StatusTooManyRequests, code >= 500:
		return &retryableError{err: &statusError{code: code}}
	default:
		return &statusError{code: code}
	}
}

// fetchError maps a failed fetch onto the domain error taxonomy.
func (c *Client) fetchError(ctx context.Context, err error, url, name string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zerr.Wrap(ctxErr, "fetch cancelled")
	}

	var wrapped error
	switch {
	case errors.Is(err, domain.ErrNotFound):
		wrapped = zerr.Wrap(domain.ErrNotFound, "package not found")
	case isRetryable(err):
		wrapped = zerr.With(zerr.Wrap(domain.ErrNetwork, err.Error()), "attempts", c.retries+1)
	default:
		wrapped = zerr.Wrap(domain.ErrNetwork, err.Error())
	}
	if name != "" {
		wrapped = zerr.With(wrapped, "package", name)
	}
	return zerr.With(wrapped, "url", url)
}

func decodePackument(data []byte, name string) (*domain.Packument, error) {
	p, err := domain.ParsePackument(data)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrResolution, "invalid packument: "+err.Error()), "package", name)
	}
	if p.Name == "" {
		p.Name = name
	}
	return p, nil
}
