package registry

import (
	"context"
	"time"
)

// Retry exposes retry for testing.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	return retry(ctx, attempts, delay, fn)
}

// Retryable wraps err as a transient failure for testing.
func Retryable(err error) error {
	return &retryableError{err: err}
}
