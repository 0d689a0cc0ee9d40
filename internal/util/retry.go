// Package util provides shared utility functions for homefs.
package util

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"homefs/internal/common"
)

// DatabaseRetryOptions returns retry options optimized for database operations.
// Uses linear backoff (100ms, 200ms, 300ms) suitable for transient lock errors.
func DatabaseRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(300 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsDatabaseLocked),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
}

// CollisionRetryOptions retries a fixed number of times on EEXIST only.
// Used when a freshly computed unique name is taken by a concurrent writer
// before it could be claimed.
func CollisionRetryOptions(ctx context.Context, attempts uint, delay time.Duration) []retry.Option {
	return []retry.Option{
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(IsCollision),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
}

// DefaultRetryOptions returns sensible defaults for retry operations.
func DefaultRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(1 * time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
}

// Retry executes fn with retry logic.
// Returns the last error if all attempts fail.
func Retry(ctx context.Context, fn func() error, opts ...retry.Option) error {
	if len(opts) == 0 {
		opts = DefaultRetryOptions(ctx)
	}
	return retry.Do(fn, opts...)
}

// RetryWithResult executes fn with retry logic and returns the result.
func RetryWithResult[T any](ctx context.Context, fn func() (T, error), opts ...retry.Option) (T, error) {
	if len(opts) == 0 {
		opts = DefaultRetryOptions(ctx)
	}
	return retry.DoWithData(fn, opts...)
}

// Common retry predicates

// IsDatabaseLocked returns true if the error indicates a database lock.
func IsDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// IsCollision returns true if the error says the target already exists.
func IsCollision(err error) bool {
	return common.HasCode(err, common.EEXIST)
}
