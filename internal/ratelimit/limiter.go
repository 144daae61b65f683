package ratelimit

import (
	"context"
	"errors"
	"time"
)

// AnonymousKey is the bucket shared by requests without a user id.
const AnonymousKey = "anonymous"

// ErrStoreUnavailable is returned when the shared store cannot be reached
// and no fallback limiter is configured.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed bool
	// Rate is the bucket refill rate in tokens per second.
	Rate int
	// Burst is the bucket capacity.
	Burst int
	// Remaining is the number of whole tokens left after this request.
	Remaining int
	// RetryAfter is how long until a token is available. Zero when allowed.
	RetryAfter time.Duration
}

// NoopLimiter allows every request.
type NoopLimiter struct{}

// Allow implements Limiter.
func (NoopLimiter) Allow(context.Context, string) (Result, error) {
	return Result{Allowed: true}, nil
}
