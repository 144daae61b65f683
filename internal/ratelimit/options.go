package ratelimit

import (
	"time"

	"github.com/chordmind/apigw/internal/observability"
)

type options struct {
	logger    observability.Logger
	metrics   *Metrics
	now       func() time.Time
	skipPaths []string
}

func defaultOptions() options {
	return options{
		logger: observability.NopLogger(),
		now:    time.Now,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures limiters and the middleware.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithClock overrides the clock used for refills and response timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithSkipPaths exempts requests whose path starts with one of prefixes
// from rate limiting. Only the middleware honours it.
func WithSkipPaths(prefixes ...string) Option {
	return func(o *options) {
		o.skipPaths = append(o.skipPaths, prefixes...)
	}
}
