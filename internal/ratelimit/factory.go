package ratelimit

import (
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/observability"
)

// LimiterCloser is a Limiter holding resources released by Close.
type LimiterCloser interface {
	Limiter
	io.Closer
}

// FromConfig builds the limiter described by cfg. A disabled
// configuration yields a NoopLimiter. With a Redis URL the bucket is
// shared through Redis with an in-memory fallback; without one it is
// in-memory only.
func FromConfig(cfg config.RateLimitConfig, opts ...Option) (LimiterCloser, error) {
	if !cfg.Enabled {
		return nopCloser{NoopLimiter{}}, nil
	}

	o := applyOptions(opts)
	memory := NewMemoryLimiter(cfg.RequestsPerSecond, cfg.Burst, opts...)
	memory.StartCleanup(DefaultCleanupInterval, DefaultBucketTTL)

	if cfg.RedisURL == "" {
		o.logger.Info("rate limiting with in-memory buckets",
			observability.Int("rps", cfg.RequestsPerSecond),
			observability.Int("burst", cfg.Burst),
		)
		return memory, nil
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		_ = memory.Close()
		return nil, fmt.Errorf("invalid rate limit redis url: %w", err)
	}

	o.logger.Info("rate limiting with redis buckets",
		observability.String("addr", redisOpts.Addr),
		observability.Int("rps", cfg.RequestsPerSecond),
		observability.Int("burst", cfg.Burst),
		observability.String("key_prefix", cfg.KeyPrefix),
	)
	return NewRedisLimiter(redis.NewClient(redisOpts), cfg.RequestsPerSecond, cfg.Burst, cfg.KeyPrefix, memory, opts...), nil
}

type nopCloser struct {
	Limiter
}

func (nopCloser) Close() error { return nil }
