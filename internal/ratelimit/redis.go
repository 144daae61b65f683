package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/chordmind/apigw/internal/observability"
)

// Store breaker defaults. After StoreBreakerFailures consecutive Redis
// errors the limiter stops calling Redis for StoreBreakerTimeout.
const (
	StoreBreakerName     = "ratelimit-redis"
	StoreBreakerFailures = 5
	StoreBreakerTimeout  = 10 * time.Second
)

// tokenBucketScript refills and takes one token atomically.
//
// KEYS[1] bucket key
// ARGV[1] refill rate (tokens/s), ARGV[2] capacity, ARGV[3] now (ms),
// ARGV[4] tokens requested.
//
// Returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_update')
local tokens = tonumber(data[1])
local last_update = tonumber(data[2])

if tokens == nil or last_update == nil then
	tokens = burst
	last_update = now
end

local elapsed = (now - last_update) / 1000.0
if elapsed < 0 then
	elapsed = 0
end
tokens = math.min(burst, tokens + (elapsed * rate))

local allowed = 0
local retry_ms = 0
if tokens >= requested then
	tokens = tokens - requested
	allowed = 1
else
	retry_ms = math.ceil((requested - tokens) / rate * 1000)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_update', tostring(now))
redis.call('EXPIRE', key, math.ceil(burst / rate) * 2 + 1)

return {allowed, math.floor(tokens), retry_ms}
`)

// RedisLimiter is a token bucket shared across gateway instances through
// Redis. Redis calls are guarded by a circuit breaker and, when a
// fallback is configured, failed or short-circuited calls are answered by
// it instead.
type RedisLimiter struct {
	client   redis.UniversalClient
	rps      int
	burst    int
	prefix   string
	breaker  *gobreaker.CircuitBreaker
	fallback Limiter
	logger   observability.Logger
	metrics  *Metrics
	now      func() time.Time
}

// NewRedisLimiter creates a Redis backed limiter. fallback may be nil, in
// which case store failures are returned to the caller.
func NewRedisLimiter(
	client redis.UniversalClient,
	rps, burst int,
	prefix string,
	fallback Limiter,
	opts ...Option,
) *RedisLimiter {
	o := applyOptions(opts)
	l := &RedisLimiter{
		client:   client,
		rps:      rps,
		burst:    burst,
		prefix:   prefix,
		fallback: fallback,
		logger:   o.logger,
		metrics:  o.metrics,
		now:      o.now,
	}

	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        StoreBreakerName,
		MaxRequests: 1,
		Timeout:     StoreBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= StoreBreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.logger.Warn("rate limit store breaker state changed",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return l
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	out, err := l.breaker.Execute(func() (interface{}, error) {
		return l.take(ctx, key)
	})
	if err == nil {
		res := out.(Result)
		l.metrics.decision(storeRedis, res.Allowed)
		return res, nil
	}

	l.metrics.storeError()
	if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
		l.logger.WithContext(ctx).Warn("rate limit store call failed",
			observability.String("key", key),
			observability.Error(err),
		)
	}

	if l.fallback == nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	l.metrics.fallback()
	return l.fallback.Allow(ctx, key)
}

// BreakerState returns the state of the Redis guard.
func (l *RedisLimiter) BreakerState() gobreaker.State {
	return l.breaker.State()
}

// Ping checks the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis client and the fallback when it holds resources.
func (l *RedisLimiter) Close() error {
	var errs []error
	if c, ok := l.fallback.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, l.client.Close())
	return errors.Join(errs...)
}

func (l *RedisLimiter) take(ctx context.Context, key string) (Result, error) {
	raw, err := tokenBucketScript.Run(ctx, l.client,
		[]string{l.prefix + key},
		l.rps,
		l.burst,
		l.now().UnixMilli(),
		1,
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("token bucket script: %w", err)
	}
	return l.parse(raw)
}

func (l *RedisLimiter) parse(raw interface{}) (Result, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return Result{}, fmt.Errorf("unexpected token bucket reply: %v", raw)
	}
	ints := make([]int64, len(values))
	for i, v := range values {
		n, ok := v.(int64)
		if !ok {
			return Result{}, fmt.Errorf("unexpected token bucket reply element %d: %v", i, v)
		}
		ints[i] = n
	}

	return Result{
		Allowed:    ints[0] == 1,
		Rate:       l.rps,
		Burst:      l.burst,
		Remaining:  int(max(ints[1], 0)),
		RetryAfter: time.Duration(ints[2]) * time.Millisecond,
	}, nil
}
