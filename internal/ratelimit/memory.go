package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/chordmind/apigw/internal/observability"
)

// Idle bucket eviction defaults.
const (
	DefaultBucketTTL       = 10 * time.Minute
	DefaultCleanupInterval = time.Minute
)

type memoryBucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryLimiter is a per-key token bucket held in process memory.
type MemoryLimiter struct {
	rps     int
	burst   int
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*memoryBucket

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryLimiter creates an in-memory limiter refilling rps tokens per
// second up to burst.
func NewMemoryLimiter(rps, burst int, opts ...Option) *MemoryLimiter {
	o := applyOptions(opts)
	return &MemoryLimiter{
		rps:     rps,
		burst:   burst,
		logger:  o.logger,
		metrics: o.metrics,
		now:     o.now,
		buckets: make(map[string]*memoryBucket),
		stopCh:  make(chan struct{}),
	}
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := m.now()

	m.mu.Lock()
	b, ok := m.buckets[key]
	if !ok {
		b = &memoryBucket{limiter: rate.NewLimiter(rate.Limit(m.rps), m.burst)}
		m.buckets[key] = b
	}
	b.lastAccess = now
	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	m.mu.Unlock()

	res := Result{
		Allowed:   allowed,
		Rate:      m.rps,
		Burst:     m.burst,
		Remaining: int(math.Max(0, math.Floor(tokens))),
	}
	if !allowed && m.rps > 0 {
		res.RetryAfter = time.Duration(math.Ceil((1 - tokens) / float64(m.rps) * float64(time.Second)))
	}
	m.metrics.decision(storeMemory, allowed)
	return res, nil
}

// Len returns the number of tracked buckets.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Cleanup drops buckets idle for longer than maxAge.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) {
	now := m.now()

	m.mu.Lock()
	removed := 0
	for key, b := range m.buckets {
		if now.Sub(b.lastAccess) > maxAge {
			delete(m.buckets, key)
			removed++
		}
	}
	remaining := len(m.buckets)
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("evicted idle rate limit buckets",
			observability.Int("removed", removed),
			observability.Int("remaining", remaining),
		)
	}
}

// StartCleanup evicts idle buckets every interval until Close is called.
func (m *MemoryLimiter) StartCleanup(interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Cleanup(maxAge)
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	return nil
}
