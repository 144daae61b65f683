package circuitbreaker

import (
	"sort"
	"sync"

	"github.com/chordmind/apigw/internal/observability"
)

// Registry holds one circuit breaker per route. Breakers are created on
// first use and live for the life of the process unless removed.
type Registry struct {
	breakers sync.Map // map[string]*CircuitBreaker
	mu       sync.Mutex
	logger   observability.Logger
	metrics  *Metrics
}

// NewRegistry creates an empty registry. The logger and metrics are passed
// on to every breaker it creates.
func NewRegistry(logger observability.Logger, metrics *Metrics) *Registry {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Registry{logger: logger, metrics: metrics}
}

// GetOrCreate returns the breaker registered under name, creating it with
// cfg when absent. cfg is ignored for an existing breaker.
func (r *Registry) GetOrCreate(name string, cfg Config) (*CircuitBreaker, error) {
	if cb, ok := r.Get(name); ok {
		return cb, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.Get(name); ok {
		return cb, nil
	}
	cb, err := New(name, cfg, WithLogger(r.logger), WithMetrics(r.metrics))
	if err != nil {
		return nil, err
	}
	r.breakers.Store(name, cb)
	r.logger.Debug("circuit breaker created",
		observability.String("name", name),
		observability.Float64("failure_rate_threshold", cfg.FailureRateThreshold),
		observability.Duration("open_duration", cfg.OpenDuration),
	)
	return cb, nil
}

// Get returns the breaker registered under name.
func (r *Registry) Get(name string) (*CircuitBreaker, bool) {
	v, ok := r.breakers.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*CircuitBreaker), true
}

// Remove drops the breaker registered under name.
func (r *Registry) Remove(name string) {
	r.breakers.Delete(name)
}

// Names returns the registered breaker names in sorted order.
func (r *Registry) Names() []string {
	var names []string
	r.breakers.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Snapshots returns the state of every breaker sorted by name.
func (r *Registry) Snapshots() []Snapshot {
	snapshots := make([]Snapshot, 0)
	for _, name := range r.Names() {
		if cb, ok := r.Get(name); ok {
			snapshots = append(snapshots, cb.Snapshot())
		}
	}
	return snapshots
}

// ResetAll forces every breaker closed.
func (r *Registry) ResetAll() {
	r.breakers.Range(func(_, v any) bool {
		v.(*CircuitBreaker).Reset()
		return true
	})
}
