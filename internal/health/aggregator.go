package health

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/observability"
)

// alertFailureThreshold is the number of consecutive failed probes after
// which a service requires an alert regardless of its status.
const alertFailureThreshold = 3

// ServiceHealth is the cached health of one service.
type ServiceHealth struct {
	ServiceName         string         `json:"serviceName"`
	Status              Status         `json:"status"`
	Severity            Severity       `json:"severity"`
	Priority            Priority       `json:"priority"`
	Category            string         `json:"category"`
	LastCheckedAt       *time.Time     `json:"lastCheckedAt"`
	LastSuccessfulCheck *time.Time     `json:"lastSuccessfulCheck,omitempty"`
	ResponseTimeMs      int64          `json:"responseTimeMs"`
	ConsecutiveFailures int            `json:"consecutiveFailures"`
	RequiresAlert       bool           `json:"requiresAlert"`
	Details             map[string]any `json:"details,omitempty"`
}

// IsHealthy reports whether the service is UP or STARTING.
func (h ServiceHealth) IsHealthy() bool {
	return h.Status.IsHealthy()
}

type entry struct {
	svc     config.ServiceConfig
	current atomic.Pointer[ServiceHealth]
}

// Aggregator polls the backend services and caches their health.
type Aggregator struct {
	entries  map[string]*entry
	order    []string
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   observability.Logger
	metrics  *Metrics
	now      func() time.Time

	refreshing atomic.Bool
	cancel     context.CancelFunc
	done       chan struct{}
	mu         sync.Mutex
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *Metrics) AggregatorOption {
	return func(a *Aggregator) {
		a.metrics = metrics
	}
}

// WithProber replaces the HTTP prober.
func WithProber(p Prober) AggregatorOption {
	return func(a *Aggregator) {
		a.prober = p
	}
}

// WithClock overrides the clock used for check timestamps.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an aggregator for services. Every service starts
// UNKNOWN until its first probe completes.
func NewAggregator(services []config.ServiceConfig, cfg config.HealthConfig, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		entries:  make(map[string]*entry, len(services)),
		interval: cfg.Interval.Duration(),
		timeout:  cfg.Timeout.Duration(),
		logger:   observability.NopLogger(),
		now:      time.Now,
	}
	if a.interval <= 0 {
		a.interval = config.DefaultHealthInterval
	}
	if a.timeout <= 0 {
		a.timeout = config.DefaultHealthTimeout
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.prober == nil {
		a.prober = NewHTTPProber(nil, cfg.MaxBodyBytes)
	}

	for _, svc := range services {
		if _, dup := a.entries[svc.Name]; dup {
			continue
		}
		e := &entry{svc: svc}
		e.current.Store(&ServiceHealth{
			ServiceName:   svc.Name,
			Status:        StatusUnknown,
			Severity:      StatusUnknown.Severity(),
			Priority:      Priority(svc.Priority),
			Category:      svc.Category,
			RequiresAlert: StatusUnknown.Severity().RequiresAlert(),
		})
		a.entries[svc.Name] = e
		a.order = append(a.order, svc.Name)
	}
	return a
}

// Start runs an immediate poll and then polls every interval until ctx is
// cancelled or Stop is called.
func (a *Aggregator) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		a.Refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.Refresh(ctx)
			}
		}
	}()

	a.logger.Info("health aggregator started",
		observability.Int("services", len(a.order)),
		observability.Duration("interval", a.interval),
	)
}

// Stop stops background polling and waits for an in-progress poll.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Refresh probes every service concurrently and updates the cache. Each
// probe is bounded by the configured timeout.
func (a *Aggregator) Refresh(ctx context.Context) {
	var wg sync.WaitGroup
	for _, name := range a.order {
		e := a.entries[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.check(ctx, e)
		}()
	}
	wg.Wait()
	a.metrics.setOverall(a.Overall())
}

// TriggerRefresh starts a background refresh unless one is already
// running. It never blocks.
func (a *Aggregator) TriggerRefresh() {
	if !a.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer a.refreshing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout*2)
		defer cancel()
		a.Refresh(ctx)
	}()
}

func (a *Aggregator) check(ctx context.Context, e *entry) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result := a.prober.Probe(ctx, e.svc)
	if result.Status == "" {
		result.Status = StatusUnknown
	}
	now := a.now()
	prev := e.current.Load()

	next := &ServiceHealth{
		ServiceName:         e.svc.Name,
		Status:              result.Status,
		Severity:            result.Status.Severity(),
		Priority:            Priority(e.svc.Priority),
		Category:            e.svc.Category,
		LastCheckedAt:       &now,
		LastSuccessfulCheck: prev.LastSuccessfulCheck,
		ResponseTimeMs:      result.ResponseTime.Milliseconds(),
		Details:             result.Details,
	}
	if result.Err != nil {
		next.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		a.logger.Debug("health probe failed",
			observability.String("service", e.svc.Name),
			observability.Bool("timeout", IsTimeout(result.Err)),
			observability.Error(result.Err),
		)
	} else {
		next.LastSuccessfulCheck = &now
	}
	next.RequiresAlert = next.Severity.RequiresAlert() || next.ConsecutiveFailures >= alertFailureThreshold

	e.current.Store(next)
	a.metrics.recordCheck(next, result.ResponseTime)

	if prev.Status != next.Status && prev.LastCheckedAt != nil {
		a.logger.Info("service health changed",
			observability.String("service", e.svc.Name),
			observability.String("from", string(prev.Status)),
			observability.String("to", string(next.Status)),
		)
	}
}

// Get returns the cached health of one service.
func (a *Aggregator) Get(name string) (ServiceHealth, bool) {
	e, ok := a.entries[name]
	if !ok {
		return ServiceHealth{}, false
	}
	return *e.current.Load(), true
}

// Services returns the cached health of every service in configuration
// order.
func (a *Aggregator) Services() []ServiceHealth {
	return lo.Map(a.order, func(name string, _ int) ServiceHealth {
		return *a.entries[name].current.Load()
	})
}

// ByPriority returns the cached health sorted most critical first.
func (a *Aggregator) ByPriority() []ServiceHealth {
	services := a.Services()
	sort.SliceStable(services, func(i, j int) bool {
		return services[i].Priority.Level() < services[j].Priority.Level()
	})
	return services
}

// Overall computes the gateway status from the cache.
func (a *Aggregator) Overall() OverallStatus {
	return ComputeOverall(lo.Map(a.Services(), func(h ServiceHealth, _ int) Status {
		return h.Status
	}))
}
