package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Store label values.
const (
	storeRedis  = "redis"
	storeMemory = "memory"
)

// Metrics holds Prometheus metrics for rate limiting.
type Metrics struct {
	decisions   *prometheus.CounterVec
	storeErrors prometheus.Counter
	fallbacks   prometheus.Counter
}

// NewMetrics creates the rate limit metrics and registers them with reg
// when reg is not nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}
	m := &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Rate limit decisions by store and result",
			},
			[]string{"store", "result"},
		),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "store_errors_total",
			Help:      "Failed or short-circuited calls to the shared rate limit store",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "fallback_total",
			Help:      "Decisions taken by the local limiter because the shared store was unavailable",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.storeErrors, m.fallbacks)
	}
	return m
}

func (m *Metrics) decision(store string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.decisions.WithLabelValues(store, result).Inc()
}

func (m *Metrics) storeError() {
	if m == nil {
		return
	}
	m.storeErrors.Inc()
}

func (m *Metrics) fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}
