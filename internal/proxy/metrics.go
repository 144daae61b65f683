package proxy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus metrics for backend calls.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// NewMetrics creates the proxy metrics and registers them with reg when reg
// is not nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "backend_requests_total",
				Help:      "Backend calls by route and result",
			},
			[]string{"route", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "backend_duration_seconds",
				Help:      "Duration of backend calls in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"route"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "backend_in_flight",
				Help:      "Backend calls currently in flight",
			},
			[]string{"route"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.inFlight)
	}
	return m
}

func (m *Metrics) start(route string) func(result string) {
	if m == nil {
		return func(string) {}
	}
	begin := time.Now()
	m.inFlight.WithLabelValues(route).Inc()
	return func(result string) {
		m.inFlight.WithLabelValues(route).Dec()
		m.requests.WithLabelValues(route, result).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(begin).Seconds())
	}
}

func (m *Metrics) rejected(route string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, ReasonCircuitOpen).Inc()
}
