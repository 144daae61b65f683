package jwt

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for token verification.
type Metrics struct {
	validationTotal    *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
}

// NewMetrics creates the verification metrics and registers them with reg
// when reg is not nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	m := &Metrics{
		validationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jwt",
				Name:      "validation_total",
				Help:      "Total number of JWT validation attempts",
			},
			[]string{"status", "algorithm"},
		),
		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jwt",
				Name:      "validation_duration_seconds",
				Help:      "JWT validation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"status", "algorithm"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.validationTotal, m.validationDuration)
	}
	return m
}

// RecordValidation records a verification attempt. A nil receiver is a no-op.
func (m *Metrics) RecordValidation(status, algorithm string, duration time.Duration) {
	if m == nil {
		return
	}
	m.validationTotal.WithLabelValues(status, algorithm).Inc()
	m.validationDuration.WithLabelValues(status, algorithm).Observe(duration.Seconds())
}
