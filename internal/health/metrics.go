package health

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var overallStatuses = []OverallStatus{
	OverallHealthy, OverallPartiallyHealthy, OverallDegraded, OverallUnhealthy, OverallCritical,
}

// Metrics holds Prometheus metrics for backend health checks.
type Metrics struct {
	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	serviceUp     *prometheus.GaugeVec
	overall       *prometheus.GaugeVec
}

// NewMetrics creates the health metrics and registers them with reg when
// reg is not nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "checks_total",
				Help:      "Total number of backend health checks by resulting status",
			},
			[]string{"service", "status"},
		),
		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "check_duration_seconds",
				Help:      "Duration of backend health checks in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"service"},
		),
		serviceUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "service_healthy",
				Help:      "Whether the backend service is healthy (1) or not (0)",
			},
			[]string{"service"},
		),
		overall: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "overall_status",
				Help:      "Current overall gateway status (1 for the active status)",
			},
			[]string{"status"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.checksTotal, m.checkDuration, m.serviceUp, m.overall)
	}
	return m
}

func (m *Metrics) recordCheck(h *ServiceHealth, d time.Duration) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(h.ServiceName, string(h.Status)).Inc()
	m.checkDuration.WithLabelValues(h.ServiceName).Observe(d.Seconds())
	value := 0.0
	if h.IsHealthy() {
		value = 1.0
	}
	m.serviceUp.WithLabelValues(h.ServiceName).Set(value)
}

func (m *Metrics) setOverall(current OverallStatus) {
	if m == nil {
		return
	}
	for _, s := range overallStatuses {
		value := 0.0
		if s == current {
			value = 1.0
		}
		m.overall.WithLabelValues(string(s)).Set(value)
	}
}
