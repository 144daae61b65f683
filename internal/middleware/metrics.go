package middleware

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds middleware metrics.
type Metrics struct {
	panicsRecovered prometheus.Counter
}

// NewMetrics creates the middleware metrics and registers them with reg
// when reg is not nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		panicsRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "middleware",
			Name:      "panics_recovered_total",
			Help:      "Total number of panics recovered while serving requests",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.panicsRecovered)
	}
	return m
}

func (m *Metrics) recordPanic() {
	if m == nil {
		return
	}
	m.panicsRecovered.Inc()
}
