package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains circuit breaker metrics.
type Metrics struct {
	state       *prometheus.GaugeVec
	calls       *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewMetrics creates the circuit breaker metrics and registers them with
// reg when reg is not nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "calls_total",
				Help:      "Calls recorded by the circuit breaker by outcome",
			},
			[]string{"name", "outcome"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "rejected_total",
				Help:      "Calls rejected without reaching the backend",
			},
			[]string{"name"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "transitions_total",
				Help:      "Circuit breaker state transitions",
			},
			[]string{"name", "from", "to"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.state, m.calls, m.rejected, m.transitions)
	}
	return m
}

func (m *Metrics) setState(name string, s State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(name).Set(float64(s))
}

func (m *Metrics) recordCall(name string, o Outcome) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(name, o.String()).Inc()
}

func (m *Metrics) recordRejected(name string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(name).Inc()
}

func (m *Metrics) recordTransition(name string, from, to State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(name).Set(float64(to))
	m.transitions.WithLabelValues(name, from.String(), to.String()).Inc()
}
