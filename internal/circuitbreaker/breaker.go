package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chordmind/apigw/internal/observability"
	"github.com/chordmind/apigw/internal/util"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed lets every call through and records its outcome.
	StateClosed State = iota
	// StateOpen rejects every call until the open duration elapses.
	StateOpen
	// StateHalfOpen admits a fixed number of trial calls.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome classifies a finished call.
type Outcome int

const (
	// OutcomeSuccess is a call that completed without a backend failure.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure is a transport error, timeout or 5xx response.
	OutcomeFailure
	// OutcomeIgnored is a call abandoned by the client. It is not recorded.
	OutcomeIgnored
)

// String returns the metric label of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "ignored"
	}
}

// Errors returned by Allow.
var (
	ErrCircuitOpen     = util.ErrBreakerOpen
	ErrTooManyRequests = fmt.Errorf("%w: half-open trial calls exhausted", util.ErrBreakerOpen)
)

// Permit is issued by Allow and handed back to Record. A permit issued
// before a state transition is stale and its outcome is discarded.
type Permit struct {
	generation uint64
	trial      bool
}

// CircuitBreaker guards calls to a single backend route.
type CircuitBreaker struct {
	name    string
	cfg     Config
	now     func() time.Time
	logger  observability.Logger
	metrics *Metrics

	mu             sync.Mutex
	state          State
	generation     uint64
	window         *window
	openedAt       time.Time
	trialsAdmitted int
	trialsPassed   int
	notPermitted   uint64
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *Metrics) Option {
	return func(cb *CircuitBreaker) {
		cb.metrics = metrics
	}
}

// New creates a closed circuit breaker.
func New(name string, cfg Config, opts ...Option) (*CircuitBreaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("circuit breaker %s: %w", name, err)
	}
	cb := &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		now:    cfg.Clock,
		logger: observability.NopLogger(),
		window: newWindow(cfg.WindowSize),
	}
	if cb.now == nil {
		cb.now = time.Now
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.metrics.setState(name, StateClosed)
	return cb, nil
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Config returns the configuration the breaker was built with.
func (cb *CircuitBreaker) Config() Config {
	return cb.cfg
}

// State returns the current state. An open breaker whose open duration has
// elapsed reports HALF_OPEN.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState(cb.now())
}

// Allow asks permission for one call. The returned permit must be passed to
// Record once the call has finished.
func (cb *CircuitBreaker) Allow() (Permit, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState(cb.now()) {
	case StateOpen:
		cb.reject()
		return Permit{}, ErrCircuitOpen
	case StateHalfOpen:
		if cb.trialsAdmitted >= cb.cfg.HalfOpenTrialCount {
			cb.reject()
			return Permit{}, ErrTooManyRequests
		}
		cb.trialsAdmitted++
		return Permit{generation: cb.generation, trial: true}, nil
	default:
		return Permit{generation: cb.generation}, nil
	}
}

// Record reports the outcome of a call admitted by Allow.
func (cb *CircuitBreaker) Record(p Permit, outcome Outcome) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.currentState(now)
	if p.generation != cb.generation {
		return
	}
	cb.metrics.recordCall(cb.name, outcome)

	switch cb.state {
	case StateClosed:
		if outcome == OutcomeIgnored {
			return
		}
		cb.window.record(outcome == OutcomeFailure)
		if cb.shouldTrip() {
			cb.logger.Warn("circuit breaker tripped",
				observability.String("name", cb.name),
				observability.Float64("failure_rate", cb.window.failureRate()),
				observability.Int("buffered_calls", cb.window.count),
			)
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		switch outcome {
		case OutcomeIgnored:
			cb.trialsAdmitted--
		case OutcomeFailure:
			cb.setState(StateOpen, now)
		default:
			cb.trialsPassed++
			if cb.trialsPassed >= cb.cfg.HalfOpenTrialCount {
				cb.setState(StateClosed, now)
			}
		}
	}
}

// Execute runs fn if the breaker admits it. An error wrapping
// context.Canceled is treated as a call abandoned by the client; any other
// error counts as a failure.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	permit, err := cb.Allow()
	if err != nil {
		return err
	}
	err = fn()
	cb.Record(permit, classify(err))
	return err
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, util.ErrClientCancelled):
		return OutcomeIgnored
	default:
		return OutcomeFailure
	}
}

// Reset forces the breaker closed with an empty window.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed, cb.now())
	cb.notPermitted = 0
}

// Snapshot returns a point-in-time view of the breaker.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	s := Snapshot{
		Name:              cb.name,
		State:             cb.currentState(now),
		FailureRate:       cb.window.failureRate(),
		BufferedCalls:     cb.window.count,
		FailedCalls:       cb.window.failures,
		NotPermittedCalls: cb.notPermitted,
	}
	if cb.window.count < cb.cfg.MinimumCalls {
		s.FailureRate = -1
	}
	if s.State == StateOpen {
		openedAt := cb.openedAt
		s.OpenedAt = &openedAt
		s.RemainingOpenMillis = (cb.cfg.OpenDuration - now.Sub(cb.openedAt)).Milliseconds()
	}
	return s
}

// currentState moves an expired open breaker to half-open. Callers hold mu.
func (cb *CircuitBreaker) currentState(now time.Time) State {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.cfg.OpenDuration {
		cb.setState(StateHalfOpen, now)
	}
	return cb.state
}

func (cb *CircuitBreaker) shouldTrip() bool {
	w := cb.window
	if w.count < cb.cfg.MinimumCalls {
		return false
	}
	return float64(w.failures)*100 >= cb.cfg.FailureRateThreshold*float64(w.count)
}

func (cb *CircuitBreaker) reject() {
	cb.notPermitted++
	cb.metrics.recordRejected(cb.name)
}

// setState performs a transition and starts a new generation. Callers hold mu.
func (cb *CircuitBreaker) setState(to State, now time.Time) {
	from := cb.state
	cb.state = to
	cb.generation++
	cb.trialsAdmitted = 0
	cb.trialsPassed = 0

	switch to {
	case StateOpen:
		cb.openedAt = now
	case StateClosed:
		cb.window.reset()
		cb.openedAt = time.Time{}
	}

	if from == to {
		return
	}
	cb.metrics.recordTransition(cb.name, from, to)
	cb.logger.Info("circuit breaker state changed",
		observability.String("name", cb.name),
		observability.String("from", from.String()),
		observability.String("to", to.String()),
	)
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
