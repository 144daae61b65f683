// Package circuitbreaker implements per-route circuit breakers over a
// count-based sliding window of recent backend calls.
//
// A breaker starts CLOSED and records the outcome of every admitted call in
// a ring buffer. Once the buffer holds at least MinimumCalls outcomes and
// the failure rate reaches FailureRateThreshold the breaker opens and
// rejects calls for OpenDuration. The first call after that moves it to
// HALF_OPEN, which admits exactly HalfOpenTrialCount trial calls: if all of
// them succeed the breaker closes with an empty window, and any failure
// reopens it with a fresh timer.
//
// Calls abandoned by the client are neither successes nor failures. They
// are dropped from the window, and an abandoned half-open trial frees its
// slot for another caller.
package circuitbreaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/chordmind/apigw/internal/config"
)

// Config holds configuration for a circuit breaker.
type Config struct {
	// FailureRateThreshold is the failure percentage in (0, 100] that opens
	// the circuit.
	FailureRateThreshold float64

	// OpenDuration is how long the circuit stays open before admitting trials.
	OpenDuration time.Duration

	// HalfOpenTrialCount is the number of trial calls admitted in half-open state.
	HalfOpenTrialCount int

	// WindowSize is the number of most recent calls the failure rate is computed over.
	WindowSize int

	// MinimumCalls is the number of recorded calls required before the
	// failure rate is evaluated.
	MinimumCalls int

	// OnStateChange is called synchronously after every transition.
	OnStateChange func(name string, from, to State)

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		FailureRateThreshold: config.DefaultFailureRateThreshold,
		OpenDuration:         config.DefaultOpenDuration,
		HalfOpenTrialCount:   config.DefaultHalfOpenTrialCount,
		WindowSize:           config.DefaultWindowSize,
		MinimumCalls:         config.DefaultMinimumCalls,
	}
}

// FromPolicy converts a configured breaker policy.
func FromPolicy(p config.BreakerConfig) Config {
	return Config{
		FailureRateThreshold: p.FailureRateThreshold,
		OpenDuration:         p.OpenDuration.Duration(),
		HalfOpenTrialCount:   p.HalfOpenTrialCount,
		WindowSize:           p.WindowSize,
		MinimumCalls:         p.MinimumCalls,
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 100 {
		errs = append(errs, fmt.Errorf("failure rate threshold must be in (0, 100], got %g", c.FailureRateThreshold))
	}
	if c.OpenDuration <= 0 {
		errs = append(errs, fmt.Errorf("open duration must be positive, got %s", c.OpenDuration))
	}
	if c.HalfOpenTrialCount < 1 {
		errs = append(errs, fmt.Errorf("half-open trial count must be at least 1, got %d", c.HalfOpenTrialCount))
	}
	if c.WindowSize < 1 {
		errs = append(errs, fmt.Errorf("window size must be at least 1, got %d", c.WindowSize))
	}
	if c.MinimumCalls < 1 || c.MinimumCalls > c.WindowSize {
		errs = append(errs, fmt.Errorf("minimum calls must be between 1 and window size %d, got %d", c.WindowSize, c.MinimumCalls))
	}
	return errors.Join(errs...)
}

// WithClock returns a copy of c using clock.
func (c Config) WithClock(clock func() time.Time) Config {
	c.Clock = clock
	return c
}

// WithOnStateChange returns a copy of c with a transition callback.
func (c Config) WithOnStateChange(fn func(name string, from, to State)) Config {
	c.OnStateChange = fn
	return c
}
