package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chordmind/apigw/internal/config"
)

// scriptedProber returns a fixed result per service and counts calls.
type scriptedProber struct {
	mu      sync.Mutex
	results map[string]ProbeResult
	calls   map[string]int
}

func newScriptedProber() *scriptedProber {
	return &scriptedProber{results: map[string]ProbeResult{}, calls: map[string]int{}}
}

func (p *scriptedProber) set(name string, r ProbeResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[name] = r
}

func (p *scriptedProber) up(name string) {
	p.set(name, ProbeResult{Status: StatusUp, ResponseTime: 12 * time.Millisecond})
}

func (p *scriptedProber) down(name string) {
	p.set(name, ProbeResult{Status: StatusDown, Err: errors.New("connection refused"),
		Details: map[string]any{"error": unavailableMessage}})
}

func (p *scriptedProber) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

func (p *scriptedProber) Probe(_ context.Context, svc config.ServiceConfig) ProbeResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[svc.Name]++
	r, ok := p.results[svc.Name]
	if !ok {
		return ProbeResult{Status: StatusUp}
	}
	return r
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestAggregator(t *testing.T, prober Prober, opts ...AggregatorOption) *Aggregator {
	t.Helper()
	cfg := config.DefaultConfig()
	opts = append([]AggregatorOption{WithProber(prober), WithClock(func() time.Time { return testNow })}, opts...)
	return NewAggregator(cfg.Services, cfg.Health, opts...)
}

func TestAggregator_InitialUnknown(t *testing.T) {
	a := newTestAggregator(t, newScriptedProber())

	services := a.Services()
	require.Len(t, services, 7)
	for _, s := range services {
		assert.Equal(t, StatusUnknown, s.Status, s.ServiceName)
		assert.Nil(t, s.LastCheckedAt)
		assert.True(t, s.RequiresAlert)
	}

	users, ok := a.Get("user-service")
	require.True(t, ok)
	assert.Equal(t, PriorityCritical, users.Priority)
	assert.Equal(t, "CORE", users.Category)

	_, ok = a.Get("billing-service")
	assert.False(t, ok)
}

func TestAggregator_Refresh(t *testing.T) {
	prober := newScriptedProber()
	prober.down("game-service")
	a := newTestAggregator(t, prober)

	a.Refresh(context.Background())

	games, _ := a.Get("game-service")
	assert.Equal(t, StatusDown, games.Status)
	assert.Equal(t, SeverityCritical, games.Severity)
	assert.Equal(t, 1, games.ConsecutiveFailures)
	assert.Nil(t, games.LastSuccessfulCheck)
	require.NotNil(t, games.LastCheckedAt)
	assert.Equal(t, testNow, *games.LastCheckedAt)
	assert.True(t, games.RequiresAlert)

	practice, _ := a.Get("practice-service")
	assert.Equal(t, StatusUp, practice.Status)
	assert.Equal(t, int64(12), practice.ResponseTimeMs)
	assert.False(t, practice.RequiresAlert)
	require.NotNil(t, practice.LastSuccessfulCheck)

	// one DOWN of seven
	assert.Equal(t, OverallDegraded, a.Overall())
}

func TestAggregator_ConsecutiveFailures(t *testing.T) {
	prober := newScriptedProber()
	a := newTestAggregator(t, prober)

	a.Refresh(context.Background())
	prober.down("feedback-service")
	for i := 0; i < 3; i++ {
		a.Refresh(context.Background())
	}

	feedback, _ := a.Get("feedback-service")
	assert.Equal(t, 3, feedback.ConsecutiveFailures)
	assert.NotNil(t, feedback.LastSuccessfulCheck, "last success is kept across failures")

	prober.up("feedback-service")
	a.Refresh(context.Background())
	feedback, _ = a.Get("feedback-service")
	assert.Equal(t, 0, feedback.ConsecutiveFailures)
	assert.Equal(t, StatusUp, feedback.Status)
}

func TestAggregator_AlertOnRepeatedFailuresWithoutAlertSeverity(t *testing.T) {
	prober := newScriptedProber()
	// A MAINTENANCE status is only INFO severity, but a failing probe that
	// reports it three times still requires an alert.
	prober.set("harmony-service", ProbeResult{Status: StatusMaintenance, Err: errors.New("boom")})
	a := newTestAggregator(t, prober)

	a.Refresh(context.Background())
	a.Refresh(context.Background())
	h, _ := a.Get("harmony-service")
	assert.False(t, h.RequiresAlert)

	a.Refresh(context.Background())
	h, _ = a.Get("harmony-service")
	assert.True(t, h.RequiresAlert)
}

func TestAggregator_ByPriority(t *testing.T) {
	a := newTestAggregator(t, newScriptedProber())

	ordered := a.ByPriority()
	require.NotEmpty(t, ordered)
	assert.Equal(t, "user-service", ordered[0].ServiceName)
	assert.Equal(t, "game-service", ordered[len(ordered)-1].ServiceName)
}

func TestAggregator_DuplicateServiceIgnored(t *testing.T) {
	services := []config.ServiceConfig{{Name: "a"}, {Name: "a"}, {Name: "b"}}
	a := NewAggregator(services, config.HealthConfig{}, WithProber(newScriptedProber()))
	assert.Len(t, a.Services(), 2)
}

func TestAggregator_StartStop(t *testing.T) {
	prober := newScriptedProber()
	cfg := config.DefaultConfig()
	cfg.Health.Interval = config.Duration(10 * time.Millisecond)
	a := NewAggregator(cfg.Services, cfg.Health, WithProber(prober))

	a.Start(context.Background())
	a.Start(context.Background())

	require.Eventually(t, func() bool {
		return prober.count("user-service") >= 3
	}, 2*time.Second, 5*time.Millisecond)

	a.Stop()
	calls := prober.count("user-service")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, prober.count("user-service"))

	a.Stop()
}

func TestAggregator_TriggerRefresh(t *testing.T) {
	prober := newScriptedProber()
	a := newTestAggregator(t, prober)

	a.TriggerRefresh()

	require.Eventually(t, func() bool {
		s, _ := a.Get("ai-service")
		return s.Status == StatusUp
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAggregator_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics("test", reg)
	prober := newScriptedProber()
	prober.down("ai-service")
	a := newTestAggregator(t, prober, WithMetrics(metrics))

	a.Refresh(context.Background())

	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.serviceUp.WithLabelValues("ai-service")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.serviceUp.WithLabelValues("user-service")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.checksTotal.WithLabelValues("ai-service", "DOWN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.overall.WithLabelValues(string(OverallDegraded))))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.overall.WithLabelValues(string(OverallHealthy))))
}
