package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEngine(t *testing.T, a *Aggregator, opts ...HandlerOption) *gin.Engine {
	t.Helper()
	clock := testNow
	opts = append([]HandlerOption{WithHandlerClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})}, opts...)
	h := NewHandler(a, "api-gateway", "1.0.0", opts...)
	engine := gin.New()
	h.Register(engine)
	return engine
}

func get(t *testing.T, engine *gin.Engine, path string, v any) {
	t.Helper()
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHandler_GatewayHealth(t *testing.T) {
	engine := newTestEngine(t, newTestAggregator(t, newScriptedProber()))

	for _, path := range []string{"/health", "/actuator/health"} {
		t.Run(path, func(t *testing.T) {
			var body GatewayHealthResponse
			get(t, engine, path, &body)
			assert.Equal(t, StatusUp, body.Status)
			assert.Equal(t, "api-gateway", body.Service)
			assert.Equal(t, "1.0.0", body.Version)
			assert.NotEmpty(t, body.Timestamp)
		})
	}
}

func TestHandler_Services(t *testing.T) {
	prober := newScriptedProber()
	prober.down("user-service")
	a := newTestAggregator(t, prober)
	a.Refresh(context.Background())
	engine := newTestEngine(t, a)

	var body ServicesReport
	get(t, engine, "/health/services", &body)

	assert.Len(t, body.Services, 7)
	assert.Equal(t, StatusDown, body.Services["user-service"].Status)
	assert.Equal(t, StatusUp, body.Services["practice-service"].Status)
	assert.Equal(t, OverallDegraded, body.Status)
	assert.Equal(t, StatusDown, body.Overall)
	assert.NotEmpty(t, body.StatusDescription)
	require.Len(t, body.CriticalServices, 1)
	assert.Equal(t, CriticalService{Name: "user-service", Status: StatusDown, Priority: PriorityCritical}, body.CriticalServices[0])
}

func TestHandler_Report_OverallUp(t *testing.T) {
	prober := newScriptedProber()
	prober.set("game-service", ProbeResult{Status: StatusDegraded})
	a := newTestAggregator(t, prober)
	a.Refresh(context.Background())

	report := NewHandler(a, "api-gateway", "1.0.0").Report()

	assert.Equal(t, OverallPartiallyHealthy, report.Status)
	assert.Equal(t, StatusUp, report.Overall)
}

func TestHandler_Metrics(t *testing.T) {
	a := newTestAggregator(t, newScriptedProber())
	a.Refresh(context.Background())
	engine := newTestEngine(t, a, WithActiveConnections(func() int64 { return 4 }))

	var body MetricsReport
	get(t, engine, "/health/metrics", &body)

	assert.Equal(t, int64(4), body.ActiveConnections)
	assert.Len(t, body.Services, 7)
	assert.Equal(t, StatusUp, body.Services["ai-service"])
	assert.Positive(t, body.Uptime)
	assert.Positive(t, body.Memory.Total)
	assert.Equal(t, body.Memory.Total, body.Memory.Free+body.Memory.Used)
}
