package health

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/chordmind/apigw/internal/util"
)

// GatewayHealthResponse is the body of /health.
type GatewayHealthResponse struct {
	Status    Status `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CriticalService summarizes a CRITICAL priority service.
type CriticalService struct {
	Name     string   `json:"name"`
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`
}

// ServicesReport is the body of /health/services.
type ServicesReport struct {
	Timestamp string                   `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services"`
	// Overall is "UP" when the gateway status is HEALTHY or
	// PARTIALLY_HEALTHY and "DOWN" otherwise.
	Overall           Status            `json:"overall"`
	Status            OverallStatus     `json:"status"`
	StatusDescription string            `json:"statusDescription"`
	CriticalServices  []CriticalService `json:"criticalServices"`
}

// MemoryStats reports process memory in bytes.
type MemoryStats struct {
	Total uint64 `json:"total"`
	Free  uint64 `json:"free"`
	Used  uint64 `json:"used"`
}

// MetricsReport is the body of /health/metrics.
type MetricsReport struct {
	Timestamp         string            `json:"timestamp"`
	ActiveConnections int64             `json:"activeConnections"`
	Services          map[string]Status `json:"services"`
	// Uptime is the gateway uptime in milliseconds.
	Uptime int64       `json:"uptime"`
	Memory MemoryStats `json:"memory"`
}

// Handler serves the health endpoints.
type Handler struct {
	aggregator  *Aggregator
	service     string
	version     string
	started     time.Time
	now         func() time.Time
	activeConns func() int64
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithActiveConnections supplies the in-flight request count reported by
// /health/metrics.
func WithActiveConnections(fn func() int64) HandlerOption {
	return func(h *Handler) {
		h.activeConns = fn
	}
}

// WithHandlerClock overrides the clock used for timestamps and uptime.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler creates the health handlers for the named gateway.
func NewHandler(aggregator *Aggregator, service, version string, opts ...HandlerOption) *Handler {
	h := &Handler{
		aggregator:  aggregator,
		service:     service,
		version:     version,
		now:         time.Now,
		activeConns: func() int64 { return 0 },
	}
	for _, opt := range opts {
		opt(h)
	}
	h.started = h.now()
	return h
}

// GatewayHealth reports that the gateway itself is up. It does not depend
// on backend health.
func (h *Handler) GatewayHealth(c *gin.Context) {
	c.JSON(http.StatusOK, GatewayHealthResponse{
		Status:    StatusUp,
		Service:   h.service,
		Timestamp: util.Timestamp(h.now()),
		Version:   h.version,
	})
}

// Services reports the cached health of every backend and schedules a
// background refresh.
func (h *Handler) Services(c *gin.Context) {
	h.aggregator.TriggerRefresh()
	c.JSON(http.StatusOK, h.Report())
}

// Report builds the services report from the cache.
func (h *Handler) Report() ServicesReport {
	services := h.aggregator.Services()
	overall := h.aggregator.Overall()

	report := ServicesReport{
		Timestamp: util.Timestamp(h.now()),
		Services: lo.SliceToMap(services, func(s ServiceHealth) (string, ServiceHealth) {
			return s.ServiceName, s
		}),
		Overall:           StatusDown,
		Status:            overall,
		StatusDescription: overall.Description(),
		CriticalServices: lo.FilterMap(services, func(s ServiceHealth, _ int) (CriticalService, bool) {
			return CriticalService{Name: s.ServiceName, Status: s.Status, Priority: s.Priority},
				s.Priority == PriorityCritical
		}),
	}
	if overall.IsUp() {
		report.Overall = StatusUp
	}
	return report
}

// Metrics reports gateway runtime metrics.
func (h *Handler) Metrics(c *gin.Context) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	now := h.now()
	c.JSON(http.StatusOK, MetricsReport{
		Timestamp:         util.Timestamp(now),
		ActiveConnections: h.activeConns(),
		Services: lo.SliceToMap(h.aggregator.Services(), func(s ServiceHealth) (string, Status) {
			return s.ServiceName, s.Status
		}),
		Uptime: now.Sub(h.started).Milliseconds(),
		Memory: MemoryStats{
			Total: ms.Sys,
			Free:  ms.Sys - ms.HeapAlloc,
			Used:  ms.HeapAlloc,
		},
	})
}

// Register mounts the health endpoints on the engine.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.GatewayHealth)
	r.GET("/health/services", h.Services)
	r.GET("/health/metrics", h.Metrics)
	r.GET("/actuator/health", h.GatewayHealth)
}
