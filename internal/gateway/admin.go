package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/chordmind/apigw/internal/circuitbreaker"
	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/util"
)

// BreakersResponse is the /actuator/circuitbreakers body.
type BreakersResponse struct {
	Timestamp       string                    `json:"timestamp"`
	CircuitBreakers []circuitbreaker.Snapshot `json:"circuitBreakers"`
}

// APIDocsService describes one routed backend in /api-docs.
type APIDocsService struct {
	BaseURL  string `json:"baseUrl"`
	Route    string `json:"route"`
	Fallback string `json:"fallback"`
	Timeout  string `json:"timeout"`
}

// APIDocsResponse is the /api-docs body.
type APIDocsResponse struct {
	Title       string                    `json:"title"`
	Version     string                    `json:"version"`
	Description string                    `json:"description"`
	Timestamp   string                    `json:"timestamp"`
	Services    map[string]APIDocsService `json:"services"`
	PublicPaths []string                  `json:"publicPaths"`
	HealthOnly  []string                  `json:"healthCheckedOnly"`
}

func (g *Gateway) circuitBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, BreakersResponse{
		Timestamp:       util.Timestamp(g.now()),
		CircuitBreakers: g.breakers.Snapshots(),
	})
}

func (g *Gateway) apiDocs(c *gin.Context) {
	c.JSON(http.StatusOK, buildAPIDocs(g.Config(), util.Timestamp(g.now())))
}

func buildAPIDocs(cfg *config.GatewayConfig, timestamp string) APIDocsResponse {
	services := lo.SliceToMap(cfg.Routes, func(r config.RouteConfig) (string, APIDocsService) {
		return r.Backend, APIDocsService{
			BaseURL:  r.PathPrefix,
			Route:    r.ServiceID,
			Fallback: r.FallbackPath,
			Timeout:  r.RequestTimeout().String(),
		}
	})

	routed := lo.Map(cfg.Routes, func(r config.RouteConfig, _ int) string { return r.Backend })
	healthOnly := lo.FilterMap(cfg.Services, func(s config.ServiceConfig, _ int) (string, bool) {
		return s.Name, !lo.Contains(routed, s.Name)
	})

	return APIDocsResponse{
		Title:       "ChordMind API Gateway",
		Version:     cfg.Server.Version,
		Description: "Single entry point for the ChordMind music learning platform",
		Timestamp:   timestamp,
		Services:    services,
		PublicPaths: cfg.Auth.PublicPaths,
		HealthOnly:  healthOnly,
	}
}
