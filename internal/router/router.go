package router

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/util"
)

// Route is a compiled route table entry.
type Route struct {
	ServiceID       string
	Backend         string
	Prefix          string
	Target          *url.URL
	FallbackPath    string
	FallbackMessage string
	Timeout         time.Duration
	Breaker         config.BreakerConfig
}

// MatchResult is the outcome of a successful match.
type MatchResult struct {
	Route *Route
	// ForwardPath is the request path with the route prefix removed.
	ForwardPath string
}

// Router is the route table. Routes are kept longest prefix first so the
// most specific prefix wins.
type Router struct {
	mu       sync.RWMutex
	routes   []*Route
	routeMap map[string]*Route
}

// New creates an empty router.
func New() *Router {
	return &Router{routeMap: make(map[string]*Route)}
}

// NewFromConfig builds a router from the route configuration.
func NewFromConfig(cfg *config.GatewayConfig) (*Router, error) {
	r := New()
	if err := r.LoadRoutes(cfg.Routes, cfg.CircuitBreaker); err != nil {
		return nil, err
	}
	return r, nil
}

// Compile validates a route configuration and resolves its target.
func Compile(rc config.RouteConfig, defaults config.BreakerConfig) (*Route, error) {
	if err := util.ValidatePathPrefix(rc.PathPrefix); err != nil {
		return nil, fmt.Errorf("route %s: %w", rc.ServiceID, err)
	}
	if err := util.ValidateURL(rc.TargetURL); err != nil {
		return nil, fmt.Errorf("route %s: %w", rc.ServiceID, err)
	}
	target, err := url.Parse(rc.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", rc.ServiceID, err)
	}

	backend := rc.Backend
	if backend == "" {
		backend = rc.ServiceID
	}

	prefix := strings.TrimRight(rc.PathPrefix, "/")
	if prefix == "" {
		prefix = "/"
	}

	return &Route{
		ServiceID:       rc.ServiceID,
		Backend:         backend,
		Prefix:          prefix,
		Target:          target,
		FallbackPath:    rc.FallbackPath,
		FallbackMessage: rc.FallbackMessage,
		Timeout:         rc.RequestTimeout(),
		Breaker:         rc.Policy(defaults),
	}, nil
}

// AddRoute adds a compiled route.
func (r *Router) AddRoute(route *Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routeMap[route.ServiceID]; exists {
		return fmt.Errorf("duplicate route: %s", route.ServiceID)
	}

	r.routes = append(r.routes, route)
	r.routeMap[route.ServiceID] = route

	sort.SliceStable(r.routes, func(i, j int) bool {
		return len(r.routes[i].Prefix) > len(r.routes[j].Prefix)
	})
	return nil
}

// LoadRoutes replaces the route table.
func (r *Router) LoadRoutes(routes []config.RouteConfig, defaults config.BreakerConfig) error {
	fresh := New()
	for _, rc := range routes {
		compiled, err := Compile(rc, defaults)
		if err != nil {
			return err
		}
		if err := fresh.AddRoute(compiled); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.routes, r.routeMap = fresh.routes, fresh.routeMap
	r.mu.Unlock()
	return nil
}

// Match finds the route for path. Paths with "." or ".." segments match
// no route.
func (r *Router) Match(path string) (*MatchResult, error) {
	if util.HasDotSegment(path) {
		return nil, util.NewRouteNotFoundError(path)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, route := range r.routes {
		if util.PathHasPrefix(path, route.Prefix) {
			return &MatchResult{Route: route, ForwardPath: StripPrefix(path, route.Prefix)}, nil
		}
	}
	return nil, util.NewRouteNotFoundError(path)
}

// GetRoute returns a route by service id.
func (r *Router) GetRoute(serviceID string) (*Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routeMap[serviceID]
	return route, ok
}

// GetRoutes returns all routes, longest prefix first.
func (r *Router) GetRoutes() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]*Route, len(r.routes))
	copy(routes, r.routes)
	return routes
}

// StripPrefix removes prefix from path. An empty remainder becomes "/".
func StripPrefix(path, prefix string) string {
	prefix = strings.TrimRight(prefix, "/")
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return "/"
	}
	if rest[0] != '/' {
		return "/" + rest
	}
	return rest
}
