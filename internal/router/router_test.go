package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/util"
)

func defaultRouter(t *testing.T) *Router {
	t.Helper()
	cfg := config.DefaultConfig()
	r, err := NewFromConfig(cfg)
	require.NoError(t, err)
	return r
}

func TestRouter_Match_DefaultTable(t *testing.T) {
	t.Parallel()

	r := defaultRouter(t)

	tests := []struct {
		path        string
		serviceID   string
		forwardPath string
	}{
		{"/api/practice/sessions/42", "practice", "/sessions/42"},
		{"/api/practice", "practice", "/"},
		{"/api/practice/", "practice", "/"},
		{"/api/users/signin", "users", "/signin"},
		{"/api/harmony/progressions", "harmony", "/progressions"},
		{"/api/feedback/1", "feedback", "/1"},
		{"/api/games/leaderboard", "games", "/leaderboard"},
		{"/api/analysis/report", "analysis", "/report"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			m, err := r.Match(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.serviceID, m.Route.ServiceID)
			assert.Equal(t, tt.forwardPath, m.ForwardPath)
		})
	}
}

func TestRouter_Match_NotFound(t *testing.T) {
	t.Parallel()

	r := defaultRouter(t)
	for _, path := range []string{
		"/", "/api", "/api/practiceX", "/api/unknown/x", "/health",
		"/api/users/signin/../me", "/api/practice/./sessions", "/api/games/..",
	} {
		_, err := r.Match(path)
		assert.ErrorIs(t, err, util.ErrRouteNotFound, path)
	}
}

func TestRouter_Match_LongestPrefixWins(t *testing.T) {
	t.Parallel()

	r := New()
	defaults := config.DefaultConfig().CircuitBreaker
	outer, err := Compile(config.RouteConfig{ServiceID: "outer", PathPrefix: "/api", TargetURL: "http://outer:80"}, defaults)
	require.NoError(t, err)
	inner, err := Compile(config.RouteConfig{ServiceID: "inner", PathPrefix: "/api/inner/", TargetURL: "http://inner:80"}, defaults)
	require.NoError(t, err)
	require.NoError(t, r.AddRoute(outer))
	require.NoError(t, r.AddRoute(inner))

	m, err := r.Match("/api/inner/x")
	require.NoError(t, err)
	assert.Equal(t, "inner", m.Route.ServiceID)
	assert.Equal(t, "/x", m.ForwardPath)

	m, err = r.Match("/api/other")
	require.NoError(t, err)
	assert.Equal(t, "outer", m.Route.ServiceID)

	assert.Error(t, r.AddRoute(inner))
	assert.Equal(t, []string{"inner", "outer"}, []string{r.GetRoutes()[0].ServiceID, r.GetRoutes()[1].ServiceID})
}

func TestCompile(t *testing.T) {
	t.Parallel()

	defaults := config.DefaultConfig().CircuitBreaker
	route, err := Compile(config.RouteConfig{
		ServiceID:      "practice",
		PathPrefix:     "/api/practice",
		TargetURL:      "http://practice-service:8081",
		Timeout:        config.Duration(3 * time.Second),
		CircuitBreaker: &config.BreakerConfig{HalfOpenTrialCount: 1},
	}, defaults)
	require.NoError(t, err)

	assert.Equal(t, "practice", route.Backend)
	assert.Equal(t, "practice-service:8081", route.Target.Host)
	assert.Equal(t, 3*time.Second, route.Timeout)
	assert.Equal(t, 1, route.Breaker.HalfOpenTrialCount)
	assert.Equal(t, defaults.FailureRateThreshold, route.Breaker.FailureRateThreshold)

	_, err = Compile(config.RouteConfig{ServiceID: "x", PathPrefix: "api", TargetURL: "http://x"}, defaults)
	assert.Error(t, err)
	_, err = Compile(config.RouteConfig{ServiceID: "x", PathPrefix: "/x", TargetURL: "ftp://x"}, defaults)
	assert.Error(t, err)
}

func TestRouter_LoadRoutes_KeepsTableOnError(t *testing.T) {
	t.Parallel()

	r := defaultRouter(t)
	err := r.LoadRoutes([]config.RouteConfig{{ServiceID: "bad", PathPrefix: "nope", TargetURL: "http://x"}}, config.BreakerConfig{})
	require.Error(t, err)

	_, ok := r.GetRoute("practice")
	assert.True(t, ok)
}

func TestStripPrefix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/sessions/42", StripPrefix("/api/practice/sessions/42", "/api/practice"))
	assert.Equal(t, "/", StripPrefix("/api/practice", "/api/practice"))
	assert.Equal(t, "/x", StripPrefix("/api/practice/x", "/api/practice/"))
	assert.Equal(t, "/a", StripPrefix("/a", "/"))
}
