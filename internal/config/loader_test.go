package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chordmind/apigw/internal/util"
)

func envMap(vars map[string]string) LoaderOption {
	return WithLookup(func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	})
}

func TestLoader_Load_BuiltInDefaults(t *testing.T) {
	t.Parallel()

	loader := NewLoader(envMap(map[string]string{EnvJWTSecret: "s3cr3t"}))
	cfg, err := loader.Load("")
	require.NoError(t, err)

	assert.Equal(t, "api-gateway", cfg.Server.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "s3cr3t", cfg.Auth.JWTSecret)
	assert.Equal(t, DefaultPublicPaths, cfg.Auth.PublicPaths)

	require.Len(t, cfg.Routes, 6)
	require.Len(t, cfg.Services, 7)

	practice, ok := cfg.FindRoute("practice")
	require.True(t, ok)
	assert.Equal(t, "/api/practice", practice.PathPrefix)
	assert.Equal(t, "http://practice-service:8081", practice.TargetURL)
	assert.Equal(t, "/fallback/practice", practice.FallbackPath)
	assert.Equal(t, "practice-service", practice.Backend)

	policy := practice.Policy(cfg.CircuitBreaker)
	assert.Equal(t, 50.0, policy.FailureRateThreshold)
	assert.Equal(t, 10*time.Second, policy.OpenDuration.Duration())
	assert.Equal(t, 3, policy.HalfOpenTrialCount)
	assert.Equal(t, 10, policy.WindowSize)
	assert.Equal(t, 10, policy.MinimumCalls)

	_, ok = cfg.FindRoute("ai")
	assert.False(t, ok)
}

func TestLoader_Load_MissingSecret(t *testing.T) {
	t.Parallel()

	_, err := NewLoader(envMap(nil)).Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "auth.jwtSecret")
}

func TestLoader_Load_EnvOverrides(t *testing.T) {
	t.Parallel()

	loader := NewLoader(envMap(map[string]string{
		EnvJWTSecret:            "env-secret",
		"PRACTICE_SERVICE_URL":  "http://localhost:9081/",
		"AI_SERVICE_URL":        "http://localhost:9088",
		EnvBreakerFailureRate:   "40%",
		EnvBreakerOpenDuration:  "2s",
		EnvBreakerHalfOpen:      "5",
		EnvRedisURL:             "redis://localhost:6379/0",
		EnvLogLevel:             "debug",
		EnvPort:                 "9090",
	}))
	cfg, err := loader.Load("")
	require.NoError(t, err)

	practice, _ := cfg.FindRoute("practice")
	assert.Equal(t, "http://localhost:9081", practice.TargetURL)

	var aiURL, practiceURL string
	for _, s := range cfg.Services {
		switch s.Name {
		case "ai-service":
			aiURL = s.BaseURL
		case "practice-service":
			practiceURL = s.BaseURL
		}
	}
	assert.Equal(t, "http://localhost:9088", aiURL)
	assert.Equal(t, "http://localhost:9081", practiceURL)

	assert.Equal(t, 40.0, cfg.CircuitBreaker.FailureRateThreshold)
	assert.Equal(t, 2*time.Second, cfg.CircuitBreaker.OpenDuration.Duration())
	assert.Equal(t, 5, cfg.CircuitBreaker.HalfOpenTrialCount)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RateLimit.RedisURL)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoader_Load_InvalidEnvOverrides(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "port", key: EnvPort, val: "http"},
		{name: "failure rate", key: EnvBreakerFailureRate, val: "half"},
		{name: "open duration", key: EnvBreakerOpenDuration, val: "soon"},
		{name: "half open", key: EnvBreakerHalfOpen, val: "three"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewLoader(envMap(map[string]string{EnvJWTSecret: "x", tt.key: tt.val})).Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoader_Load_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	content := `
server:
  port: 8181
auth:
  jwtSecret: ${TEST_SECRET:-fallback-secret}
  publicPaths: ["/health", "/fallback"]
circuitBreaker:
  failureRateThreshold: 60
  openDuration: 5s
routes:
  - serviceId: practice
    backend: practice-service
    pathPrefix: /api/practice
    targetUrl: ${PRACTICE_URL}
    timeout: 2
    circuitBreaker:
      halfOpenTrialCount: 1
  - serviceId: users
    pathPrefix: /api/users
    targetUrl: http://users:8082
services:
  - name: practice-service
    baseUrl: http://practice:8081
    priority: high
    category: core
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	loader := NewLoader(envMap(map[string]string{"PRACTICE_URL": "http://practice:8081"}))
	cfg, err := loader.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "fallback-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"/health", "/fallback"}, cfg.Auth.PublicPaths)
	require.Len(t, cfg.Routes, 2)

	practice := cfg.Routes[0]
	assert.Equal(t, "http://practice:8081", practice.TargetURL)
	assert.Equal(t, 2*time.Second, practice.RequestTimeout())
	policy := practice.Policy(cfg.CircuitBreaker)
	assert.Equal(t, 60.0, policy.FailureRateThreshold)
	assert.Equal(t, 5*time.Second, policy.OpenDuration.Duration())
	assert.Equal(t, 1, policy.HalfOpenTrialCount)

	users := cfg.Routes[1]
	assert.Equal(t, "users", users.Backend)
	assert.Equal(t, "/fallback/users", users.FallbackPath)
	assert.Equal(t, DefaultRouteTimeout, users.RequestTimeout())

	require.Len(t, cfg.Services, 1)
	assert.Equal(t, "/actuator/health", cfg.Services[0].HealthPath)
}

func TestLoader_Load_FileErrors(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().Load("/nonexistent/gateway.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	_, err = NewLoader().Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")

	unknown := filepath.Join(t.TempDir(), "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("unknownField: 1\n"), 0o600))
	_, err = NewLoader().Load(unknown)
	require.Error(t, err)
}

func TestLoader_LoadFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader(envMap(nil)).LoadFromReader(strings.NewReader("auth:\n  jwtSecret: abc\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.Auth.JWTSecret)
	assert.Len(t, cfg.Routes, 6)

	_, err = NewLoader().LoadFromReader(errReader{})
	assert.Error(t, err)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestLoader_SubstituteEnvVars(t *testing.T) {
	t.Parallel()

	loader := NewLoader(envMap(map[string]string{"HOST": "practice", "EMPTY": ""}))

	tests := []struct {
		in, out string
	}{
		{"${HOST}", "practice"},
		{"${MISSING:-default}", "default"},
		{"${MISSING}", ""},
		{"${EMPTY:-default}", ""},
		{"http://${HOST}:8081", "http://practice:8081"},
		{"price: $$5", "price: $5"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.out, loader.substituteEnvVars(tt.in), tt.in)
	}
}
