package config

import (
	"time"
)

// GatewayConfig is the root configuration document.
type GatewayConfig struct {
	Server         ServerConfig        `yaml:"server" json:"server"`
	Auth           AuthConfig          `yaml:"auth" json:"auth"`
	Routes         []RouteConfig       `yaml:"routes" json:"routes"`
	CircuitBreaker BreakerConfig       `yaml:"circuitBreaker" json:"circuitBreaker"`
	Services       []ServiceConfig     `yaml:"services" json:"services"`
	Health         HealthConfig        `yaml:"health" json:"health"`
	RateLimit      RateLimitConfig     `yaml:"rateLimit" json:"rateLimit"`
	CORS           CORSConfig          `yaml:"cors" json:"cors"`
	Observability  ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Name            string   `yaml:"name" json:"name"`
	Version         string   `yaml:"version" json:"version"`
	Port            int      `yaml:"port" json:"port"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	// JWTSecret is the shared HMAC secret. When empty the secret is
	// resolved through SecretSource.
	JWTSecret    string             `yaml:"jwtSecret" json:"-"`
	SecretSource SecretSourceConfig `yaml:"secretSource" json:"secretSource"`
	Algorithms   []string           `yaml:"algorithms" json:"algorithms"`
	ClockSkew    Duration           `yaml:"clockSkew" json:"clockSkew"`
	PublicPaths  []string           `yaml:"publicPaths" json:"publicPaths"`
}

// SecretSourceConfig points at an external JWT secret.
type SecretSourceConfig struct {
	// Provider is one of env, local or vault.
	Provider string `yaml:"provider" json:"provider"`
	// Path is the secret name: an env var suffix, a file name under
	// LocalPath, or a KV v2 path under the Vault mount.
	Path      string      `yaml:"path" json:"path"`
	Key       string      `yaml:"key" json:"key"`
	EnvPrefix string      `yaml:"envPrefix" json:"envPrefix"`
	LocalPath string      `yaml:"localPath" json:"localPath"`
	Vault     VaultConfig `yaml:"vault" json:"vault"`
}

// VaultConfig configures the Vault KV v2 secret source.
type VaultConfig struct {
	Address   string   `yaml:"address" json:"address"`
	Token     string   `yaml:"token" json:"-"`
	Namespace string   `yaml:"namespace" json:"namespace"`
	Mount     string   `yaml:"mount" json:"mount"`
	Timeout   Duration `yaml:"timeout" json:"timeout"`
}

// RouteConfig maps a path prefix to a backend.
type RouteConfig struct {
	// ServiceID identifies the route; breakers and fallbacks are keyed by it.
	ServiceID string `yaml:"serviceId" json:"serviceId"`
	// Backend is the backend service name reported in fallback bodies.
	Backend      string `yaml:"backend" json:"backend"`
	PathPrefix   string `yaml:"pathPrefix" json:"pathPrefix"`
	TargetURL    string `yaml:"targetUrl" json:"targetUrl"`
	FallbackPath string `yaml:"fallbackPath" json:"fallbackPath"`
	// FallbackMessage overrides the "<name> is temporarily unavailable" text.
	FallbackMessage string         `yaml:"fallbackMessage" json:"fallbackMessage"`
	Timeout         Duration       `yaml:"timeout" json:"timeout"`
	CircuitBreaker  *BreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

// BreakerConfig is a circuit breaker policy.
type BreakerConfig struct {
	// FailureRateThreshold is a percentage in (0, 100].
	FailureRateThreshold float64  `yaml:"failureRateThreshold" json:"failureRateThreshold"`
	OpenDuration         Duration `yaml:"openDuration" json:"openDuration"`
	HalfOpenTrialCount   int      `yaml:"halfOpenTrialCount" json:"halfOpenTrialCount"`
	WindowSize           int      `yaml:"windowSize" json:"windowSize"`
	MinimumCalls         int      `yaml:"minimumCalls" json:"minimumCalls"`
}

// ServiceConfig is a backend known to the health aggregator.
type ServiceConfig struct {
	Name       string `yaml:"name" json:"name"`
	BaseURL    string `yaml:"baseUrl" json:"baseUrl"`
	HealthPath string `yaml:"healthPath" json:"healthPath"`
	Priority   string `yaml:"priority" json:"priority"`
	Category   string `yaml:"category" json:"category"`
}

// HealthConfig configures backend health polling.
type HealthConfig struct {
	Interval     Duration `yaml:"interval" json:"interval"`
	Timeout      Duration `yaml:"timeout" json:"timeout"`
	MaxBodyBytes int64    `yaml:"maxBodyBytes" json:"maxBodyBytes"`
}

// RateLimitConfig configures the per-user token bucket.
type RateLimitConfig struct {
	Enabled           bool   `yaml:"enabled" json:"enabled"`
	RequestsPerSecond int    `yaml:"requestsPerSecond" json:"requestsPerSecond"`
	Burst             int    `yaml:"burst" json:"burst"`
	RedisURL          string `yaml:"redisUrl" json:"-"`
	KeyPrefix         string `yaml:"keyPrefix" json:"keyPrefix"`
}

// CORSConfig configures cross-origin resource sharing.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	AllowOrigins     []string `yaml:"allowOrigins" json:"allowOrigins"`
	AllowMethods     []string `yaml:"allowMethods" json:"allowMethods"`
	AllowHeaders     []string `yaml:"allowHeaders" json:"allowHeaders"`
	ExposeHeaders    []string `yaml:"exposeHeaders" json:"exposeHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials" json:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge" json:"maxAge"`
}

// ObservabilityConfig configures logging, metrics and tracing.
type ObservabilityConfig struct {
	LogLevel         string        `yaml:"logLevel" json:"logLevel"`
	LogFormat        string        `yaml:"logFormat" json:"logFormat"`
	LogOutput        string        `yaml:"logOutput" json:"logOutput"`
	MetricsNamespace string        `yaml:"metricsNamespace" json:"metricsNamespace"`
	Tracing          TracingConfig `yaml:"tracing" json:"tracing"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
}

// Policy returns the effective breaker policy of the route.
func (r RouteConfig) Policy(defaults BreakerConfig) BreakerConfig {
	if r.CircuitBreaker == nil {
		return defaults
	}
	return r.CircuitBreaker.withDefaults(defaults)
}

func (b BreakerConfig) withDefaults(d BreakerConfig) BreakerConfig {
	if b.FailureRateThreshold == 0 {
		b.FailureRateThreshold = d.FailureRateThreshold
	}
	if b.OpenDuration == 0 {
		b.OpenDuration = d.OpenDuration
	}
	if b.HalfOpenTrialCount == 0 {
		b.HalfOpenTrialCount = d.HalfOpenTrialCount
	}
	if b.WindowSize == 0 {
		b.WindowSize = d.WindowSize
	}
	if b.MinimumCalls == 0 {
		b.MinimumCalls = d.MinimumCalls
	}
	return b
}

// RequestTimeout returns the backend call timeout of the route.
func (r RouteConfig) RequestTimeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultRouteTimeout
	}
	return r.Timeout.Duration()
}

// FindRoute returns the route with the given service id.
func (c *GatewayConfig) FindRoute(serviceID string) (RouteConfig, bool) {
	for _, r := range c.Routes {
		if r.ServiceID == serviceID {
			return r, true
		}
	}
	return RouteConfig{}, false
}
