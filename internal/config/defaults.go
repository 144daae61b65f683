package config

import (
	"strconv"
	"time"
)

// Default values applied when the configuration leaves a field unset.
const (
	DefaultServerName      = "api-gateway"
	DefaultServerVersion   = "1.0.0"
	DefaultPort            = 8080
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultRouteTimeout = 10 * time.Second

	DefaultFailureRateThreshold = 50.0
	DefaultOpenDuration         = 10 * time.Second
	DefaultHalfOpenTrialCount   = 3
	DefaultWindowSize           = 10
	DefaultMinimumCalls         = 10

	DefaultHealthInterval     = 30 * time.Second
	DefaultHealthTimeout      = 3 * time.Second
	DefaultHealthMaxBodyBytes = 2 << 20

	DefaultRateLimitRPS       = 10
	DefaultRateLimitBurst     = 20
	DefaultRateLimitKeyPrefix = "apigw:ratelimit:"

	DefaultClockSkew = 30 * time.Second
)

// DefaultPublicPaths are reachable without a bearer token.
var DefaultPublicPaths = []string{
	"/api/users/signin",
	"/api/users/signup",
	"/health",
	"/actuator",
	"/fallback",
}

// backendDefault describes one chordmind backend and how it is exposed.
type backendDefault struct {
	routeID         string
	prefix          string
	service         string
	port            int
	healthPath      string
	priority        string
	category        string
	urlEnv          string
	fallbackMessage string
}

var backendDefaults = []backendDefault{
	{"users", "/api/users", "user-service", 8082, "/actuator/health", "CRITICAL", "CORE", "USER_SERVICE_URL", "User service is temporarily unavailable"},
	{"practice", "/api/practice", "practice-service", 8081, "/actuator/health", "HIGH", "CORE", "PRACTICE_SERVICE_URL", "Practice service is temporarily unavailable"},
	{"harmony", "/api/harmony", "harmony-service", 8083, "/actuator/health", "HIGH", "CORE", "HARMONY_SERVICE_URL", "Harmony service is temporarily unavailable"},
	{"feedback", "/api/feedback", "feedback-service", 8085, "/actuator/health", "MEDIUM", "SUPPORT", "FEEDBACK_SERVICE_URL", "Feedback service is temporarily unavailable"},
	{"", "", "ai-service", 8088, "/health", "HIGH", "ANALYTICS", "AI_SERVICE_URL", ""},
	{"games", "/api/games", "game-service", 8086, "/actuator/health", "LOW", "FEATURE", "GAME_SERVICE_URL", "Game service is temporarily unavailable"},
	{"analysis", "/api/analysis", "ai-analysis-service", 8084, "/actuator/health", "MEDIUM", "ANALYTICS", "AI_ANALYSIS_SERVICE_URL", "AI Analysis service is temporarily unavailable"},
}

func (b backendDefault) baseURL() string {
	return "http://" + b.service + ":" + strconv.Itoa(b.port)
}

// DefaultConfig returns the built-in configuration: six routed backends plus
// the health-only ai-service.
func DefaultConfig() *GatewayConfig {
	cfg := &GatewayConfig{
		Server: ServerConfig{
			Name:            DefaultServerName,
			Version:         DefaultServerVersion,
			Port:            DefaultPort,
			ReadTimeout:     Duration(DefaultReadTimeout),
			WriteTimeout:    Duration(DefaultWriteTimeout),
			IdleTimeout:     Duration(DefaultIdleTimeout),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},
		Auth: AuthConfig{
			Algorithms:  []string{"HS256", "HS384", "HS512"},
			ClockSkew:   Duration(DefaultClockSkew),
			PublicPaths: append([]string(nil), DefaultPublicPaths...),
		},
		CircuitBreaker: defaultBreaker(),
		Health: HealthConfig{
			Interval:     Duration(DefaultHealthInterval),
			Timeout:      Duration(DefaultHealthTimeout),
			MaxBodyBytes: DefaultHealthMaxBodyBytes,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: DefaultRateLimitRPS,
			Burst:             DefaultRateLimitBurst,
			KeyPrefix:         DefaultRateLimitKeyPrefix,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
			MaxAge:       3600,
		},
		Observability: ObservabilityConfig{
			LogLevel:         "info",
			LogFormat:        "json",
			LogOutput:        "stdout",
			MetricsNamespace: "apigw",
			Tracing:          TracingConfig{SamplingRate: 1.0},
		},
	}

	for _, b := range backendDefaults {
		cfg.Services = append(cfg.Services, ServiceConfig{
			Name:       b.service,
			BaseURL:    b.baseURL(),
			HealthPath: b.healthPath,
			Priority:   b.priority,
			Category:   b.category,
		})
		if b.routeID == "" {
			continue
		}
		cfg.Routes = append(cfg.Routes, RouteConfig{
			ServiceID:       b.routeID,
			Backend:         b.service,
			PathPrefix:      b.prefix,
			TargetURL:       b.baseURL(),
			FallbackPath:    "/fallback/" + b.routeID,
			FallbackMessage: b.fallbackMessage,
			Timeout:         Duration(DefaultRouteTimeout),
		})
	}

	return cfg
}

func defaultBreaker() BreakerConfig {
	return BreakerConfig{
		FailureRateThreshold: DefaultFailureRateThreshold,
		OpenDuration:         Duration(DefaultOpenDuration),
		HalfOpenTrialCount:   DefaultHalfOpenTrialCount,
		WindowSize:           DefaultWindowSize,
		MinimumCalls:         DefaultMinimumCalls,
	}
}

// ApplyDefaults fills unset fields. It is idempotent.
func ApplyDefaults(cfg *GatewayConfig) {
	s := &cfg.Server
	if s.Name == "" {
		s.Name = DefaultServerName
	}
	if s.Version == "" {
		s.Version = DefaultServerVersion
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	setDuration(&s.ReadTimeout, DefaultReadTimeout)
	setDuration(&s.WriteTimeout, DefaultWriteTimeout)
	setDuration(&s.IdleTimeout, DefaultIdleTimeout)
	setDuration(&s.ShutdownTimeout, DefaultShutdownTimeout)

	if len(cfg.Auth.Algorithms) == 0 {
		cfg.Auth.Algorithms = []string{"HS256", "HS384", "HS512"}
	}
	if cfg.Auth.PublicPaths == nil {
		cfg.Auth.PublicPaths = append([]string(nil), DefaultPublicPaths...)
	}

	cfg.CircuitBreaker = cfg.CircuitBreaker.withDefaults(defaultBreaker())

	for i := range cfg.Routes {
		r := &cfg.Routes[i]
		if r.Backend == "" {
			r.Backend = r.ServiceID
		}
		if r.FallbackPath == "" && r.ServiceID != "" {
			r.FallbackPath = "/fallback/" + r.ServiceID
		}
		setDuration(&r.Timeout, DefaultRouteTimeout)
		if r.CircuitBreaker != nil {
			merged := r.CircuitBreaker.withDefaults(cfg.CircuitBreaker)
			r.CircuitBreaker = &merged
		}
	}

	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if svc.HealthPath == "" {
			svc.HealthPath = "/actuator/health"
		}
		if svc.Priority == "" {
			svc.Priority = "MEDIUM"
		}
		if svc.Category == "" {
			svc.Category = "SUPPORT"
		}
	}

	setDuration(&cfg.Health.Interval, DefaultHealthInterval)
	setDuration(&cfg.Health.Timeout, DefaultHealthTimeout)
	if cfg.Health.MaxBodyBytes <= 0 {
		cfg.Health.MaxBodyBytes = DefaultHealthMaxBodyBytes
	}

	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = DefaultRateLimitBurst
	}
	if cfg.RateLimit.KeyPrefix == "" {
		cfg.RateLimit.KeyPrefix = DefaultRateLimitKeyPrefix
	}

	o := &cfg.Observability
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
	if o.LogFormat == "" {
		o.LogFormat = "json"
	}
	if o.MetricsNamespace == "" {
		o.MetricsNamespace = "apigw"
	}
}

func setDuration(d *Duration, def time.Duration) {
	if *d <= 0 {
		*d = Duration(def)
	}
}
