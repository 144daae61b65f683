package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Environment variables that override the loaded configuration.
const (
	EnvJWTSecret           = "JWT_SECRET"
	EnvRedisURL            = "REDIS_URL"
	EnvLogLevel            = "GATEWAY_LOG_LEVEL"
	EnvPort                = "GATEWAY_PORT"
	EnvBreakerFailureRate  = "GATEWAY_BREAKER_FAILURE_RATE"
	EnvBreakerOpenDuration = "GATEWAY_BREAKER_OPEN_DURATION"
	EnvBreakerHalfOpen     = "GATEWAY_BREAKER_HALF_OPEN_CALLS"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Loader reads configuration files.
type Loader struct {
	lookup LookupFunc
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLookup replaces os.LookupEnv, mostly for tests.
func WithLookup(fn LookupFunc) LoaderOption {
	return func(l *Loader) {
		l.lookup = fn
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads, overrides, defaults and validates configuration from path.
// An empty path yields the built-in configuration.
func Load(path string) (*GatewayConfig, error) {
	return NewLoader().Load(path)
}

// Load loads configuration from path. An empty path yields the built-in
// configuration with environment overrides applied.
func (l *Loader) Load(path string) (*GatewayConfig, error) {
	if path == "" {
		return l.finish(DefaultConfig())
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := l.parse(data)
	if err != nil {
		return nil, err
	}
	return l.finish(cfg)
}

// LoadFromReader loads configuration from r.
func (l *Loader) LoadFromReader(r io.Reader) (*GatewayConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := l.parse(data)
	if err != nil {
		return nil, err
	}
	return l.finish(cfg)
}

// parse decodes YAML on top of the built-in defaults. Lists present in the
// document replace the default lists.
func (l *Loader) parse(data []byte) (*GatewayConfig, error) {
	content := l.substituteEnvVars(string(data))

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(content)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

func (l *Loader) finish(cfg *GatewayConfig) (*GatewayConfig, error) {
	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default}. "$$" escapes a
// literal dollar sign.
func (l *Loader) substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		if value, ok := l.lookup(sub[1]); ok {
			return value
		}
		return sub[2]
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}

// applyEnvOverrides applies backend URL, secret, port, log level and
// breaker overrides.
func (l *Loader) applyEnvOverrides(cfg *GatewayConfig) error {
	for _, b := range backendDefaults {
		url, ok := l.lookup(b.urlEnv)
		if !ok || url == "" {
			continue
		}
		url = strings.TrimRight(url, "/")
		for i := range cfg.Routes {
			if cfg.Routes[i].Backend == b.service {
				cfg.Routes[i].TargetURL = url
			}
		}
		for i := range cfg.Services {
			if cfg.Services[i].Name == b.service {
				cfg.Services[i].BaseURL = url
			}
		}
	}

	if v, ok := l.lookup(EnvJWTSecret); ok && v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v, ok := l.lookup(EnvRedisURL); ok && v != "" {
		cfg.RateLimit.RedisURL = v
	}
	if v, ok := l.lookup(EnvLogLevel); ok && v != "" {
		cfg.Observability.LogLevel = v
	}
	if v, ok := l.lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return NewFieldError(EnvPort, fmt.Sprintf("invalid port %q", v))
		}
		cfg.Server.Port = port
	}

	if v, ok := l.lookup(EnvBreakerFailureRate); ok && v != "" {
		rate, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		if err != nil {
			return NewFieldError(EnvBreakerFailureRate, fmt.Sprintf("invalid percentage %q", v))
		}
		cfg.CircuitBreaker.FailureRateThreshold = rate
	}
	if v, ok := l.lookup(EnvBreakerOpenDuration); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return NewFieldError(EnvBreakerOpenDuration, fmt.Sprintf("invalid duration %q", v))
		}
		cfg.CircuitBreaker.OpenDuration = Duration(d)
	}
	if v, ok := l.lookup(EnvBreakerHalfOpen); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NewFieldError(EnvBreakerHalfOpen, fmt.Sprintf("invalid count %q", v))
		}
		cfg.CircuitBreaker.HalfOpenTrialCount = n
	}

	return nil
}
