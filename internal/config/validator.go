package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/chordmind/apigw/internal/util"
)

// ValidationErrors collects every problem found in a configuration.
type ValidationErrors []*util.ConfigError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err.Error())
	}
	return sb.String()
}

// Is makes errors.Is(err, util.ErrConfigInvalid) hold for the collection.
func (e ValidationErrors) Is(target error) bool {
	return target == util.ErrConfigInvalid
}

// NewFieldError creates a configuration error for a single field.
func NewFieldError(field, message string) *util.ConfigError {
	return util.NewConfigError(field, message)
}

var (
	validPriorities = []string{"CRITICAL", "HIGH", "MEDIUM", "LOW"}
	validCategories = []string{"CORE", "SUPPORT", "ANALYTICS", "FEATURE", "INFRASTRUCTURE"}
	validAlgorithms = []string{"HS256", "HS384", "HS512"}
	validProviders  = []string{"env", "local", "vault"}
)

type validator struct {
	errs ValidationErrors
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, NewFieldError(field, fmt.Sprintf(format, args...)))
}

func (v *validator) check(field string, err error) {
	if err != nil {
		v.add(field, "%s", err.Error())
	}
}

// ValidateConfig validates a configuration after defaults have been applied.
func ValidateConfig(cfg *GatewayConfig) error {
	if cfg == nil {
		return NewFieldError("", "configuration is nil")
	}

	v := &validator{}
	v.check("server.port", util.ValidatePort(cfg.Server.Port))
	v.validateAuth(&cfg.Auth)
	v.validateBreaker("circuitBreaker", cfg.CircuitBreaker)
	v.validateRoutes(cfg)
	v.validateServices(cfg.Services)
	v.check("health.interval", util.ValidatePositiveDuration(cfg.Health.Interval.Duration()))
	v.check("health.timeout", util.ValidatePositiveDuration(cfg.Health.Timeout.Duration()))

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			v.add("rateLimit.requestsPerSecond", "must be positive")
		}
		if cfg.RateLimit.Burst < cfg.RateLimit.RequestsPerSecond {
			v.add("rateLimit.burst", "must be at least requestsPerSecond")
		}
	}

	if rate := cfg.Observability.Tracing.SamplingRate; rate < 0 || rate > 1 {
		v.add("observability.tracing.samplingRate", "must be between 0 and 1, got %g", rate)
	}

	if len(v.errs) > 0 {
		return v.errs
	}
	return nil
}

func (v *validator) validateAuth(a *AuthConfig) {
	if a.JWTSecret == "" {
		switch {
		case a.SecretSource.Provider == "":
			v.add("auth.jwtSecret", "a secret or auth.secretSource is required (set %s)", EnvJWTSecret)
		case !slices.Contains(validProviders, a.SecretSource.Provider):
			v.add("auth.secretSource.provider", "must be one of %v, got %q", validProviders, a.SecretSource.Provider)
		case a.SecretSource.Path == "":
			v.add("auth.secretSource.path", "cannot be empty")
		}
	}
	for _, alg := range a.Algorithms {
		if !slices.Contains(validAlgorithms, strings.ToUpper(alg)) {
			v.add("auth.algorithms", "unsupported algorithm %q", alg)
		}
	}
	for i, p := range a.PublicPaths {
		v.check(fmt.Sprintf("auth.publicPaths[%d]", i), util.ValidatePathPrefix(p))
	}
}

func (v *validator) validateBreaker(field string, b BreakerConfig) {
	v.check(field+".failureRateThreshold", util.ValidatePercentage(b.FailureRateThreshold))
	v.check(field+".openDuration", util.ValidatePositiveDuration(b.OpenDuration.Duration()))
	if b.HalfOpenTrialCount < 1 {
		v.add(field+".halfOpenTrialCount", "must be at least 1")
	}
	if b.WindowSize < 1 {
		v.add(field+".windowSize", "must be at least 1")
	}
	if b.MinimumCalls < 1 || b.MinimumCalls > b.WindowSize {
		v.add(field+".minimumCalls", "must be between 1 and windowSize (%d)", b.WindowSize)
	}
}

func (v *validator) validateRoutes(cfg *GatewayConfig) {
	if len(cfg.Routes) == 0 {
		v.add("routes", "at least one route is required")
		return
	}

	seen := make(map[string]bool, len(cfg.Routes))
	for i, r := range cfg.Routes {
		field := fmt.Sprintf("routes[%d]", i)
		if err := util.ValidateNonEmpty(r.ServiceID, "serviceId"); err != nil {
			v.check(field+".serviceId", err)
		} else if seen[r.ServiceID] {
			v.add(field+".serviceId", "duplicate service id %q", r.ServiceID)
		}
		seen[r.ServiceID] = true

		v.check(field+".pathPrefix", util.ValidatePathPrefix(r.PathPrefix))
		if strings.TrimRight(r.PathPrefix, "/") == "" {
			v.add(field+".pathPrefix", "the root prefix would shadow every other path")
		}
		v.check(field+".targetUrl", util.ValidateURL(r.TargetURL))
		if r.CircuitBreaker != nil {
			v.validateBreaker(field+".circuitBreaker", *r.CircuitBreaker)
		}

		for j := 0; j < i; j++ {
			if util.PrefixesOverlap(r.PathPrefix, cfg.Routes[j].PathPrefix) {
				v.add(field+".pathPrefix", "%q overlaps %q of route %q",
					r.PathPrefix, cfg.Routes[j].PathPrefix, cfg.Routes[j].ServiceID)
			}
		}
	}
}

func (v *validator) validateServices(services []ServiceConfig) {
	seen := make(map[string]bool, len(services))
	for i, s := range services {
		field := fmt.Sprintf("services[%d]", i)
		if err := util.ValidateNonEmpty(s.Name, "name"); err != nil {
			v.check(field+".name", err)
		} else if seen[s.Name] {
			v.add(field+".name", "duplicate service %q", s.Name)
		}
		seen[s.Name] = true

		v.check(field+".baseUrl", util.ValidateURL(s.BaseURL))
		v.check(field+".healthPath", util.ValidatePathPrefix(s.HealthPath))
		if !slices.Contains(validPriorities, strings.ToUpper(s.Priority)) {
			v.add(field+".priority", "must be one of %v, got %q", validPriorities, s.Priority)
		}
		if !slices.Contains(validCategories, strings.ToUpper(s.Category)) {
			v.add(field+".category", "must be one of %v, got %q", validCategories, s.Category)
		}
	}
}
