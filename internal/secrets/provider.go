// Package secrets resolves the JWT signing secret from environment
// variables, local files or HashiCorp Vault.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderType represents the type of secrets provider.
type ProviderType string

const (
	// ProviderTypeVault reads secrets from a Vault KV v2 mount.
	ProviderTypeVault ProviderType = "vault"
	// ProviderTypeLocal reads secrets from files under a base path.
	ProviderTypeLocal ProviderType = "local"
	// ProviderTypeEnv reads secrets from prefixed environment variables.
	ProviderTypeEnv ProviderType = "env"
)

// Common errors for secrets providers.
var (
	ErrSecretNotFound        = errors.New("secret not found")
	ErrKeyNotFound           = errors.New("secret key not found")
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrInvalidPath           = errors.New("invalid secret path")
	ErrProviderUnavailable   = errors.New("provider unavailable")
	ErrInvalidProviderType   = errors.New("invalid provider type")
)

// Secret represents a secret with key-value data.
type Secret struct {
	Name     string
	Data     map[string][]byte
	Metadata map[string]string
	Version  string
}

// GetString returns a string value from the secret data.
func (s *Secret) GetString(key string) (string, bool) {
	if s == nil || s.Data == nil {
		return "", false
	}
	v, ok := s.Data[key]
	if !ok {
		return "", false
	}
	return string(v), true
}

// Value picks a single value out of the secret. An explicit key must exist.
// Without a key the secret must hold exactly one entry, or a "value" entry.
func (s *Secret) Value(key string) (string, error) {
	if key != "" {
		v, ok := s.GetString(key)
		if !ok {
			return "", fmt.Errorf("%w: %s in %s", ErrKeyNotFound, key, s.Name)
		}
		return v, nil
	}
	if v, ok := s.GetString(DefaultValueKey); ok {
		return v, nil
	}
	if s != nil && len(s.Data) == 1 {
		for _, v := range s.Data {
			return string(v), nil
		}
	}
	return "", fmt.Errorf("%w: secret %s has %d keys and no key was configured", ErrKeyNotFound, s.Name, len(s.Data))
}

// DefaultValueKey holds unstructured secret values.
const DefaultValueKey = "value"

// Provider is a read-only source of secrets.
type Provider interface {
	Type() ProviderType

	// GetSecret retrieves a secret by path. Path format depends on the provider:
	//   - env: "jwt-secret" maps to "{PREFIX}JWT_SECRET"
	//   - local: "jwt" maps to base-path/jwt, jwt.yaml, jwt.yml or jwt.json
	//   - vault: "gateway/jwt" under the configured KV v2 mount
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// HealthCheck returns nil if the backend is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}

// Metrics records secrets provider operations.
type Metrics struct {
	operationDuration *prometheus.HistogramVec
	operationTotal    *prometheus.CounterVec
	providerHealth    *prometheus.GaugeVec
}

// NewMetrics creates the secrets metrics and registers them with reg when
// reg is not nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "secrets",
				Name:      "operation_duration_seconds",
				Help:      "Duration of secrets provider operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "operation", "result"},
		),
		operationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "secrets",
				Name:      "operation_total",
				Help:      "Total number of secrets provider operations",
			},
			[]string{"provider", "operation", "result"},
		),
		providerHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "secrets",
				Name:      "provider_healthy",
				Help:      "Whether the secrets provider is healthy (1) or not (0)",
			},
			[]string{"provider"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.operationDuration, m.operationTotal, m.providerHealth)
	}
	return m
}

// RecordOperation records one provider operation. A nil receiver is a no-op.
func (m *Metrics) RecordOperation(provider ProviderType, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.operationDuration.WithLabelValues(string(provider), operation, result).Observe(duration.Seconds())
	m.operationTotal.WithLabelValues(string(provider), operation, result).Inc()
}

// RecordHealthStatus records the health status of a provider.
func (m *Metrics) RecordHealthStatus(provider ProviderType, healthy bool) {
	if m == nil {
		return
	}
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.providerHealth.WithLabelValues(string(provider)).Set(value)
}

// ValidateProviderType validates that the given string is a valid provider type.
func ValidateProviderType(providerType string) (ProviderType, error) {
	switch ProviderType(providerType) {
	case ProviderTypeVault, ProviderTypeLocal, ProviderTypeEnv:
		return ProviderType(providerType), nil
	default:
		return "", fmt.Errorf("%w: %s, must be one of: vault, local, env", ErrInvalidProviderType, providerType)
	}
}
