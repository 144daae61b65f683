package secrets

import (
	"context"
	"fmt"
	"os"

	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/observability"
)

// Environment variables consulted when the Vault source leaves them unset.
const (
	EnvVaultAddr  = "VAULT_ADDR"
	EnvVaultToken = "VAULT_TOKEN"
)

// Option configures provider construction.
type Option func(*options)

type options struct {
	logger  observability.Logger
	metrics *Metrics
	lookup  func(string) (string, bool)
}

// WithLogger sets the logger handed to providers.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics handed to providers.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLookup replaces os.LookupEnv.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(o *options) { o.lookup = fn }
}

func buildOptions(opts []Option) *options {
	o := &options{logger: observability.NopLogger(), lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewProvider creates the provider described by src.
func NewProvider(src config.SecretSourceConfig, opts ...Option) (Provider, error) {
	o := buildOptions(opts)

	providerType, err := ValidateProviderType(src.Provider)
	if err != nil {
		return nil, err
	}

	switch providerType {
	case ProviderTypeEnv:
		return NewEnvProvider(&EnvProviderConfig{
			Prefix:  src.EnvPrefix,
			Lookup:  o.lookup,
			Logger:  o.logger,
			Metrics: o.metrics,
		}), nil

	case ProviderTypeLocal:
		return NewLocalProvider(&LocalProviderConfig{
			BasePath: src.LocalPath,
			Logger:   o.logger,
			Metrics:  o.metrics,
		})

	default:
		address, token := src.Vault.Address, src.Vault.Token
		if address == "" {
			address, _ = o.lookup(EnvVaultAddr)
		}
		if token == "" {
			token, _ = o.lookup(EnvVaultToken)
		}
		return NewVaultProvider(&VaultProviderConfig{
			Address:   address,
			Token:     token,
			Namespace: src.Vault.Namespace,
			Mount:     src.Vault.Mount,
			Timeout:   src.Vault.Timeout.Duration(),
			Logger:    o.logger,
			Metrics:   o.metrics,
		})
	}
}

// ResolveJWTSecret returns the HMAC secret for token verification. An inline
// secret wins; otherwise the configured source is read once.
func ResolveJWTSecret(ctx context.Context, auth config.AuthConfig, opts ...Option) (string, error) {
	if auth.JWTSecret != "" {
		return auth.JWTSecret, nil
	}
	if auth.SecretSource.Provider == "" {
		return "", fmt.Errorf("%w: no jwt secret and no secret source", ErrProviderNotConfigured)
	}

	provider, err := NewProvider(auth.SecretSource, opts...)
	if err != nil {
		return "", err
	}
	defer provider.Close()

	secret, err := provider.GetSecret(ctx, auth.SecretSource.Path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve jwt secret from %s: %w", provider.Type(), err)
	}

	value, err := secret.Value(auth.SecretSource.Key)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", fmt.Errorf("%w: jwt secret %s is empty", ErrSecretNotFound, auth.SecretSource.Path)
	}
	return value, nil
}
