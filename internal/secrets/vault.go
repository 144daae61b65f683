package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/chordmind/apigw/internal/observability"
)

// Vault provider defaults.
const (
	DefaultVaultMount   = "secret"
	DefaultVaultTimeout = 10 * time.Second
	DefaultVaultRetries = 2
)

// VaultProviderConfig holds configuration for the Vault secrets provider.
type VaultProviderConfig struct {
	Address   string
	Token     string
	Namespace string
	// Mount is the KV v2 secrets engine mount point.
	Mount      string
	Timeout    time.Duration
	MaxRetries int
	Logger     observability.Logger
	Metrics    *Metrics
}

// VaultProvider reads secrets from a Vault KV v2 mount with token auth.
type VaultProvider struct {
	client  *vaultapi.Client
	kv      *vaultapi.KVv2
	mount   string
	logger  observability.Logger
	metrics *Metrics
}

// NewVaultProvider creates a new Vault secrets provider.
func NewVaultProvider(cfg *VaultProviderConfig) (*VaultProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrProviderNotConfigured)
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: vault address is required", ErrProviderNotConfigured)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: vault token is required", ErrProviderNotConfigured)
	}

	mount := strings.Trim(cfg.Mount, "/")
	if mount == "" {
		mount = DefaultVaultMount
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultVaultTimeout
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = DefaultVaultRetries
	}

	apiConfig := vaultapi.DefaultConfig()
	if apiConfig.Error != nil {
		return nil, fmt.Errorf("failed to build vault config: %w", apiConfig.Error)
	}
	apiConfig.Address = cfg.Address
	apiConfig.Timeout = timeout
	apiConfig.MaxRetries = retries

	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	logger = logger.With(observability.String("component", "vault"))

	logger.Info("vault secrets provider initialized",
		observability.String("address", cfg.Address),
		observability.String("mount", mount),
	)

	return &VaultProvider{
		client:  client,
		kv:      client.KVv2(mount),
		mount:   mount,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// Type returns the provider type.
func (p *VaultProvider) Type() ProviderType {
	return ProviderTypeVault
}

// GetSecret reads the latest version of a KV v2 secret.
func (p *VaultProvider) GetSecret(ctx context.Context, path string) (secret *Secret, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordOperation(p.Type(), "get", time.Since(start), err)
	}()

	path = strings.Trim(path, "/")
	if path == "" {
		return nil, ErrInvalidPath
	}

	kvSecret, err := p.kv.Get(ctx, path)
	if errors.Is(err, vaultapi.ErrSecretNotFound) || (err == nil && kvSecret == nil) {
		return nil, fmt.Errorf("%w: %s/%s", ErrSecretNotFound, p.mount, path)
	}
	if err != nil {
		p.logger.Error("failed to read secret from vault",
			observability.String("path", path),
			observability.Error(err),
		)
		return nil, fmt.Errorf("failed to read secret from vault: %w", err)
	}

	data := make(map[string][]byte, len(kvSecret.Data))
	for k, v := range kvSecret.Data {
		switch val := v.(type) {
		case string:
			data[k] = []byte(val)
		case nil:
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("failed to encode key %s of secret %s: %w", k, path, err)
			}
			data[k] = b
		}
	}

	out := &Secret{
		Name:     path,
		Data:     data,
		Metadata: map[string]string{"source": "vault", "mount": p.mount},
	}
	if vm := kvSecret.VersionMetadata; vm != nil {
		out.Version = strconv.Itoa(vm.Version)
		if !vm.CreatedTime.IsZero() {
			out.Metadata["created_time"] = vm.CreatedTime.Format(time.RFC3339)
		}
	}
	return out, nil
}

// HealthCheck queries sys/health.
func (p *VaultProvider) HealthCheck(ctx context.Context) error {
	health, err := p.client.Sys().HealthWithContext(ctx)
	switch {
	case err != nil:
		p.metrics.RecordHealthStatus(p.Type(), false)
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	case health.Sealed:
		p.metrics.RecordHealthStatus(p.Type(), false)
		return fmt.Errorf("%w: vault is sealed", ErrProviderUnavailable)
	}
	p.metrics.RecordHealthStatus(p.Type(), true)
	return nil
}

// Close clears the client token.
func (p *VaultProvider) Close() error {
	p.client.ClearToken()
	return nil
}
