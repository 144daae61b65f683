package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chordmind/apigw/internal/observability"
)

// DefaultEnvPrefix is the default prefix for environment variable secrets.
const DefaultEnvPrefix = "GATEWAY_SECRET_"

// EnvProviderConfig holds configuration for the environment variable provider.
type EnvProviderConfig struct {
	Prefix  string
	Lookup  func(string) (string, bool)
	Logger  observability.Logger
	Metrics *Metrics
}

// EnvProvider reads secrets from environment variables. A JSON object value
// yields one key per member; any other value is stored under "value".
type EnvProvider struct {
	prefix  string
	lookup  func(string) (string, bool)
	logger  observability.Logger
	metrics *Metrics
}

// NewEnvProvider creates a new environment variable secrets provider.
func NewEnvProvider(cfg *EnvProviderConfig) *EnvProvider {
	if cfg == nil {
		cfg = &EnvProviderConfig{}
	}
	p := &EnvProvider{
		prefix:  cfg.Prefix,
		lookup:  cfg.Lookup,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if p.prefix == "" {
		p.prefix = DefaultEnvPrefix
	}
	if p.lookup == nil {
		p.lookup = os.LookupEnv
	}
	if p.logger == nil {
		p.logger = observability.NopLogger()
	}
	return p
}

// Type returns the provider type.
func (p *EnvProvider) Type() ProviderType {
	return ProviderTypeEnv
}

// EnvName converts a secret path to its environment variable name.
func (p *EnvProvider) EnvName(path string) string {
	name := strings.ToUpper(path)
	name = strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(name)
	return p.prefix + name
}

// GetSecret retrieves a secret from the environment.
func (p *EnvProvider) GetSecret(_ context.Context, path string) (secret *Secret, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordOperation(p.Type(), "get", time.Since(start), err)
	}()

	if path == "" {
		return nil, ErrInvalidPath
	}

	envName := p.EnvName(path)
	value, ok := p.lookup(envName)
	if !ok {
		p.logger.Debug("secret environment variable not set", observability.String("env_var", envName))
		return nil, fmt.Errorf("%w: environment variable %s not set", ErrSecretNotFound, envName)
	}

	data := make(map[string][]byte)
	var object map[string]any
	if json.Unmarshal([]byte(value), &object) == nil {
		for k, v := range object {
			if s, ok := v.(string); ok {
				data[k] = []byte(s)
				continue
			}
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			data[k] = b
		}
	} else {
		data[DefaultValueKey] = []byte(value)
	}

	return &Secret{
		Name:     path,
		Data:     data,
		Metadata: map[string]string{"source": "environment", "env_var": envName},
	}, nil
}

// HealthCheck always succeeds.
func (p *EnvProvider) HealthCheck(context.Context) error {
	p.metrics.RecordHealthStatus(p.Type(), true)
	return nil
}

// Close is a no-op.
func (p *EnvProvider) Close() error {
	return nil
}
