package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chordmind/apigw/internal/observability"
)

// LocalProviderConfig holds configuration for the local file provider.
type LocalProviderConfig struct {
	BasePath string
	Logger   observability.Logger
	Metrics  *Metrics
}

// LocalProvider reads secrets from files under a base path. A secret named
// "jwt" is looked up as, in order:
//   - base-path/jwt/ (a directory with one file per key, as mounted by
//     Kubernetes and Docker secrets)
//   - base-path/jwt.yaml or base-path/jwt.yml
//   - base-path/jwt.json
//   - base-path/jwt (a plain file, stored under "value")
type LocalProvider struct {
	basePath string
	logger   observability.Logger
	metrics  *Metrics
}

// NewLocalProvider creates a new local file secrets provider.
func NewLocalProvider(cfg *LocalProviderConfig) (*LocalProvider, error) {
	if cfg == nil || cfg.BasePath == "" {
		return nil, fmt.Errorf("%w: base path is required", ErrProviderNotConfigured)
	}

	absPath, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &LocalProvider{basePath: absPath, logger: logger, metrics: cfg.Metrics}, nil
}

// Type returns the provider type.
func (p *LocalProvider) Type() ProviderType {
	return ProviderTypeLocal
}

func (p *LocalProvider) resolve(path string) (string, error) {
	if path == "" {
		return "", ErrInvalidPath
	}
	clean := filepath.Clean(path)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes the base path", ErrInvalidPath, path)
	}
	return filepath.Join(p.basePath, clean), nil
}

// GetSecret retrieves a secret from the filesystem.
func (p *LocalProvider) GetSecret(_ context.Context, path string) (secret *Secret, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordOperation(p.Type(), "get", time.Since(start), err)
	}()

	full, err := p.resolve(path)
	if err != nil {
		return nil, err
	}

	if info, statErr := os.Stat(full); statErr == nil && info.IsDir() {
		return p.readDirectory(full, path)
	}

	for _, f := range []struct {
		ext    string
		format string
		decode func([]byte, any) error
	}{
		{".yaml", "yaml", yaml.Unmarshal},
		{".yml", "yaml", yaml.Unmarshal},
		{".json", "json", json.Unmarshal},
	} {
		content, readErr := os.ReadFile(full + f.ext) //nolint:gosec // path is confined to basePath
		if errors.Is(readErr, os.ErrNotExist) {
			continue
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read secret file: %w", readErr)
		}
		return p.decodeStructured(content, f.decode, path, f.format, full+f.ext)
	}

	content, err := os.ReadFile(full) //nolint:gosec // path is confined to basePath
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}
	return &Secret{
		Name:     path,
		Data:     map[string][]byte{DefaultValueKey: []byte(strings.TrimRight(string(content), "\r\n"))},
		Metadata: map[string]string{"source": "file", "file": full},
	}, nil
}

func (p *LocalProvider) readDirectory(dir, name string) (*Secret, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret directory: %w", err)
	}

	data := make(map[string][]byte)
	for _, e := range entries {
		// Kubernetes projects keys through ..data symlinks.
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name())) //nolint:gosec // path is confined to basePath
		if err != nil {
			p.logger.Warn("failed to read secret key file",
				observability.String("file", e.Name()),
				observability.Error(err),
			)
			continue
		}
		data[e.Name()] = []byte(strings.TrimRight(string(content), "\r\n"))
	}

	return &Secret{
		Name:     name,
		Data:     data,
		Metadata: map[string]string{"source": "directory", "path": dir},
	}, nil
}

func (p *LocalProvider) decodeStructured(
	content []byte,
	decode func([]byte, any) error,
	name, format, file string,
) (*Secret, error) {
	var raw map[string]any
	if err := decode(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s secret %s: %w", format, name, err)
	}

	data := make(map[string][]byte, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			data[k] = []byte(val)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("failed to encode key %s of secret %s: %w", k, name, err)
			}
			data[k] = b
		}
	}

	return &Secret{
		Name:     name,
		Data:     data,
		Metadata: map[string]string{"source": format, "file": file},
	}, nil
}

// HealthCheck verifies the base path is a readable directory.
func (p *LocalProvider) HealthCheck(context.Context) error {
	info, err := os.Stat(p.basePath)
	healthy := err == nil && info.IsDir()
	p.metrics.RecordHealthStatus(p.Type(), healthy)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if !healthy {
		return fmt.Errorf("%w: %s is not a directory", ErrProviderUnavailable, p.basePath)
	}
	return nil
}

// Close is a no-op.
func (p *LocalProvider) Close() error {
	return nil
}
