package gateway

import (
	"context"
	"fmt"

	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/observability"
	"github.com/chordmind/apigw/internal/secrets"
)

// Reload applies the hot-reloadable parts of cfg: the JWT secret and the
// log level. Routes, breakers, health targets and listeners keep their
// startup values until restart.
func (g *Gateway) Reload(ctx context.Context, cfg *config.GatewayConfig, opts ...secrets.Option) error {
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	secret, err := secrets.ResolveJWTSecret(ctx, cfg.Auth, opts...)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	next := *g.config
	if secret != g.config.Auth.JWTSecret {
		if err := g.verifier.SetSecret(secret); err != nil {
			return fmt.Errorf("failed to apply jwt secret: %w", err)
		}
		next.Auth.JWTSecret = secret
		g.logger.Info("jwt secret rotated")
	}

	if level := cfg.Observability.LogLevel; level != "" && level != g.config.Observability.LogLevel {
		if setter, ok := g.logger.(observability.LevelSetter); ok {
			if err := setter.SetLevel(level); err != nil {
				return err
			}
			next.Observability.LogLevel = level
			g.logger.Info("log level changed", observability.String("level", level))
		}
	}

	if len(cfg.Routes) != len(g.config.Routes) || len(cfg.Services) != len(g.config.Services) {
		g.logger.Warn("route and service changes take effect after restart")
	}

	g.config = &next
	return nil
}
