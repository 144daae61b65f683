package main

import (
	"context"
	"fmt"

	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/gateway"
	"github.com/chordmind/apigw/internal/observability"
	"github.com/chordmind/apigw/internal/secrets"
)

// application holds all application components.
type application struct {
	gateway    *gateway.Gateway
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	config     *config.GatewayConfig
	secretOpts []secrets.Option
}

// run starts the gateway and blocks until ctx is cancelled, then shuts
// everything down.
func run(ctx context.Context, flags cliFlags, logger observability.Logger) error {
	cfg, err := loadConfig(flags, logger)
	if err != nil {
		return err
	}

	app, err := initApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := app.gateway.Start(ctx); err != nil {
		_ = app.tracer.Shutdown(context.Background())
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	watcher := startConfigWatcher(ctx, app, flags, logger)

	<-ctx.Done()
	logger.Info("received shutdown signal")

	return app.shutdown(watcher, logger)
}

// loadConfig loads and validates the configuration and applies the log
// level it selects.
func loadConfig(flags cliFlags, logger observability.Logger) (*config.GatewayConfig, error) {
	logger.Info("starting apigw",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlagOverrides(cfg, flags)

	if setter, ok := logger.(observability.LevelSetter); ok {
		if err := setter.SetLevel(cfg.Observability.LogLevel); err != nil {
			return nil, err
		}
	}

	logger.Info("configuration loaded",
		observability.String("name", cfg.Server.Name),
		observability.Int("port", cfg.Server.Port),
		observability.Int("routes", len(cfg.Routes)),
		observability.Int("services", len(cfg.Services)),
		observability.Bool("rate_limit", cfg.RateLimit.Enabled),
		observability.Bool("tracing", cfg.Observability.Tracing.Enabled),
	)
	return cfg, nil
}

// applyFlagOverrides makes command line settings win over the file.
func applyFlagOverrides(cfg *config.GatewayConfig, flags cliFlags) {
	if flags.logLevel != "" {
		cfg.Observability.LogLevel = flags.logLevel
	}
}

// initApplication resolves the signing secret and builds every component.
func initApplication(ctx context.Context, cfg *config.GatewayConfig, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics(cfg.Observability.MetricsNamespace)
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	secretOpts := []secrets.Option{
		secrets.WithLogger(logger),
		secrets.WithMetrics(secrets.NewMetrics(cfg.Observability.MetricsNamespace, metrics.Registry())),
	}
	secret, err := secrets.ResolveJWTSecret(ctx, cfg.Auth, secretOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve jwt secret: %w", err)
	}
	cfg.Auth.JWTSecret = secret

	tracer, err := initTracer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	gw, err := gateway.New(cfg,
		gateway.WithLogger(logger),
		gateway.WithMetrics(metrics),
		gateway.WithTracer(tracer),
	)
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &application{
		gateway:    gw,
		metrics:    metrics,
		tracer:     tracer,
		config:     cfg,
		secretOpts: secretOpts,
	}, nil
}

// initTracer initializes the tracer.
func initTracer(ctx context.Context, cfg *config.GatewayConfig) (*observability.Tracer, error) {
	serviceVersion := cfg.Server.Version
	if version != "dev" {
		serviceVersion = version
	}
	tracing := cfg.Observability.Tracing
	return observability.NewTracer(ctx, observability.TracerConfig{
		Enabled:        tracing.Enabled,
		ServiceName:    cfg.Server.Name,
		ServiceVersion: serviceVersion,
		OTLPEndpoint:   tracing.OTLPEndpoint,
		SamplingRate:   tracing.SamplingRate,
	})
}

// startConfigWatcher reloads the JWT secret and log level when the config
// file changes. It returns nil when no file is in use.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	flags cliFlags,
	logger observability.Logger,
) *config.Watcher {
	if flags.configPath == "" {
		return nil
	}

	watcher, err := config.NewWatcher(flags.configPath, func(newCfg *config.GatewayConfig) {
		logger.Info("configuration changed, reloading")
		applyFlagOverrides(newCfg, flags)
		if reloadErr := app.gateway.Reload(ctx, newCfg, app.secretOpts...); reloadErr != nil {
			logger.Error("failed to reload configuration", observability.Error(reloadErr))
		}
	}, config.WithLogger(logger))
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		return nil
	}
	return watcher
}
