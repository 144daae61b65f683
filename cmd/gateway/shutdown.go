package main

import (
	"context"
	"errors"

	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/observability"
)

// shutdown stops the watcher, drains the gateway and flushes traces within
// the configured shutdown timeout.
func (app *application) shutdown(watcher *config.Watcher, logger observability.Logger) error {
	timeout := app.config.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("failed to stop config watcher", observability.Error(err))
		}
	}

	var errs []error
	if err := app.gateway.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop gateway gracefully", observability.Error(err))
		errs = append(errs, err)
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
		errs = append(errs, err)
	}

	logger.Info("gateway stopped")
	return errors.Join(errs...)
}
