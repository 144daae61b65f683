package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/observability"
)

const (
	readHeaderTimeout = 10 * time.Second
	maxHeaderBytes    = 1 << 20
)

// server is the gateway's HTTP listener.
type server struct {
	cfg     config.ServerConfig
	srv     *http.Server
	ln      net.Listener
	logger  observability.Logger
	active  *atomic.Int64
	running atomic.Bool
	done    chan struct{}
}

func newServer(cfg config.ServerConfig, handler http.Handler, logger observability.Logger, active *atomic.Int64) *server {
	s := &server{
		cfg:    cfg,
		logger: logger,
		active: active,
		done:   make(chan struct{}),
	}
	s.srv = &http.Server{
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout.Duration(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout.Duration(),
		IdleTimeout:       cfg.IdleTimeout.Duration(),
		MaxHeaderBytes:    maxHeaderBytes,
		ConnState:         s.trackConn,
	}
	return s
}

// trackConn keeps the count of open client connections reported by
// /health/metrics.
func (s *server) trackConn(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.active.Add(1)
	case http.StateClosed, http.StateHijacked:
		s.active.Add(-1)
	}
}

func (s *server) start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.ln = ln
	s.running.Store(true)

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("listener error", observability.Error(err))
		}
		s.running.Store(false)
	}()
	return nil
}

func (s *server) addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// stop drains in-flight requests until ctx expires, then closes every
// remaining connection.
func (s *server) stop(ctx context.Context) error {
	if !s.running.Load() {
		return nil
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown timed out, closing connections", observability.Error(err))
		if closeErr := s.srv.Close(); closeErr != nil {
			return fmt.Errorf("failed to close listener: %w", closeErr)
		}
		return fmt.Errorf("failed to shutdown listener gracefully: %w", err)
	}
	<-s.done
	return nil
}
