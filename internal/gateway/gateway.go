package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chordmind/apigw/internal/auth"
	"github.com/chordmind/apigw/internal/auth/jwt"
	"github.com/chordmind/apigw/internal/circuitbreaker"
	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/fallback"
	"github.com/chordmind/apigw/internal/health"
	"github.com/chordmind/apigw/internal/middleware"
	"github.com/chordmind/apigw/internal/observability"
	"github.com/chordmind/apigw/internal/proxy"
	"github.com/chordmind/apigw/internal/ratelimit"
	"github.com/chordmind/apigw/internal/router"
)

// rateLimitExempt are path prefixes never rate limited.
var rateLimitExempt = []string{"/health", "/actuator", fallback.PathPrefix}

var ginModeOnce sync.Once

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Gateway owns every runtime component and the HTTP server.
type Gateway struct {
	mu     sync.RWMutex
	config *config.GatewayConfig

	logger    observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	transport http.RoundTripper
	prober    health.Prober
	limiter   ratelimit.LimiterCloser
	now       func() time.Time

	verifier   *jwt.HMACVerifier
	router     *router.Router
	breakers   *circuitbreaker.Registry
	responder  *fallback.Responder
	proxy      *proxy.Proxy
	aggregator *health.Aggregator
	engine     *gin.Engine
	handler    http.Handler

	server      *server
	state       atomic.Int32
	startTime   time.Time
	activeConns atomic.Int64
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics sets the metrics whose registry every component registers
// into.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = metrics
	}
}

// WithTracer sets the tracer used by the tracing middleware.
func WithTracer(tracer *observability.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = tracer
	}
}

// WithTransport sets the transport used for backend calls.
func WithTransport(transport http.RoundTripper) Option {
	return func(g *Gateway) {
		g.transport = transport
	}
}

// WithProber sets the backend health prober.
func WithProber(p health.Prober) Option {
	return func(g *Gateway) {
		g.prober = p
	}
}

// WithLimiter replaces the limiter built from the rate limit config.
func WithLimiter(l ratelimit.LimiterCloser) Option {
	return func(g *Gateway) {
		g.limiter = l
	}
}

// WithClock overrides the clock used in response bodies.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// New builds a gateway from cfg. cfg.Auth.JWTSecret must already hold the
// resolved signing secret.
func New(cfg *config.GatewayConfig, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	g := &Gateway{
		config: cfg,
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = observability.NewMetrics(cfg.Observability.MetricsNamespace)
	}
	if g.tracer == nil {
		tracer, err := observability.NewTracer(context.Background(), observability.TracerConfig{ServiceName: cfg.Server.Name})
		if err != nil {
			return nil, err
		}
		g.tracer = tracer
	}
	g.state.Store(int32(StateStopped))

	if err := g.build(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) build() error {
	cfg := g.config
	ns := cfg.Observability.MetricsNamespace
	reg := g.metrics.Registry()

	verifier, err := jwt.NewVerifier(jwt.Config{
		Secret:     cfg.Auth.JWTSecret,
		Algorithms: cfg.Auth.Algorithms,
		ClockSkew:  cfg.Auth.ClockSkew.Duration(),
	},
		jwt.WithVerifierLogger(g.logger),
		jwt.WithVerifierMetrics(jwt.NewMetrics(ns, reg)),
	)
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}
	g.verifier = verifier

	authenticator, err := auth.NewAuthenticator(verifier, cfg.Auth.PublicPaths,
		auth.WithLogger(g.logger),
		auth.WithMetrics(auth.NewMetrics(ns, reg)),
		auth.WithNow(g.now),
	)
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}

	g.router, err = router.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to load routes: %w", err)
	}

	g.breakers = circuitbreaker.NewRegistry(g.logger, circuitbreaker.NewMetrics(ns, reg))
	for _, route := range g.router.GetRoutes() {
		if _, err := g.breakers.GetOrCreate(route.ServiceID, circuitbreaker.FromPolicy(route.Breaker)); err != nil {
			return fmt.Errorf("route %s: %w", route.ServiceID, err)
		}
	}

	g.responder = fallback.NewFromRoutes(cfg.Routes, fallback.WithLogger(g.logger), fallback.WithNow(g.now))

	proxyOpts := []proxy.Option{
		proxy.WithLogger(g.logger),
		proxy.WithMetrics(proxy.NewMetrics(ns, reg)),
		proxy.WithNow(g.now),
	}
	if g.transport != nil {
		proxyOpts = append(proxyOpts, proxy.WithTransport(g.transport))
	}
	g.proxy = proxy.New(g.router, g.breakers, g.responder, proxyOpts...)

	healthOpts := []health.AggregatorOption{
		health.WithLogger(g.logger),
		health.WithMetrics(health.NewMetrics(ns, reg)),
	}
	if g.prober != nil {
		healthOpts = append(healthOpts, health.WithProber(g.prober))
	}
	g.aggregator = health.NewAggregator(cfg.Services, cfg.Health, healthOpts...)

	if g.limiter == nil {
		g.limiter, err = ratelimit.FromConfig(cfg.RateLimit,
			ratelimit.WithLogger(g.logger),
			ratelimit.WithMetrics(ratelimit.NewMetrics(ns, reg)),
		)
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
	}

	g.engine = g.buildEngine()
	g.handler = middleware.Chain(g.engine,
		middleware.Recovery(g.logger, middleware.NewMetrics(ns, reg)),
		middleware.RequestID(),
		middleware.AccessLog(g.logger),
		observability.TracingMiddleware(g.tracer),
		observability.MetricsMiddleware(g.metrics),
		middleware.RejectDotSegments(g.logger),
		middleware.CORS(cfg.CORS),
		authenticator.HTTPMiddleware(),
		middleware.AccessLogEntry(g.logger),
		ratelimit.Middleware(g.limiter,
			ratelimit.WithLogger(g.logger),
			ratelimit.WithClock(g.now),
			ratelimit.WithSkipPaths(rateLimitExempt...),
		),
	)
	return nil
}

func (g *Gateway) buildEngine() *gin.Engine {
	ginModeOnce.Do(func() {
		if gin.Mode() == gin.DebugMode {
			gin.SetMode(gin.ReleaseMode)
		}
	})

	engine := gin.New()
	engine.HandleMethodNotAllowed = false
	engine.RedirectTrailingSlash = false

	health.NewHandler(g.aggregator, g.config.Server.Name, g.config.Server.Version,
		health.WithActiveConnections(g.activeConns.Load),
		health.WithHandlerClock(g.now),
	).Register(engine)
	g.responder.Mount(engine)

	engine.GET("/actuator/circuitbreakers", g.circuitBreakers)
	engine.GET("/actuator/prometheus", gin.WrapH(g.metrics.Handler()))
	engine.GET("/api-docs", g.apiDocs)

	engine.NoRoute(gin.WrapH(g.proxy))
	return engine
}

// Handler returns the fully wrapped HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Start starts health polling and the HTTP listener.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return errors.New("gateway is not in stopped state")
	}

	cfg := g.Config()
	g.server = newServer(cfg.Server, g.handler, g.logger, &g.activeConns)
	if err := g.server.start(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return err
	}
	g.aggregator.Start(ctx)

	g.startTime = time.Now()
	g.state.Store(int32(StateRunning))

	g.logger.Info("gateway started",
		observability.String("name", cfg.Server.Name),
		observability.String("version", cfg.Server.Version),
		observability.String("address", g.server.addr()),
		observability.Int("routes", len(cfg.Routes)),
		observability.Int("services", len(cfg.Services)),
	)
	return nil
}

// Stop drains in-flight requests and releases every component. A ctx
// without a deadline gets the configured shutdown timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return errors.New("gateway is not running")
	}
	g.logger.Info("stopping gateway")

	if _, ok := ctx.Deadline(); !ok {
		timeout := g.Config().Server.ShutdownTimeout.Duration()
		if timeout <= 0 {
			timeout = config.DefaultShutdownTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var errs []error
	if err := g.server.stop(ctx); err != nil {
		errs = append(errs, err)
	}
	g.aggregator.Stop()
	if err := g.limiter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close rate limiter: %w", err))
	}

	g.state.Store(int32(StateStopped))
	g.logger.Info("gateway stopped")
	return errors.Join(errs...)
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Addr returns the bound listener address, or "" when not running.
func (g *Gateway) Addr() string {
	if g.server == nil {
		return ""
	}
	return g.server.addr()
}

// Uptime returns the time since Start.
func (g *Gateway) Uptime() time.Duration {
	if g.startTime.IsZero() {
		return 0
	}
	return time.Since(g.startTime)
}

// Config returns the current configuration.
func (g *Gateway) Config() *config.GatewayConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config
}

// Breakers returns the circuit breaker registry.
func (g *Gateway) Breakers() *circuitbreaker.Registry {
	return g.breakers
}

// Aggregator returns the health aggregator.
func (g *Gateway) Aggregator() *health.Aggregator {
	return g.aggregator
}
