package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chordmind/apigw/internal/circuitbreaker"
	"github.com/chordmind/apigw/internal/fallback"
	"github.com/chordmind/apigw/internal/observability"
	"github.com/chordmind/apigw/internal/router"
	"github.com/chordmind/apigw/internal/util"
)

const tracerName = "github.com/chordmind/apigw/internal/proxy"

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Proxy is the breaker-guarded reverse proxy in front of the backends.
type Proxy struct {
	router    *router.Router
	breakers  *circuitbreaker.Registry
	fallback  *fallback.Responder
	transport http.RoundTripper
	logger    observability.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

// Option is a functional option for configuring the proxy.
type Option func(*Proxy)

// WithLogger sets the logger for the proxy.
func WithLogger(logger observability.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithTransport sets the transport used for backend calls.
func WithTransport(transport http.RoundTripper) Option {
	return func(p *Proxy) {
		p.transport = transport
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *Metrics) Option {
	return func(p *Proxy) {
		p.metrics = metrics
	}
}

// WithNow overrides the clock used in error bodies.
func WithNow(now func() time.Time) Option {
	return func(p *Proxy) {
		p.now = now
	}
}

// New creates a proxy over the route table, breaker registry and fallback
// responder.
func New(r *router.Router, breakers *circuitbreaker.Registry, responder *fallback.Responder, opts ...Option) *Proxy {
	p := &Proxy{
		router:   r,
		breakers: breakers,
		fallback: responder,
		logger:   observability.NopLogger(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	result, err := p.router.Match(r.URL.Path)
	if err != nil {
		p.handleRouteNotFound(w, r, err)
		return
	}

	route := result.Route
	util.SetRoute(r.Context(), route.ServiceID)

	cb, err := p.breakers.GetOrCreate(route.ServiceID, circuitbreaker.FromPolicy(route.Breaker))
	if err != nil {
		p.logger.Error("circuit breaker unavailable",
			observability.String("route", route.ServiceID),
			observability.Error(err),
		)
		p.serveFallback(w, r, route, ReasonBreakerSetup)
		return
	}

	permit, err := cb.Allow()
	if err != nil {
		p.metrics.rejected(route.ServiceID)
		p.logger.WithContext(r.Context()).Debug("circuit breaker rejected call",
			observability.String("route", route.ServiceID),
			observability.String("state", cb.State().String()),
		)
		p.serveFallback(w, r, route, ReasonCircuitOpen)
		return
	}

	p.forward(w, r, result, cb, permit)
}

// forward performs the backend call, writes either the backend response or
// the fallback and records the outcome with the breaker.
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, result *router.MatchResult, cb *circuitbreaker.CircuitBreaker, permit circuitbreaker.Permit) {
	route := result.Route
	clientCtx := r.Context()

	ctx, span := p.tracer.Start(clientCtx, "proxy "+route.ServiceID,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gateway.route", route.ServiceID),
			attribute.String("server.address", route.Target.Host),
			attribute.String("url.path", result.ForwardPath),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, route.Timeout)
	defer cancel()

	done := p.metrics.start(route.ServiceID)
	outcome, label := circuitbreaker.OutcomeIgnored, "cancelled"
	// Deferred so a response aborted mid-stream, which panics out of the
	// reverse proxy, still releases the permit.
	defer func() {
		cb.Record(permit, outcome)
		done(label)
	}()

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			p.rewrite(pr, route, result.ForwardPath)
		},
		Transport:     p.transport,
		FlushInterval: -1,
		ErrorLog:      observability.StdLog(p.logger),
		ModifyResponse: func(resp *http.Response) error {
			span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
			if util.IsServerStatus(resp.StatusCode) {
				return util.NewBackendStatusError(route.Backend, resp.StatusCode)
			}
			outcome = circuitbreaker.OutcomeSuccess
			label = "success"
			// The headers are in but the call only succeeds once the body
			// has been fully relayed.
			resp.Body = &watchedBody{ReadCloser: resp.Body, onError: func(err error) {
				if clientCtx.Err() != nil {
					outcome, label = circuitbreaker.OutcomeIgnored, "cancelled"
					return
				}
				reason := fallbackReason(ctx, err)
				outcome, label = circuitbreaker.OutcomeFailure, reason
				span.RecordError(err)
				span.SetStatus(codes.Error, reason)
				p.logger.WithContext(clientCtx).Warn("backend response body failed",
					observability.String("route", route.ServiceID),
					observability.String("backend", route.Backend),
					observability.String("reason", reason),
					observability.Error(err),
				)
			}}
			return nil
		},
		ErrorHandler: func(rw http.ResponseWriter, req *http.Request, err error) {
			if clientCtx.Err() != nil {
				outcome = circuitbreaker.OutcomeIgnored
				label = "cancelled"
				p.logger.WithContext(clientCtx).Debug("client abandoned backend call",
					observability.String("route", route.ServiceID),
					observability.Error(err),
				)
				return
			}

			var be *util.BackendError
			if !errors.As(err, &be) {
				err = util.NewBackendError(route.Backend, err)
			}
			reason := fallbackReason(req.Context(), err)
			outcome = circuitbreaker.OutcomeFailure
			label = reason
			span.RecordError(err)
			span.SetStatus(codes.Error, reason)

			p.logger.WithContext(clientCtx).Warn("backend call failed",
				observability.String("route", route.ServiceID),
				observability.String("backend", route.Backend),
				observability.String("reason", reason),
				observability.Error(err),
			)
			p.serveFallback(rw, req, route, reason)
		},
	}

	rp.ServeHTTP(w, r.WithContext(ctx))
}

// rewrite builds the outbound request: the route prefix is replaced by the
// target base path while the query and the path encoding are kept.
func (p *Proxy) rewrite(pr *httputil.ProxyRequest, route *router.Route, forwardPath string) {
	pr.Out.URL.Path = forwardPath
	pr.Out.URL.RawPath = forwardRawPath(pr.In.URL, route.Prefix, forwardPath)
	pr.SetURL(route.Target)

	for _, h := range hopHeaders {
		pr.Out.Header.Del(h)
	}

	if prior, ok := pr.In.Header[util.HeaderForwardedFor]; ok {
		pr.Out.Header[util.HeaderForwardedFor] = append([]string(nil), prior...)
	}
	pr.SetXForwarded()

	if id := observability.RequestIDFromContext(pr.In.Context()); id != "" {
		pr.Out.Header.Set(util.HeaderRequestID, id)
	}
	observability.InjectTraceContext(pr.Out.Context(), pr.Out)
}

// forwardRawPath strips prefix from the escaped form of in so encoded
// characters such as %2F reach the backend unchanged. It returns "" when the
// default encoding of forwardPath is already exact.
func forwardRawPath(in *url.URL, prefix, forwardPath string) string {
	escaped := in.EscapedPath()
	if escaped == in.Path || !util.PathHasPrefix(escaped, prefix) {
		return ""
	}
	raw := router.StripPrefix(escaped, prefix)
	if unescaped, err := url.PathUnescape(raw); err != nil || unescaped != forwardPath {
		return ""
	}
	return raw
}

// watchedBody reports the first read error other than io.EOF.
type watchedBody struct {
	io.ReadCloser
	onError func(error)
	failed  bool
}

func (b *watchedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && !b.failed {
		b.failed = true
		b.onError(err)
	}
	return n, err
}

func (p *Proxy) serveFallback(w http.ResponseWriter, r *http.Request, route *router.Route, reason string) {
	util.MarkFallback(r.Context(), reason)
	id := fallback.IDFromPath(route.FallbackPath)
	if id == "" {
		id = route.ServiceID
	}
	p.fallback.Write(w, id, reason)
}

func (p *Proxy) handleRouteNotFound(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.Debug("route not found",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
	)
	if werr := writeRouteNotFound(w, r, err, p.now()); werr != nil {
		p.logger.Warn("failed to write response", observability.Error(werr))
	}
}
