// Package gateway assembles the chordmind API gateway.
//
// It builds the route table, breaker registry, fallback responder,
// reverse proxy, health aggregator and rate limiter from a
// config.GatewayConfig, wraps them in the middleware chain and serves
// them on a single HTTP listener.
//
// The request path through the chain (outermost first):
//
//	Recovery -> RequestID -> AccessLog -> Tracing -> Metrics ->
//	RejectDotSegments -> CORS -> Auth -> AccessLogEntry -> RateLimit ->
//	gin engine
//
// Paths with "." or ".." segments are refused with 400 before auth, so the
// public path check, the router and the backend never disagree on a path.
//
// The gin engine serves the gateway's own endpoints (/health,
// /fallback/:service, /actuator/*, /api-docs) and hands every other path
// to the proxy.
//
// # Usage
//
//	gw, err := gateway.New(cfg, gateway.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := gw.Start(ctx); err != nil {
//	    return err
//	}
//	defer gw.Stop(ctx)
package gateway
