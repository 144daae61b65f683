// Package middleware provides the HTTP stages that wrap the gateway
// pipeline.
//
// Every stage has the signature func(http.Handler) http.Handler and Chain
// composes them outermost first:
//
//	handler := middleware.Chain(engine,
//	    middleware.Recovery(logger, metrics),
//	    middleware.RequestID(),
//	    middleware.AccessLog(logger),
//	    middleware.RejectDotSegments(logger),
//	    middleware.CORS(corsConfig),
//	    authenticate,
//	    middleware.AccessLogEntry(logger),
//	)
//
// AccessLog creates the per-request util.RequestInfo that inner stages
// fill in, so it must wrap every stage that records a route, a user or a
// fallback. AccessLogEntry goes right after authentication so the entry
// line names the caller.
package middleware

import "net/http"

// Middleware is a single pipeline stage.
type Middleware func(http.Handler) http.Handler

// Chain wraps h with mws. The first middleware is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
