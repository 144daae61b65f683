// Package proxy forwards matched requests to their backend service.
//
// For every request the proxy:
//
//   - matches the path against the route table (404 JSON when nothing matches)
//   - asks the route's circuit breaker for a permit
//   - strips the route prefix and forwards method, headers, query and body
//     to the backend under the route timeout
//   - records the outcome with the breaker
//
// A rejected permit, a transport error, a timeout or a 5xx response is
// answered by the fallback responder with HTTP 200. A request abandoned by
// the client is not recorded against the backend.
//
// # Usage
//
//	p := proxy.New(routes, breakers, responder,
//	    proxy.WithLogger(logger),
//	    proxy.WithMetrics(proxy.NewMetrics("apigw", registry)),
//	)
//	engine.NoRoute(gin.WrapH(p))
package proxy
