// Package fallback serves the static degraded responses returned in place
// of a backend that is failing or whose circuit breaker is open.
//
// Every fallback is an HTTP 200 with a JSON body naming the unavailable
// service:
//
//	{"message":"Practice service is temporarily unavailable",
//	 "timestamp":"2024-05-01T12:00:00.000Z","service":"practice-service"}
//
// The responder has no side effects; it is reachable directly under
// /fallback/<id> and is invoked in-process by the proxy.
package fallback
