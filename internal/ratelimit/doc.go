// Package ratelimit throttles requests per user with a token bucket.
//
// The bucket normally lives in Redis so every gateway instance shares it.
// Redis calls run behind a circuit breaker; while Redis is failing,
// decisions are taken by a local in-memory bucket instead. Requests are
// keyed by the authenticated X-User-ID header, or "anonymous" when the
// request carries no identity.
package ratelimit
