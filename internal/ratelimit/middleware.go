package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/chordmind/apigw/internal/observability"
	"github.com/chordmind/apigw/internal/util"
)

// Response headers.
const (
	HeaderRemaining     = "X-RateLimit-Remaining"
	HeaderReplenishRate = "X-RateLimit-Replenish-Rate"
	HeaderBurstCapacity = "X-RateLimit-Burst-Capacity"
	HeaderRetryAfter    = "Retry-After"
)

// ErrorResponse is the 429 body.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

// KeyFor returns the bucket key of r: the X-User-ID header set by
// authentication, or AnonymousKey.
func KeyFor(r *http.Request) string {
	if user := r.Header.Get(util.HeaderUserID); user != "" {
		return user
	}
	return AnonymousKey
}

// Middleware rejects requests over the limit with 429. Limiter errors let
// the request through.
func Middleware(limiter Limiter, opts ...Option) func(http.Handler) http.Handler {
	o := applyOptions(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped(r.URL.Path, o.skipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			key := KeyFor(r)
			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				o.logger.WithContext(r.Context()).Warn("rate limit check failed, allowing request",
					observability.String("key", key),
					observability.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			if res.Burst > 0 {
				h := w.Header()
				h.Set(HeaderRemaining, strconv.Itoa(res.Remaining))
				h.Set(HeaderReplenishRate, strconv.Itoa(res.Rate))
				h.Set(HeaderBurstCapacity, strconv.Itoa(res.Burst))
			}
			if res.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			o.logger.WithContext(r.Context()).Warn("rate limit exceeded",
				observability.String("key", key),
				observability.String("path", r.URL.Path),
				observability.String("client_ip", util.ClientIP(r)),
			)
			w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(res.RetryAfter)))
			_ = util.WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:     "Too Many Requests",
				Message:   "Rate limit exceeded",
				Timestamp: util.Timestamp(o.now()),
				Path:      r.URL.Path,
			})
		})
	}
}

func skipped(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if util.PathHasPrefix(path, p) {
			return true
		}
	}
	return false
}

func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
