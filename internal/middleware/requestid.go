package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/chordmind/apigw/internal/observability"
	"github.com/chordmind/apigw/internal/util"
)

// maxRequestIDLength bounds an incoming request id; longer values are
// replaced.
const maxRequestIDLength = 128

// RequestID returns a middleware that assigns each request an id. An
// incoming X-Request-ID is kept when it is short and printable.
func RequestID() Middleware {
	return RequestIDWithGenerator(func() string { return uuid.New().String() })
}

// RequestIDWithGenerator returns a middleware that uses a custom ID generator.
func RequestIDWithGenerator(generator func() string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(util.HeaderRequestID)
			if !validRequestID(requestID) {
				requestID = generator()
				r.Header.Set(util.HeaderRequestID, requestID)
			}

			r = r.WithContext(observability.ContextWithRequestID(r.Context(), requestID))
			w.Header().Set(util.HeaderRequestID, requestID)

			next.ServeHTTP(w, r)
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
