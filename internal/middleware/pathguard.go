package middleware

import (
	"net/http"
	"time"

	"github.com/chordmind/apigw/internal/observability"
	"github.com/chordmind/apigw/internal/util"
)

// MessageDotSegments is the 400 message for paths with dot segments.
const MessageDotSegments = "Path must not contain '.' or '..' segments"

// RejectDotSegments answers 400 for request paths carrying "." or ".."
// segments, percent-encoded ones included. Authentication, routing and the
// backend therefore all see the same path.
func RejectDotSegments(logger observability.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !util.HasDotSegment(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			logger.WithContext(r.Context()).Warn("rejected path with dot segments",
				observability.String("path", r.URL.Path),
				observability.String("method", r.Method),
				observability.String("client_ip", util.ClientIP(r)),
			)
			_ = util.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error":     "Bad Request",
				"message":   MessageDotSegments,
				"timestamp": util.Timestamp(time.Now()),
				"path":      r.URL.Path,
			})
		})
	}
}
