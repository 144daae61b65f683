package middleware

import (
	"net/http"
	"time"

	"github.com/chordmind/apigw/internal/observability"
	"github.com/chordmind/apigw/internal/util"
)

// AnonymousUser is logged for requests without an authenticated user.
const AnonymousUser = "Anonymous"

// AccessLog wraps the pipeline and logs every request twice: an entry line
// with the caller details and an exit line with the status and duration.
// The exit line is written on every path, including a panic further down
// the chain.
//
// The entry line is normally written by AccessLogEntry placed after
// authentication so it carries the resolved user. When a request never
// reaches that stage (auth failure, rejected path, CORS preflight) the entry
// line is written here, just before the exit line, with the user as
// "Anonymous".
//
// The user is the identity established by authentication, never the
// client-supplied X-User-ID header.
func AccessLog(logger observability.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, info := util.ContextWithRequestInfo(r.Context())
			ctx = util.ContextWithStartTime(ctx, start)
			r = r.WithContext(ctx)
			log := logger.WithContext(ctx)

			rw := util.NewStatusCapturingResponseWriter(w)
			defer func() {
				status := rw.StatusCode
				p := recover()
				if p != nil && !rw.HeaderWritten {
					status = http.StatusInternalServerError
				}
				logEntry(log, r, info, start)
				safeLog(func() {
					fields := []observability.Field{
						observability.String("method", r.Method),
						observability.String("path", r.URL.Path),
						observability.Int("status", status),
						observability.Duration("duration", time.Since(start)),
						observability.Int64("bytes", rw.BytesWritten),
						observability.String("user_id", userOrAnonymous(info.UserID)),
					}
					if info.Route != "" {
						fields = append(fields, observability.String("route", info.Route))
					}
					if info.Fallback {
						fields = append(fields, observability.String("fallback", info.FallbackReason))
					}
					log.Info("request completed", fields...)
				})
				if p != nil {
					panic(p)
				}
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// AccessLogEntry writes the entry line of AccessLog. It belongs right after
// the authentication stage; without an enclosing AccessLog it does nothing.
func AccessLogEntry(logger observability.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if info := util.RequestInfoFromContext(r.Context()); info != nil {
				start := util.StartTimeFromContext(r.Context())
				if start.IsZero() {
					start = time.Now()
				}
				logEntry(logger.WithContext(r.Context()), r, info, start)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func logEntry(log observability.Logger, r *http.Request, info *util.RequestInfo, start time.Time) {
	if info.EntryLogged {
		return
	}
	info.EntryLogged = true
	safeLog(func() {
		log.Info("request started",
			observability.String("timestamp", util.Timestamp(start)),
			observability.String("method", r.Method),
			observability.String("path", r.URL.Path),
			observability.String("user_agent", userAgent(r)),
			observability.String("client_ip", util.ClientIP(r)),
			observability.String("user_id", userOrAnonymous(info.UserID)),
		)
	})
}

// safeLog runs fn and swallows any panic raised by the log sink.
func safeLog(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

func userOrAnonymous(id string) string {
	if id == "" {
		return AnonymousUser
	}
	return id
}

func userAgent(r *http.Request) string {
	if ua := r.UserAgent(); ua != "" {
		return ua
	}
	return "Unknown"
}
