package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/chordmind/apigw/internal/observability"
	"github.com/chordmind/apigw/internal/util"
)

// Recovery recovers from panics, logs them with a stack trace and answers
// 500 when nothing has been written yet. http.ErrAbortHandler is passed
// through untouched so the server can abort the connection.
func Recovery(logger observability.Logger, metrics *Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := util.NewStatusCapturingResponseWriter(w)
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}

				metrics.recordPanic()
				logger.WithContext(r.Context()).Error("panic recovered",
					observability.String("path", r.URL.Path),
					observability.String("method", r.Method),
					observability.Any("error", p),
					observability.String("stack", string(debug.Stack())),
				)

				if rw.HeaderWritten {
					return
				}
				_ = util.WriteJSON(rw, http.StatusInternalServerError, map[string]string{
					"error":     "Internal Server Error",
					"message":   "internal server error",
					"timestamp": util.Timestamp(time.Now()),
					"path":      r.URL.Path,
				})
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
