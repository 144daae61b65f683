package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/chordmind/apigw/internal/util"
)

// Fallback reasons exposed in the X-Gateway-Fallback header and metrics.
const (
	ReasonCircuitOpen  = "circuit_open"
	ReasonTimeout      = "timeout"
	ReasonUnavailable  = "backend_unavailable"
	ReasonServerError  = "backend_error"
	ReasonBreakerSetup = "breaker_unavailable"
)

// ErrorResponse is the body of a route-not-found response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

func writeRouteNotFound(w http.ResponseWriter, r *http.Request, err error, now time.Time) error {
	return util.WriteJSON(w, http.StatusNotFound, ErrorResponse{
		Error:     "Not Found",
		Message:   err.Error(),
		Timestamp: util.Timestamp(now),
		Path:      r.URL.Path,
	})
}

// fallbackReason maps a failed backend call to a fallback reason. ctx is
// the context the call ran under.
func fallbackReason(ctx context.Context, err error) string {
	var be *util.BackendError
	switch {
	case errors.As(err, &be) && be.StatusCode != 0:
		return ReasonServerError
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonUnavailable
	}
}
