package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/chordmind/apigw/internal/auth/jwt"
	"github.com/chordmind/apigw/internal/observability"
	"github.com/chordmind/apigw/internal/util"
)

// Response messages.
const (
	MessageMissingHeader = "Missing or invalid authorization header"
	MessageInvalidToken  = "Invalid token: "
	MessageMissingClaims = "Token does not carry a user identity"
)

// ErrorResponse is the 401 body.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

// Authenticator checks bearer tokens for non-public paths.
type Authenticator struct {
	verifier jwt.Verifier
	public   *PublicPaths
	logger   observability.Logger
	metrics  *Metrics
	now      func() time.Time
}

// Option is a functional option for the authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(a *Authenticator) {
		a.metrics = metrics
	}
}

// WithNow overrides the clock used for response timestamps.
func WithNow(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(verifier jwt.Verifier, publicPaths []string, opts ...Option) (*Authenticator, error) {
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	a := &Authenticator{
		verifier: verifier,
		public:   NewPublicPaths(publicPaths),
		logger:   observability.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// IsPublic reports whether path bypasses authentication.
func (a *Authenticator) IsPublic(path string) bool {
	return a.public.Match(path)
}

// Authenticate verifies the bearer token of r. Failures are returned as
// *util.UnauthorizedError.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	token, err := jwt.BearerToken(r)
	if err != nil {
		return nil, util.NewUnauthorizedError(util.ReasonMissingHeader, MessageMissingHeader, err)
	}

	claims, err := a.verifier.Verify(r.Context(), token)
	if err != nil {
		return nil, util.NewUnauthorizedError(util.ReasonInvalidToken, MessageInvalidToken+jwt.Reason(err), err)
	}

	if !claims.HasIdentity() {
		return nil, util.NewUnauthorizedError(util.ReasonMissingClaims, MessageMissingClaims, nil)
	}

	return &Identity{UserID: claims.UserID, Email: claims.Email, Claims: claims}, nil
}

// HTTPMiddleware returns the authentication middleware.
func (a *Authenticator) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(util.HeaderUserID)
			r.Header.Del(util.HeaderUserEmail)

			if a.IsPublic(r.URL.Path) {
				w.Header().Set(util.HeaderAuthBypass, "true")
				a.metrics.record("bypass", "public_path")
				next.ServeHTTP(w, r)
				return
			}

			identity, err := a.Authenticate(r)
			if err != nil {
				a.handleAuthError(w, r, err)
				return
			}

			if identity.UserID != "" {
				r.Header.Set(util.HeaderUserID, identity.UserID)
			}
			if identity.Email != "" {
				r.Header.Set(util.HeaderUserEmail, identity.Email)
			}

			ctx := ContextWithIdentity(r.Context(), identity)
			ctx = observability.ContextWithUserID(ctx, identity.UserID)
			util.SetUserID(ctx, identity.UserID)

			a.metrics.record("allowed", "valid_token")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var unauthorized *util.UnauthorizedError
	if !errors.As(err, &unauthorized) {
		unauthorized = util.NewUnauthorizedError(util.ReasonInvalidToken, MessageInvalidToken+err.Error(), err)
	}
	reason := unauthorized.Reason.String()

	a.logger.WithContext(r.Context()).Warn("authentication failed",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.String("reason", reason),
		observability.Error(err),
	)
	a.metrics.record("denied", reason)

	w.Header().Set(util.HeaderAuthError, reason)
	w.Header().Set("WWW-Authenticate", "Bearer")
	_ = util.WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:     "Unauthorized",
		Message:   unauthorized.Message,
		Timestamp: util.Timestamp(a.now()),
		Path:      r.URL.Path,
	})
}
