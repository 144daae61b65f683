package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/chordmind/apigw/internal/observability"
)

// Verifier verifies bearer tokens and extracts their claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Config configures an HMACVerifier.
type Config struct {
	Secret     string
	Algorithms []string
	ClockSkew  time.Duration
}

// HMACVerifier verifies HS256/HS384/HS512 tokens against a shared secret.
type HMACVerifier struct {
	secret     atomic.Pointer[[]byte]
	algorithms map[string]jwa.SignatureAlgorithm
	clockSkew  time.Duration
	clock      func() time.Time
	userIDs    []ClaimExtractor
	emails     []ClaimExtractor
	logger     observability.Logger
	metrics    *Metrics
}

// VerifierOption is a functional option for the verifier.
type VerifierOption func(*HMACVerifier)

// WithVerifierLogger sets the logger for the verifier.
func WithVerifierLogger(logger observability.Logger) VerifierOption {
	return func(v *HMACVerifier) {
		v.logger = logger
	}
}

// WithVerifierMetrics sets the metrics for the verifier.
func WithVerifierMetrics(metrics *Metrics) VerifierOption {
	return func(v *HMACVerifier) {
		v.metrics = metrics
	}
}

// WithClock overrides the time source used for exp and nbf checks.
func WithClock(clock func() time.Time) VerifierOption {
	return func(v *HMACVerifier) {
		v.clock = clock
	}
}

// WithClaimExtractors replaces the user id and email extractor chains.
func WithClaimExtractors(userIDs, emails []ClaimExtractor) VerifierOption {
	return func(v *HMACVerifier) {
		v.userIDs = userIDs
		v.emails = emails
	}
}

var hmacAlgorithms = map[string]jwa.SignatureAlgorithm{
	AlgHS256: jwa.HS256,
	AlgHS384: jwa.HS384,
	AlgHS512: jwa.HS512,
}

// NewVerifier creates an HMAC verifier. An empty algorithm list allows all
// three HMAC variants.
func NewVerifier(cfg Config, opts ...VerifierOption) (*HMACVerifier, error) {
	v := &HMACVerifier{
		algorithms: make(map[string]jwa.SignatureAlgorithm, len(hmacAlgorithms)),
		clockSkew:  cfg.ClockSkew,
		clock:      time.Now,
		userIDs:    DefaultUserIDExtractors,
		emails:     DefaultEmailExtractors,
		logger:     observability.NopLogger(),
	}

	names := cfg.Algorithms
	if len(names) == 0 {
		names = []string{AlgHS256, AlgHS384, AlgHS512}
	}
	for _, name := range names {
		alg, ok := hmacAlgorithms[strings.ToUpper(name)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, name)
		}
		v.algorithms[alg.String()] = alg
	}

	if err := v.SetSecret(cfg.Secret); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// SetSecret replaces the signing secret. In-flight verifications finish with
// the secret they started with.
func (v *HMACVerifier) SetSecret(secret string) error {
	if secret == "" {
		return ErrNoSecret
	}
	b := []byte(secret)
	v.secret.Store(&b)
	return nil
}

// Verify checks the token signature, algorithm and time-based claims, then
// extracts the identity. A token that verifies but carries no identity
// returns claims without error; callers decide whether that is acceptable.
func (v *HMACVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	start := time.Now()
	claims, alg, err := v.verify(ctx, token)
	status := "success"
	if err != nil {
		status = "error"
	}
	v.metrics.RecordValidation(status, alg, time.Since(start))
	if err != nil {
		v.logger.Debug("token rejected", observability.String("reason", Reason(err)))
	}
	return claims, err
}

func (v *HMACVerifier) verify(ctx context.Context, token string) (*Claims, string, error) {
	if token == "" {
		return nil, "none", ErrEmptyToken
	}

	msg, err := jws.Parse([]byte(token))
	if err != nil || len(msg.Signatures()) != 1 {
		return nil, "none", NewValidationError("failed to parse token", errors.Join(ErrTokenMalformed, err))
	}

	algName := msg.Signatures()[0].ProtectedHeaders().Algorithm().String()
	alg, ok := v.algorithms[algName]
	if !ok {
		return nil, algName, NewValidationError(fmt.Sprintf("algorithm %s is not allowed", algName), ErrUnsupportedAlgorithm)
	}

	secret := v.secret.Load()
	if secret == nil {
		return nil, algName, ErrNoSecret
	}

	payload, err := jws.Verify([]byte(token), jws.WithKey(alg, *secret))
	if err != nil {
		return nil, algName, NewValidationError("signature verification failed", ErrTokenInvalidSignature)
	}

	parsed, err := jwxjwt.Parse(payload,
		jwxjwt.WithVerify(false),
		jwxjwt.WithValidate(true),
		jwxjwt.WithAcceptableSkew(v.clockSkew),
		jwxjwt.WithClock(jwxjwt.ClockFunc(v.clock)),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwxjwt.ErrTokenExpired()):
		return nil, algName, NewValidationError("exp check failed", ErrTokenExpired)
	case errors.Is(err, jwxjwt.ErrTokenNotYetValid()):
		return nil, algName, NewValidationError("nbf check failed", ErrTokenNotYetValid)
	case jwxjwt.IsValidationError(err):
		return nil, algName, NewValidationError(err.Error(), ErrTokenInvalidClaim)
	default:
		return nil, algName, NewValidationError("failed to parse claims", errors.Join(ErrTokenMalformed, err))
	}

	raw, err := parsed.AsMap(ctx)
	if err != nil {
		return nil, algName, NewValidationError("failed to read claims", errors.Join(ErrTokenMalformed, err))
	}
	for k, val := range raw {
		if n, ok := val.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				raw[k] = f
			}
		}
	}

	return &Claims{
		UserID:    firstOf(raw, v.userIDs),
		Email:     firstOf(raw, v.emails),
		Subject:   parsed.Subject(),
		Issuer:    parsed.Issuer(),
		ExpiresAt: parsed.Expiration(),
		Raw:       raw,
	}, algName, nil
}
