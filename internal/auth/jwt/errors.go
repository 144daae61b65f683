package jwt

import (
	"errors"
	"fmt"
)

// Supported HMAC algorithms.
const (
	AlgHS256 = "HS256"
	AlgHS384 = "HS384"
	AlgHS512 = "HS512"
)

// Sentinel errors for token verification. Their messages are the reasons
// reported to clients.
var (
	ErrEmptyToken            = errors.New("token is empty")
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenExpired          = errors.New("token has expired")
	ErrTokenNotYetValid      = errors.New("token is not yet valid")
	ErrTokenInvalidSignature = errors.New("token signature is invalid")
	ErrTokenInvalidClaim     = errors.New("claim value is invalid")
	ErrUnsupportedAlgorithm  = errors.New("signing algorithm is not supported")
	ErrNoSecret              = errors.New("no signing secret configured")
)

// ValidationError represents a token verification failure with details.
type ValidationError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("jwt validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("jwt validation error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok || errors.Is(e.Cause, target)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}

// Reason returns the short client-facing reason for a verification error.
func Reason(err error) string {
	for _, sentinel := range []error{
		ErrEmptyToken,
		ErrTokenMalformed,
		ErrTokenExpired,
		ErrTokenNotYetValid,
		ErrTokenInvalidSignature,
		ErrTokenInvalidClaim,
		ErrUnsupportedAlgorithm,
		ErrNoSecret,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
