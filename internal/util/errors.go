// Package util provides shared error types, request context helpers and
// HTTP response helpers for the gateway.
//
// # Error Conventions
//
//   - Sentinel errors (errors.New) for stable conditions checked with
//     errors.Is(). Example: ErrRouteNotFound.
//   - Structured error types for errors that carry additional fields
//     (RouteNotFoundError, UnauthorizedError, BackendError, ConfigError).
//     Each type implements Error(), Unwrap() when it wraps, and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping.
package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the gateway error taxonomy.
var (
	ErrRouteNotFound   = errors.New("route not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrBreakerOpen     = errors.New("circuit breaker open")
	ErrBackend         = errors.New("backend error")
	ErrHealthCheck     = errors.New("health check failed")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrClientCancelled = errors.New("client cancelled request")
)

// UnauthorizedReason classifies why a request failed authentication.
type UnauthorizedReason int

const (
	// ReasonMissingHeader means no usable Authorization: Bearer header was sent.
	ReasonMissingHeader UnauthorizedReason = iota
	// ReasonInvalidToken means the token failed parsing, signature or expiry checks.
	ReasonInvalidToken
	// ReasonMissingClaims means the token verified but carried no identity.
	ReasonMissingClaims
)

// String returns the value sent in the X-Auth-Error header.
func (r UnauthorizedReason) String() string {
	switch r {
	case ReasonMissingHeader:
		return "MissingOrInvalidAuthHeader"
	case ReasonInvalidToken:
		return "InvalidToken"
	case ReasonMissingClaims:
		return "MissingClaims"
	default:
		return "Unknown"
	}
}

// UnauthorizedError is returned when a request cannot be authenticated.
type UnauthorizedError struct {
	Reason  UnauthorizedReason
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *UnauthorizedError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *UnauthorizedError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *UnauthorizedError) Is(target error) bool {
	if target == ErrUnauthorized {
		return true
	}
	t, ok := target.(*UnauthorizedError)
	return ok && t.Reason == e.Reason
}

// NewUnauthorizedError creates a new UnauthorizedError.
func NewUnauthorizedError(reason UnauthorizedReason, message string, cause error) *UnauthorizedError {
	return &UnauthorizedError{Reason: reason, Message: message, Cause: cause}
}

// RouteNotFoundError represents a path that matches no configured prefix.
type RouteNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("no route found for path %q", e.Path)
}

// Is checks if the error matches the target.
func (e *RouteNotFoundError) Is(target error) bool {
	if target == ErrRouteNotFound {
		return true
	}
	_, ok := target.(*RouteNotFoundError)
	return ok
}

// NewRouteNotFoundError creates a new RouteNotFoundError.
func NewRouteNotFoundError(path string) *RouteNotFoundError {
	return &RouteNotFoundError{Path: path}
}

// BackendError represents a failed call to a backend service: a transport
// error, a timeout or a 5xx response.
type BackendError struct {
	Service    string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("backend %s error: %v", e.Service, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("backend %s error: status %d", e.Service, e.StatusCode)
	default:
		return fmt.Sprintf("backend %s error", e.Service)
	}
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *BackendError) Is(target error) bool {
	if target == ErrBackend {
		return true
	}
	_, ok := target.(*BackendError)
	return ok || errors.Is(e.Cause, target)
}

// NewBackendError creates a BackendError for a transport level failure.
func NewBackendError(service string, cause error) *BackendError {
	return &BackendError{Service: service, Cause: cause}
}

// NewBackendStatusError creates a BackendError for a 5xx response.
func NewBackendStatusError(service string, statusCode int) *BackendError {
	return &BackendError{Service: service, StatusCode: statusCode}
}

// IsServerStatus reports whether the status code counts as a backend failure.
func IsServerStatus(code int) bool {
	return code >= http.StatusInternalServerError
}

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// HealthCheckError records why a backend health probe failed.
type HealthCheckError struct {
	Service    string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *HealthCheckError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("health check for %s failed: %v", e.Service, e.Cause)
	}
	return fmt.Sprintf("health check for %s failed: status %d", e.Service, e.StatusCode)
}

// Unwrap returns the underlying error.
func (e *HealthCheckError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *HealthCheckError) Is(target error) bool {
	if target == ErrHealthCheck {
		return true
	}
	_, ok := target.(*HealthCheckError)
	return ok || errors.Is(e.Cause, target)
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
