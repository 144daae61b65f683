package util

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		field          string
		message        string
		cause          error
		expectedString string
	}{
		{
			name:           "with field",
			field:          "routes[0].pathPrefix",
			message:        "prefix overlaps /api/users",
			expectedString: "config error at routes[0].pathPrefix: prefix overlaps /api/users",
		},
		{
			name:           "without field",
			message:        "no routes configured",
			expectedString: "config error: no routes configured",
		},
		{
			name:           "with cause",
			field:          "auth.jwtSecret",
			message:        "secret unavailable",
			cause:          errors.New("vault sealed"),
			expectedString: "config error at auth.jwtSecret: secret unavailable",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var err *ConfigError
			if tt.cause != nil {
				err = NewConfigErrorWithCause(tt.field, tt.message, tt.cause)
			} else {
				err = NewConfigError(tt.field, tt.message)
			}

			assert.Equal(t, tt.expectedString, err.Error())
			assert.Equal(t, tt.cause, err.Unwrap())
			assert.ErrorIs(t, err, ErrConfigInvalid)
		})
	}
}

func TestUnauthorizedError(t *testing.T) {
	t.Parallel()

	cause := errors.New(`"exp" not satisfied`)
	err := NewUnauthorizedError(ReasonInvalidToken, "Invalid token: expired", cause)

	assert.Equal(t, "Invalid token: expired", err.Error())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, &UnauthorizedError{Reason: ReasonInvalidToken})
	assert.NotErrorIs(t, err, &UnauthorizedError{Reason: ReasonMissingHeader})

	var target *UnauthorizedError
	require.ErrorAs(t, fmt.Errorf("auth: %w", err), &target)
	assert.Equal(t, ReasonInvalidToken, target.Reason)
}

func TestUnauthorizedReason_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "MissingOrInvalidAuthHeader", ReasonMissingHeader.String())
	assert.Equal(t, "InvalidToken", ReasonInvalidToken.String())
	assert.Equal(t, "MissingClaims", ReasonMissingClaims.String())
	assert.Equal(t, "Unknown", UnauthorizedReason(42).String())
}

func TestRouteNotFoundError(t *testing.T) {
	t.Parallel()

	err := NewRouteNotFoundError("/api/unknown")
	assert.Equal(t, `no route found for path "/api/unknown"`, err.Error())
	assert.ErrorIs(t, err, ErrRouteNotFound)
	assert.NotErrorIs(t, err, ErrBackend)
}

func TestBackendError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *BackendError
		expected string
	}{
		{
			name:     "transport failure",
			err:      NewBackendError("practice", context.DeadlineExceeded),
			expected: "backend practice error: context deadline exceeded",
		},
		{
			name:     "server status",
			err:      NewBackendStatusError("games", 503),
			expected: "backend games error: status 503",
		},
		{
			name:     "bare",
			err:      &BackendError{Service: "users"},
			expected: "backend users error",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.err.Error())
			assert.ErrorIs(t, tt.err, ErrBackend)
		})
	}

	assert.ErrorIs(t, NewBackendError("practice", context.DeadlineExceeded), context.DeadlineExceeded)
}

func TestHealthCheckError(t *testing.T) {
	t.Parallel()

	err := &HealthCheckError{Service: "user-service", StatusCode: 503}
	assert.Equal(t, "health check for user-service failed: status 503", err.Error())
	assert.ErrorIs(t, err, ErrHealthCheck)

	wrapped := &HealthCheckError{Service: "game-service", Cause: context.Canceled}
	assert.ErrorIs(t, wrapped, context.Canceled)
}

func TestIsServerStatus(t *testing.T) {
	t.Parallel()

	assert.False(t, IsServerStatus(200))
	assert.False(t, IsServerStatus(404))
	assert.True(t, IsServerStatus(500))
	assert.True(t, IsServerStatus(504))
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, WrapError(nil, "ignored"))
	err := WrapError(ErrRateLimited, "limiter")
	assert.EqualError(t, err, "limiter: rate limit exceeded")
	assert.ErrorIs(t, err, ErrRateLimited)
}
