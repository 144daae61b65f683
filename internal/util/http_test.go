package util

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	err := WriteJSON(rec, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Unauthorized", body["error"])
}

func TestTimestamp(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 12, 30, 15, 250_000_000, time.UTC)
	assert.Equal(t, "2026-03-01T12:30:15.250Z", Timestamp(ts))
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{name: "forwarded for first hop", headers: map[string]string{HeaderForwardedFor: "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.2:5555", expected: "203.0.113.7"},
		{name: "real ip", headers: map[string]string{HeaderRealIP: "198.51.100.4"}, remote: "10.0.0.2:5555", expected: "198.51.100.4"},
		{name: "socket peer", remote: "192.0.2.10:40000", expected: "192.0.2.10"},
		{name: "peer without port", remote: "192.0.2.11", expected: "192.0.2.11"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, ClientIP(req))
		})
	}
}

func TestStatusCapturingResponseWriter(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	w := NewStatusCapturingResponseWriter(rec)
	assert.Same(t, w, NewStatusCapturingResponseWriter(w))

	w.WriteHeader(http.StatusBadGateway)
	w.WriteHeader(http.StatusOK)
	n, err := w.Write([]byte("oops"))
	require.NoError(t, err)

	assert.Equal(t, 4, n)
	assert.Equal(t, http.StatusBadGateway, w.StatusCode)
	assert.Equal(t, int64(4), w.BytesWritten)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Same(t, rec, w.Unwrap())

	_, _, err = w.Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
}

func TestRequestInfo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Nil(t, RequestInfoFromContext(ctx))

	SetRoute(ctx, "ignored")

	ctx, info := ContextWithRequestInfo(ctx)
	again, same := ContextWithRequestInfo(ctx)
	assert.Same(t, info, same)
	assert.Equal(t, ctx, again)

	SetRoute(ctx, "practice")
	SetUserID(ctx, "user-1")
	MarkFallback(ctx, "circuit_open")

	assert.Equal(t, "practice", info.Route)
	assert.Equal(t, "user-1", info.UserID)
	assert.True(t, info.Fallback)
	assert.Equal(t, "circuit_open", info.FallbackReason)
}
