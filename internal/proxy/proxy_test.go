package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chordmind/apigw/internal/circuitbreaker"
	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/fallback"
	"github.com/chordmind/apigw/internal/observability"
	"github.com/chordmind/apigw/internal/router"
	"github.com/chordmind/apigw/internal/util"
)

type received struct {
	method  string
	path    string
	rawPath string
	query   string
	header  http.Header
	body    string
}

type testBackend struct {
	*httptest.Server
	hits atomic.Int32
	last atomic.Pointer[received]
}

func newTestBackend(t *testing.T, handler http.HandlerFunc) *testBackend {
	t.Helper()
	b := &testBackend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		b.last.Store(&received{
			method:  r.Method,
			path:    r.URL.Path,
			rawPath: r.URL.EscapedPath(),
			query:   r.URL.RawQuery,
			header:  r.Header.Clone(),
			body:    string(body),
		})
		handler(w, r)
	}))
	t.Cleanup(b.Close)
	return b
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true}`)
}

type fixture struct {
	proxy    *Proxy
	breakers *circuitbreaker.Registry
	metrics  *Metrics
}

func newFixture(t *testing.T, target string, timeout time.Duration, opts ...Option) *fixture {
	t.Helper()
	u, err := url.Parse(target)
	require.NoError(t, err)

	rt := router.New()
	require.NoError(t, rt.AddRoute(&router.Route{
		ServiceID:    "practice",
		Backend:      "practice-service",
		Prefix:       "/api/practice",
		Target:       u,
		FallbackPath: "/fallback/practice",
		Timeout:      timeout,
		Breaker:      config.DefaultConfig().CircuitBreaker,
	}))

	responder := fallback.NewFromRoutes(config.DefaultConfig().Routes)
	breakers := circuitbreaker.NewRegistry(nil, nil)
	metrics := NewMetrics("test", prometheus.NewRegistry())

	return &fixture{
		proxy:    New(rt, breakers, responder, append([]Option{WithMetrics(metrics)}, opts...)...),
		breakers: breakers,
		metrics:  metrics,
	}
}

func (f *fixture) serve(req *http.Request) (*httptest.ResponseRecorder, *util.RequestInfo) {
	ctx, info := util.ContextWithRequestInfo(req.Context())
	rec := httptest.NewRecorder()
	f.proxy.ServeHTTP(rec, req.WithContext(ctx))
	return rec, info
}

func (f *fixture) snapshot(t *testing.T) circuitbreaker.Snapshot {
	t.Helper()
	cb, ok := f.breakers.Get("practice")
	require.True(t, ok)
	return cb.Snapshot()
}

func decodeFallback(t *testing.T, rec *httptest.ResponseRecorder) fallback.Response {
	t.Helper()
	var body fallback.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestProxy_ForwardsWithPrefixStripped(t *testing.T) {
	backend := newTestBackend(t, okHandler)
	f := newFixture(t, backend.URL, time.Second)

	req := httptest.NewRequest(http.MethodPost, "/api/practice/sessions/42?limit=5", strings.NewReader(`{"bpm":120}`))
	req.Header.Set(util.HeaderUserID, "u-1")
	req.Header.Set(util.HeaderUserEmail, "ada@example.com")
	req.Header.Set("Content-Type", "application/json")

	rec, info := f.serve(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	got := backend.last.Load()
	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/sessions/42", got.path)
	assert.Equal(t, "limit=5", got.query)
	assert.Equal(t, `{"bpm":120}`, got.body)
	assert.Equal(t, "u-1", got.header.Get(util.HeaderUserID))
	assert.Equal(t, "ada@example.com", got.header.Get(util.HeaderUserEmail))
	assert.NotEmpty(t, got.header.Get(util.HeaderForwardedFor))

	assert.Equal(t, "practice", info.Route)
	assert.False(t, info.Fallback)

	snap := f.snapshot(t)
	assert.Equal(t, 1, snap.BufferedCalls)
	assert.Equal(t, 0, snap.FailedCalls)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.requests.WithLabelValues("practice", "success")))
}

func TestProxy_PrefixOnlyBecomesRoot(t *testing.T) {
	backend := newTestBackend(t, okHandler)
	f := newFixture(t, backend.URL, time.Second)

	rec, _ := f.serve(httptest.NewRequest(http.MethodGet, "/api/practice", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/", backend.last.Load().path)
}

func TestProxy_JoinsTargetBasePath(t *testing.T) {
	backend := newTestBackend(t, okHandler)
	f := newFixture(t, backend.URL+"/v1", time.Second)

	rec, _ := f.serve(httptest.NewRequest(http.MethodGet, "/api/practice/sessions/42", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/v1/sessions/42", backend.last.Load().path)
}

func TestProxy_KeepsPathEncoding(t *testing.T) {
	backend := newTestBackend(t, okHandler)
	f := newFixture(t, backend.URL+"/v1", time.Second)

	rec, _ := f.serve(httptest.NewRequest(http.MethodGet, "/api/practice/a%2Fb/c%20d", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	got := backend.last.Load()
	assert.Equal(t, "/v1/a%2Fb/c%20d", got.rawPath)
	assert.Equal(t, "/v1/a/b/c d", got.path)
}

func TestForwardRawPath(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		forwardPath string
		expected    string
	}{
		{name: "plain path", target: "/api/practice/sessions", forwardPath: "/sessions", expected: ""},
		{name: "encoded slash", target: "/api/practice/a%2Fb", forwardPath: "/a/b", expected: "/a%2Fb"},
		{name: "prefix only", target: "/api/practice", forwardPath: "/", expected: ""},
		{name: "forward path disagrees", target: "/api/practice/a%2Fb", forwardPath: "/other", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, forwardRawPath(u, "/api/practice", tt.forwardPath))
		})
	}
}

func TestProxy_StripsHopByHopHeaders(t *testing.T) {
	backend := newTestBackend(t, okHandler)
	f := newFixture(t, backend.URL, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/api/practice/x", nil)
	req.Header.Set("Connection", "X-Session-Hint")
	req.Header.Set("X-Session-Hint", "drop-me")
	req.Header.Set("Keep-Alive", "timeout=5")
	req.Header.Set("Proxy-Authorization", "Basic Zm9vOmJhcg==")
	req.Header.Set("X-Kept", "yes")

	rec, _ := f.serve(req)
	require.Equal(t, http.StatusOK, rec.Code)

	got := backend.last.Load().header
	assert.Empty(t, got.Get("X-Session-Hint"))
	assert.Empty(t, got.Get("Keep-Alive"))
	assert.Empty(t, got.Get("Proxy-Authorization"))
	assert.Equal(t, "yes", got.Get("X-Kept"))
}

func TestProxy_RouteNotFound(t *testing.T) {
	backend := newTestBackend(t, okHandler)
	f := newFixture(t, backend.URL, time.Second)

	for _, path := range []string{"/api/practicex", "/unknown", "/"} {
		t.Run(path, func(t *testing.T) {
			rec, info := f.serve(httptest.NewRequest(http.MethodGet, path, nil))

			require.Equal(t, http.StatusNotFound, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "Not Found", body.Error)
			assert.Equal(t, path, body.Path)
			assert.Contains(t, body.Message, "no route found")
			assert.Empty(t, info.Route)
		})
	}
	assert.Zero(t, backend.hits.Load())
}

func TestProxy_ServerErrorServesFallback(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "down for maintenance")
	})
	f := newFixture(t, backend.URL, time.Second)

	rec, info := f.serve(httptest.NewRequest(http.MethodGet, "/api/practice/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ReasonServerError, rec.Header().Get(util.HeaderFallback))
	body := decodeFallback(t, rec)
	assert.Equal(t, "practice-service", body.Service)
	assert.Equal(t, "Practice service is temporarily unavailable", body.Message)
	assert.NotContains(t, rec.Body.String(), "maintenance")

	assert.True(t, info.Fallback)
	assert.Equal(t, ReasonServerError, info.FallbackReason)
	assert.Equal(t, 1, f.snapshot(t).FailedCalls)
}

func TestProxy_ClientErrorIsNotFailure(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	f := newFixture(t, backend.URL, time.Second)

	rec, _ := f.serve(httptest.NewRequest(http.MethodGet, "/api/practice/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	snap := f.snapshot(t)
	assert.Equal(t, 1, snap.BufferedCalls)
	assert.Equal(t, 0, snap.FailedCalls)
}

func TestProxy_TransportErrorServesFallback(t *testing.T) {
	backend := newTestBackend(t, okHandler)
	target := backend.URL
	backend.Close()

	f := newFixture(t, target, time.Second)
	rec, _ := f.serve(httptest.NewRequest(http.MethodGet, "/api/practice/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ReasonUnavailable, rec.Header().Get(util.HeaderFallback))
	assert.Equal(t, 1, f.snapshot(t).FailedCalls)
}

func TestProxy_TimeoutServesFallback(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		okHandler(w, r)
	})
	f := newFixture(t, backend.URL, 50*time.Millisecond)

	rec, _ := f.serve(httptest.NewRequest(http.MethodGet, "/api/practice/slow", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ReasonTimeout, rec.Header().Get(util.HeaderFallback))
	assert.Equal(t, 1, f.snapshot(t).FailedCalls)
}

func TestProxy_StalledBodyCountsAsFailure(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"items":[`)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	core, logs := observer.New(zapcore.DebugLevel)
	f := newFixture(t, backend.URL, 100*time.Millisecond,
		WithLogger(observability.NewZapLogger(zap.New(core))))

	for i := 0; i < 10; i++ {
		rec, info := f.serve(httptest.NewRequest(http.MethodGet, "/api/practice/sessions", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `{"items":[`, rec.Body.String())
		assert.False(t, info.Fallback)
	}

	snap := f.snapshot(t)
	assert.Equal(t, circuitbreaker.StateOpen, snap.State)
	assert.Equal(t, 10, snap.FailedCalls)
	assert.Equal(t, 10.0, testutil.ToFloat64(f.metrics.requests.WithLabelValues("practice", ReasonTimeout)))
	assert.Len(t, logs.FilterMessage("backend response body failed").All(), 10)
	assert.NotEmpty(t, logs.FilterMessageSnippet("read error during body copy").All())
}

func TestProxy_TripsAndShortCircuits(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	f := newFixture(t, backend.URL, time.Second)

	for i := 0; i < 10; i++ {
		rec, _ := f.serve(httptest.NewRequest(http.MethodGet, "/api/practice/sessions", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Equal(t, int32(10), backend.hits.Load())
	assert.Equal(t, circuitbreaker.StateOpen, f.snapshot(t).State)

	rec, info := f.serve(httptest.NewRequest(http.MethodGet, "/api/practice/sessions", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ReasonCircuitOpen, rec.Header().Get(util.HeaderFallback))
	assert.Equal(t, ReasonCircuitOpen, info.FallbackReason)
	assert.Equal(t, int32(10), backend.hits.Load())
	assert.Equal(t, "practice-service", decodeFallback(t, rec).Service)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.requests.WithLabelValues("practice", ReasonCircuitOpen)))
}

func TestProxy_ClientCancelNotRecorded(t *testing.T) {
	started := make(chan struct{})
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	f := newFixture(t, backend.URL, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/practice/stream", nil).WithContext(ctx)

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		rec, _ := f.serve(req)
		done <- rec
	}()

	<-started
	cancel()

	select {
	case rec := <-done:
		assert.Empty(t, rec.Header().Get(util.HeaderFallback))
	case <-time.After(3 * time.Second):
		t.Fatal("proxy did not return after client cancel")
	}

	snap := f.snapshot(t)
	assert.Equal(t, 0, snap.BufferedCalls)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.requests.WithLabelValues("practice", "cancelled")))
}
