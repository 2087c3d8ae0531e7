package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/wager_layer/internal/engine/metrics"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

func ok(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func TestCORS(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://app.example.com", ".wager.test", " "})

	cases := []struct {
		origin  string
		allowed bool
	}{
		{"https://app.example.com", true},
		{"https://play.wager.test", true},
		{"https://evil.example.com", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
		req.Header.Set("Origin", tc.origin)
		rec := httptest.NewRecorder()
		m.Handler(http.HandlerFunc(ok)).ServeHTTP(rec, req)
		assert.Equal(t, tc.allowed, m.AllowsOrigin(tc.origin), tc.origin)
		if tc.allowed {
			assert.Equal(t, tc.origin, rec.Header().Get("Access-Control-Allow-Origin"), tc.origin)
		} else {
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), tc.origin)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	m := NewCORSMiddleware([]string{"*"})
	req := httptest.NewRequest(http.MethodOptions, "/v1/entries", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	called := false
	m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://anywhere.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterPerCaller(t *testing.T) {
	rl := NewRateLimiter(0, 1, logger.Discard())
	h := rl.Handler(http.HandlerFunc(ok))

	call := func(caller string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/entries", nil)
		if caller != "" {
			req = req.WithContext(WithCaller(req.Context(), caller, nil))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("alice").Code)
	limited := call("alice")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Contains(t, limited.Body.String(), "RATE_LIMITED")
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, call("bob").Code)
	// anonymous requests share the client address key
	assert.Equal(t, http.StatusOK, call("").Code)
	assert.Equal(t, http.StatusTooManyRequests, call("").Code)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10, 5, logger.Discard())
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.getLimiter("alice")
	now = now.Add(5 * time.Minute)
	rl.getLimiter("bob")
	now = now.Add(6 * time.Minute)

	assert.Equal(t, 1, rl.Cleanup())
	_, kept := rl.limiters["bob"]
	assert.True(t, kept)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	c := metrics.NewCollector("mwtest")
	r := mux.NewRouter()
	r.Use(MetricsMiddleware(c))
	r.HandleFunc("/v1/resolve/{requestId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}).Methods(http.MethodPost)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/resolve/local-7", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	scrape := httptest.NewRecorder()
	c.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(scrape.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `/v1/resolve/{requestId}`)
	assert.NotContains(t, string(body), "local-7")
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusConflict)
	rw.WriteHeader(http.StatusOK)
	_, err := rw.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, rw.statusCode)
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, _, err = rw.Hijack()
	assert.Error(t, err)
}

func TestTracingSetsIdentifiers(t *testing.T) {
	m := NewTracingMiddleware(logger.Discard())
	var traceID, requestID string
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = logger.TraceID(r.Context())
		requestID = logger.RequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/entries/me", nil)
	req.Header.Set("X-Trace-ID", "trace-abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "trace-abc", traceID)
	assert.Equal(t, "trace-abc", rec.Header().Get("X-Trace-ID"))
	assert.NotEmpty(t, requestID)
	assert.Equal(t, requestID, rec.Header().Get(chimw.RequestIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/entries/me", nil))
	assert.True(t, strings.TrimSpace(rec.Header().Get("X-Trace-ID")) != "")
}

func TestLoggingMiddlewarePassesThrough(t *testing.T) {
	h := LoggingMiddleware(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
