package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/wager_layer/internal/config"
	"github.com/R3E-Network/wager_layer/internal/middleware"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

func TestParseJWTSecret(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		ok      bool
	}{
		{"raw-16", "1234567890abcdef", 16, true},
		{"raw-32", "0123456789abcdef0123456789abcdef", 32, true},
		{"base64", "base64:MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=", 32, true},
		{"hex", "hex:3031323334353637383961626364656630313233343536373839616263646566", 32, true},
		{"too-short", "short", 0, false},
		{"bad-hex", "hex:zzzz", 0, false},
		{"empty", "  ", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := parseJWTSecret(tt.input)
			if !tt.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, key, tt.wantLen)
		})
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Chain.Source = config.ChainManual
	cfg.Auth.JWTSecret = "runtime-test-secret"
	return cfg
}

func TestHandlerServesHealthAndRequiresAuth(t *testing.T) {
	a, err := NewApplication(testConfig(), logger.Discard())
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/entries/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := middleware.IssueToken([]byte("runtime-test-secret"), "wagerd", "alice", nil, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/entries/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewApplicationRejectsWeakSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "weak"
	_, err := NewApplication(cfg, logger.Discard())
	require.Error(t, err)
}

func TestRunAndShutdown(t *testing.T) {
	a, err := NewApplication(testConfig(), logger.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", a.Addr()))
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "local", body["active_provider"])

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, a.Shutdown(context.Background()))
}
