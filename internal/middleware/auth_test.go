package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/wager_layer/pkg/logger"
)

var testSecret = []byte("test-secret")

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
}

func echoCaller(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Caller", Caller(r.Context()))
		if roles := Roles(r.Context()); len(roles) > 0 {
			w.Header().Set("X-Role", roles[0])
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthAcceptsValidToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "wagerd", logger.Discard(), nil)
	token, err := IssueToken(testSecret, "wagerd", "alice", []string{"resolver"}, validClaims())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/entries/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.Handler(echoCaller(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Header().Get("X-Caller"))
	assert.Equal(t, "resolver", rec.Header().Get("X-Role"))
}

func TestAuthRejections(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "wagerd", logger.Discard(), nil)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	expiredToken, err := IssueToken(testSecret, "wagerd", "alice", nil, expired)
	require.NoError(t, err)

	wrongIssuer, err := IssueToken(testSecret, "elsewhere", "alice", nil, validClaims())
	require.NoError(t, err)

	wrongKey, err := IssueToken([]byte("other"), "wagerd", "alice", nil, validClaims())
	require.NoError(t, err)

	noSubject, err := IssueToken(testSecret, "wagerd", "", nil, validClaims())
	require.NoError(t, err)

	cases := map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"expired":      "Bearer " + expiredToken,
		"wrong issuer": "Bearer " + wrongIssuer,
		"wrong key":    "Bearer " + wrongKey,
		"no subject":   "Bearer " + noSubject,
		"garbage":      "Bearer not.a.token",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/entries/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			m.Handler(echoCaller(t)).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
		})
	}
}

func TestAuthSkipPaths(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "", logger.Discard(), []string{"/healthz"})
	rec := httptest.NewRecorder()
	m.Handler(echoCaller(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Caller"))
}

func TestAuthWebSocketQueryToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "", logger.Discard(), nil)
	token, err := IssueToken(testSecret, "", "bob", nil, validClaims())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/events/ws?access_token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	m.Handler(echoCaller(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", rec.Header().Get("X-Caller"))

	// query tokens are ignored on plain requests
	rec = httptest.NewRecorder()
	m.Handler(echoCaller(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?access_token="+token, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRSAAuth(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	m := NewRSAAuthMiddleware(&key.PublicKey, "", logger.Discard(), nil)

	claims := Claims{RegisteredClaims: validClaims()}
	claims.Subject = "oracle-node"
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/callbacks/oracle/r1", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	m.Handler(echoCaller(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "oracle-node", rec.Header().Get("X-Caller"))

	// an HMAC token must not pass an RSA verifier
	hmac, err := IssueToken(testSecret, "", "oracle-node", nil, validClaims())
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/v1/callbacks/oracle/r1", nil)
	req.Header.Set("Authorization", "Bearer "+hmac)
	rec = httptest.NewRecorder()
	m.Handler(echoCaller(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireCaller(t *testing.T) {
	h := RequireCaller(echoCaller(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithCaller(req.Context(), "carol", nil))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
