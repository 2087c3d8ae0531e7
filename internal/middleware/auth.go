// Package middleware provides HTTP middleware for the wager API
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// Claims are the JWT claims the API accepts. The subject is the caller
// identity: a player, the owner, a resolver or the oracle.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey int

const (
	callerKey ctxKey = iota
	rolesKey
)

// WithCaller stores the authenticated identity on ctx.
func WithCaller(ctx context.Context, caller string, roles []string) context.Context {
	ctx = context.WithValue(ctx, callerKey, caller)
	return context.WithValue(ctx, rolesKey, roles)
}

// Caller returns the authenticated identity, or "" when the request is
// anonymous.
func Caller(ctx context.Context) string {
	if v, ok := ctx.Value(callerKey).(string); ok {
		return v
	}
	return ""
}

// Roles returns the roles claim of the authenticated caller.
func Roles(ctx context.Context) []string {
	if v, ok := ctx.Value(rolesKey).([]string); ok {
		return v
	}
	return nil
}

// AuthMiddleware provides JWT authentication
type AuthMiddleware struct {
	key       interface{}
	method    jwt.SigningMethod
	issuer    string
	logger    *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware verifies HS256 tokens against secret. Requests to
// skipPaths pass through unauthenticated.
func NewAuthMiddleware(secret []byte, issuer string, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	return newAuth(secret, jwt.SigningMethodHS256, issuer, log, skipPaths)
}

// NewRSAAuthMiddleware verifies RS256 tokens against an RSA public key.
func NewRSAAuthMiddleware(publicKey interface{}, issuer string, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	return newAuth(publicKey, jwt.SigningMethodRS256, issuer, log, skipPaths)
}

func newAuth(key interface{}, method jwt.SigningMethod, issuer string, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &AuthMiddleware{key: key, method: method, issuer: issuer, logger: log, skipPaths: skip}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		raw := bearer(r)
		if raw == "" {
			m.reject(w, r, fmt.Errorf("missing bearer token"))
			return
		}
		claims, err := m.validateToken(raw)
		if err != nil {
			m.reject(w, r, err)
			return
		}

		ctx := WithCaller(r.Context(), claims.Subject, claims.Roles)
		m.logger.WithContext(ctx).WithField("caller", claims.Subject).Debug("authenticated")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearer extracts the token from the Authorization header, or from the
// access_token query parameter on WebSocket upgrades.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func (m *AuthMiddleware) validateToken(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{m.method.Alg()}), jwt.WithExpirationRequired()}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return m.key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
	}).Warn("authentication failed")
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
}

// RequireCaller rejects anonymous requests on routes mounted behind optional
// authentication.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Caller(r.Context()) == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IssueToken signs an HS256 token for subject. Used by tooling and tests.
func IssueToken(secret []byte, issuer, subject string, roles []string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	if issuer != "" {
		claims.Issuer = issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Roles: roles, RegisteredClaims: claims}).SignedString(secret)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "error": msg})
}
