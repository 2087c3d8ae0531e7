// Package runtime runs the composed application behind its HTTP server.
package runtime

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/wager_layer/internal/app"
	"github.com/R3E-Network/wager_layer/internal/app/httpapi"
	"github.com/R3E-Network/wager_layer/internal/config"
	"github.com/R3E-Network/wager_layer/internal/middleware"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

const minSecretLen = 16

var publicPaths = []string{"/healthz", "/metrics"}

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	core       *app.Application
	handler    http.Handler
	limiter    *middleware.RateLimiter
	httpServer *http.Server

	mu   sync.Mutex
	addr net.Addr
}

// NewApplication constructs the application described by cfg.
func NewApplication(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = logger.New(cfg.Logging)
	}

	auth, err := buildAuth(cfg.Auth, log.Named("auth"))
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}

	core, err := app.New(cfg, log)
	if err != nil {
		return nil, err
	}

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, log.Named("ratelimit"))
	}
	var cors *middleware.CORSMiddleware
	if len(cfg.Server.CORSOrigins) > 0 {
		cors = middleware.NewCORSMiddleware(cfg.Server.CORSOrigins)
	}

	handler, err := httpapi.NewHandler(httpapi.Deps{
		Engine:      core.Engine,
		Events:      core.Events,
		Metrics:     core.Metrics,
		Auth:        auth,
		RateLimiter: limiter,
		CORS:        cors,
		AuditPath:   cfg.Server.AuditLog,
	}, log.Named("httpapi"))
	if err != nil {
		_ = core.Stop(context.Background())
		return nil, err
	}

	return &Application{
		cfg:     cfg,
		log:     log,
		core:    core,
		handler: handler,
		limiter: limiter,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
	}, nil
}

// Core exposes the composed engine.
func (a *Application) Core() *app.Application { return a.core }

// Handler returns the HTTP handler the server serves.
func (a *Application) Handler() http.Handler { return a.handler }

// Addr returns the bound listener address once Run has started listening.
func (a *Application) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Run starts the background services and the HTTP server, and blocks until
// the context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.core.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	if a.limiter != nil {
		a.limiter.StartCleanup(ctx, time.Minute)
	}

	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.httpServer.Addr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", ln.Addr().String()).
			WithField("services", a.core.Services()).
			Info("HTTP server listening")
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, then the background services.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpErr := a.httpServer.Shutdown(shutdownCtx)
	if httpErr != nil {
		a.log.WithError(httpErr).Warn("http server shutdown")
	}
	return errors.Join(httpErr, a.core.Stop(shutdownCtx))
}

func buildAuth(cfg config.AuthConfig, log *logger.Logger) (*middleware.AuthMiddleware, error) {
	if cfg.RSAPublicKeyFile != "" {
		pem, err := os.ReadFile(filepath.Clean(cfg.RSAPublicKeyFile))
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		return middleware.NewRSAAuthMiddleware(key, cfg.Issuer, log, publicPaths), nil
	}
	secret, err := parseJWTSecret(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("jwt secret: %w", err)
	}
	if cfg.JWTSecret == config.DevJWTSecret {
		log.Warn("using the development JWT secret; set WAGER_JWT_SECRET in production")
	}
	return middleware.NewAuthMiddleware(secret, cfg.Issuer, log, publicPaths), nil
}

// parseJWTSecret accepts a raw string or a "base64:" or "hex:" prefixed
// encoding. The decoded secret must be at least 16 bytes.
func parseJWTSecret(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("missing secret")
	}

	var secret []byte
	switch {
	case strings.HasPrefix(value, "base64:"):
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "base64:"))
		if err != nil {
			return nil, fmt.Errorf("decode base64: %w", err)
		}
		secret = decoded
	case strings.HasPrefix(value, "hex:"):
		decoded, err := hex.DecodeString(strings.TrimPrefix(value, "hex:"))
		if err != nil {
			return nil, fmt.Errorf("decode hex: %w", err)
		}
		secret = decoded
	default:
		secret = []byte(value)
	}

	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("must be at least %d bytes, got %d", minSecretLen, len(secret))
	}
	return secret, nil
}
