// Package httpapi exposes the wager engine over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"

	domain "github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/protocol"
	wagersvc "github.com/R3E-Network/wager_layer/internal/app/services/wager"
	"github.com/R3E-Network/wager_layer/internal/engine/events"
	"github.com/R3E-Network/wager_layer/internal/engine/metrics"
	"github.com/R3E-Network/wager_layer/internal/middleware"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Engine is the wager service surface the API drives.
type Engine interface {
	Submit(ctx context.Context, player string, req wagersvc.SubmitRequest) (domain.Entry, error)
	Withdraw(ctx context.Context, player string) (*big.Int, error)
	Entry(ctx context.Context, player string) (domain.Entry, error)
	PendingRequests(ctx context.Context, kind domain.ProviderKind) ([]domain.Request, error)
	ResolveLocal(ctx context.Context, caller, requestID string) (domain.Outcome, error)
	BatchResolve(ctx context.Context, caller string, requestIDs []string) (wagersvc.BatchResult, error)
	FulfillVRF(ctx context.Context, requestID string, sig []byte) (domain.Outcome, error)
	FulfillOracle(ctx context.Context, caller, requestID string, words []*big.Int, bonus []bool) (domain.Outcome, error)
	Registry() *protocol.Registry
}

// Deps are the collaborators of the HTTP handler. Auth is required; the
// other middleware is optional.
type Deps struct {
	Engine      Engine
	Events      events.EventLogger
	Metrics     *metrics.Collector
	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimiter
	CORS        *middleware.CORSMiddleware
	// AuditPath appends every admin config change attempt as JSONL when set.
	AuditPath string
}

// handler bundles HTTP endpoints for the engine.
type handler struct {
	engine   Engine
	events   events.EventLogger
	metrics  *metrics.Collector
	changes  *changeLog
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHandler returns the router exposing the wager API.
func NewHandler(deps Deps, log *logger.Logger) (http.Handler, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth middleware is required")
	}
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	if deps.Events == nil {
		deps.Events = events.NoOpLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector("")
	}
	journal, err := openJournal(deps.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	h := &handler{
		engine:   deps.Engine,
		events:   deps.Events,
		metrics:  deps.Metrics,
		changes:  newChangeLog(500, journal, log),
		upgrader: newUpgrader(deps.CORS),
		log:      log,
	}

	r := mux.NewRouter()
	r.Use(middleware.NewTracingMiddleware(log).Handler)
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.MetricsMiddleware(deps.Metrics))
	if deps.CORS != nil {
		r.Use(deps.CORS.Handler)
	}

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)

	// The stream is registered ahead of the compressed subrouter so the
	// upgrade sees the raw connection.
	r.Handle("/v1/events/ws", deps.Auth.Handler(http.HandlerFunc(h.streamEvents))).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(deps.Auth.Handler)
	if deps.RateLimiter != nil {
		api.Use(deps.RateLimiter.Handler)
	}
	api.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

	api.HandleFunc("/entries", h.submit).Methods(http.MethodPost)
	api.HandleFunc("/entries/me", h.myEntry).Methods(http.MethodGet)
	api.HandleFunc("/entries/me", h.withdraw).Methods(http.MethodDelete)

	api.HandleFunc("/requests/pending", h.pendingRequests).Methods(http.MethodGet)
	api.HandleFunc("/resolve", h.batchResolve).Methods(http.MethodPost)
	api.HandleFunc("/resolve/{requestId}", h.resolveLocal).Methods(http.MethodPost)
	api.HandleFunc("/callbacks/vrf/{requestId}", h.vrfCallback).Methods(http.MethodPost)
	api.HandleFunc("/callbacks/oracle/{requestId}", h.oracleCallback).Methods(http.MethodPost)

	api.HandleFunc("/admin/config", h.getConfig).Methods(http.MethodGet)
	api.HandleFunc("/admin/config/{field}", h.updateConfig).Methods(http.MethodPut)
	api.HandleFunc("/admin/audit", h.listAudit).Methods(http.MethodGet)

	api.HandleFunc("/events", h.listEvents).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return r, nil
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeFailure(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"code": code, "error": msg})
}

func queryInt(r *http.Request, key string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
