// Package wager is the entry lifecycle engine. It owns submission, withdrawal
// and every resolution path, and is the only writer of the entry store and the
// ledger.
package wager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/collectible"
	"github.com/R3E-Network/wager_layer/internal/app/protocol"
	"github.com/R3E-Network/wager_layer/internal/app/randomness"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
	"github.com/R3E-Network/wager_layer/internal/chain"
	"github.com/R3E-Network/wager_layer/internal/engine/events"
	"github.com/R3E-Network/wager_layer/internal/engine/metrics"
	"github.com/R3E-Network/wager_layer/internal/ledger"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

const tracerName = "github.com/R3E-Network/wager_layer/internal/app/services/wager"

// Deps are the collaborators the engine needs. Store, Ledger, Registry, Heads
// and Providers are required.
type Deps struct {
	Store     storage.EntryStore
	Ledger    ledger.Ledger
	Issuer    collectible.Issuer
	Registry  *protocol.Registry
	Heads     chain.HeadSource
	Providers randomness.Set
	Events    events.EventLogger
	Metrics   *metrics.Collector
}

// Service serializes every state-changing operation behind one mutex so each
// runs to completion before the next observes the store.
type Service struct {
	mu sync.Mutex

	store     storage.EntryStore
	ledger    ledger.Ledger
	issuer    collectible.Issuer
	registry  *protocol.Registry
	heads     chain.HeadSource
	providers randomness.Set
	events    events.EventLogger
	metrics   *metrics.Collector
	tracer    trace.Tracer
	log       *logger.Logger
	now       func() time.Time
}

// New constructs the engine.
func New(deps Deps, log *logger.Logger) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("entry store is required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("ledger is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("protocol registry is required")
	case deps.Heads == nil:
		return nil, fmt.Errorf("head source is required")
	case len(deps.Providers) == 0:
		return nil, fmt.Errorf("at least one randomness provider is required")
	}
	if log == nil {
		log = logger.NewDefault("wager")
	}
	if deps.Events == nil {
		deps.Events = events.NoOpLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector("")
	}

	s := &Service{
		store:     deps.Store,
		ledger:    deps.Ledger,
		issuer:    deps.Issuer,
		registry:  deps.Registry,
		heads:     deps.Heads,
		providers: deps.Providers,
		events:    deps.Events,
		metrics:   deps.Metrics,
		tracer:    otel.Tracer(tracerName),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	deps.Registry.OnChange(s.configChanged)
	return s, nil
}

// Registry exposes the protocol configuration for the admin surface.
func (s *Service) Registry() *protocol.Registry { return s.registry }

// Entry returns the player's in-flight entry.
func (s *Service) Entry(ctx context.Context, player string) (domain.Entry, error) {
	return s.store.GetEntry(ctx, player)
}

// PendingRequests lists open requests issued by kind, oldest first.
func (s *Service) PendingRequests(ctx context.Context, kind domain.ProviderKind) ([]domain.Request, error) {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Request
	for _, e := range entries {
		if e.Provider == kind {
			out = append(out, e.Request())
		}
	}
	return out, nil
}

func (s *Service) configChanged(field, caller string, cfg protocol.Config) {
	events.NewEvent(events.EventConfigChanged).
		Message("protocol config changed").
		With("field", field).
		With("caller", caller).
		With("active_provider", string(cfg.ActiveProvider)).
		With("edge_mode", string(cfg.EdgeMode)).
		LogTo(s.events)
}

// startOp opens a span and returns a finisher that records its duration and
// outcome.
func (s *Service) startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "wager."+op, trace.WithAttributes(attrs...))
	started := time.Now()
	return ctx, func(err error) {
		reason := ""
		if err != nil {
			reason = domain.Code(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, reason)
		}
		s.metrics.RecordOperation(op, time.Since(started), reason)
		span.End()
	}
}

// rejected reports whether err is a caller-facing rejection rather than an
// infrastructure failure.
func rejected(err error) bool {
	return domain.Code(err) != "INTERNAL"
}

func (s *Service) logFailure(ctx context.Context, op string, err error, fields map[string]interface{}) {
	entry := s.log.WithContext(ctx).WithFields(fields).WithError(err).WithField("op", op)
	if rejected(err) || errors.Is(err, context.Canceled) {
		entry.Debug("operation rejected")
		return
	}
	entry.Error("operation failed")
}
