package wager

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	domain "github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/engine/events"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// DefaultSweepSchedule runs the sweeper once a minute.
const DefaultSweepSchedule = "@every 1m"

// Eligible lists entries whose withdrawal delay has elapsed at the current
// head, oldest first.
func (s *Service) Eligible(ctx context.Context) ([]domain.Entry, uint64, error) {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, 0, err
	}
	head, err := s.heads.Head(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("read head: %w", err)
	}
	delay := s.registry.Snapshot().WithdrawDelay
	var out []domain.Entry
	for _, e := range entries {
		if head.Height >= e.SubmittedAtHeight+delay {
			out = append(out, e)
		}
	}
	return out, head.Height, nil
}

// Sweeper periodically reports entries that can be withdrawn. It never
// withdraws on a player's behalf.
type Sweeper struct {
	svc      *Service
	schedule string
	log      *logger.Logger

	mu   sync.Mutex
	cron *cron.Cron
	last int
}

// NewSweeper creates a sweeper on schedule, a robfig/cron spec.
func NewSweeper(svc *Service, schedule string, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("wager-sweeper")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{svc: svc, schedule: schedule, log: log}
}

func (w *Sweeper) Name() string { return "wager-sweeper" }

func (w *Sweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(w.schedule, func() { w.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("schedule sweeper %q: %w", w.schedule, err)
	}
	c.Start()
	w.cron = c
	w.log.WithField("schedule", w.schedule).Info("wager sweeper started")
	return nil
}

func (w *Sweeper) Stop(ctx context.Context) error {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	w.log.Info("wager sweeper stopped")
	return nil
}

// Last returns the eligible count from the most recent sweep.
func (w *Sweeper) Last() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Sweep counts withdraw-eligible entries once.
func (w *Sweeper) Sweep(ctx context.Context) {
	eligible, height, err := w.svc.Eligible(ctx)
	if err != nil {
		w.log.WithError(err).Warn("sweep failed")
		return
	}
	pending, err := w.svc.store.ListEntries(ctx)
	if err == nil {
		w.svc.metrics.SetPending(len(pending))
	}
	w.svc.metrics.SetWithdrawEligible(len(eligible))

	w.mu.Lock()
	w.last = len(eligible)
	w.mu.Unlock()

	if len(eligible) == 0 {
		return
	}
	ids := make([]string, len(eligible))
	for i, e := range eligible {
		ids[i] = e.RequestID
	}
	w.log.WithField("count", len(eligible)).WithField("height", height).Info("entries eligible for withdrawal")
	events.NewEvent(events.EventWithdrawEligible).
		With("count", len(eligible)).
		With("height", height).
		With("request_ids", ids).
		LogTo(w.svc.events)
}
