package wager

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	domain "github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/policy"
	"github.com/R3E-Network/wager_layer/internal/app/randomness"
	"github.com/R3E-Network/wager_layer/internal/engine/events"
	"github.com/R3E-Network/wager_layer/internal/engine/state"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
	"github.com/R3E-Network/wager_layer/internal/ledger"
)

// SubmitRequest is a player's wager. Nil stops mean no threshold.
type SubmitRequest struct {
	Game        domain.Game   `json:"game"`
	Choice      domain.Choice `json:"choice"`
	WagerAmount *big.Int      `json:"wager_amount"`
	UnitCount   int           `json:"unit_count"`
	StopLoss    *big.Int      `json:"stop_loss,omitempty"`
	StopGain    *big.Int      `json:"stop_gain,omitempty"`
}

// validate checks req against cfg in the documented rejection order.
func validate(req SubmitRequest, minWager *big.Int, maxUnits int) error {
	p, err := policy.Lookup(req.Game)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidChoice, err)
	}
	if err := p.Validate(req.Choice); err != nil {
		return err
	}
	if req.UnitCount <= 0 || req.WagerAmount == nil || req.WagerAmount.Sign() <= 0 {
		return domain.ErrZeroWager
	}
	if req.UnitCount > maxUnits {
		return fmt.Errorf("%w: %d > %d", domain.ErrCountExceedsMax, req.UnitCount, maxUnits)
	}
	if minWager != nil && req.WagerAmount.Cmp(minWager) < 0 {
		return fmt.Errorf("%w: %s < %s", domain.ErrBelowMinimumWager, req.WagerAmount, minWager)
	}
	for _, v := range []*big.Int{req.StopLoss, req.StopGain} {
		if v != nil && v.Sign() < 0 {
			return domain.ErrNegativeThreshold
		}
	}
	return nil
}

// Submit debits the locked stake, issues a randomness request through the
// active provider and records the entry. Any failure after the debit refunds it.
func (s *Service) Submit(ctx context.Context, player string, req SubmitRequest) (entry domain.Entry, err error) {
	ctx, done := s.startOp(ctx, "submit",
		attribute.String("player", player),
		attribute.String("game", string(req.Game)),
		attribute.Int("units", req.UnitCount),
	)
	defer func() { done(err) }()
	defer func() {
		if err != nil {
			s.logFailure(ctx, "submit", err, map[string]interface{}{"player": player, "game": req.Game})
		}
	}()

	if player == "" {
		return domain.Entry{}, fmt.Errorf("player required")
	}
	cfg := s.registry.Snapshot()
	if err := validate(req, cfg.MinWager, cfg.MaxUnitCount); err != nil {
		return domain.Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.GetEntry(ctx, player); err == nil {
		return domain.Entry{}, domain.ErrEntryInProgress
	} else if !errors.Is(err, domain.ErrEntryNotInProgress) {
		return domain.Entry{}, fmt.Errorf("lookup entry: %w", err)
	}

	provider, err := s.providers.Get(cfg.ActiveProvider)
	if err != nil {
		return domain.Entry{}, err
	}
	head, err := s.heads.Head(ctx)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("read head: %w", err)
	}

	locked := fixedpoint.MulInt(req.WagerAmount, int64(req.UnitCount))
	ref := "wager:" + uuid.NewString()
	if err := s.ledger.Debit(ctx, player, locked, ref); err != nil {
		return domain.Entry{}, fmt.Errorf("debit wager: %w", err)
	}

	ticket, err := provider.Request(ctx, randomness.Request{Player: player, Count: req.UnitCount, Height: head.Height})
	if err != nil {
		s.refundLocked(ctx, player, locked, ref)
		return domain.Entry{}, fmt.Errorf("request randomness: %w", err)
	}

	entry = domain.Entry{
		Player:            player,
		Game:              req.Game,
		Choice:            req.Choice,
		WagerAmount:       fixedpoint.Clone(req.WagerAmount),
		UnitCount:         req.UnitCount,
		StopLoss:          orZero(req.StopLoss),
		StopGain:          orZero(req.StopGain),
		RequestID:         ticket.RequestID,
		SubmittedAtHeight: head.Height,
		Provider:          provider.Kind(),
		Terms:             cfg.Terms(),
		Seed:              ticket.Seed,
		CreatedAt:         s.now(),
	}
	if err := s.store.CreateEntry(ctx, entry); err != nil {
		s.refundLocked(ctx, player, locked, ref)
		return domain.Entry{}, fmt.Errorf("record entry: %w", err)
	}

	s.metrics.RecordSubmitted(string(entry.Game), string(entry.Provider))
	s.metrics.RecordVolume("wagered", locked)
	events.NewEvent(events.EventEntrySubmitted).
		Player(player).
		Request(entry.RequestID).
		Provider(string(entry.Provider)).
		With("game", string(entry.Game)).
		With("choice", uint64(entry.Choice)).
		With("wager_amount", entry.WagerAmount.String()).
		With("unit_count", entry.UnitCount).
		With("height", entry.SubmittedAtHeight).
		LogToWithContext(ctx, s.events)

	issued := events.NewEvent(events.EventRequestIssued).
		Player(player).
		Request(entry.RequestID).
		Provider(string(entry.Provider)).
		With("count", entry.UnitCount)
	for k, v := range ticket.Meta {
		issued.With(k, v)
	}
	issued.LogToWithContext(ctx, s.events)

	s.log.WithContext(ctx).
		WithField("player", player).
		WithField("request_id", entry.RequestID).
		WithField("provider", entry.Provider).
		Info("entry submitted")
	return entry, nil
}

// refundLocked returns a debited stake after a failed submission.
func (s *Service) refundLocked(ctx context.Context, player string, amount *big.Int, ref string) {
	posting := []ledger.Posting{{Account: player, Amount: amount, TxType: ledger.TxTypeRefund}}
	reversal := ref + ":" + ledger.TxTypeReversal
	if err := ledger.Apply(ctx, s.ledger, reversal, posting); err != nil {
		s.metrics.RecordRefundFailure()
		events.NewEvent(events.EventRefundFailed).
			Severity(events.SeverityError).
			Player(player).
			With("amount", amount.String()).
			With("reference", reversal).
			ErrorFrom(err).
			LogToWithContext(ctx, s.events)
		s.log.WithContext(ctx).
			WithError(err).
			WithField("player", player).
			WithField("amount", amount.String()).
			Error("refund of failed submission did not apply")
	}
}

// Withdraw cancels the caller's entry once the withdrawal delay has elapsed and
// refunds the full locked stake.
func (s *Service) Withdraw(ctx context.Context, player string) (refund *big.Int, err error) {
	ctx, done := s.startOp(ctx, "withdraw", attribute.String("player", player))
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.store.GetEntry(ctx, player)
	if err != nil {
		return nil, err
	}
	head, err := s.heads.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}
	delay := s.registry.Snapshot().WithdrawDelay
	if head.Height < entry.SubmittedAtHeight+delay {
		return nil, fmt.Errorf("%w: eligible at height %d, head is %d",
			domain.ErrTooEarlyToWithdraw, entry.SubmittedAtHeight+delay, head.Height)
	}

	closed, err := s.store.CloseEntry(ctx, entry.RequestID, state.StatusWithdrawn)
	if err != nil {
		return nil, err
	}
	refund = closed.Locked()
	posting := []ledger.Posting{{Account: player, Amount: refund, TxType: ledger.TxTypeRefund}}
	if err := ledger.Apply(ctx, s.ledger, "withdraw:"+closed.RequestID, posting); err != nil {
		s.restore(ctx, closed, err)
		return nil, fmt.Errorf("refund withdrawal: %w", err)
	}

	s.metrics.RecordWithdrawn(string(closed.Provider))
	s.metrics.RecordVolume("refunded", refund)
	events.NewEvent(events.EventEntryWithdrawn).
		Player(player).
		Request(closed.RequestID).
		Provider(string(closed.Provider)).
		With("refund", refund.String()).
		With("height", head.Height).
		LogToWithContext(ctx, s.events)
	s.log.WithContext(ctx).
		WithField("player", player).
		WithField("request_id", closed.RequestID).
		Info("entry withdrawn")
	return refund, nil
}

// restore reopens an entry whose terminal postings failed.
func (s *Service) restore(ctx context.Context, e domain.Entry, cause error) {
	events.NewEvent(events.EventSettlementAborted).
		Severity(events.SeverityError).
		Player(e.Player).
		Request(e.RequestID).
		Provider(string(e.Provider)).
		ErrorFrom(cause).
		LogToWithContext(ctx, s.events)
	if err := s.store.RestoreEntry(ctx, e); err != nil {
		s.log.WithContext(ctx).
			WithError(err).
			WithField("request_id", e.RequestID).
			Error("restore entry after aborted settlement")
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return fixedpoint.Zero()
	}
	return fixedpoint.Clone(v)
}
