package wager

import (
	"context"
	"fmt"
	"math/big"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/collectible"
	"github.com/R3E-Network/wager_layer/internal/app/policy"
	"github.com/R3E-Network/wager_layer/internal/app/randomness/oracle"
	"github.com/R3E-Network/wager_layer/internal/app/settlement"
	"github.com/R3E-Network/wager_layer/internal/engine/events"
	"github.com/R3E-Network/wager_layer/internal/engine/state"
	"github.com/R3E-Network/wager_layer/internal/ledger"
)

// LocalDeriver computes local-provider draws at resolution time.
type LocalDeriver interface {
	Derive(ctx context.Context, e domain.Entry) ([]*big.Int, error)
}

// ProofVerifier turns a verifiable-provider signature into draws.
type ProofVerifier interface {
	Verify(publicKey string, e domain.Entry, sig []byte) ([]*big.Int, error)
}

// Failure is one id a batch could not settle.
type Failure struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
	Error     string `json:"error"`
}

// BatchResult lists what a batch settled and what it skipped. Every id absent
// from Failed was fully settled.
type BatchResult struct {
	Resolved []domain.Outcome `json:"resolved"`
	Failed   []Failure        `json:"failed"`
}

// deliverFunc produces the draws for an entry already matched to its provider.
type deliverFunc func(ctx context.Context, e domain.Entry) (settlement.Delivery, error)

// ResolveLocal settles a local-provider request on behalf of a resolver.
func (s *Service) ResolveLocal(ctx context.Context, caller, requestID string) (out domain.Outcome, err error) {
	ctx, done := s.startOp(ctx, "resolve_local", attribute.String("request_id", requestID))
	defer func() { done(err) }()

	if !s.registry.IsResolver(caller) {
		return domain.Outcome{}, domain.ErrNotAuthorizedResolver
	}
	deliver, err := s.localDelivery()
	if err != nil {
		return domain.Outcome{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(ctx, requestID, domain.ProviderLocal, deliver)
}

// BatchResolve settles each id independently through the local provider.
// Individual failures are reported, never fatal; only authorization and the
// batch size limit reject the whole call.
func (s *Service) BatchResolve(ctx context.Context, caller string, requestIDs []string) (res BatchResult, err error) {
	ctx, done := s.startOp(ctx, "batch_resolve", attribute.Int("size", len(requestIDs)))
	defer func() { done(err) }()

	if !s.registry.IsResolver(caller) {
		return BatchResult{}, domain.ErrNotAuthorizedResolver
	}
	if limit := s.registry.Snapshot().BatchResolveLimit; len(requestIDs) > limit {
		return BatchResult{}, fmt.Errorf("%w: %d ids, limit %d", domain.ErrExceedsBatchLimit, len(requestIDs), limit)
	}
	deliver, err := s.localDelivery()
	if err != nil {
		return BatchResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res = BatchResult{Resolved: []domain.Outcome{}, Failed: []Failure{}}
	for _, id := range requestIDs {
		out, err := s.resolveLocked(ctx, id, domain.ProviderLocal, deliver)
		if err != nil {
			res.Failed = append(res.Failed, Failure{RequestID: id, Reason: domain.Code(err), Error: err.Error()})
			continue
		}
		res.Resolved = append(res.Resolved, out)
	}

	failed := make([]string, len(res.Failed))
	for i, f := range res.Failed {
		failed[i] = f.RequestID
	}
	s.metrics.RecordBatchFailures(len(failed))
	events.NewEvent(events.EventBatchResolved).
		Provider(string(domain.ProviderLocal)).
		With("caller", caller).
		With("requested", len(requestIDs)).
		With("resolved", len(res.Resolved)).
		With("failed", failed).
		With("failure_count", len(failed)).
		LogToWithContext(ctx, s.events)
	return res, nil
}

// FulfillVRF settles a verifiable-provider request from the coordinator's
// signature. The signature is the authorization.
func (s *Service) FulfillVRF(ctx context.Context, requestID string, sig []byte) (out domain.Outcome, err error) {
	ctx, done := s.startOp(ctx, "fulfill_vrf", attribute.String("request_id", requestID))
	defer func() { done(err) }()

	p, err := s.providers.Get(domain.ProviderVRF)
	if err != nil {
		return domain.Outcome{}, err
	}
	verifier, ok := p.(ProofVerifier)
	if !ok {
		return domain.Outcome{}, fmt.Errorf("%w: vrf provider cannot verify proofs", domain.ErrUnknownProvider)
	}
	publicKey := s.registry.Snapshot().Providers.VRF.PublicKey

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(ctx, requestID, domain.ProviderVRF, func(_ context.Context, e domain.Entry) (settlement.Delivery, error) {
		words, err := verifier.Verify(publicKey, e, sig)
		if err != nil {
			return settlement.Delivery{}, err
		}
		return settlement.Delivery{Draws: words}, nil
	})
}

// FulfillOracle settles an oracle request pushed by the registered oracle
// identity. bonus may be empty or carry one flag per unit.
func (s *Service) FulfillOracle(ctx context.Context, caller, requestID string, words []*big.Int, bonus []bool) (out domain.Outcome, err error) {
	ctx, done := s.startOp(ctx, "fulfill_oracle", attribute.String("request_id", requestID))
	defer func() { done(err) }()

	if !s.registry.IsOracle(caller) {
		return domain.Outcome{}, domain.ErrNotAuthorizedResolver
	}
	for _, w := range words {
		if w == nil || w.Sign() < 0 {
			return domain.Outcome{}, fmt.Errorf("%w: negative or missing word", domain.ErrInvalidDraws)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(ctx, requestID, domain.ProviderOracle, func(_ context.Context, _ domain.Entry) (settlement.Delivery, error) {
		return settlement.Delivery{Draws: words, Bonus: bonus}, nil
	})
}

// OracleSink adapts the engine to the oracle dispatcher.
func (s *Service) OracleSink() oracle.Sink { return oracleSink{s} }

type oracleSink struct{ s *Service }

func (o oracleSink) FulfillOracle(ctx context.Context, caller, requestID string, words []*big.Int, bonus []bool) error {
	_, err := o.s.FulfillOracle(ctx, caller, requestID, words, bonus)
	return err
}

func (s *Service) localDelivery() (deliverFunc, error) {
	p, err := s.providers.Get(domain.ProviderLocal)
	if err != nil {
		return nil, err
	}
	deriver, ok := p.(LocalDeriver)
	if !ok {
		return nil, fmt.Errorf("%w: local provider cannot derive draws", domain.ErrUnknownProvider)
	}
	return func(ctx context.Context, e domain.Entry) (settlement.Delivery, error) {
		draws, err := deriver.Derive(ctx, e)
		if err != nil {
			return settlement.Delivery{}, err
		}
		return settlement.Delivery{Draws: draws}, nil
	}, nil
}

// resolveLocked settles requestID when it is live and was issued by kind. The
// entry is closed before any posting so a second attempt on the same id finds
// only its tombstone. Callers hold s.mu.
func (s *Service) resolveLocked(ctx context.Context, requestID string, kind domain.ProviderKind, deliver deliverFunc) (domain.Outcome, error) {
	entry, err := s.store.GetEntryByRequest(ctx, requestID)
	if err != nil {
		return domain.Outcome{}, err
	}
	if entry.Provider != kind {
		return domain.Outcome{}, fmt.Errorf("%w: %s was issued by the %s provider", domain.ErrRequestNotInProgress, requestID, entry.Provider)
	}
	p, err := policy.Lookup(entry.Game)
	if err != nil {
		return domain.Outcome{}, err
	}

	delivery, err := deliver(ctx, entry)
	if err != nil {
		s.rejectDelivery(ctx, entry, err)
		return domain.Outcome{}, err
	}
	out, err := settlement.Settle(p, entry, delivery)
	if err != nil {
		s.rejectDelivery(ctx, entry, err)
		return domain.Outcome{}, err
	}

	closed, err := s.store.CloseEntry(ctx, requestID, state.StatusResolved)
	if err != nil {
		return domain.Outcome{}, err
	}
	cfg := s.registry.Snapshot()
	postings := []ledger.Posting{
		{Account: closed.Player, Amount: out.TotalPayout, TxType: ledger.TxTypePayout},
		{Account: closed.Player, Amount: out.Refund, TxType: ledger.TxTypeRefund},
		{Account: cfg.Host, Amount: out.HostTotal, TxType: ledger.TxTypeHost},
		{Account: cfg.Treasury, Amount: out.ProtocolTotal, TxType: ledger.TxTypeProtocol},
	}
	if err := ledger.Apply(ctx, s.ledger, "settle:"+requestID, postings); err != nil {
		s.restore(ctx, closed, err)
		return domain.Outcome{}, fmt.Errorf("apply settlement: %w", err)
	}

	s.mintBonuses(ctx, closed, &out)
	s.recordResolved(ctx, closed, out)
	return out, nil
}

func (s *Service) rejectDelivery(ctx context.Context, e domain.Entry, err error) {
	events.NewEvent(events.EventDeliveryRejected).
		Severity(events.SeverityWarning).
		Player(e.Player).
		Request(e.RequestID).
		Provider(string(e.Provider)).
		Message(err.Error()).
		With("reason", domain.Code(err)).
		LogToWithContext(ctx, s.events)
}

// mintBonuses issues collectibles for bonus units. Failures are counted on out
// and never undo the settlement.
func (s *Service) mintBonuses(ctx context.Context, e domain.Entry, out *domain.Outcome) {
	idx := settlement.Bonuses(*out)
	if len(idx) == 0 || s.issuer == nil {
		return
	}
	for _, i := range idx {
		unit := out.Units[i]
		_, err := s.issuer.MintBonus(ctx, e.Player, collectible.Metadata{
			Game:       string(e.Game),
			RequestID:  e.RequestID,
			Unit:       i,
			Wager:      e.WagerAmount.String(),
			Multiplier: unit.Multiplier.String(),
			PPV:        e.Terms.PPV.String(),
		})
		s.metrics.RecordBonusMint(err)
		if err != nil {
			out.BonusFailures++
			s.log.WithContext(ctx).
				WithError(err).
				WithField("request_id", e.RequestID).
				WithField("unit", i).
				Warn("bonus mint failed")
			events.NewEvent(events.EventBonusMintFailed).
				Player(e.Player).
				Request(e.RequestID).
				ErrorFrom(err).
				With("unit", i).
				LogToWithContext(ctx, s.events)
			continue
		}
		out.BonusesMinted++
	}
}

func (s *Service) recordResolved(ctx context.Context, e domain.Entry, out domain.Outcome) {
	classes := make([]string, len(out.Units))
	payouts := make([]string, len(out.Units))
	for i, u := range out.Units {
		classes[i] = string(u.Class)
		payouts[i] = u.PlayerPayout.String()
		s.metrics.RecordUnit(string(e.Game), string(u.Class))
	}
	if out.StoppedEarly {
		s.metrics.RecordStoppedEarly()
	}
	s.metrics.RecordResolved(string(e.Game), string(e.Provider), s.now().Sub(e.CreatedAt))
	s.metrics.RecordVolume("payout", out.TotalPayout)
	s.metrics.RecordVolume("refunded", out.Refund)
	s.metrics.RecordVolume("host", out.HostTotal)
	s.metrics.RecordVolume("protocol", out.ProtocolTotal)

	events.NewEvent(events.EventEntryResolved).
		Player(e.Player).
		Request(e.RequestID).
		Provider(string(e.Provider)).
		With("game", string(e.Game)).
		With("classes", classes).
		With("payouts", payouts).
		With("units_played", out.UnitsPlayed).
		With("refund", out.Refund.String()).
		With("host_total", out.HostTotal.String()).
		With("protocol_total", out.ProtocolTotal.String()).
		With("stopped_early", out.StoppedEarly).
		With("bonuses_minted", out.BonusesMinted).
		With("bonus_failures", out.BonusFailures).
		LogToWithContext(ctx, s.events)

	s.log.WithContext(ctx).
		WithField("player", e.Player).
		WithField("request_id", e.RequestID).
		WithField("units_played", out.UnitsPlayed).
		WithField("net", out.NetChange(e.Locked()).String()).
		Info("entry resolved")
}
