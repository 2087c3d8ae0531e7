package oracle

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/engine/bus"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// Source lists requests still waiting for a provider.
type Source interface {
	PendingRequests(ctx context.Context, kind wager.ProviderKind) ([]wager.Request, error)
}

// Sink accepts oracle deliveries on behalf of caller.
type Sink interface {
	FulfillOracle(ctx context.Context, caller, requestID string, words []*big.Int, bonus []bool) error
}

// Dispatcher periodically polls the resolver for pending oracle requests and
// forwards finished ones to the sink under the oracle identity.
type Dispatcher struct {
	source   Source
	sink     Sink
	identity func() string
	log      *logger.Logger
	interval time.Duration
	resolver RequestResolver
	limits   *bus.BusLimiter

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	nextAttempt map[string]time.Time
	abandoned   map[string]string
}

// NewDispatcher constructs a lifecycle-managed oracle dispatcher.
func NewDispatcher(source Source, sink Sink, identity func() string, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("oracle-dispatcher")
	}
	return &Dispatcher{
		source:      source,
		sink:        sink,
		identity:    identity,
		log:         log,
		interval:    10 * time.Second,
		nextAttempt: make(map[string]time.Time),
		abandoned:   make(map[string]string),
	}
}

// WithResolver sets the resolver. A dispatcher without one stays idle.
func (d *Dispatcher) WithResolver(resolver RequestResolver) *Dispatcher {
	d.mu.Lock()
	d.resolver = resolver
	d.mu.Unlock()
	return d
}

// WithInterval overrides the polling interval.
func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithLimiter bounds concurrent polls.
func (d *Dispatcher) WithLimiter(l *bus.BusLimiter) *Dispatcher {
	d.limits = l
	return d
}

func (d *Dispatcher) Name() string { return "oracle-dispatcher" }

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.resolver == nil {
		d.mu.Unlock()
		d.log.Warn("oracle request resolver not configured; dispatcher disabled")
		return nil
	}
	if d.running {
		d.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.tick(runCtx)
			}
		}
	}()

	d.log.Info("oracle dispatcher started")
	return nil
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.log.Info("oracle dispatcher stopped")
	return nil
}

// Abandoned returns requests the oracle reported as failed, with its reason.
// Their entries stay open until the player withdraws.
func (d *Dispatcher) Abandoned() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.abandoned))
	for k, v := range d.abandoned {
		out[k] = v
	}
	return out
}

func (d *Dispatcher) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	reqs, err := d.source.PendingRequests(ctx, wager.ProviderOracle)
	if err != nil {
		d.log.WithError(err).Warn("oracle dispatcher tick failed")
		return
	}

	d.mu.Lock()
	resolver := d.resolver
	d.mu.Unlock()
	if resolver == nil {
		return
	}

	now := time.Now()
	for _, req := range reqs {
		if !d.shouldAttempt(req.ID, now) {
			continue
		}
		entry := d.log.WithField("request_id", req.ID)

		var res Result
		err := d.limits.Do(ctx, bus.KindOraclePoll, func(ctx context.Context) error {
			var err error
			res, err = resolver.Resolve(ctx, req)
			return err
		})
		if err != nil {
			entry.WithError(err).Warn("oracle resolver error")
			d.scheduleNext(req.ID, res.RetryAfter)
			continue
		}
		if !res.Done {
			d.scheduleNext(req.ID, res.RetryAfter)
			continue
		}
		if !res.Success {
			entry.WithField("reason", res.Error).Warn("oracle reported failure; entry left for withdrawal")
			d.abandon(req.ID, res.Error)
			continue
		}

		err = d.sink.FulfillOracle(ctx, d.identity(), req.ID, res.Words, res.Bonus)
		switch {
		case err == nil:
		case errors.Is(err, wager.ErrRequestNotInProgress), errors.Is(err, wager.ErrRequestNotResolvable):
			entry.WithError(err).Info("oracle request already closed")
		case errors.Is(err, wager.ErrInvalidDraws):
			entry.WithError(err).Warn("oracle delivered malformed words")
			d.abandon(req.ID, err.Error())
			continue
		default:
			entry.WithError(err).Warn("complete oracle request failed")
			d.scheduleNext(req.ID, 0)
			continue
		}
		d.clearSchedule(req.ID)
	}
	d.forgetClosed(reqs)
}

func (d *Dispatcher) shouldAttempt(id string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, gone := d.abandoned[id]; gone {
		return false
	}
	next, ok := d.nextAttempt[id]
	return !ok || now.After(next)
}

func (d *Dispatcher) scheduleNext(id string, after time.Duration) {
	if after <= 0 {
		after = d.interval
	}
	d.mu.Lock()
	d.nextAttempt[id] = time.Now().Add(after)
	d.mu.Unlock()
}

func (d *Dispatcher) abandon(id, reason string) {
	d.mu.Lock()
	delete(d.nextAttempt, id)
	d.abandoned[id] = reason
	d.mu.Unlock()
}

// forgetClosed drops retry and abandon state for requests that were settled
// or withdrawn through another path.
func (d *Dispatcher) forgetClosed(pending []wager.Request) {
	open := make(map[string]struct{}, len(pending))
	for _, req := range pending {
		open[req.ID] = struct{}{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for id := range d.nextAttempt {
		if _, ok := open[id]; !ok {
			delete(d.nextAttempt, id)
		}
	}
	for id := range d.abandoned {
		if _, ok := open[id]; !ok {
			delete(d.abandoned, id)
		}
	}
}

func (d *Dispatcher) clearSchedule(id string) {
	d.mu.Lock()
	delete(d.nextAttempt, id)
	d.mu.Unlock()
}
