// Package bus bounds concurrent outbound calls: oracle submissions, oracle
// polls and event sink writes each get their own permit pool so a slow remote
// cannot starve the others.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrLimitExceeded  = errors.New("concurrency limit exceeded")
	ErrAcquireTimeout = errors.New("acquire timeout")
	ErrLimiterClosed  = errors.New("limiter is closed")
)

// Kind names an outbound call class.
type Kind string

const (
	KindOracleSubmit Kind = "oracle_submit"
	KindOraclePoll   Kind = "oracle_poll"
	KindEventSink    Kind = "event_sink"
)

// LimiterConfig holds configuration for one permit pool.
type LimiterConfig struct {
	// MaxConcurrent of 0 means unlimited.
	MaxConcurrent int `yaml:"max_concurrent"`
	// AcquireTimeout of 0 waits until the context ends.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	// QueueSize of 0 means an unbounded queue.
	QueueSize int `yaml:"queue_size"`
}

// DefaultLimiterConfig returns the pool used for oracle traffic.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		MaxConcurrent:  8,
		AcquireTimeout: 10 * time.Second,
		QueueSize:      256,
	}
}

// Limiter is a counting semaphore with a bounded wait queue.
type Limiter struct {
	mu      sync.Mutex
	config  LimiterConfig
	permits chan struct{}
	waiting int32
	active  int32
	closed  bool

	totalAcquired int64
	totalRejected int64
	totalTimeouts int64
}

// NewLimiter creates a limiter.
func NewLimiter(config LimiterConfig) *Limiter {
	l := &Limiter{config: config}
	if config.MaxConcurrent > 0 {
		l.permits = make(chan struct{}, config.MaxConcurrent)
		for i := 0; i < config.MaxConcurrent; i++ {
			l.permits <- struct{}{}
		}
	}
	return l
}

// Acquire blocks until a permit is available, the context ends or the
// configured timeout elapses.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.permits == nil {
		l.granted()
		return nil
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLimiterClosed
	}
	if l.config.QueueSize > 0 && int(atomic.LoadInt32(&l.waiting)) >= l.config.QueueSize {
		l.mu.Unlock()
		atomic.AddInt64(&l.totalRejected, 1)
		return ErrLimitExceeded
	}
	atomic.AddInt32(&l.waiting, 1)
	l.mu.Unlock()
	defer atomic.AddInt32(&l.waiting, -1)

	var timeout <-chan time.Time
	if l.config.AcquireTimeout > 0 {
		timer := time.NewTimer(l.config.AcquireTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case _, ok := <-l.permits:
		if !ok {
			return ErrLimiterClosed
		}
		l.granted()
		return nil
	case <-ctx.Done():
		atomic.AddInt64(&l.totalTimeouts, 1)
		return ctx.Err()
	case <-timeout:
		atomic.AddInt64(&l.totalTimeouts, 1)
		return ErrAcquireTimeout
	}
}

// TryAcquire takes a permit without blocking.
func (l *Limiter) TryAcquire() bool {
	if l.permits == nil {
		l.granted()
		return true
	}
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return false
	}
	select {
	case _, ok := <-l.permits:
		if !ok {
			return false
		}
		l.granted()
		return true
	default:
		atomic.AddInt64(&l.totalRejected, 1)
		return false
	}
}

func (l *Limiter) granted() {
	atomic.AddInt32(&l.active, 1)
	atomic.AddInt64(&l.totalAcquired, 1)
}

// Release returns a permit.
func (l *Limiter) Release() {
	atomic.AddInt32(&l.active, -1)
	if l.permits == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.permits <- struct{}{}:
	default:
	}
}

// Close wakes every waiter with ErrLimiterClosed.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	if l.permits != nil {
		close(l.permits)
	}
}

// Stats is a point-in-time view of a limiter.
type Stats struct {
	MaxConcurrent int   `json:"max_concurrent"`
	Active        int   `json:"active"`
	Waiting       int   `json:"waiting"`
	TotalAcquired int64 `json:"total_acquired"`
	TotalRejected int64 `json:"total_rejected"`
	TotalTimeouts int64 `json:"total_timeouts"`
}

func (l *Limiter) Stats() Stats {
	return Stats{
		MaxConcurrent: l.config.MaxConcurrent,
		Active:        int(atomic.LoadInt32(&l.active)),
		Waiting:       int(atomic.LoadInt32(&l.waiting)),
		TotalAcquired: atomic.LoadInt64(&l.totalAcquired),
		TotalRejected: atomic.LoadInt64(&l.totalRejected),
		TotalTimeouts: atomic.LoadInt64(&l.totalTimeouts),
	}
}

// BusLimiter holds one Limiter per Kind. Kinds without a limiter are unlimited.
type BusLimiter struct {
	mu       sync.RWMutex
	limiters map[Kind]*Limiter
}

// NewBusLimiter creates an empty set of pools.
func NewBusLimiter() *BusLimiter {
	return &BusLimiter{limiters: make(map[Kind]*Limiter)}
}

// Configure replaces the pool for kind.
func (bl *BusLimiter) Configure(kind Kind, config LimiterConfig) {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	if existing, ok := bl.limiters[kind]; ok {
		existing.Close()
	}
	bl.limiters[kind] = NewLimiter(config)
}

func (bl *BusLimiter) get(kind Kind) *Limiter {
	if bl == nil {
		return nil
	}
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	return bl.limiters[kind]
}

// Do runs fn while holding a permit for kind.
func (bl *BusLimiter) Do(ctx context.Context, kind Kind, fn func(context.Context) error) error {
	l := bl.get(kind)
	if l == nil {
		return fn(ctx)
	}
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}

// Stats returns statistics for every configured kind.
func (bl *BusLimiter) Stats() map[Kind]Stats {
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	out := make(map[Kind]Stats, len(bl.limiters))
	for kind, l := range bl.limiters {
		out[kind] = l.Stats()
	}
	return out
}

// Close closes every pool.
func (bl *BusLimiter) Close() {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	for _, l := range bl.limiters {
		l.Close()
	}
	bl.limiters = make(map[Kind]*Limiter)
}
