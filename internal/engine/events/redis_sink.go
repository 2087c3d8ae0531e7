package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/wager_layer/internal/engine/bus"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// StreamClient is the subset of the go-redis client used by the sink.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
}

var _ StreamClient = (*redis.Client)(nil)

// RedisSink copies events into a Redis stream. Writes happen on a background
// goroutine; when the queue is full events are dropped and counted.
type RedisSink struct {
	client StreamClient
	stream string
	maxLen int64
	limits *bus.BusLimiter
	log    *logger.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	dropped int64
	wg      sync.WaitGroup
	once    sync.Once
}

// NewRedisSink creates a sink writing to stream, trimmed to roughly maxLen entries.
func NewRedisSink(client StreamClient, stream string, maxLen int64, log *logger.Logger) *RedisSink {
	if stream == "" {
		stream = "wager:events"
	}
	if log == nil {
		log = logger.NewDefault("events-redis")
	}
	return &RedisSink{
		client: client,
		stream: stream,
		maxLen: maxLen,
		log:    log,
		queue:  make(chan Event, 1024),
	}
}

// WithLimiter bounds concurrent stream writes.
func (s *RedisSink) WithLimiter(l *bus.BusLimiter) *RedisSink {
	s.limits = l
	return s
}

// Attach subscribes the sink to l and returns the unsubscribe function.
func (s *RedisSink) Attach(l EventLogger) func() {
	return l.Subscribe(s.enqueue)
}

// enqueue never blocks. Events arriving after Stop are counted as dropped;
// handlers can still run after detach when a Log call was already in flight.
func (s *RedisSink) enqueue(e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		atomic.AddInt64(&s.dropped, 1)
		return
	}
	select {
	case s.queue <- e:
	default:
		atomic.AddInt64(&s.dropped, 1)
	}
}

// Dropped returns how many events were discarded because the queue was full
// or the sink had stopped.
func (s *RedisSink) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

func (s *RedisSink) Name() string { return "events-redis" }

// Start drains the queue until Stop is called.
func (s *RedisSink) Start(ctx context.Context) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for e := range s.queue {
			writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			if err := s.Write(writeCtx, e); err != nil {
				s.log.WithError(err).WithField("event_type", e.Type).Warn("redis stream write failed")
			}
			cancel()
		}
	}()
	return nil
}

// Stop closes the queue and waits for pending writes.
func (s *RedisSink) Stop(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Write appends one event to the stream.
func (s *RedisSink) Write(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.limits.Do(ctx, bus.KindEventSink, func(ctx context.Context) error {
		return s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: s.maxLen > 0,
			Values: map[string]interface{}{
				"type":  string(e.Type),
				"event": string(payload),
			},
		}).Err()
	})
}

// Recent reads the newest n events back from the stream.
func (s *RedisSink) Recent(ctx context.Context, n int64) ([]Event, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", n).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["event"].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s has no event field", m.ID)
		}
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode stream entry %s: %w", m.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}
