package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/R3E-Network/wager_layer/pkg/logger"
)

func TestRingBuffer_Log(t *testing.T) {
	rb := NewRingBuffer(10)

	rb.Log(Event{
		Type:      EventEntrySubmitted,
		Player:    "alice",
		RequestID: "req-1",
	})

	if rb.Count() != 1 {
		t.Errorf("Count() = %d, want 1", rb.Count())
	}

	recent := rb.Recent(1)
	if len(recent) != 1 {
		t.Fatalf("Recent(1) len = %d, want 1", len(recent))
	}
	if recent[0].Player != "alice" {
		t.Errorf("Player = %q, want 'alice'", recent[0].Player)
	}
	if recent[0].ID == "" {
		t.Error("ID should be auto-generated")
	}
	if recent[0].Timestamp.IsZero() {
		t.Error("Timestamp should be auto-set")
	}
	if recent[0].Severity != SeverityInfo {
		t.Errorf("Severity = %q, want info", recent[0].Severity)
	}
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := NewRingBuffer(5)

	for i := 0; i < 10; i++ {
		rb.Log(Event{
			Type:    EventEntryResolved,
			Message: string(rune('A' + i)),
		})
	}

	if rb.Count() != 5 {
		t.Errorf("Count() = %d, want 5 (capped)", rb.Count())
	}

	recent := rb.Recent(5)
	if len(recent) != 5 {
		t.Fatalf("Recent(5) len = %d, want 5", len(recent))
	}
	// Most recent first
	if recent[0].Message != "J" {
		t.Errorf("Most recent message = %q, want 'J'", recent[0].Message)
	}
	if recent[4].Message != "F" {
		t.Errorf("Oldest message = %q, want 'F'", recent[4].Message)
	}

	rb.Clear()
	if rb.Count() != 0 || rb.Recent(1) != nil {
		t.Error("Clear should empty the buffer")
	}
}

func TestRingBuffer_Filters(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Log(Event{Type: EventEntrySubmitted, Player: "alice"})
	rb.Log(Event{Type: EventEntrySubmitted, Player: "bob"})
	rb.Log(Event{Type: EventEntryResolved, Player: "alice"})

	if got := rb.RecentByPlayer("alice", 10); len(got) != 2 {
		t.Errorf("RecentByPlayer(alice) len = %d, want 2", len(got))
	}
	if got := rb.RecentByType(EventEntrySubmitted, 1); len(got) != 1 || got[0].Player != "bob" {
		t.Errorf("RecentByType(submitted, 1) = %+v, want bob's event", got)
	}
	if got := rb.Recent(0); got != nil {
		t.Errorf("Recent(0) = %v, want nil", got)
	}
}

func TestRingBuffer_Subscribe(t *testing.T) {
	rb := NewRingBuffer(10)

	var all, resolved int32
	unsubscribe := rb.Subscribe(func(Event) { atomic.AddInt32(&all, 1) })
	rb.SubscribeFiltered(func(e Event) bool { return e.Type == EventEntryResolved },
		func(Event) { atomic.AddInt32(&resolved, 1) })

	rb.Log(Event{Type: EventEntrySubmitted})
	rb.Log(Event{Type: EventEntryResolved})
	unsubscribe()
	rb.Log(Event{Type: EventEntryResolved})

	if all != 2 {
		t.Errorf("all handler calls = %d, want 2", all)
	}
	if resolved != 2 {
		t.Errorf("filtered handler calls = %d, want 2", resolved)
	}
}

func TestRingBuffer_Concurrent(t *testing.T) {
	rb := NewRingBuffer(100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rb.Log(Event{Type: EventEntrySubmitted})
				rb.Recent(5)
			}
		}()
	}
	wg.Wait()
	if rb.Count() != 100 {
		t.Errorf("Count() = %d, want 100", rb.Count())
	}
}

func TestLogWithContext(t *testing.T) {
	rb := NewRingBuffer(10)
	ctx := logger.WithTraceID(context.Background(), "trace-1")
	ctx = logger.WithRequestID(ctx, "http-1")

	NewEvent(EventEntryWithdrawn).Player("alice").LogToWithContext(ctx, rb)

	e := rb.Recent(1)[0]
	if e.TraceID != "trace-1" || e.HTTPRequestID != "http-1" {
		t.Errorf("correlation = (%q, %q), want (trace-1, http-1)", e.TraceID, e.HTTPRequestID)
	}
}

func TestEventBuilder(t *testing.T) {
	e := NewEvent(EventBatchResolved).
		Player("resolver").
		Request("req-1").
		Provider("local").
		Message("batch done").
		With("failed", []string{"req-2"}).
		With("failure_count", 1).
		ErrorFrom(errors.New("partial")).
		Build()

	if e.ID == "" {
		t.Error("ID should be set")
	}
	if e.Severity != SeverityError {
		t.Errorf("Severity = %q, want error", e.Severity)
	}
	if e.Data["failure_count"] != 1 {
		t.Errorf("failure_count = %v, want 1", e.Data["failure_count"])
	}
	if e.String() == "" {
		t.Error("String() should render JSON")
	}

	var noop NoOpLogger
	NewEvent(EventConfigChanged).LogTo(noop)
	if noop.Recent(1) != nil {
		t.Error("NoOpLogger should not retain events")
	}
}
