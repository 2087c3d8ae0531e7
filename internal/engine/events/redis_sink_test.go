package events

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/wager_layer/pkg/logger"
)

type fakeStream struct {
	mu   sync.Mutex
	msgs []redis.XMessage
	err  error
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	values := a.Values.(map[string]interface{})
	f.msgs = append(f.msgs, redis.XMessage{ID: "1-0", Values: values})
	return redis.NewStringResult("1-0", nil)
}

func (f *fakeStream) XRevRangeN(_ context.Context, _, _, _ string, count int64) *redis.XMessageSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []redis.XMessage
	for i := len(f.msgs) - 1; i >= 0 && int64(len(out)) < count; i-- {
		out = append(out, f.msgs[i])
	}
	return redis.NewXMessageSliceCmdResult(out, nil)
}

func (f *fakeStream) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestRedisSinkForwardsEvents(t *testing.T) {
	client := &fakeStream{}
	sink := NewRedisSink(client, "", 100, logger.Discard())
	rb := NewRingBuffer(10)
	detach := sink.Attach(rb)
	require.NoError(t, sink.Start(context.Background()))

	NewEvent(EventEntrySubmitted).Player("alice").Request("req-1").LogTo(rb)
	NewEvent(EventEntryResolved).Player("alice").Request("req-1").LogTo(rb)
	detach()
	NewEvent(EventEntryWithdrawn).LogTo(rb)

	require.NoError(t, sink.Stop(context.Background()))
	assert.Equal(t, 2, client.len())

	recent, err := sink.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, EventEntryResolved, recent[0].Type)
	assert.Equal(t, "req-1", recent[0].RequestID)
	assert.Zero(t, sink.Dropped())
}

func TestRedisSinkLateEventAfterStop(t *testing.T) {
	sink := NewRedisSink(&fakeStream{}, "", 0, logger.Discard())
	rb := NewRingBuffer(10)

	entered := make(chan struct{})
	release := make(chan struct{})
	rb.Subscribe(func(Event) {
		close(entered)
		<-release
	})
	detach := sink.Attach(rb)
	require.NoError(t, sink.Start(context.Background()))

	logged := make(chan interface{}, 1)
	go func() {
		defer func() { logged <- recover() }()
		NewEvent(EventEntryResolved).Request("req-late").LogTo(rb)
	}()
	<-entered

	// The Log call above already holds a copy of the sink's handler.
	detach()
	require.NoError(t, sink.Stop(context.Background()))
	close(release)

	select {
	case r := <-logged:
		assert.Nil(t, r)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight Log did not return")
	}
	assert.Equal(t, int64(1), sink.Dropped())
}

func TestRedisSinkWriteError(t *testing.T) {
	sink := NewRedisSink(&fakeStream{err: errors.New("connection refused")}, "s", 0, logger.Discard())
	assert.Error(t, sink.Write(context.Background(), Event{Type: EventConfigChanged}))
}

func TestRedisSinkIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	stream := "wager:events:test:" + time.Now().Format("150405.000000")
	defer client.Del(context.Background(), stream)

	sink := NewRedisSink(client, stream, 10, logger.Discard())
	require.NoError(t, sink.Write(context.Background(), NewEvent(EventEntrySubmitted).Player("alice").Build()))
	recent, err := sink.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "alice", recent[0].Player)
}
