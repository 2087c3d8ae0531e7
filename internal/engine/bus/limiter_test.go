package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterCapsConcurrency(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 2})
	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !assert.NoError(t, l.Acquire(context.Background())) {
				return
			}
			defer l.Release()
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak, int32(2))
	assert.Equal(t, int64(10), l.Stats().TotalAcquired)
	assert.Equal(t, 0, l.Stats().Active)
}

func TestLimiterTryAcquire(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 1})
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
	assert.Equal(t, int64(1), l.Stats().TotalRejected)
}

func TestLimiterTimeouts(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 1, AcquireTimeout: 10 * time.Millisecond})
	require.NoError(t, l.Acquire(context.Background()))
	assert.ErrorIs(t, l.Acquire(context.Background()), ErrAcquireTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
	assert.Equal(t, int64(2), l.Stats().TotalTimeouts)
}

func TestLimiterQueueSize(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 1, QueueSize: 1})
	require.NoError(t, l.Acquire(context.Background()))

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- l.Acquire(context.Background())
	}()
	<-started
	require.Eventually(t, func() bool { return l.Stats().Waiting == 1 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, l.Acquire(context.Background()), ErrLimitExceeded)
	l.Release()
	assert.NoError(t, <-done)
}

func TestLimiterClose(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 1})
	l.Close()
	assert.ErrorIs(t, l.Acquire(context.Background()), ErrLimiterClosed)
	assert.False(t, l.TryAcquire())
	l.Close()
}

func TestUnlimitedLimiter(t *testing.T) {
	l := NewLimiter(LimiterConfig{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	assert.Equal(t, 100, l.Stats().Active)
}

func TestBusLimiterDo(t *testing.T) {
	bl := NewBusLimiter()
	bl.Configure(KindOracleSubmit, LimiterConfig{MaxConcurrent: 1})

	boom := errors.New("boom")
	err := bl.Do(context.Background(), KindOracleSubmit, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, bl.Stats()[KindOracleSubmit].Active)

	// unconfigured kinds run without a permit
	called := false
	require.NoError(t, bl.Do(context.Background(), KindEventSink, func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)

	bl.Close()
	assert.Empty(t, bl.Stats())

	var nilBus *BusLimiter
	assert.NoError(t, nilBus.Do(context.Background(), KindOraclePoll, func(context.Context) error { return nil }))
}
