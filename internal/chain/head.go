package chain

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// Head is a chain position.
type Head struct {
	Height uint64
	Hash   []byte
	Time   time.Time
}

// HeadSource reports the current chain head and historic blocks.
type HeadSource interface {
	Head(ctx context.Context) (Head, error)
	HeadAt(ctx context.Context, height uint64) (Head, error)
}

var (
	_ HeadSource = (*Client)(nil)
	_ HeadSource = (*Clock)(nil)
	_ HeadSource = (*Manual)(nil)
)

// Clock derives a synthetic height from wall time. Block hashes are
// sha256(salt || height), so they are only as unpredictable as the salt.
type Clock struct {
	genesis  time.Time
	interval time.Duration
	salt     []byte
	now      func() time.Time
}

// NewClock creates a clock that produces one block every interval from genesis.
func NewClock(genesis time.Time, interval time.Duration, salt []byte) *Clock {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Clock{genesis: genesis, interval: interval, salt: append([]byte(nil), salt...), now: time.Now}
}

func (c *Clock) Head(ctx context.Context) (Head, error) {
	elapsed := c.now().Sub(c.genesis)
	if elapsed < 0 {
		elapsed = 0
	}
	return c.HeadAt(ctx, uint64(elapsed/c.interval))
}

func (c *Clock) HeadAt(_ context.Context, height uint64) (Head, error) {
	return Head{
		Height: height,
		Hash:   syntheticHash(c.salt, height),
		Time:   c.genesis.Add(time.Duration(height) * c.interval),
	}, nil
}

// Manual is a HeadSource advanced explicitly by tests and simulations.
type Manual struct {
	mu     sync.Mutex
	height uint64
	salt   []byte
}

// NewManual creates a manual source at height.
func NewManual(height uint64) *Manual {
	return &Manual{height: height, salt: []byte("manual")}
}

// Advance moves the head forward by n blocks and returns the new height.
func (m *Manual) Advance(n uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height += n
	return m.height
}

// Set moves the head to height.
func (m *Manual) Set(height uint64) {
	m.mu.Lock()
	m.height = height
	m.mu.Unlock()
}

func (m *Manual) Head(ctx context.Context) (Head, error) {
	m.mu.Lock()
	h := m.height
	m.mu.Unlock()
	return m.HeadAt(ctx, h)
}

func (m *Manual) HeadAt(_ context.Context, height uint64) (Head, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if height > m.height {
		return Head{}, fmt.Errorf("height %d is above head %d", height, m.height)
	}
	return Head{Height: height, Hash: syntheticHash(m.salt, height), Time: time.Unix(int64(height), 0).UTC()}, nil
}

func syntheticHash(salt []byte, height uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	h := sha256.New()
	h.Write(salt)
	h.Write(buf[:])
	return h.Sum(nil)
}
