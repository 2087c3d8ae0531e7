package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/randomness"
	"github.com/R3E-Network/wager_layer/internal/chain"
)

func TestRequestIssuesUniqueTickets(t *testing.T) {
	p := New(chain.NewManual(10))
	assert.Equal(t, wager.ProviderLocal, p.Kind())

	a, err := p.Request(context.Background(), randomness.Request{Player: "alice", Count: 2, Height: 10})
	require.NoError(t, err)
	b, err := p.Request(context.Background(), randomness.Request{Player: "alice", Count: 2, Height: 10})
	require.NoError(t, err)

	assert.NotEqual(t, a.RequestID, b.RequestID)
	assert.Len(t, a.Seed, randomness.SeedSize)
	assert.Equal(t, uint64(10), a.Meta["commit_height"])
}

func TestDeriveWaitsForNextBlock(t *testing.T) {
	heads := chain.NewManual(10)
	p := New(heads)
	e := wager.Entry{RequestID: "req-1", SubmittedAtHeight: 10, UnitCount: 3, Seed: []byte{1, 2, 3}}

	_, err := p.Derive(context.Background(), e)
	assert.ErrorIs(t, err, wager.ErrDrawsUnavailable)

	heads.Advance(1)
	first, err := p.Derive(context.Background(), e)
	require.NoError(t, err)
	require.Len(t, first, 3)

	// later heads do not change the draws
	heads.Advance(50)
	again, err := p.Derive(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	e.Seed = []byte{9}
	other, err := p.Derive(context.Background(), e)
	require.NoError(t, err)
	assert.NotEqual(t, first[0], other[0])
}
