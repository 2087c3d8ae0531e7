// Package storagetest holds a behavioural suite every EntryStore must pass.
package storagetest

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
	"github.com/R3E-Network/wager_layer/internal/engine/state"
)

// SampleEntry returns a fully populated entry for player.
func SampleEntry(player, requestID string, height uint64) wager.Entry {
	return wager.Entry{
		Player:            player,
		Game:              wager.GameCoinFlip,
		Choice:            1,
		WagerAmount:       big.NewInt(1000),
		UnitCount:         2,
		StopLoss:          big.NewInt(0),
		StopGain:          big.NewInt(500),
		RequestID:         requestID,
		SubmittedAtHeight: height,
		Provider:          wager.ProviderLocal,
		Terms: wager.Terms{
			PPV:           big.NewInt(10),
			HostShare:     big.NewInt(15),
			ProtocolShare: big.NewInt(5),
			EdgeMode:      wager.EdgeModeDiscount,
		},
		Seed: []byte{1, 2, 3},
	}
}

// Run exercises newStore against the EntryStore contract.
func Run(t *testing.T, newStore func(t *testing.T) storage.EntryStore) {
	ctx := context.Background()

	t.Run("create and lookup", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateEntry(ctx, SampleEntry("alice", "req-1", 10)))

		byPlayer, err := s.GetEntry(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "req-1", byPlayer.RequestID)
		assert.Equal(t, "1000", byPlayer.WagerAmount.String())
		assert.Equal(t, wager.EdgeModeDiscount, byPlayer.Terms.EdgeMode)
		assert.Equal(t, []byte{1, 2, 3}, byPlayer.Seed)

		byReq, err := s.GetEntryByRequest(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, "alice", byReq.Player)
		assert.Equal(t, uint64(10), byReq.SubmittedAtHeight)
	})

	t.Run("one entry per player", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateEntry(ctx, SampleEntry("alice", "req-1", 1)))
		err := s.CreateEntry(ctx, SampleEntry("alice", "req-2", 2))
		assert.ErrorIs(t, err, wager.ErrEntryInProgress)

		err = s.CreateEntry(ctx, SampleEntry("bob", "req-1", 2))
		assert.ErrorIs(t, err, storage.ErrDuplicateRequest)

		require.NoError(t, s.CreateEntry(ctx, SampleEntry("bob", "req-3", 3)))
		all, err := s.ListEntries(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("unknown lookups", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetEntry(ctx, "nobody")
		assert.ErrorIs(t, err, wager.ErrEntryNotInProgress)
		_, err = s.GetEntryByRequest(ctx, "nope")
		assert.ErrorIs(t, err, wager.ErrRequestNotInProgress)
		_, err = s.CloseEntry(ctx, "nope", state.StatusResolved)
		assert.ErrorIs(t, err, wager.ErrRequestNotInProgress)
	})

	t.Run("close writes tombstone", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateEntry(ctx, SampleEntry("alice", "req-1", 1)))

		closed, err := s.CloseEntry(ctx, "req-1", state.StatusWithdrawn)
		require.NoError(t, err)
		assert.Equal(t, "alice", closed.Player)

		_, err = s.GetEntry(ctx, "alice")
		assert.ErrorIs(t, err, wager.ErrEntryNotInProgress)
		_, err = s.GetEntryByRequest(ctx, "req-1")
		assert.ErrorIs(t, err, wager.ErrRequestNotResolvable)
		_, err = s.CloseEntry(ctx, "req-1", state.StatusResolved)
		assert.ErrorIs(t, err, wager.ErrRequestNotResolvable)

		tomb, err := s.GetTombstone(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, state.StatusWithdrawn, tomb.Status)

		// terminal entries free the player
		require.NoError(t, s.CreateEntry(ctx, SampleEntry("alice", "req-2", 5)))
		err = s.CreateEntry(ctx, SampleEntry("carol", "req-1", 5))
		assert.ErrorIs(t, err, storage.ErrDuplicateRequest)
	})

	t.Run("close rejects non-terminal status", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateEntry(ctx, SampleEntry("alice", "req-1", 1)))
		_, err := s.CloseEntry(ctx, "req-1", state.StatusSubmitted)
		var te state.TransitionError
		assert.ErrorAs(t, err, &te)
		_, err = s.GetEntry(ctx, "alice")
		assert.NoError(t, err)
	})

	t.Run("restore undoes close", func(t *testing.T) {
		s := newStore(t)
		e := SampleEntry("alice", "req-1", 1)
		require.NoError(t, s.CreateEntry(ctx, e))
		closed, err := s.CloseEntry(ctx, "req-1", state.StatusResolved)
		require.NoError(t, err)
		require.NoError(t, s.RestoreEntry(ctx, closed))

		got, err := s.GetEntryByRequest(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Player)
		_, err = s.GetTombstone(ctx, "req-1")
		assert.ErrorIs(t, err, wager.ErrRequestNotInProgress)
	})
}
