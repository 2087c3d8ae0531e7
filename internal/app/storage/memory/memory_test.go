package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/wager_layer/internal/app/storage"
	"github.com/R3E-Network/wager_layer/internal/app/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.EntryStore { return New() })
}

func TestStoreReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateEntry(ctx, storagetest.SampleEntry("alice", "req-1", 1)))

	e, err := s.GetEntry(ctx, "alice")
	require.NoError(t, err)
	e.WagerAmount.SetInt64(1)
	e.Seed[0] = 9

	again, err := s.GetEntry(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1000", again.WagerAmount.String())
	assert.Equal(t, byte(1), again.Seed[0])
}
