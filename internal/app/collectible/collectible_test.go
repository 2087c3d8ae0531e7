package collectible

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndRender(t *testing.T) {
	m := NewMemory()
	id, err := m.MintBonus(context.Background(), "alice", Metadata{Game: "mines", RequestID: "req-1", Unit: 2, Wager: "1000"})
	require.NoError(t, err)

	owned := m.Owned("alice")
	require.Len(t, owned, 1)
	assert.Equal(t, id, owned[0].TokenID)
	assert.Empty(t, m.Owned("bob"))

	raw, err := m.Render(id)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc["name"], "Bonus mines")
	assert.Len(t, doc["attributes"], 6)

	_, err = m.Render("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMintRequiresAccount(t *testing.T) {
	_, err := NewMemory().MintBonus(context.Background(), "", Metadata{})
	assert.Error(t, err)
}
