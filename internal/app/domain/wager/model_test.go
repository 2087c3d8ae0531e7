package wager

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeUnwraps(t *testing.T) {
	assert.Equal(t, "ENTRY_IN_PROGRESS", Code(ErrEntryInProgress))
	assert.Equal(t, "COUNT_EXCEEDS_MAX", Code(fmt.Errorf("submit: %w", ErrCountExceedsMax)))
	assert.Equal(t, "INTERNAL", Code(errors.New("boom")))
	assert.Equal(t, "INTERNAL", Code(nil))
}

func TestEntryLockedAndRequest(t *testing.T) {
	e := Entry{
		Player:      "alice",
		WagerAmount: big.NewInt(250),
		UnitCount:   4,
		RequestID:   "req-1",
		Provider:    ProviderOracle,
	}
	assert.Equal(t, big.NewInt(1000), e.Locked())
	assert.Equal(t, Request{ID: "req-1", Player: "alice", Provider: ProviderOracle, ExpectedDrawCount: 4}, e.Request())
}

func TestOutcomeNetChange(t *testing.T) {
	o := Outcome{TotalPayout: big.NewInt(700), Refund: big.NewInt(200)}
	assert.Equal(t, big.NewInt(-100), o.NetChange(big.NewInt(1000)))
}

func TestKindsAndModes(t *testing.T) {
	assert.True(t, ProviderVRF.Valid())
	assert.False(t, ProviderKind("chainlink").Valid())
	assert.True(t, EdgeModeBonus.Valid())
	assert.False(t, EdgeMode("rebate").Valid())
}
