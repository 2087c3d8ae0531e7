package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/policy"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
)

func TestSimulateCoinFlip(t *testing.T) {
	rep, err := simulate(simConfig{
		Game:   wager.GameCoinFlip,
		Choice: 1,
		Wager:  fixedpoint.FromInt(10),
		Units:  4,
		Spins:  2000,
		Seed:   7,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 8000, rep.UnitsPlayed)
	assert.InDelta(t, 0.99, rep.RTPMean, 0.05)
	assert.InDelta(t, 0.5, rep.HitRate, 0.05)
	assert.Greater(t, rep.RTPStdDev, 0.0)
	// 8000 units * 10 tokens * 1% edge * 15% / 5%
	assert.Equal(t, "120", rep.HostTotal)
	assert.Equal(t, "40", rep.ProtocolTotal)
	assert.Equal(t, "80000", rep.TotalLocked)
}

func TestSimulateIsDeterministic(t *testing.T) {
	cfg := simConfig{
		Game:   wager.GameMines,
		Choice: policy.MinesChoice(5, 0, 1, 2),
		Wager:  fixedpoint.FromInt(1),
		Units:  3,
		Spins:  200,
		Seed:   42,
	}
	a, err := simulate(cfg, nil)
	require.NoError(t, err)
	b, err := simulate(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	cfg.Seed = 43
	c, err := simulate(cfg, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.TotalReturned, c.TotalReturned)
}

func TestSimulateStopGain(t *testing.T) {
	rep, err := simulate(simConfig{
		Game:     wager.GameCoinFlip,
		Choice:   0,
		Wager:    fixedpoint.FromInt(1),
		Units:    20,
		Spins:    100,
		Seed:     3,
		StopGain: fixedpoint.Ratio(1, 2),
	}, nil)
	require.NoError(t, err)
	assert.Greater(t, rep.StoppedEarly, 0)
	assert.Less(t, rep.UnitsPlayed, 2000)
}

func TestSimulateRejectsBadInput(t *testing.T) {
	_, err := simulate(simConfig{Game: "dice", Wager: fixedpoint.One(), Units: 1, Spins: 1}, nil)
	require.Error(t, err)

	_, err = simulate(simConfig{Game: wager.GameCoinFlip, Choice: 9, Wager: fixedpoint.One(), Units: 1, Spins: 1}, nil)
	require.ErrorIs(t, err, wager.ErrInvalidChoice)

	_, err = simulate(simConfig{Game: wager.GameCoinFlip, Choice: 1, Units: 1, Spins: 1}, nil)
	require.ErrorIs(t, err, wager.ErrZeroWager)

	_, err = simulate(simConfig{Game: wager.GameCoinFlip, Choice: 1, Wager: fixedpoint.One(), Units: 1, Spins: 1, PPV: fixedpoint.Ratio(1, 2)}, nil)
	require.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, report{Game: wager.GameRPS, Spins: 3, RTPMean: 0.97}))
	assert.Contains(t, buf.String(), "rps")
	assert.Contains(t, buf.String(), "0.970000")
}
