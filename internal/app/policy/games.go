package policy

import (
	"math/big"
	"math/bits"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
)

// CoinFlip pays 2x when draw parity matches the chosen side (0 or 1).
type CoinFlip struct{}

func (CoinFlip) Game() wager.Game { return wager.GameCoinFlip }

func (CoinFlip) Validate(c wager.Choice) error {
	if c > 1 {
		return wager.ErrInvalidChoice
	}
	return nil
}

func (CoinFlip) Evaluate(c wager.Choice, draw *big.Int) Result {
	if modSmall(draw, 2) == int64(c) {
		return win(fixedpoint.FromInt(2))
	}
	return lose()
}

// RPS choices.
const (
	Rock wager.Choice = iota
	Paper
	Scissors
)

// RPS plays rock-paper-scissors against the house move draw mod 3.
// A win pays 2x and a tie returns the stake.
type RPS struct{}

func (RPS) Game() wager.Game { return wager.GameRPS }

func (RPS) Validate(c wager.Choice) error {
	if c > Scissors {
		return wager.ErrInvalidChoice
	}
	return nil
}

func (RPS) Evaluate(c wager.Choice, draw *big.Int) Result {
	house := modSmall(draw, 3)
	switch (int64(c) - house + 3) % 3 {
	case 0:
		return push()
	case 1:
		return win(fixedpoint.FromInt(2))
	default:
		return lose()
	}
}

// Roulette constants.
const (
	Pockets = 37

	pocketMask = uint64(1)<<Pockets - 1
)

// RouletteChoice encodes a set of pockets as a bitmap.
func RouletteChoice(pockets ...int) wager.Choice {
	var c uint64
	for _, p := range pockets {
		c |= 1 << uint(p)
	}
	return wager.Choice(c)
}

// Roulette spins pocket draw mod 37. A hit on k selected pockets pays 37/k.
type Roulette struct{}

func (Roulette) Game() wager.Game { return wager.GameRoulette }

func (Roulette) Validate(c wager.Choice) error {
	v := uint64(c)
	if v&^pocketMask != 0 {
		return wager.ErrInvalidChoice
	}
	if n := bits.OnesCount64(v); n == 0 || n >= Pockets {
		return wager.ErrInvalidChoice
	}
	return nil
}

func (Roulette) Evaluate(c wager.Choice, draw *big.Int) Result {
	pocket := modSmall(draw, Pockets)
	if uint64(c)&(1<<uint(pocket)) == 0 {
		return lose()
	}
	return win(fixedpoint.Ratio(Pockets, int64(bits.OnesCount64(uint64(c)))))
}
