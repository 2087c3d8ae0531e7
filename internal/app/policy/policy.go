// Package policy implements the per-game payout functions.
//
// A policy maps a validated choice and one 256-bit draw to a 1e18-scaled
// multiplier and a classification. Policies are pure and hold no state.
package policy

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
)

// Result is the evaluation of one unit.
type Result struct {
	Multiplier *big.Int
	Class      wager.Classification
}

// Policy is the payout function of one game variant.
type Policy interface {
	Game() wager.Game
	// Validate returns wager.ErrInvalidChoice when c is outside the game's domain.
	Validate(c wager.Choice) error
	// Evaluate assumes c passed Validate.
	Evaluate(c wager.Choice, draw *big.Int) Result
}

var registry = map[wager.Game]Policy{
	wager.GameCoinFlip: CoinFlip{},
	wager.GameRPS:      RPS{},
	wager.GameMines:    Mines{},
	wager.GameRoulette: Roulette{},
}

// Lookup returns the policy registered for game.
func Lookup(game wager.Game) (Policy, error) {
	p, ok := registry[game]
	if !ok {
		return nil, fmt.Errorf("unknown game %q", game)
	}
	return p, nil
}

// Games lists registered games in name order.
func Games() []wager.Game {
	out := make([]wager.Game, 0, len(registry))
	for g := range registry {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var bonusModulus = fixedpoint.One()

// BonusFired is the policy-reported bonus signal. It reads the upper 128 bits of
// the draw so it stays independent of the low bits the payout functions consume,
// and fires with probability ppv/1e18.
func BonusFired(draw, ppv *big.Int) bool {
	if draw == nil || fixedpoint.IsZero(ppv) {
		return false
	}
	hi := new(big.Int).Rsh(draw, 128)
	hi.Mod(hi, bonusModulus)
	return hi.Cmp(ppv) < 0
}

func win(m *big.Int) Result { return Result{Multiplier: m, Class: wager.Win} }

func lose() Result { return Result{Multiplier: fixedpoint.Zero(), Class: wager.Lose} }

func push() Result { return Result{Multiplier: fixedpoint.One(), Class: wager.Draw} }

func modSmall(d *big.Int, n int64) int64 {
	return new(big.Int).Mod(d, big.NewInt(n)).Int64()
}
