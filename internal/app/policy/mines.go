package policy

import (
	"math/big"
	"math/bits"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
)

// BoardSize is the number of cells on the mines board.
const BoardSize = 25

const (
	revealMask = uint64(1)<<BoardSize - 1
	bombShift  = 32
	bombMask   = uint64(0xff) << bombShift
)

// MinesChoice encodes a bomb count and the cells to reveal.
func MinesChoice(bombs int, cells ...int) wager.Choice {
	c := uint64(bombs) << bombShift
	for _, cell := range cells {
		c |= 1 << uint(cell)
	}
	return wager.Choice(c)
}

// DecodeMines splits a mines choice into bomb count and reveal bitmap.
func DecodeMines(c wager.Choice) (bombs int, reveal uint32) {
	v := uint64(c)
	return int((v & bombMask) >> bombShift), uint32(v & revealMask)
}

// MinesMultiplier returns prod_{k=0}^{reveals-1} (N-k)/(N-k-bombs) in 1e18 fixed
// point, flooring after every factor.
func MinesMultiplier(bombs, reveals int) *big.Int {
	m := fixedpoint.One()
	for k := 0; k < reveals; k++ {
		m.Mul(m, big.NewInt(int64(BoardSize-k)))
		m.Quo(m, big.NewInt(int64(BoardSize-k-bombs)))
	}
	return m
}

// MinesLayout returns the bomb bitmap derived from draw by a Fisher-Yates
// shuffle that consumes the draw as a mixed-radix number.
func MinesLayout(draw *big.Int, bombs int) uint32 {
	var cells [BoardSize]int
	for i := range cells {
		cells[i] = i
	}
	r := new(big.Int).Set(draw)
	radix := new(big.Int)
	digit := new(big.Int)
	for i := BoardSize - 1; i > 0; i-- {
		radix.SetInt64(int64(i + 1))
		r.QuoRem(r, radix, digit)
		j := int(digit.Int64())
		cells[i], cells[j] = cells[j], cells[i]
	}
	var layout uint32
	for _, cell := range cells[:bombs] {
		layout |= 1 << uint(cell)
	}
	return layout
}

// Mines is the reveal game: the player wins the survival multiplier when none of
// the revealed cells holds a bomb.
type Mines struct{}

func (Mines) Game() wager.Game { return wager.GameMines }

func (Mines) Validate(c wager.Choice) error {
	if uint64(c)&^(revealMask|bombMask) != 0 {
		return wager.ErrInvalidChoice
	}
	bombs, reveal := DecodeMines(c)
	if bombs < 1 || bombs >= BoardSize {
		return wager.ErrInvalidChoice
	}
	if n := bits.OnesCount32(reveal); n == 0 || n > BoardSize-bombs {
		return wager.ErrInvalidChoice
	}
	return nil
}

func (Mines) Evaluate(c wager.Choice, draw *big.Int) Result {
	bombs, reveal := DecodeMines(c)
	if MinesLayout(draw, bombs)&reveal != 0 {
		return lose()
	}
	return win(MinesMultiplier(bombs, bits.OnesCount32(reveal)))
}
