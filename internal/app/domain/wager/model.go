// Package wager holds the domain model shared by the entry lifecycle, randomness
// providers and settlement.
package wager

import (
	"math/big"
	"time"

	"github.com/R3E-Network/wager_layer/internal/engine/state"
)

// Game identifies a payout policy.
type Game string

const (
	GameCoinFlip Game = "coinflip"
	GameRPS      Game = "rps"
	GameMines    Game = "mines"
	GameRoulette Game = "roulette"
)

// ProviderKind identifies the randomness adapter that issued a request.
type ProviderKind string

const (
	ProviderLocal  ProviderKind = "local"
	ProviderVRF    ProviderKind = "vrf"
	ProviderOracle ProviderKind = "oracle"
)

// Valid reports whether k names a known adapter.
func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderLocal, ProviderVRF, ProviderOracle:
		return true
	}
	return false
}

// EdgeMode selects how the house edge is realized.
type EdgeMode string

const (
	// EdgeModeBonus pays the full multiplier and may mint a bonus collectible.
	EdgeModeBonus EdgeMode = "bonus"
	// EdgeModeDiscount multiplies every payout by (1 - ppv).
	EdgeModeDiscount EdgeMode = "discount"
)

// Valid reports whether m is a known mode.
func (m EdgeMode) Valid() bool {
	return m == EdgeModeBonus || m == EdgeModeDiscount
}

// Choice is a game-specific encoded selection.
type Choice uint64

// Classification is the outcome class of one unit.
type Classification string

const (
	Win  Classification = "win"
	Lose Classification = "lose"
	Draw Classification = "draw"
)

// Terms are the economic parameters captured when an entry is submitted.
type Terms struct {
	PPV           *big.Int `json:"ppv"`
	HostShare     *big.Int `json:"host_share"`
	ProtocolShare *big.Int `json:"protocol_share"`
	EdgeMode      EdgeMode `json:"edge_mode"`
}

// Entry is a player's in-flight wager awaiting resolution.
type Entry struct {
	Player            string       `json:"player"`
	Game              Game         `json:"game"`
	Choice            Choice       `json:"choice"`
	WagerAmount       *big.Int     `json:"wager_amount"`
	UnitCount         int          `json:"unit_count"`
	StopLoss          *big.Int     `json:"stop_loss"`
	StopGain          *big.Int     `json:"stop_gain"`
	RequestID         string       `json:"request_id"`
	SubmittedAtHeight uint64       `json:"submitted_at_height"`
	Provider          ProviderKind `json:"provider"`
	Terms             Terms        `json:"terms"`
	Seed              []byte       `json:"seed,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Locked returns the total amount debited at submission.
func (e Entry) Locked() *big.Int {
	return new(big.Int).Mul(e.WagerAmount, big.NewInt(int64(e.UnitCount)))
}

// Request returns the correlation record for this entry.
func (e Entry) Request() Request {
	return Request{
		ID:                e.RequestID,
		Player:            e.Player,
		Provider:          e.Provider,
		ExpectedDrawCount: e.UnitCount,
	}
}

// Request correlates a randomness request id with the entry awaiting it.
type Request struct {
	ID                string       `json:"id"`
	Player            string       `json:"player"`
	Provider          ProviderKind `json:"provider"`
	ExpectedDrawCount int          `json:"expected_draw_count"`
}

// UnitOutcome is the settlement of one played unit.
type UnitOutcome struct {
	Index          int            `json:"index"`
	Class          Classification `json:"class"`
	Multiplier     *big.Int       `json:"multiplier"`
	PlayerPayout   *big.Int       `json:"player_payout"`
	HostPayout     *big.Int       `json:"host_payout"`
	ProtocolPayout *big.Int       `json:"protocol_payout"`
	Bonus          bool           `json:"bonus"`
}

// Outcome aggregates a whole entry's resolution.
type Outcome struct {
	Player        string        `json:"player"`
	RequestID     string        `json:"request_id"`
	Units         []UnitOutcome `json:"units"`
	UnitsPlayed   int           `json:"units_played"`
	TotalPayout   *big.Int      `json:"total_payout"`
	Refund        *big.Int      `json:"refund"`
	HostTotal     *big.Int      `json:"host_total"`
	ProtocolTotal *big.Int      `json:"protocol_total"`
	BonusesMinted int           `json:"bonuses_minted"`
	BonusFailures int           `json:"bonus_failures,omitempty"`
	StoppedEarly  bool          `json:"stopped_early"`
}

// NetChange returns payout plus refund minus the locked stake.
func (o Outcome) NetChange(locked *big.Int) *big.Int {
	out := new(big.Int).Add(o.TotalPayout, o.Refund)
	return out.Sub(out, locked)
}

// Tombstone records how a request id left the ledger.
type Tombstone struct {
	RequestID string       `json:"request_id"`
	Player    string       `json:"player"`
	Status    state.Status `json:"status"`
	ClosedAt  time.Time    `json:"closed_at"`
}
