// Package settlement computes the per-unit outcome of a resolved entry.
//
// Settle is pure: it reads the entry's captured terms and the delivered draws and
// returns the amounts to credit. Every product is floored at 1e18 scale in a
// fixed order so results are reproducible to the last base unit:
//
//	gross    = wager * m / 1e18
//	payout   = gross                       (bonus mode)
//	payout   = gross * (1e18 - ppv) / 1e18 (discount mode)
//	edge     = wager * ppv / 1e18
//	host     = edge * hostShare / 1e18
//	protocol = edge * protocolShare / 1e18
package settlement

import (
	"fmt"
	"math/big"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/policy"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
)

// Delivery is what a provider hands back for one request.
type Delivery struct {
	Draws []*big.Int
	// Bonus optionally carries one provider-reported flag per unit. When empty the
	// policy-reported signal is used.
	Bonus []bool
}

// Settle evaluates units in submission order, stopping after the first unit whose
// running net change crosses the entry's stop-loss or stop-gain. Units never
// played are refunded.
func Settle(p policy.Policy, entry wager.Entry, d Delivery) (wager.Outcome, error) {
	if len(d.Draws) != entry.UnitCount {
		return wager.Outcome{}, fmt.Errorf("%w: got %d draws for %d units", wager.ErrInvalidDraws, len(d.Draws), entry.UnitCount)
	}
	if len(d.Bonus) != 0 && len(d.Bonus) != entry.UnitCount {
		return wager.Outcome{}, fmt.Errorf("%w: got %d bonus flags for %d units", wager.ErrInvalidDraws, len(d.Bonus), entry.UnitCount)
	}

	terms := entry.Terms
	stake := entry.WagerAmount
	edge := fixedpoint.Mul(stake, terms.PPV)
	host := fixedpoint.Mul(edge, terms.HostShare)
	protocol := fixedpoint.Mul(edge, terms.ProtocolShare)
	discount := fixedpoint.Complement(terms.PPV)

	out := wager.Outcome{
		Player:        entry.Player,
		RequestID:     entry.RequestID,
		Units:         make([]wager.UnitOutcome, 0, entry.UnitCount),
		TotalPayout:   fixedpoint.Zero(),
		HostTotal:     fixedpoint.Zero(),
		ProtocolTotal: fixedpoint.Zero(),
	}
	net := fixedpoint.Zero()

	for i := 0; i < entry.UnitCount; i++ {
		res := p.Evaluate(entry.Choice, d.Draws[i])

		payout := fixedpoint.Mul(stake, res.Multiplier)
		bonus := false
		switch terms.EdgeMode {
		case wager.EdgeModeDiscount:
			payout = fixedpoint.Mul(payout, discount)
		default:
			if len(d.Bonus) > 0 {
				bonus = d.Bonus[i]
			} else {
				bonus = policy.BonusFired(d.Draws[i], terms.PPV)
			}
		}

		out.Units = append(out.Units, wager.UnitOutcome{
			Index:          i,
			Class:          res.Class,
			Multiplier:     res.Multiplier,
			PlayerPayout:   payout,
			HostPayout:     fixedpoint.Clone(host),
			ProtocolPayout: fixedpoint.Clone(protocol),
			Bonus:          bonus,
		})
		out.TotalPayout.Add(out.TotalPayout, payout)
		out.HostTotal.Add(out.HostTotal, host)
		out.ProtocolTotal.Add(out.ProtocolTotal, protocol)

		net.Add(net, payout)
		net.Sub(net, stake)
		if crossed(net, entry.StopLoss, entry.StopGain) {
			out.StoppedEarly = i+1 < entry.UnitCount
			break
		}
	}

	out.UnitsPlayed = len(out.Units)
	out.Refund = fixedpoint.MulInt(stake, int64(entry.UnitCount-out.UnitsPlayed))
	return out, nil
}

func crossed(net, stopLoss, stopGain *big.Int) bool {
	if stopLoss != nil && stopLoss.Sign() > 0 {
		if new(big.Int).Neg(stopLoss).Cmp(net) >= 0 {
			return true
		}
	}
	if stopGain != nil && stopGain.Sign() > 0 && net.Cmp(stopGain) >= 0 {
		return true
	}
	return false
}

// Bonuses returns the indices of played units that earned a bonus collectible.
func Bonuses(o wager.Outcome) []int {
	var idx []int
	for _, u := range o.Units {
		if u.Bonus {
			idx = append(idx, u.Index)
		}
	}
	return idx
}
