package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/cheggaaa/pb/v3"
	"gonum.org/v1/gonum/stat"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/policy"
	"github.com/R3E-Network/wager_layer/internal/app/protocol"
	"github.com/R3E-Network/wager_layer/internal/app/randomness"
	"github.com/R3E-Network/wager_layer/internal/app/settlement"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
)

// simConfig describes one simulation run. Amounts are base units.
type simConfig struct {
	Game     wager.Game
	Choice   wager.Choice
	Wager    *big.Int
	Units    int
	Spins    int
	Seed     uint64
	PPV      *big.Int
	EdgeMode wager.EdgeMode
	StopLoss *big.Int
	StopGain *big.Int
}

// report summarises a run. RTP is (payout + refund) / locked per spin.
type report struct {
	Game          wager.Game `json:"game"`
	Spins         int        `json:"spins"`
	UnitsPlayed   int        `json:"units_played"`
	Wins          int        `json:"wins"`
	Draws         int        `json:"draws"`
	Bonuses       int        `json:"bonuses"`
	StoppedEarly  int        `json:"stopped_early"`
	RTPMean       float64    `json:"rtp_mean"`
	RTPStdDev     float64    `json:"rtp_std_dev"`
	HitRate       float64    `json:"hit_rate"`
	TotalLocked   string     `json:"total_locked"`
	TotalReturned string     `json:"total_returned"`
	HostTotal     string     `json:"host_total"`
	ProtocolTotal string     `json:"protocol_total"`
}

func simulate(cfg simConfig, progress io.Writer) (report, error) {
	p, err := policy.Lookup(cfg.Game)
	if err != nil {
		return report{}, err
	}
	if err := p.Validate(cfg.Choice); err != nil {
		return report{}, err
	}
	if cfg.Spins <= 0 || cfg.Units <= 0 {
		return report{}, fmt.Errorf("spins and units must be positive")
	}
	if cfg.Wager == nil || cfg.Wager.Sign() <= 0 {
		return report{}, wager.ErrZeroWager
	}

	pc := protocol.Default("sim")
	if cfg.PPV != nil {
		pc.PPV = cfg.PPV
	}
	if cfg.EdgeMode != "" {
		pc.EdgeMode = cfg.EdgeMode
	}
	if err := pc.Validate(); err != nil {
		return report{}, err
	}

	entry := wager.Entry{
		Player:      "sim",
		Game:        cfg.Game,
		Choice:      cfg.Choice,
		WagerAmount: cfg.Wager,
		UnitCount:   cfg.Units,
		StopLoss:    cfg.StopLoss,
		StopGain:    cfg.StopGain,
		Provider:    wager.ProviderLocal,
		Terms:       pc.Terms(),
	}
	locked := entry.Locked()

	bar := pb.StartNew(cfg.Spins)
	if progress == nil {
		progress = io.Discard
	}
	bar.SetWriter(progress)

	rep := report{Game: cfg.Game, Spins: cfg.Spins}
	rtp := make([]float64, cfg.Spins)
	totalLocked := fixedpoint.Zero()
	returned := fixedpoint.Zero()
	host := fixedpoint.Zero()
	proto := fixedpoint.Zero()

	prefix := make([]byte, 16)
	binary.BigEndian.PutUint64(prefix, cfg.Seed)
	for i := 0; i < cfg.Spins; i++ {
		binary.BigEndian.PutUint64(prefix[8:], uint64(i))
		entry.RequestID = fmt.Sprintf("sim-%d", i)
		out, err := settlement.Settle(p, entry, settlement.Delivery{Draws: randomness.Expand(prefix, cfg.Units)})
		if err != nil {
			bar.Finish()
			return report{}, fmt.Errorf("spin %d: %w", i, err)
		}

		back := fixedpoint.Add(out.TotalPayout, out.Refund)
		rtp[i] = ratio(back, locked)
		totalLocked.Add(totalLocked, locked)
		returned.Add(returned, back)
		host.Add(host, out.HostTotal)
		proto.Add(proto, out.ProtocolTotal)

		rep.UnitsPlayed += out.UnitsPlayed
		rep.Bonuses += len(settlement.Bonuses(out))
		if out.StoppedEarly {
			rep.StoppedEarly++
		}
		for _, u := range out.Units {
			switch u.Class {
			case wager.Win:
				rep.Wins++
			case wager.Draw:
				rep.Draws++
			}
		}
		bar.Increment()
	}
	bar.Finish()

	rep.RTPMean, rep.RTPStdDev = stat.MeanStdDev(rtp, nil)
	if rep.UnitsPlayed > 0 {
		rep.HitRate = float64(rep.Wins) / float64(rep.UnitsPlayed)
	}
	rep.TotalLocked = fixedpoint.Format(totalLocked)
	rep.TotalReturned = fixedpoint.Format(returned)
	rep.HostTotal = fixedpoint.Format(host)
	rep.ProtocolTotal = fixedpoint.Format(proto)
	return rep, nil
}

func ratio(num, den *big.Int) float64 {
	if den.Sign() == 0 {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(num), new(big.Float).SetInt(den)).Float64()
	return f
}
