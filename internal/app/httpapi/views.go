package httpapi

import (
	"math/big"
	"time"

	domain "github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/protocol"
	wagersvc "github.com/R3E-Network/wager_layer/internal/app/services/wager"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
)

// Amounts are rendered as base-unit decimal strings and fractions such as the
// ppv as decimal fractions.

type termsView struct {
	PPV           string          `json:"ppv"`
	HostShare     string          `json:"host_share"`
	ProtocolShare string          `json:"protocol_share"`
	EdgeMode      domain.EdgeMode `json:"edge_mode"`
}

type entryView struct {
	Player            string              `json:"player"`
	Game              domain.Game         `json:"game"`
	Choice            domain.Choice       `json:"choice"`
	WagerAmount       string              `json:"wager_amount"`
	UnitCount         int                 `json:"unit_count"`
	Locked            string              `json:"locked"`
	StopLoss          string              `json:"stop_loss,omitempty"`
	StopGain          string              `json:"stop_gain,omitempty"`
	RequestID         string              `json:"request_id"`
	SubmittedAtHeight uint64              `json:"submitted_at_height"`
	Provider          domain.ProviderKind `json:"provider"`
	Terms             termsView           `json:"terms"`
	CreatedAt         time.Time           `json:"created_at"`
}

type unitView struct {
	Index          int                   `json:"index"`
	Class          domain.Classification `json:"class"`
	Multiplier     string                `json:"multiplier"`
	PlayerPayout   string                `json:"player_payout"`
	HostPayout     string                `json:"host_payout"`
	ProtocolPayout string                `json:"protocol_payout"`
	Bonus          bool                  `json:"bonus,omitempty"`
}

type outcomeView struct {
	Player        string     `json:"player"`
	RequestID     string     `json:"request_id"`
	Units         []unitView `json:"units"`
	UnitsPlayed   int        `json:"units_played"`
	TotalPayout   string     `json:"total_payout"`
	Refund        string     `json:"refund"`
	HostTotal     string     `json:"host_total"`
	ProtocolTotal string     `json:"protocol_total"`
	BonusesMinted int        `json:"bonuses_minted"`
	BonusFailures int        `json:"bonus_failures,omitempty"`
	StoppedEarly  bool       `json:"stopped_early"`
}

type batchView struct {
	Resolved []outcomeView      `json:"resolved"`
	Failed   []wagersvc.Failure `json:"failed"`
}

type configView struct {
	Owner             string                  `json:"owner"`
	Host              string                  `json:"host"`
	Treasury          string                  `json:"treasury"`
	Resolvers         []string                `json:"resolvers"`
	PPV               string                  `json:"ppv"`
	MinPPV            string                  `json:"min_ppv"`
	MaxPPV            string                  `json:"max_ppv"`
	HostShare         string                  `json:"host_share"`
	ProtocolShare     string                  `json:"protocol_share"`
	MinWager          string                  `json:"min_wager"`
	MaxUnitCount      int                     `json:"max_unit_count"`
	BatchResolveLimit int                     `json:"batch_resolve_limit"`
	WithdrawDelay     uint64                  `json:"withdraw_delay"`
	ActiveProvider    domain.ProviderKind     `json:"active_provider"`
	EdgeMode          domain.EdgeMode         `json:"edge_mode"`
	Providers         protocol.ProviderParams `json:"providers"`
}

func units(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func optionalUnits(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func newEntryView(e domain.Entry) entryView {
	return entryView{
		Player:            e.Player,
		Game:              e.Game,
		Choice:            e.Choice,
		WagerAmount:       units(e.WagerAmount),
		UnitCount:         e.UnitCount,
		Locked:            units(e.Locked()),
		StopLoss:          optionalUnits(e.StopLoss),
		StopGain:          optionalUnits(e.StopGain),
		RequestID:         e.RequestID,
		SubmittedAtHeight: e.SubmittedAtHeight,
		Provider:          e.Provider,
		Terms: termsView{
			PPV:           fixedpoint.Format(e.Terms.PPV),
			HostShare:     fixedpoint.Format(e.Terms.HostShare),
			ProtocolShare: fixedpoint.Format(e.Terms.ProtocolShare),
			EdgeMode:      e.Terms.EdgeMode,
		},
		CreatedAt: e.CreatedAt,
	}
}

func newOutcomeView(o domain.Outcome) outcomeView {
	out := outcomeView{
		Player:        o.Player,
		RequestID:     o.RequestID,
		Units:         make([]unitView, len(o.Units)),
		UnitsPlayed:   o.UnitsPlayed,
		TotalPayout:   units(o.TotalPayout),
		Refund:        units(o.Refund),
		HostTotal:     units(o.HostTotal),
		ProtocolTotal: units(o.ProtocolTotal),
		BonusesMinted: o.BonusesMinted,
		BonusFailures: o.BonusFailures,
		StoppedEarly:  o.StoppedEarly,
	}
	for i, u := range o.Units {
		out.Units[i] = unitView{
			Index:          u.Index,
			Class:          u.Class,
			Multiplier:     fixedpoint.Format(u.Multiplier),
			PlayerPayout:   units(u.PlayerPayout),
			HostPayout:     units(u.HostPayout),
			ProtocolPayout: units(u.ProtocolPayout),
			Bonus:          u.Bonus,
		}
	}
	return out
}

func newBatchView(res wagersvc.BatchResult) batchView {
	out := batchView{Resolved: make([]outcomeView, len(res.Resolved)), Failed: res.Failed}
	for i, o := range res.Resolved {
		out.Resolved[i] = newOutcomeView(o)
	}
	if out.Failed == nil {
		out.Failed = []wagersvc.Failure{}
	}
	return out
}

func newConfigView(c protocol.Config) configView {
	resolvers := c.Resolvers
	if resolvers == nil {
		resolvers = []string{}
	}
	return configView{
		Owner:             c.Owner,
		Host:              c.Host,
		Treasury:          c.Treasury,
		Resolvers:         resolvers,
		PPV:               fixedpoint.Format(c.PPV),
		MinPPV:            fixedpoint.Format(c.MinPPV),
		MaxPPV:            fixedpoint.Format(c.MaxPPV),
		HostShare:         fixedpoint.Format(c.HostShare),
		ProtocolShare:     fixedpoint.Format(c.ProtocolShare),
		MinWager:          units(c.MinWager),
		MaxUnitCount:      c.MaxUnitCount,
		BatchResolveLimit: c.BatchResolveLimit,
		WithdrawDelay:     c.WithdrawDelay,
		ActiveProvider:    c.ActiveProvider,
		EdgeMode:          c.EdgeMode,
		Providers:         c.Providers,
	}
}
