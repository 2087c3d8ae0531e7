// Package protocol holds the owner-mutable protocol configuration.
package protocol

import (
	"fmt"
	"math/big"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
)

// VRFParams configures the verifiable provider.
type VRFParams struct {
	SubscriptionID   uint64 `json:"subscription_id" yaml:"subscription_id"`
	KeyHash          string `json:"key_hash" yaml:"key_hash"`
	CallbackGasLimit uint32 `json:"callback_gas_limit" yaml:"callback_gas_limit"`
	// PublicKey is the hex-encoded BLS public key deliveries are verified against.
	PublicKey string `json:"public_key" yaml:"public_key"`
}

// OracleParams configures the third-party oracle provider.
type OracleParams struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// Identity is the only caller allowed to push oracle deliveries.
	Identity string `json:"identity" yaml:"identity"`
}

// ProviderParams groups per-provider connection parameters.
type ProviderParams struct {
	VRF    VRFParams    `json:"vrf" yaml:"vrf"`
	Oracle OracleParams `json:"oracle" yaml:"oracle"`
}

// Config is the process-wide protocol configuration.
type Config struct {
	Owner             string             `json:"owner"`
	Host              string             `json:"host"`
	Treasury          string             `json:"treasury"`
	Resolvers         []string           `json:"resolvers"`
	PPV               *big.Int           `json:"ppv"`
	MinPPV            *big.Int           `json:"min_ppv"`
	MaxPPV            *big.Int           `json:"max_ppv"`
	HostShare         *big.Int           `json:"host_share"`
	ProtocolShare     *big.Int           `json:"protocol_share"`
	MinWager          *big.Int           `json:"min_wager"`
	MaxUnitCount      int                `json:"max_unit_count"`
	BatchResolveLimit int                `json:"batch_resolve_limit"`
	WithdrawDelay     uint64             `json:"withdraw_delay"`
	ActiveProvider    wager.ProviderKind `json:"active_provider"`
	EdgeMode          wager.EdgeMode     `json:"edge_mode"`
	Providers         ProviderParams     `json:"providers"`
}

// Default returns the reference configuration: ppv 0.01 within [0, 0.1], host
// 15% and protocol 5% of ppv, up to 100 units, batches of 50 and a 250 block
// withdrawal delay on the local provider.
func Default(owner string) Config {
	return Config{
		Owner:             owner,
		Host:              owner,
		Treasury:          owner,
		PPV:               fixedpoint.Ratio(1, 100),
		MinPPV:            fixedpoint.Zero(),
		MaxPPV:            fixedpoint.Ratio(1, 10),
		HostShare:         fixedpoint.Ratio(15, 100),
		ProtocolShare:     fixedpoint.Ratio(5, 100),
		MinWager:          fixedpoint.Zero(),
		MaxUnitCount:      100,
		BatchResolveLimit: 50,
		WithdrawDelay:     250,
		ActiveProvider:    wager.ProviderLocal,
		EdgeMode:          wager.EdgeModeDiscount,
	}
}

// Terms captures the economic parameters an entry is settled with.
func (c Config) Terms() wager.Terms {
	return wager.Terms{
		PPV:           fixedpoint.Clone(c.PPV),
		HostShare:     fixedpoint.Clone(c.HostShare),
		ProtocolShare: fixedpoint.Clone(c.ProtocolShare),
		EdgeMode:      c.EdgeMode,
	}
}

// Validate checks the invariants every mutation must keep.
func (c Config) Validate() error {
	if c.Owner == "" {
		return fmt.Errorf("%w: owner required", wager.ErrInvalidConfig)
	}
	if c.PPV == nil || c.MinPPV == nil || c.MaxPPV == nil {
		return fmt.Errorf("%w: ppv bounds required", wager.ErrInvalidPPV)
	}
	if c.MinPPV.Cmp(c.MaxPPV) > 0 || c.MaxPPV.Cmp(fixedpoint.One()) >= 0 {
		return fmt.Errorf("%w: bounds [%s, %s]", wager.ErrInvalidPPV, c.MinPPV, c.MaxPPV)
	}
	if err := c.checkPPV(c.PPV); err != nil {
		return err
	}
	if err := checkShares(c.HostShare, c.ProtocolShare); err != nil {
		return err
	}
	if c.MaxUnitCount <= 0 {
		return wager.ErrInvalidMaxUnits
	}
	if c.BatchResolveLimit <= 0 {
		return fmt.Errorf("%w: batch resolve limit must be positive", wager.ErrInvalidConfig)
	}
	if c.MinWager == nil || c.MinWager.Sign() < 0 {
		return fmt.Errorf("%w: min wager must be non-negative", wager.ErrInvalidConfig)
	}
	if !c.ActiveProvider.Valid() {
		return fmt.Errorf("%w: %q", wager.ErrUnknownProvider, c.ActiveProvider)
	}
	if !c.EdgeMode.Valid() {
		return fmt.Errorf("%w: edge mode %q", wager.ErrInvalidConfig, c.EdgeMode)
	}
	return nil
}

func (c Config) checkPPV(v *big.Int) error {
	if v == nil || v.Cmp(c.MinPPV) < 0 || v.Cmp(c.MaxPPV) > 0 {
		return fmt.Errorf("%w: %s outside [%s, %s]", wager.ErrInvalidPPV, v, c.MinPPV, c.MaxPPV)
	}
	return nil
}

func checkShares(host, protocol *big.Int) error {
	if host == nil || protocol == nil || host.Sign() < 0 || protocol.Sign() < 0 {
		return wager.ErrInvalidShares
	}
	if new(big.Int).Add(host, protocol).Cmp(fixedpoint.One()) > 0 {
		return fmt.Errorf("%w: shares exceed 100%% of ppv", wager.ErrInvalidShares)
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	out.Resolvers = append([]string(nil), c.Resolvers...)
	out.PPV = fixedpoint.Clone(c.PPV)
	out.MinPPV = fixedpoint.Clone(c.MinPPV)
	out.MaxPPV = fixedpoint.Clone(c.MaxPPV)
	out.HostShare = fixedpoint.Clone(c.HostShare)
	out.ProtocolShare = fixedpoint.Clone(c.ProtocolShare)
	out.MinWager = fixedpoint.Clone(c.MinWager)
	return out
}
