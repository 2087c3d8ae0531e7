package protocol

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// ChangeFunc observes a committed configuration change.
type ChangeFunc func(field, caller string, cfg Config)

// Registry guards the configuration behind owner-only setters.
type Registry struct {
	mu        sync.RWMutex
	cfg       Config
	supported map[wager.ProviderKind]bool
	onChange  []ChangeFunc
	log       *logger.Logger
}

// Option customises a Registry.
type Option func(*Registry)

// WithSupportedProviders restricts which provider kinds may become active.
// By default every known kind is accepted.
func WithSupportedProviders(kinds ...wager.ProviderKind) Option {
	return func(r *Registry) {
		r.supported = make(map[wager.ProviderKind]bool, len(kinds))
		for _, k := range kinds {
			r.supported[k] = true
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(log *logger.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// NewRegistry validates cfg and wraps it.
func NewRegistry(cfg Config, opts ...Option) (*Registry, error) {
	r := &Registry{cfg: cfg.clone()}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.NewDefault("protocol")
	}
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if !r.providerSupported(r.cfg.ActiveProvider) {
		return nil, fmt.Errorf("%w: %q not wired", wager.ErrUnknownProvider, r.cfg.ActiveProvider)
	}
	return r, nil
}

// OnChange registers an observer invoked after every committed change.
func (r *Registry) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Snapshot returns a deep copy of the current configuration.
func (r *Registry) Snapshot() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.clone()
}

// IsOwner reports whether id administers the protocol.
func (r *Registry) IsOwner(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id != "" && id == r.cfg.Owner
}

// IsResolver reports whether id may call the resolver-gated entry points.
func (r *Registry) IsResolver(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == "" {
		return false
	}
	for _, res := range r.cfg.Resolvers {
		if res == id {
			return true
		}
	}
	return false
}

// IsOracle reports whether id is the registered oracle identity.
func (r *Registry) IsOracle(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id != "" && id == r.cfg.Providers.Oracle.Identity
}

func (r *Registry) providerSupported(k wager.ProviderKind) bool {
	if r.supported == nil {
		return k.Valid()
	}
	return r.supported[k]
}

// update applies fn to a copy, validates it and commits it when caller is the owner.
func (r *Registry) update(caller, field string, fn func(*Config) error) error {
	r.mu.Lock()
	if caller == "" || caller != r.cfg.Owner {
		r.mu.Unlock()
		return wager.ErrNotOwner
	}
	next := r.cfg.clone()
	if err := fn(&next); err != nil {
		r.mu.Unlock()
		return err
	}
	if err := next.Validate(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.cfg = next
	observers := append([]ChangeFunc(nil), r.onChange...)
	snapshot := next.clone()
	r.mu.Unlock()

	r.log.WithField("field", field).WithField("caller", caller).Info("protocol config changed")
	for _, fn := range observers {
		fn(field, caller, snapshot)
	}
	return nil
}

// SetHost sets the account credited with the host share.
func (r *Registry) SetHost(caller, host string) error {
	return r.update(caller, "host", func(c *Config) error {
		if host == "" {
			return fmt.Errorf("%w: host required", wager.ErrInvalidConfig)
		}
		c.Host = host
		return nil
	})
}

// SetTreasury sets the account credited with the protocol share.
func (r *Registry) SetTreasury(caller, treasury string) error {
	return r.update(caller, "treasury", func(c *Config) error {
		if treasury == "" {
			return fmt.Errorf("%w: treasury required", wager.ErrInvalidConfig)
		}
		c.Treasury = treasury
		return nil
	})
}

// SetPPV sets the probability-value parameter within [MinPPV, MaxPPV].
func (r *Registry) SetPPV(caller string, ppv *big.Int) error {
	return r.update(caller, "ppv", func(c *Config) error {
		if err := c.checkPPV(ppv); err != nil {
			return err
		}
		c.PPV = fixedpoint.Clone(ppv)
		return nil
	})
}

// SetShares sets the host and protocol fractions of ppv.
func (r *Registry) SetShares(caller string, host, protocol *big.Int) error {
	return r.update(caller, "shares", func(c *Config) error {
		if err := checkShares(host, protocol); err != nil {
			return err
		}
		c.HostShare = fixedpoint.Clone(host)
		c.ProtocolShare = fixedpoint.Clone(protocol)
		return nil
	})
}

// SetMaxUnitCount sets the per-entry unit cap. n must be positive.
func (r *Registry) SetMaxUnitCount(caller string, n int) error {
	return r.update(caller, "max_unit_count", func(c *Config) error {
		if n <= 0 {
			return wager.ErrInvalidMaxUnits
		}
		c.MaxUnitCount = n
		return nil
	})
}

// SetMinWager sets the per-unit wager floor.
func (r *Registry) SetMinWager(caller string, floor *big.Int) error {
	return r.update(caller, "min_wager", func(c *Config) error {
		c.MinWager = fixedpoint.Clone(floor)
		return nil
	})
}

// SetActiveProvider switches the provider used for new requests. Pending
// requests stay bound to the provider that issued them.
func (r *Registry) SetActiveProvider(caller string, kind wager.ProviderKind) error {
	return r.update(caller, "active_provider", func(c *Config) error {
		if !r.providerSupported(kind) {
			return fmt.Errorf("%w: %q", wager.ErrUnknownProvider, kind)
		}
		c.ActiveProvider = kind
		return nil
	})
}

// SetProviderParams replaces the per-provider connection parameters.
func (r *Registry) SetProviderParams(caller string, params ProviderParams) error {
	return r.update(caller, "provider_params", func(c *Config) error {
		c.Providers = params
		return nil
	})
}

// SetBatchResolveLimit sets the maximum ids accepted by one batch resolution.
func (r *Registry) SetBatchResolveLimit(caller string, n int) error {
	return r.update(caller, "batch_resolve_limit", func(c *Config) error {
		c.BatchResolveLimit = n
		return nil
	})
}

// SetWithdrawDelay sets the blocks that must pass before a withdrawal.
func (r *Registry) SetWithdrawDelay(caller string, blocks uint64) error {
	return r.update(caller, "withdraw_delay", func(c *Config) error {
		c.WithdrawDelay = blocks
		return nil
	})
}

// SetEdgeMode selects bonus-collectible or direct-discount realization for new entries.
func (r *Registry) SetEdgeMode(caller string, mode wager.EdgeMode) error {
	return r.update(caller, "edge_mode", func(c *Config) error {
		c.EdgeMode = mode
		return nil
	})
}

// SetResolvers replaces the resolver set.
func (r *Registry) SetResolvers(caller string, resolvers []string) error {
	return r.update(caller, "resolvers", func(c *Config) error {
		c.Resolvers = append([]string(nil), resolvers...)
		return nil
	})
}
