// Package local implements the fast provider: draws are derived at resolution
// time from the first block mined after the entry's commit height.
package local

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/randomness"
	"github.com/R3E-Network/wager_layer/internal/chain"
)

// Provider is the local commit/derive adapter.
type Provider struct {
	heads chain.HeadSource
}

var _ randomness.Provider = (*Provider)(nil)

// New creates a local provider reading blocks from heads.
func New(heads chain.HeadSource) *Provider {
	return &Provider{heads: heads}
}

func (p *Provider) Kind() wager.ProviderKind { return wager.ProviderLocal }

func (p *Provider) Request(_ context.Context, req randomness.Request) (randomness.Ticket, error) {
	seed, err := randomness.NewSeed()
	if err != nil {
		return randomness.Ticket{}, err
	}
	return randomness.Ticket{
		RequestID: uuid.NewString(),
		Seed:      seed,
		Meta:      map[string]interface{}{"commit_height": req.Height},
	}, nil
}

// Derive returns the entry's draws once a block above its commit height exists.
func (p *Provider) Derive(ctx context.Context, e wager.Entry) ([]*big.Int, error) {
	head, err := p.heads.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}
	if head.Height <= e.SubmittedAtHeight {
		return nil, fmt.Errorf("%w: head %d not above commit height %d", wager.ErrDrawsUnavailable, head.Height, e.SubmittedAtHeight)
	}
	block, err := p.heads.HeadAt(ctx, e.SubmittedAtHeight+1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wager.ErrDrawsUnavailable, err)
	}
	return Words(block.Hash, block.Height, e.RequestID, e.Seed, e.UnitCount), nil
}

// Words computes keccak256(blockHash || height || requestID || seed || i) for each unit.
func Words(blockHash []byte, height uint64, requestID string, seed []byte, count int) []*big.Int {
	prefix := make([]byte, 0, len(blockHash)+8+len(requestID)+len(seed))
	prefix = append(prefix, blockHash...)
	prefix = binary.BigEndian.AppendUint64(prefix, height)
	prefix = append(prefix, requestID...)
	prefix = append(prefix, seed...)
	return randomness.Expand(prefix, count)
}
