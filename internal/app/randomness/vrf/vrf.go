// Package vrf implements the verifiable provider. A coordinator signs
// seed || requestID with a BLS key on bn256; the signature is checked against
// the configured public key and expanded into one word per unit.
package vrf

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing"
	"go.dedis.ch/kyber/v3/sign/bls"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/protocol"
	"github.com/R3E-Network/wager_layer/internal/app/randomness"
)

// Job is a randomness request forwarded to the coordinator.
type Job struct {
	RequestID        string
	Seed             []byte
	Count            int
	SubscriptionID   uint64
	KeyHash          string
	CallbackGasLimit uint32
}

// Coordinator accepts jobs and later calls back with a signature.
type Coordinator interface {
	RequestWords(ctx context.Context, job Job) error
}

// Provider is the verifiable adapter.
type Provider struct {
	coordinator Coordinator
	params      func() protocol.VRFParams
	suite       *pairing.SuiteBn256
}

var _ randomness.Provider = (*Provider)(nil)

// New creates a provider that reads its connection parameters from params on
// every request.
func New(coordinator Coordinator, params func() protocol.VRFParams) *Provider {
	return &Provider{coordinator: coordinator, params: params, suite: pairing.NewSuiteBn256()}
}

func (p *Provider) Kind() wager.ProviderKind { return wager.ProviderVRF }

func (p *Provider) Request(ctx context.Context, req randomness.Request) (randomness.Ticket, error) {
	seed, err := randomness.NewSeed()
	if err != nil {
		return randomness.Ticket{}, err
	}
	params := p.params()
	job := Job{
		RequestID:        uuid.NewString(),
		Seed:             seed,
		Count:            req.Count,
		SubscriptionID:   params.SubscriptionID,
		KeyHash:          params.KeyHash,
		CallbackGasLimit: params.CallbackGasLimit,
	}
	if err := p.coordinator.RequestWords(ctx, job); err != nil {
		return randomness.Ticket{}, fmt.Errorf("vrf request: %w", err)
	}
	return randomness.Ticket{
		RequestID: job.RequestID,
		Seed:      seed,
		Meta: map[string]interface{}{
			"subscription_id":    job.SubscriptionID,
			"key_hash":           job.KeyHash,
			"callback_gas_limit": job.CallbackGasLimit,
		},
	}, nil
}

// Verify checks sig over the entry's seed and request id and expands it.
func (p *Provider) Verify(publicKey string, e wager.Entry, sig []byte) ([]*big.Int, error) {
	pub, err := DecodePublicKey(p.suite, publicKey)
	if err != nil {
		return nil, err
	}
	if err := bls.Verify(p.suite, pub, Message(e.Seed, e.RequestID), sig); err != nil {
		return nil, fmt.Errorf("%w: %v", wager.ErrInvalidProof, err)
	}
	return randomness.Expand(sig, e.UnitCount), nil
}

// Message is the byte string a coordinator signs.
func Message(seed []byte, requestID string) []byte {
	msg := make([]byte, 0, len(seed)+len(requestID))
	msg = append(msg, seed...)
	return append(msg, requestID...)
}

// DecodePublicKey parses a hex-encoded G2 point.
func DecodePublicKey(suite *pairing.SuiteBn256, s string) (kyber.Point, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode vrf public key: %w", err)
	}
	pub := suite.G2().Point()
	if err := pub.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("unmarshal vrf public key: %w", err)
	}
	return pub, nil
}
