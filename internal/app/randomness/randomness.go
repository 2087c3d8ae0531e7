// Package randomness defines the contract shared by the randomness provider
// adapters. Every adapter hands out a request handle synchronously and delivers
// one 256-bit draw per unit later through its own path.
package randomness

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
)

// SeedSize is the length of the per-request seed.
const SeedSize = 32

// Request asks a provider for Count draws on behalf of Player.
type Request struct {
	Player string
	Count  int
	// Height is the chain height the request is committed at.
	Height uint64
}

// Ticket is the handle a provider returns for a request.
type Ticket struct {
	RequestID string
	Seed      []byte
	// Meta is published with the provider.request_issued event.
	Meta map[string]interface{}
}

// Provider issues randomness requests.
type Provider interface {
	Kind() wager.ProviderKind
	Request(ctx context.Context, req Request) (Ticket, error)
}

// Set dispatches by provider kind.
type Set map[wager.ProviderKind]Provider

// NewSet indexes providers by Kind.
func NewSet(providers ...Provider) Set {
	s := make(Set, len(providers))
	for _, p := range providers {
		s[p.Kind()] = p
	}
	return s
}

// Get returns the provider for kind.
func (s Set) Get(kind wager.ProviderKind) (Provider, error) {
	p, ok := s[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", wager.ErrUnknownProvider, kind)
	}
	return p, nil
}

// Kinds lists the registered provider kinds.
func (s Set) Kinds() []wager.ProviderKind {
	out := make([]wager.ProviderKind, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// NewSeed returns SeedSize bytes from crypto/rand.
func NewSeed() ([]byte, error) {
	seed := make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return seed, nil
}

// Expand derives count words as keccak256(prefix || uint32(i)).
func Expand(prefix []byte, count int) []*big.Int {
	out := make([]*big.Int, count)
	var idx [4]byte
	for i := range out {
		h := sha3.NewLegacyKeccak256()
		h.Write(prefix)
		binary.BigEndian.PutUint32(idx[:], uint32(i))
		h.Write(idx[:])
		out[i] = new(big.Int).SetBytes(h.Sum(nil))
	}
	return out
}
