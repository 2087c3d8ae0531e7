// Package collectible issues bonus receipts earned in bonus-collectible mode.
package collectible

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown token ids.
var ErrNotFound = errors.New("collectible not found")

// Metadata describes the play that earned a bonus.
type Metadata struct {
	Game       string `json:"game"`
	RequestID  string `json:"request_id"`
	Unit       int    `json:"unit"`
	Wager      string `json:"wager"`
	Multiplier string `json:"multiplier"`
	PPV        string `json:"ppv"`
}

// Issuer mints bonus collectibles.
type Issuer interface {
	MintBonus(ctx context.Context, account string, md Metadata) (string, error)
}

// Receipt is an issued collectible.
type Receipt struct {
	TokenID  string    `json:"token_id"`
	Owner    string    `json:"owner"`
	Metadata Metadata  `json:"metadata"`
	IssuedAt time.Time `json:"issued_at"`
}

// Memory keeps receipts in process.
type Memory struct {
	mu       sync.RWMutex
	receipts map[string]Receipt
}

var _ Issuer = (*Memory)(nil)

// NewMemory creates an empty issuer.
func NewMemory() *Memory {
	return &Memory{receipts: make(map[string]Receipt)}
}

// MintBonus records a receipt for account.
func (m *Memory) MintBonus(ctx context.Context, account string, md Metadata) (string, error) {
	if account == "" {
		return "", fmt.Errorf("mint bonus: account required")
	}
	r := Receipt{
		TokenID:  uuid.NewString(),
		Owner:    account,
		Metadata: md,
		IssuedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.receipts[r.TokenID] = r
	m.mu.Unlock()
	return r.TokenID, nil
}

// Owned lists receipts held by account, oldest first.
func (m *Memory) Owned(account string) []Receipt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Receipt
	for _, r := range m.receipts {
		if r.Owner == account {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

// Render returns token metadata in the common name/description/attributes layout.
func (m *Memory) Render(tokenID string) ([]byte, error) {
	m.mu.RLock()
	r, ok := m.receipts[tokenID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	type attribute struct {
		Trait string `json:"trait_type"`
		Value any    `json:"value"`
	}
	doc := struct {
		Name        string      `json:"name"`
		Description string      `json:"description"`
		Attributes  []attribute `json:"attributes"`
	}{
		Name:        fmt.Sprintf("Bonus %s #%s", r.Metadata.Game, r.TokenID[:8]),
		Description: "House edge realized as a bonus collectible.",
		Attributes: []attribute{
			{Trait: "game", Value: r.Metadata.Game},
			{Trait: "request", Value: r.Metadata.RequestID},
			{Trait: "unit", Value: r.Metadata.Unit},
			{Trait: "wager", Value: r.Metadata.Wager},
			{Trait: "multiplier", Value: r.Metadata.Multiplier},
			{Trait: "ppv", Value: r.Metadata.PPV},
		},
	}
	return json.Marshal(doc)
}
