// Package ledger is the token balance collaborator: it burns wagers and mints
// payouts, refunds and revenue shares.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	// Transaction types
	TxTypeDeposit  = "deposit"
	TxTypeWager    = "wager"
	TxTypePayout   = "payout"
	TxTypeRefund   = "refund"
	TxTypeHost     = "host_share"
	TxTypeProtocol = "protocol_share"
	TxTypeReversal = "reversal"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidAccount      = errors.New("account required")
	ErrReversalFailed      = errors.New("reversal failed")
)

// Ledger moves tokens. Debit burns from an account and Credit mints into one.
type Ledger interface {
	Debit(ctx context.Context, account string, amount *big.Int, ref string) error
	Credit(ctx context.Context, account string, amount *big.Int, ref string) error
	TotalIssued(ctx context.Context) (*big.Int, error)
}

// Posting is one credit inside an atomic settlement.
type Posting struct {
	Account string
	Amount  *big.Int
	TxType  string
}

// Batcher is implemented by ledgers that can apply several credits atomically.
type Batcher interface {
	CreditAll(ctx context.Context, ref string, postings []Posting) error
}

// Transaction is one balance movement.
type Transaction struct {
	ID           string    `json:"id" db:"id"`
	Account      string    `json:"account" db:"account"`
	TxType       string    `json:"tx_type" db:"tx_type"`
	Amount       *big.Int  `json:"amount" db:"-"`
	BalanceAfter *big.Int  `json:"balance_after" db:"-"`
	Reference    string    `json:"reference" db:"reference"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Apply credits postings through l, atomically when l is a Batcher. Otherwise
// credits go one by one and already-applied ones are reversed if a later one
// fails. Reversals that fail are joined to the returned error and wrap
// ErrReversalFailed.
func Apply(ctx context.Context, l Ledger, ref string, postings []Posting) error {
	live := postings[:0:0]
	for _, p := range postings {
		if p.Amount != nil && p.Amount.Sign() > 0 {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return nil
	}
	if b, ok := l.(Batcher); ok {
		return b.CreditAll(ctx, ref, live)
	}

	for i, p := range live {
		if err := l.Credit(ctx, p.Account, p.Amount, ref); err != nil {
			errs := []error{err}
			for j := i - 1; j >= 0; j-- {
				if rerr := l.Debit(ctx, live[j].Account, live[j].Amount, ref+":"+TxTypeReversal); rerr != nil {
					errs = append(errs, fmt.Errorf("%w: %s %s: %v", ErrReversalFailed, live[j].Account, live[j].Amount, rerr))
				}
			}
			return errors.Join(errs...)
		}
	}
	return nil
}
