package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process ledger.
type Memory struct {
	mu       sync.RWMutex
	balances map[string]*big.Int
	issued   *big.Int
	txs      []Transaction
}

var (
	_ Ledger  = (*Memory)(nil)
	_ Batcher = (*Memory)(nil)
)

// NewMemory creates an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]*big.Int),
		issued:   new(big.Int),
	}
}

// Deposit mints funds into account outside any wager flow.
func (m *Memory) Deposit(ctx context.Context, account string, amount *big.Int, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditLocked(account, amount, TxTypeDeposit, ref)
}

// Debit burns amount from account.
func (m *Memory) Debit(ctx context.Context, account string, amount *big.Int, ref string) error {
	if err := check(account, amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balanceLocked(account)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: available %s, requested %s", ErrInsufficientBalance, bal, amount)
	}
	bal.Sub(bal, amount)
	m.issued.Sub(m.issued, amount)
	m.recordLocked(account, TxTypeWager, new(big.Int).Neg(amount), bal, ref)
	return nil
}

// Credit mints amount into account.
func (m *Memory) Credit(ctx context.Context, account string, amount *big.Int, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditLocked(account, amount, TxTypePayout, ref)
}

// CreditAll applies every posting or none.
func (m *Memory) CreditAll(ctx context.Context, ref string, postings []Posting) error {
	for _, p := range postings {
		if err := check(p.Account, p.Amount); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range postings {
		txType := p.TxType
		if txType == "" {
			txType = TxTypePayout
		}
		if err := m.creditLocked(p.Account, p.Amount, txType, ref); err != nil {
			return err
		}
	}
	return nil
}

// TotalIssued returns minted minus burned supply.
func (m *Memory) TotalIssued(ctx context.Context) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.issued), nil
}

// Balance returns the balance of account.
func (m *Memory) Balance(account string) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if bal, ok := m.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Transactions returns up to limit most recent movements of account, newest first.
func (m *Memory) Transactions(account string, limit int) []Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Transaction
	for i := len(m.txs) - 1; i >= 0; i-- {
		if m.txs[i].Account != account {
			continue
		}
		out = append(out, m.txs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (m *Memory) creditLocked(account string, amount *big.Int, txType, ref string) error {
	if err := check(account, amount); err != nil {
		return err
	}
	bal := m.balanceLocked(account)
	bal.Add(bal, amount)
	m.issued.Add(m.issued, amount)
	m.recordLocked(account, txType, new(big.Int).Set(amount), bal, ref)
	return nil
}

func (m *Memory) balanceLocked(account string) *big.Int {
	bal, ok := m.balances[account]
	if !ok {
		bal = new(big.Int)
		m.balances[account] = bal
	}
	return bal
}

func (m *Memory) recordLocked(account, txType string, amount, after *big.Int, ref string) {
	m.txs = append(m.txs, Transaction{
		ID:           uuid.New().String(),
		Account:      account,
		TxType:       txType,
		Amount:       amount,
		BalanceAfter: new(big.Int).Set(after),
		Reference:    ref,
		CreatedAt:    time.Now(),
	})
}

func check(account string, amount *big.Int) error {
	if account == "" {
		return ErrInvalidAccount
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
