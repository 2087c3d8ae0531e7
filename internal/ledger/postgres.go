package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Postgres is a ledger backed by the ledger_accounts and ledger_transactions tables.
type Postgres struct {
	db *sqlx.DB
}

var (
	_ Ledger  = (*Postgres)(nil)
	_ Batcher = (*Postgres)(nil)
)

// NewPostgres wraps an open database handle.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Debit burns amount from account, failing when the balance is short.
func (p *Postgres) Debit(ctx context.Context, account string, amount *big.Int, ref string) error {
	if err := check(account, amount); err != nil {
		return err
	}
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		var raw string
		err := tx.GetContext(ctx, &raw, `
			SELECT balance::TEXT FROM ledger_accounts WHERE account = $1 FOR UPDATE
		`, account)
		if errors.Is(err, sql.ErrNoRows) {
			raw = "0"
		} else if err != nil {
			return err
		}
		bal, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return fmt.Errorf("corrupt balance %q for %s", raw, account)
		}
		if bal.Cmp(amount) < 0 {
			return fmt.Errorf("%w: available %s, requested %s", ErrInsufficientBalance, bal, amount)
		}
		bal.Sub(bal, amount)
		if _, err := tx.ExecContext(ctx, `
			UPDATE ledger_accounts SET balance = $2::NUMERIC, updated_at = $3 WHERE account = $1
		`, account, bal.String(), time.Now().UTC()); err != nil {
			return err
		}
		return insertTx(ctx, tx, account, TxTypeWager, new(big.Int).Neg(amount), bal, ref)
	})
}

// Credit mints amount into account.
func (p *Postgres) Credit(ctx context.Context, account string, amount *big.Int, ref string) error {
	if err := check(account, amount); err != nil {
		return err
	}
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		return creditTx(ctx, tx, Posting{Account: account, Amount: amount, TxType: TxTypePayout}, ref)
	})
}

// CreditAll applies every posting in one transaction.
func (p *Postgres) CreditAll(ctx context.Context, ref string, postings []Posting) error {
	for _, post := range postings {
		if err := check(post.Account, post.Amount); err != nil {
			return err
		}
	}
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, post := range postings {
			if err := creditTx(ctx, tx, post, ref); err != nil {
				return err
			}
		}
		return nil
	})
}

// TotalIssued sums every account balance.
func (p *Postgres) TotalIssued(ctx context.Context) (*big.Int, error) {
	var raw string
	if err := p.db.GetContext(ctx, &raw, `SELECT COALESCE(SUM(balance), 0)::TEXT FROM ledger_accounts`); err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt supply %q", raw)
	}
	return v, nil
}

func creditTx(ctx context.Context, tx *sqlx.Tx, post Posting, ref string) error {
	txType := post.TxType
	if txType == "" {
		txType = TxTypePayout
	}
	var raw string
	err := tx.GetContext(ctx, &raw, `
		INSERT INTO ledger_accounts (account, balance, updated_at)
		VALUES ($1, $2::NUMERIC, $3)
		ON CONFLICT (account) DO UPDATE
		SET balance = ledger_accounts.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		RETURNING balance::TEXT
	`, post.Account, post.Amount.String(), time.Now().UTC())
	if err != nil {
		return err
	}
	after, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fmt.Errorf("corrupt balance %q for %s", raw, post.Account)
	}
	return insertTx(ctx, tx, post.Account, txType, post.Amount, after, ref)
}

func insertTx(ctx context.Context, tx *sqlx.Tx, account, txType string, amount, after *big.Int, ref string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_transactions (id, account, tx_type, amount, balance_after, reference, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7)
	`, uuid.NewString(), account, txType, amount.String(), after.String(), ref, time.Now().UTC())
	return err
}

func (p *Postgres) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
