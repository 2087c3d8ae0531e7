package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDebitCredit(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	require.NoError(t, l.Deposit(ctx, "alice", big.NewInt(100), "seed"))

	require.NoError(t, l.Debit(ctx, "alice", big.NewInt(40), "wager-1"))
	assert.Equal(t, "60", l.Balance("alice").String())

	err := l.Debit(ctx, "alice", big.NewInt(61), "wager-2")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, "60", l.Balance("alice").String())

	require.NoError(t, l.Credit(ctx, "alice", big.NewInt(15), "payout-1"))
	issued, err := l.TotalIssued(ctx)
	require.NoError(t, err)
	assert.Equal(t, "75", issued.String())

	txs := l.Transactions("alice", 2)
	require.Len(t, txs, 2)
	assert.Equal(t, TxTypePayout, txs[0].TxType)
	assert.Equal(t, "-40", txs[1].Amount.String())
	assert.Equal(t, "60", txs[1].BalanceAfter.String())
}

func TestMemoryRejectsBadInput(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	assert.ErrorIs(t, l.Credit(ctx, "", big.NewInt(1), ""), ErrInvalidAccount)
	assert.ErrorIs(t, l.Credit(ctx, "a", big.NewInt(0), ""), ErrInvalidAmount)
	assert.ErrorIs(t, l.Debit(ctx, "a", nil, ""), ErrInvalidAmount)
}

func TestMemoryCreditAllIsAtomic(t *testing.T) {
	l := NewMemory()
	err := l.CreditAll(context.Background(), "r", []Posting{
		{Account: "alice", Amount: big.NewInt(5)},
		{Account: "", Amount: big.NewInt(5)},
	})
	assert.ErrorIs(t, err, ErrInvalidAccount)
	assert.Zero(t, l.Balance("alice").Sign())
}

// flaky is a non-batching ledger that fails credits to one account.
type flaky struct {
	*Memory
	failFor string
}

func (f flaky) Credit(ctx context.Context, account string, amount *big.Int, ref string) error {
	if account == f.failFor {
		return errors.New("ledger unavailable")
	}
	return f.Memory.Credit(ctx, account, amount, ref)
}

type plain struct{ Ledger }

func TestApplyCompensatesWithoutBatcher(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	l := plain{flaky{Memory: mem, failFor: "treasury"}}

	err := Apply(ctx, l, "req-1", []Posting{
		{Account: "alice", Amount: big.NewInt(10)},
		{Account: "host", Amount: big.NewInt(2)},
		{Account: "treasury", Amount: big.NewInt(1)},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReversalFailed)
	assert.Zero(t, mem.Balance("alice").Sign())
	assert.Zero(t, mem.Balance("host").Sign())
	issued, _ := mem.TotalIssued(ctx)
	assert.Zero(t, issued.Sign())
}

// frozen additionally refuses debits from one account.
type frozen struct {
	flaky
	frozen string
}

func (f frozen) Debit(ctx context.Context, account string, amount *big.Int, ref string) error {
	if account == f.frozen {
		return errors.New("account frozen")
	}
	return f.Memory.Debit(ctx, account, amount, ref)
}

func TestApplyReportsFailedReversal(t *testing.T) {
	mem := NewMemory()
	l := plain{frozen{flaky: flaky{Memory: mem, failFor: "treasury"}, frozen: "alice"}}

	err := Apply(context.Background(), l, "req-2", []Posting{
		{Account: "alice", Amount: big.NewInt(10)},
		{Account: "host", Amount: big.NewInt(2)},
		{Account: "treasury", Amount: big.NewInt(1)},
	})
	require.ErrorIs(t, err, ErrReversalFailed)
	assert.Contains(t, err.Error(), "ledger unavailable")
	assert.Contains(t, err.Error(), "alice 10: account frozen")
	assert.Equal(t, "10", mem.Balance("alice").String())
	assert.Zero(t, mem.Balance("host").Sign())
}

func TestApplySkipsZeroPostings(t *testing.T) {
	mem := NewMemory()
	err := Apply(context.Background(), mem, "req-1", []Posting{
		{Account: "alice", Amount: big.NewInt(0)},
		{Account: "host", Amount: big.NewInt(3), TxType: TxTypeHost},
	})
	require.NoError(t, err)
	assert.Equal(t, "3", mem.Balance("host").String())
	assert.Equal(t, TxTypeHost, mem.Transactions("host", 1)[0].TxType)
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestPostgresDebit(t *testing.T) {
	db, mock := newMockDB(t)
	l := NewPostgres(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT balance::TEXT FROM ledger_accounts").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("100"))
	mock.ExpectExec("UPDATE ledger_accounts SET balance").
		WithArgs("alice", "60", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ledger_transactions").
		WithArgs(sqlmock.AnyArg(), "alice", TxTypeWager, "-40", "60", "wager-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, l.Debit(context.Background(), "alice", big.NewInt(40), "wager-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDebitInsufficient(t *testing.T) {
	db, mock := newMockDB(t)
	l := NewPostgres(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT balance::TEXT FROM ledger_accounts").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("10"))
	mock.ExpectRollback()

	err := l.Debit(context.Background(), "alice", big.NewInt(40), "wager-1")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreditAll(t *testing.T) {
	db, mock := newMockDB(t)
	l := NewPostgres(db)

	mock.ExpectBegin()
	for _, acct := range []string{"alice", "host"} {
		mock.ExpectQuery("INSERT INTO ledger_accounts").
			WithArgs(acct, "5", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("5"))
		mock.ExpectExec("INSERT INTO ledger_transactions").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	err := l.CreditAll(context.Background(), "req-1", []Posting{
		{Account: "alice", Amount: big.NewInt(5), TxType: TxTypePayout},
		{Account: "host", Amount: big.NewInt(5), TxType: TxTypeHost},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTotalIssued(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("123456789012345678901234567890"))

	v, err := NewPostgres(db).TotalIssued(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", v.String())
}
