package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
	"github.com/R3E-Network/wager_layer/internal/engine/state"
)

// Store implements storage.EntryStore backed by PostgreSQL. Tombstones are the
// wager_requests rows whose status is terminal.
type Store struct {
	db *sqlx.DB
}

var _ storage.EntryStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const entryColumns = `player, request_id, game, choice, wager_amount::TEXT AS wager_amount, unit_count,
	stop_loss::TEXT AS stop_loss, stop_gain::TEXT AS stop_gain, submitted_at_height, provider,
	ppv::TEXT AS ppv, host_share::TEXT AS host_share, protocol_share::TEXT AS protocol_share,
	edge_mode, seed, created_at`

type entryRow struct {
	Player            string    `db:"player"`
	RequestID         string    `db:"request_id"`
	Game              string    `db:"game"`
	Choice            int64     `db:"choice"`
	WagerAmount       string    `db:"wager_amount"`
	UnitCount         int       `db:"unit_count"`
	StopLoss          string    `db:"stop_loss"`
	StopGain          string    `db:"stop_gain"`
	SubmittedAtHeight int64     `db:"submitted_at_height"`
	Provider          string    `db:"provider"`
	PPV               string    `db:"ppv"`
	HostShare         string    `db:"host_share"`
	ProtocolShare     string    `db:"protocol_share"`
	EdgeMode          string    `db:"edge_mode"`
	Seed              []byte    `db:"seed"`
	CreatedAt         time.Time `db:"created_at"`
}

func (r entryRow) entry() (wager.Entry, error) {
	nums := make([]*big.Int, 6)
	for i, raw := range []string{r.WagerAmount, r.StopLoss, r.StopGain, r.PPV, r.HostShare, r.ProtocolShare} {
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return wager.Entry{}, fmt.Errorf("corrupt numeric %q in entry %s", raw, r.RequestID)
		}
		nums[i] = v
	}
	return wager.Entry{
		Player:            r.Player,
		Game:              wager.Game(r.Game),
		Choice:            wager.Choice(r.Choice),
		WagerAmount:       nums[0],
		UnitCount:         r.UnitCount,
		StopLoss:          nums[1],
		StopGain:          nums[2],
		RequestID:         r.RequestID,
		SubmittedAtHeight: uint64(r.SubmittedAtHeight),
		Provider:          wager.ProviderKind(r.Provider),
		Terms: wager.Terms{
			PPV:           nums[3],
			HostShare:     nums[4],
			ProtocolShare: nums[5],
			EdgeMode:      wager.EdgeMode(r.EdgeMode),
		},
		Seed:      r.Seed,
		CreatedAt: r.CreatedAt,
	}, nil
}

func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (s *Store) CreateEntry(ctx context.Context, e wager.Entry) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wager_requests (request_id, player, provider, expected_draw_count, status, created_at)
			VALUES ($1, $2, $3, $4, 'submitted', $5)
		`, e.RequestID, e.Player, string(e.Provider), e.UnitCount, e.CreatedAt); err != nil {
			return mapConflict(err)
		}
		return insertEntry(ctx, tx, e)
	})
}

func insertEntry(ctx context.Context, tx *sqlx.Tx, e wager.Entry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wager_entries (player, request_id, game, choice, wager_amount, unit_count, stop_loss,
			stop_gain, submitted_at_height, provider, ppv, host_share, protocol_share, edge_mode, seed, created_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7::NUMERIC, $8::NUMERIC, $9, $10, $11::NUMERIC,
			$12::NUMERIC, $13::NUMERIC, $14, $15, $16)
	`, e.Player, e.RequestID, string(e.Game), int64(e.Choice), numeric(e.WagerAmount), e.UnitCount,
		numeric(e.StopLoss), numeric(e.StopGain), int64(e.SubmittedAtHeight), string(e.Provider),
		numeric(e.Terms.PPV), numeric(e.Terms.HostShare), numeric(e.Terms.ProtocolShare),
		string(e.Terms.EdgeMode), e.Seed, e.CreatedAt)
	return mapConflict(err)
}

// mapConflict turns unique violations into domain errors.
func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		if pqErr.Constraint == "wager_entries_pkey" {
			return wager.ErrEntryInProgress
		}
		return storage.ErrDuplicateRequest
	}
	return err
}

func (s *Store) GetEntry(ctx context.Context, player string) (wager.Entry, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row, `SELECT `+entryColumns+` FROM wager_entries WHERE player = $1`, player)
	if errors.Is(err, sql.ErrNoRows) {
		return wager.Entry{}, wager.ErrEntryNotInProgress
	}
	if err != nil {
		return wager.Entry{}, err
	}
	return row.entry()
}

func (s *Store) GetEntryByRequest(ctx context.Context, requestID string) (wager.Entry, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row, `SELECT `+entryColumns+` FROM wager_entries WHERE request_id = $1`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return wager.Entry{}, s.missing(ctx, s.db, requestID)
	}
	if err != nil {
		return wager.Entry{}, err
	}
	return row.entry()
}

// missing explains why requestID has no live entry.
func (s *Store) missing(ctx context.Context, q sqlx.QueryerContext, requestID string) error {
	var status string
	err := sqlx.GetContext(ctx, q, &status, `SELECT status FROM wager_requests WHERE request_id = $1`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return wager.ErrRequestNotInProgress
	}
	if err != nil {
		return err
	}
	if state.ParseStatus(status).IsTerminal() {
		return wager.ErrRequestNotResolvable
	}
	return wager.ErrRequestNotInProgress
}

func (s *Store) CloseEntry(ctx context.Context, requestID string, status state.Status) (wager.Entry, error) {
	if err := storage.CheckTerminal(status); err != nil {
		return wager.Entry{}, err
	}
	var closed wager.Entry
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE wager_requests SET status = $2, closed_at = $3
			WHERE request_id = $1 AND status = 'submitted'
		`, requestID, status.String(), time.Now().UTC())
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return s.missing(ctx, tx, requestID)
		}

		var row entryRow
		if err := tx.GetContext(ctx, &row, `DELETE FROM wager_entries WHERE request_id = $1 RETURNING `+entryColumns, requestID); err != nil {
			return err
		}
		closed, err = row.entry()
		return err
	})
	if err != nil {
		return wager.Entry{}, err
	}
	return closed, nil
}

func (s *Store) RestoreEntry(ctx context.Context, e wager.Entry) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE wager_requests SET status = 'submitted', closed_at = NULL WHERE request_id = $1
		`, e.RequestID); err != nil {
			return err
		}
		return insertEntry(ctx, tx, e)
	})
}

func (s *Store) GetTombstone(ctx context.Context, requestID string) (wager.Tombstone, error) {
	var row struct {
		RequestID string       `db:"request_id"`
		Player    string       `db:"player"`
		Status    string       `db:"status"`
		ClosedAt  sql.NullTime `db:"closed_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT request_id, player, status, closed_at FROM wager_requests
		WHERE request_id = $1 AND status <> 'submitted'
	`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return wager.Tombstone{}, wager.ErrRequestNotInProgress
	}
	if err != nil {
		return wager.Tombstone{}, err
	}
	return wager.Tombstone{
		RequestID: row.RequestID,
		Player:    row.Player,
		Status:    state.ParseStatus(row.Status),
		ClosedAt:  row.ClosedAt.Time,
	}, nil
}

func (s *Store) ListEntries(ctx context.Context) ([]wager.Entry, error) {
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+entryColumns+` FROM wager_entries ORDER BY submitted_at_height`); err != nil {
		return nil, err
	}
	out := make([]wager.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
