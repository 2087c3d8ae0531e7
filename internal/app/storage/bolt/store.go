// Package bolt implements storage.EntryStore on an embedded bbolt file, for
// single-node deployments that must survive restarts without a database server.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
	"github.com/R3E-Network/wager_layer/internal/engine/state"
)

var (
	entriesBucket    = []byte("entries")
	requestsBucket   = []byte("requests")
	tombstonesBucket = []byte("tombstones")
)

// Store keeps entries as JSON values keyed by player.
type Store struct {
	db *bolt.DB
}

var _ storage.EntryStore = (*Store)(nil)

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{entriesBucket, requestsBucket, tombstonesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateEntry(_ context.Context, e wager.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		entries, requests := tx.Bucket(entriesBucket), tx.Bucket(requestsBucket)
		if entries.Get([]byte(e.Player)) != nil {
			return wager.ErrEntryInProgress
		}
		id := []byte(e.RequestID)
		if requests.Get(id) != nil || tx.Bucket(tombstonesBucket).Get(id) != nil {
			return storage.ErrDuplicateRequest
		}
		if err := entries.Put([]byte(e.Player), raw); err != nil {
			return err
		}
		return requests.Put(id, []byte(e.Player))
	})
}

func (s *Store) GetEntry(_ context.Context, player string) (wager.Entry, error) {
	var e wager.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(entriesBucket).Get([]byte(player))
		if raw == nil {
			return wager.ErrEntryNotInProgress
		}
		return json.Unmarshal(raw, &e)
	})
	return e, err
}

func (s *Store) GetEntryByRequest(_ context.Context, requestID string) (wager.Entry, error) {
	var e wager.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		e, err = lookup(tx, requestID)
		return err
	})
	return e, err
}

func lookup(tx *bolt.Tx, requestID string) (wager.Entry, error) {
	var e wager.Entry
	player := tx.Bucket(requestsBucket).Get([]byte(requestID))
	if player == nil {
		if tx.Bucket(tombstonesBucket).Get([]byte(requestID)) != nil {
			return e, wager.ErrRequestNotResolvable
		}
		return e, wager.ErrRequestNotInProgress
	}
	raw := tx.Bucket(entriesBucket).Get(player)
	if raw == nil {
		return e, fmt.Errorf("request %s points at missing entry", requestID)
	}
	err := json.Unmarshal(raw, &e)
	return e, err
}

func (s *Store) CloseEntry(_ context.Context, requestID string, status state.Status) (wager.Entry, error) {
	if err := storage.CheckTerminal(status); err != nil {
		return wager.Entry{}, err
	}
	var e wager.Entry
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		if e, err = lookup(tx, requestID); err != nil {
			return err
		}
		tomb, err := json.Marshal(wager.Tombstone{
			RequestID: requestID,
			Player:    e.Player,
			Status:    status,
			ClosedAt:  time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := tx.Bucket(entriesBucket).Delete([]byte(e.Player)); err != nil {
			return err
		}
		if err := tx.Bucket(requestsBucket).Delete([]byte(requestID)); err != nil {
			return err
		}
		return tx.Bucket(tombstonesBucket).Put([]byte(requestID), tomb)
	})
	if err != nil {
		return wager.Entry{}, err
	}
	return e, nil
}

func (s *Store) RestoreEntry(_ context.Context, e wager.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		if entries.Get([]byte(e.Player)) != nil {
			return wager.ErrEntryInProgress
		}
		if err := tx.Bucket(tombstonesBucket).Delete([]byte(e.RequestID)); err != nil {
			return err
		}
		if err := entries.Put([]byte(e.Player), raw); err != nil {
			return err
		}
		return tx.Bucket(requestsBucket).Put([]byte(e.RequestID), []byte(e.Player))
	})
}

func (s *Store) GetTombstone(_ context.Context, requestID string) (wager.Tombstone, error) {
	var t wager.Tombstone
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(tombstonesBucket).Get([]byte(requestID))
		if raw == nil {
			return wager.ErrRequestNotInProgress
		}
		return json.Unmarshal(raw, &t)
	})
	return t, err
}

func (s *Store) ListEntries(_ context.Context) ([]wager.Entry, error) {
	var out []wager.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).ForEach(func(_, raw []byte) error {
			var e wager.Entry
			if err := json.Unmarshal(raw, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAtHeight < out[j].SubmittedAtHeight })
	return out, err
}
