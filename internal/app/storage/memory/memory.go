package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
	"github.com/R3E-Network/wager_layer/internal/engine/state"
)

// Store is an in-memory implementation of storage.EntryStore. It is safe for
// concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu         sync.RWMutex
	byPlayer   map[string]wager.Entry
	byRequest  map[string]string
	tombstones map[string]wager.Tombstone
}

var _ storage.EntryStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		byPlayer:   make(map[string]wager.Entry),
		byRequest:  make(map[string]string),
		tombstones: make(map[string]wager.Tombstone),
	}
}

func (s *Store) CreateEntry(_ context.Context, e wager.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byPlayer[e.Player]; exists {
		return wager.ErrEntryInProgress
	}
	if _, exists := s.byRequest[e.RequestID]; exists {
		return storage.ErrDuplicateRequest
	}
	if _, exists := s.tombstones[e.RequestID]; exists {
		return storage.ErrDuplicateRequest
	}
	s.byPlayer[e.Player] = cloneEntry(e)
	s.byRequest[e.RequestID] = e.Player
	return nil
}

func (s *Store) GetEntry(_ context.Context, player string) (wager.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byPlayer[player]
	if !ok {
		return wager.Entry{}, wager.ErrEntryNotInProgress
	}
	return cloneEntry(e), nil
}

func (s *Store) GetEntryByRequest(_ context.Context, requestID string) (wager.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.lookupLocked(requestID)
	if err != nil {
		return wager.Entry{}, err
	}
	return cloneEntry(e), nil
}

func (s *Store) CloseEntry(_ context.Context, requestID string, status state.Status) (wager.Entry, error) {
	if err := storage.CheckTerminal(status); err != nil {
		return wager.Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookupLocked(requestID)
	if err != nil {
		return wager.Entry{}, err
	}
	delete(s.byPlayer, e.Player)
	delete(s.byRequest, requestID)
	s.tombstones[requestID] = wager.Tombstone{
		RequestID: requestID,
		Player:    e.Player,
		Status:    status,
		ClosedAt:  time.Now().UTC(),
	}
	return e, nil
}

func (s *Store) RestoreEntry(_ context.Context, e wager.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byPlayer[e.Player]; exists {
		return wager.ErrEntryInProgress
	}
	delete(s.tombstones, e.RequestID)
	s.byPlayer[e.Player] = cloneEntry(e)
	s.byRequest[e.RequestID] = e.Player
	return nil
}

func (s *Store) GetTombstone(_ context.Context, requestID string) (wager.Tombstone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tombstones[requestID]
	if !ok {
		return wager.Tombstone{}, wager.ErrRequestNotInProgress
	}
	return t, nil
}

func (s *Store) ListEntries(_ context.Context) ([]wager.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]wager.Entry, 0, len(s.byPlayer))
	for _, e := range s.byPlayer {
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAtHeight < out[j].SubmittedAtHeight })
	return out, nil
}

func (s *Store) lookupLocked(requestID string) (wager.Entry, error) {
	if player, ok := s.byRequest[requestID]; ok {
		return s.byPlayer[player], nil
	}
	if _, ok := s.tombstones[requestID]; ok {
		return wager.Entry{}, wager.ErrRequestNotResolvable
	}
	return wager.Entry{}, wager.ErrRequestNotInProgress
}

func cloneEntry(e wager.Entry) wager.Entry {
	out := e
	out.WagerAmount = cloneInt(e.WagerAmount)
	out.StopLoss = cloneInt(e.StopLoss)
	out.StopGain = cloneInt(e.StopGain)
	out.Terms.PPV = cloneInt(e.Terms.PPV)
	out.Terms.HostShare = cloneInt(e.Terms.HostShare)
	out.Terms.ProtocolShare = cloneInt(e.Terms.ProtocolShare)
	out.Seed = append([]byte(nil), e.Seed...)
	return out
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
