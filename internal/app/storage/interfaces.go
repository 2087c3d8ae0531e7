// Package storage defines persistence for in-flight entries.
package storage

import (
	"context"
	"errors"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/engine/state"
)

// ErrDuplicateRequest is returned when a request id was already issued.
var ErrDuplicateRequest = errors.New("request id already issued")

// EntryStore persists in-flight entries keyed by player and by request id, and
// keeps a tombstone for every request id that reached a terminal state.
//
// Lookups by request id return wager.ErrRequestNotResolvable for tombstoned ids
// and wager.ErrRequestNotInProgress for ids never issued.
type EntryStore interface {
	// CreateEntry records the entry and its request together. It fails with
	// wager.ErrEntryInProgress when the player already has an entry.
	CreateEntry(ctx context.Context, e wager.Entry) error
	// GetEntry returns the player's entry or wager.ErrEntryNotInProgress.
	GetEntry(ctx context.Context, player string) (wager.Entry, error)
	GetEntryByRequest(ctx context.Context, requestID string) (wager.Entry, error)
	// CloseEntry deletes the entry and its request and writes a tombstone with
	// the terminal status in one step. Only one caller can close a given id.
	CloseEntry(ctx context.Context, requestID string, status state.Status) (wager.Entry, error)
	// RestoreEntry undoes CloseEntry when the settlement it guarded failed.
	RestoreEntry(ctx context.Context, e wager.Entry) error
	GetTombstone(ctx context.Context, requestID string) (wager.Tombstone, error)
	ListEntries(ctx context.Context) ([]wager.Entry, error)
}

// CheckTerminal validates a close status.
func CheckTerminal(status state.Status) error {
	return state.Check(state.StatusSubmitted, status)
}
