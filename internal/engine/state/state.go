// Package state defines the entry lifecycle shared by the entry store, the
// engine and the event stream.
package state

import (
	"encoding/json"
	"fmt"
)

// Status represents the lifecycle status of an entry.
type Status int32

const (
	// StatusNone means the player has no entry on record.
	StatusNone Status = iota

	// StatusSubmitted means the wager is debited and randomness is pending.
	StatusSubmitted

	// StatusResolved means the entry was settled.
	StatusResolved

	// StatusWithdrawn means the locked wager was refunded after the timeout.
	StatusWithdrawn
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusSubmitted:
		return "submitted"
	case StatusResolved:
		return "resolved"
	case StatusWithdrawn:
		return "withdrawn"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseStatus(str)
	return nil
}

// ParseStatus converts a string to Status.
func ParseStatus(s string) Status {
	switch s {
	case "submitted", "pending": // pending is accepted from older rows
		return StatusSubmitted
	case "resolved", "settled":
		return StatusResolved
	case "withdrawn", "refunded":
		return StatusWithdrawn
	default:
		return StatusNone
	}
}

// IsTerminal returns true if this status represents a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusWithdrawn
}

// CanSubmit returns true if a player in this status may submit a new entry.
// Terminal entries are deleted, so the player is back to none.
func (s Status) CanSubmit() bool {
	return s == StatusNone || s.IsTerminal()
}

// ValidTransitions defines allowed state transitions.
var ValidTransitions = map[Status][]Status{
	StatusNone:      {StatusSubmitted},
	StatusSubmitted: {StatusResolved, StatusWithdrawn},
	StatusResolved:  {StatusSubmitted},
	StatusWithdrawn: {StatusSubmitted},
}

// CanTransition returns true if the transition from -> to is valid.
func CanTransition(from, to Status) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError represents an invalid state transition.
type TransitionError struct {
	From Status
	To   Status
}

// Error implements error.
func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid entry transition: %s -> %s", e.From, e.To)
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(from, to Status) TransitionError {
	return TransitionError{From: from, To: to}
}

// Check returns a TransitionError when from -> to is not allowed.
func Check(from, to Status) error {
	if !CanTransition(from, to) {
		return NewTransitionError(from, to)
	}
	return nil
}
