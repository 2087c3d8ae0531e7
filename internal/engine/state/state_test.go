package state

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusNone, "none"},
		{StatusSubmitted, "submitted"},
		{StatusResolved, "resolved"},
		{StatusWithdrawn, "withdrawn"},
		{Status(99), "status(99)"},
	}

	for _, tc := range tests {
		if got := tc.status.String(); got != tc.expected {
			t.Errorf("Status(%d).String() = %q, want %q", tc.status, got, tc.expected)
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected Status
	}{
		{"submitted", StatusSubmitted},
		{"pending", StatusSubmitted}, // legacy alias
		{"resolved", StatusResolved},
		{"settled", StatusResolved},
		{"withdrawn", StatusWithdrawn},
		{"refunded", StatusWithdrawn},
		{"bogus", StatusNone},
	}

	for _, tc := range tests {
		if got := ParseStatus(tc.input); got != tc.expected {
			t.Errorf("ParseStatus(%q) = %v, want %v", tc.input, got, tc.expected)
		}
	}
}

func TestStatus_JSON(t *testing.T) {
	data, err := json.Marshal(StatusWithdrawn)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"withdrawn"` {
		t.Fatalf("marshal = %s", data)
	}

	var decoded Status
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != StatusWithdrawn {
		t.Errorf("decoded = %v, want %v", decoded, StatusWithdrawn)
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusNone, StatusSubmitted, true},
		{StatusSubmitted, StatusResolved, true},
		{StatusSubmitted, StatusWithdrawn, true},
		{StatusNone, StatusResolved, false},
		{StatusNone, StatusWithdrawn, false},
		{StatusSubmitted, StatusSubmitted, false},
		{StatusResolved, StatusWithdrawn, false},
		{StatusWithdrawn, StatusResolved, false},
		{StatusResolved, StatusSubmitted, true},
	}

	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestCheckReturnsTransitionError(t *testing.T) {
	err := Check(StatusResolved, StatusResolved)
	var te TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.From != StatusResolved || te.To != StatusResolved {
		t.Errorf("unexpected error fields: %+v", te)
	}
	if Check(StatusSubmitted, StatusResolved) != nil {
		t.Error("submitted -> resolved must be allowed")
	}
}

func TestTerminal(t *testing.T) {
	if StatusSubmitted.IsTerminal() {
		t.Error("submitted is not terminal")
	}
	if !StatusResolved.IsTerminal() || !StatusWithdrawn.IsTerminal() {
		t.Error("resolved and withdrawn are terminal")
	}
	if StatusSubmitted.CanSubmit() {
		t.Error("cannot submit while an entry is pending")
	}
}
