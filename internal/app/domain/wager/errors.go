package wager

import "errors"

// Input rejection.
var (
	ErrInvalidChoice     = errors.New("invalid choice")
	ErrZeroWager         = errors.New("zero wager")
	ErrCountExceedsMax   = errors.New("unit count exceeds max")
	ErrBelowMinimumWager = errors.New("wager below minimum")
	ErrInvalidDraws      = errors.New("draw count does not match request")
	ErrNegativeThreshold = errors.New("stop threshold must not be negative")
)

// Lifecycle conflicts.
var (
	ErrEntryInProgress      = errors.New("entry in progress")
	ErrEntryNotInProgress   = errors.New("entry not in progress")
	ErrRequestNotInProgress = errors.New("request id not in progress")
	ErrRequestNotResolvable = errors.New("request id not resolvable")
	ErrDrawsUnavailable     = errors.New("draws unavailable")
	ErrTooEarlyToWithdraw   = errors.New("too early to withdraw")
	ErrExceedsBatchLimit    = errors.New("exceeds batch resolve limit")
	ErrUnknownProvider      = errors.New("unknown provider kind")
	ErrInvalidProof         = errors.New("invalid randomness proof")
)

// Authorization and configuration.
var (
	ErrNotAuthorizedResolver = errors.New("not authorized resolver")
	ErrNotOwner              = errors.New("caller is not the owner")
	ErrInvalidPPV            = errors.New("invalid ppv")
	ErrInvalidMaxUnits       = errors.New("max unit count must be positive")
	ErrInvalidShares         = errors.New("invalid revenue shares")
	ErrInvalidConfig         = errors.New("invalid protocol config")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidChoice, "INVALID_CHOICE"},
	{ErrZeroWager, "ZERO_WAGER"},
	{ErrCountExceedsMax, "COUNT_EXCEEDS_MAX"},
	{ErrBelowMinimumWager, "BELOW_MINIMUM_WAGER"},
	{ErrInvalidDraws, "INVALID_DRAWS"},
	{ErrNegativeThreshold, "NEGATIVE_THRESHOLD"},
	{ErrEntryInProgress, "ENTRY_IN_PROGRESS"},
	{ErrEntryNotInProgress, "ENTRY_NOT_IN_PROGRESS"},
	{ErrRequestNotInProgress, "REQUEST_NOT_IN_PROGRESS"},
	{ErrRequestNotResolvable, "REQUEST_NOT_RESOLVABLE"},
	{ErrDrawsUnavailable, "DRAWS_UNAVAILABLE"},
	{ErrTooEarlyToWithdraw, "TOO_EARLY_TO_WITHDRAW"},
	{ErrExceedsBatchLimit, "EXCEEDS_BATCH_LIMIT"},
	{ErrUnknownProvider, "UNKNOWN_PROVIDER"},
	{ErrInvalidProof, "INVALID_PROOF"},
	{ErrNotAuthorizedResolver, "NOT_AUTHORIZED_RESOLVER"},
	{ErrNotOwner, "NOT_OWNER"},
	{ErrInvalidPPV, "INVALID_PPV"},
	{ErrInvalidMaxUnits, "INVALID_MAX_UNITS"},
	{ErrInvalidShares, "INVALID_SHARES"},
	{ErrInvalidConfig, "INVALID_CONFIG"},
}

// Code returns the stable machine code for the first sentinel err wraps, or
// INTERNAL when it wraps none.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}
