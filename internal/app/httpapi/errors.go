package httpapi

import (
	"errors"
	"net/http"

	domain "github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
	"github.com/R3E-Network/wager_layer/internal/ledger"
)

var (
	errBadRequest   = errors.New("bad request")
	errUnknownField = errors.New("unknown config field")
)

var statusByCode = map[string]int{
	"INVALID_CHOICE":          http.StatusBadRequest,
	"ZERO_WAGER":              http.StatusBadRequest,
	"COUNT_EXCEEDS_MAX":       http.StatusBadRequest,
	"BELOW_MINIMUM_WAGER":     http.StatusBadRequest,
	"INVALID_DRAWS":           http.StatusBadRequest,
	"NEGATIVE_THRESHOLD":      http.StatusBadRequest,
	"EXCEEDS_BATCH_LIMIT":     http.StatusBadRequest,
	"UNKNOWN_PROVIDER":        http.StatusBadRequest,
	"INVALID_PPV":             http.StatusBadRequest,
	"INVALID_MAX_UNITS":       http.StatusBadRequest,
	"INVALID_SHARES":          http.StatusBadRequest,
	"INVALID_CONFIG":          http.StatusBadRequest,
	"INVALID_PROOF":           http.StatusUnprocessableEntity,
	"ENTRY_IN_PROGRESS":       http.StatusConflict,
	"TOO_EARLY_TO_WITHDRAW":   http.StatusConflict,
	"REQUEST_NOT_RESOLVABLE":  http.StatusConflict,
	"DRAWS_UNAVAILABLE":       http.StatusConflict,
	"ENTRY_NOT_IN_PROGRESS":   http.StatusNotFound,
	"REQUEST_NOT_IN_PROGRESS": http.StatusNotFound,
	"NOT_AUTHORIZED_RESOLVER": http.StatusForbidden,
	"NOT_OWNER":               http.StatusForbidden,
}

// classify maps err to an HTTP status and a stable machine code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, errUnknownField):
		return http.StatusNotFound, "UNKNOWN_FIELD"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "INSUFFICIENT_BALANCE"
	case errors.Is(err, fixedpoint.ErrSyntax), errors.Is(err, fixedpoint.ErrNegative):
		return http.StatusBadRequest, "INVALID_AMOUNT"
	}
	code := domain.Code(err)
	if status, ok := statusByCode[code]; ok {
		return status, code
	}
	return http.StatusInternalServerError, code
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	entry := h.log.WithContext(r.Context()).WithError(err).WithField("code", code)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
		msg = "internal error"
	} else {
		entry.Debug("request rejected")
	}
	writeFailure(w, status, code, msg)
}

func badRequest(w http.ResponseWriter, err error) {
	writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
}
