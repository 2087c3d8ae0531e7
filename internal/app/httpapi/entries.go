package httpapi

import (
	"fmt"
	"math/big"
	"net/http"

	domain "github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	wagersvc "github.com/R3E-Network/wager_layer/internal/app/services/wager"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
	"github.com/R3E-Network/wager_layer/internal/middleware"
)

type submitPayload struct {
	Game        domain.Game   `json:"game"`
	Choice      domain.Choice `json:"choice"`
	WagerAmount string        `json:"wager_amount"`
	UnitCount   int           `json:"unit_count"`
	StopLoss    string        `json:"stop_loss,omitempty"`
	StopGain    string        `json:"stop_gain,omitempty"`
}

func (p submitPayload) request() (wagersvc.SubmitRequest, error) {
	req := wagersvc.SubmitRequest{Game: p.Game, Choice: p.Choice, UnitCount: p.UnitCount}
	if p.WagerAmount == "" {
		return req, fmt.Errorf("wager_amount is required")
	}
	var err error
	if req.WagerAmount, err = fixedpoint.ParseUnits(p.WagerAmount); err != nil {
		return req, err
	}
	if req.StopLoss, err = parseOptional(p.StopLoss); err != nil {
		return req, err
	}
	if req.StopGain, err = parseOptional(p.StopGain); err != nil {
		return req, err
	}
	return req, nil
}

func parseOptional(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return fixedpoint.ParseUnits(s)
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var payload submitPayload
	if err := decodeJSON(r, &payload); err != nil {
		badRequest(w, err)
		return
	}
	req, err := payload.request()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	entry, err := h.engine.Submit(r.Context(), middleware.Caller(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEntryView(entry))
}

func (h *handler) myEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.engine.Entry(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEntryView(entry))
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	refund, err := h.engine.Withdraw(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"refund": units(refund)})
}
