package httpapi

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	domain "github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/randomness/oracle"
	"github.com/R3E-Network/wager_layer/internal/middleware"
)

func (h *handler) resolveLocal(w http.ResponseWriter, r *http.Request) {
	out, err := h.engine.ResolveLocal(r.Context(), middleware.Caller(r.Context()), mux.Vars(r)["requestId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOutcomeView(out))
}

func (h *handler) batchResolve(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RequestIDs []string `json:"request_ids"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		badRequest(w, err)
		return
	}
	res, err := h.engine.BatchResolve(r.Context(), middleware.Caller(r.Context()), payload.RequestIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBatchView(res))
}

func (h *handler) vrfCallback(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Signature string `json:"signature"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		badRequest(w, err)
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(payload.Signature, "0x"))
	if err != nil || len(sig) == 0 {
		badRequest(w, fmt.Errorf("signature must be non-empty hex"))
		return
	}
	out, err := h.engine.FulfillVRF(r.Context(), mux.Vars(r)["requestId"], sig)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOutcomeView(out))
}

func (h *handler) oracleCallback(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Words []string `json:"words"`
		Bonus []bool   `json:"bonus,omitempty"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		badRequest(w, err)
		return
	}
	words, err := oracle.ParseWords(payload.Words)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.engine.FulfillOracle(r.Context(), middleware.Caller(r.Context()), mux.Vars(r)["requestId"], words, payload.Bonus)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOutcomeView(out))
}

// pendingRequests lists open requests for a provider. Resolvers and the
// oracle identity use it to find work.
func (h *handler) pendingRequests(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Caller(r.Context())
	reg := h.engine.Registry()
	if !reg.IsResolver(caller) && !reg.IsOracle(caller) && !reg.IsOwner(caller) {
		h.fail(w, r, domain.ErrNotAuthorizedResolver)
		return
	}
	kind := domain.ProviderKind(r.URL.Query().Get("provider"))
	if kind == "" {
		kind = reg.Snapshot().ActiveProvider
	}
	if !kind.Valid() {
		h.fail(w, r, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, kind))
		return
	}
	reqs, err := h.engine.PendingRequests(r.Context(), kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []domain.Request{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"provider": kind, "requests": reqs})
}
