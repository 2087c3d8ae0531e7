package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	domain "github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/protocol"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
	"github.com/R3E-Network/wager_layer/internal/middleware"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// configUpdate is the body of PUT /v1/admin/config/{field}. Most fields read
// Value; shares read Host and Protocol; provider reads Value plus optional
// Params; resolvers reads Values.
type configUpdate struct {
	Value    string                   `json:"value"`
	Values   []string                 `json:"values,omitempty"`
	Host     string                   `json:"host,omitempty"`
	Protocol string                   `json:"protocol,omitempty"`
	Params   *protocol.ProviderParams `json:"params,omitempty"`
}

type setter func(reg *protocol.Registry, caller string, u configUpdate) error

// configField pairs a setter with the part of the config view it changes.
type configField struct {
	set  setter
	view func(v configView) interface{}
}

var configFields = map[string]configField{
	"host": {
		view: func(v configView) interface{} { return v.Host },
		set: func(reg *protocol.Registry, caller string, u configUpdate) error {
			return reg.SetHost(caller, u.Value)
		},
	},
	"treasury": {
		view: func(v configView) interface{} { return v.Treasury },
		set: func(reg *protocol.Registry, caller string, u configUpdate) error {
			return reg.SetTreasury(caller, u.Value)
		},
	},
	"resolvers": {
		view: func(v configView) interface{} { return v.Resolvers },
		set: func(reg *protocol.Registry, caller string, u configUpdate) error {
			return reg.SetResolvers(caller, u.Values)
		},
	},
	"ppv": {
		view: func(v configView) interface{} { return v.PPV },
		set: func(reg *protocol.Registry, caller string, u configUpdate) error {
			v, err := fixedpoint.ParseDecimal(u.Value)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrInvalidPPV, err)
			}
			return reg.SetPPV(caller, v)
		},
	},
	"shares": {
		view: func(v configView) interface{} { return map[string]string{"host": v.HostShare, "protocol": v.ProtocolShare} },
		set: func(reg *protocol.Registry, caller string, u configUpdate) error {
			host, err := fixedpoint.ParseDecimal(u.Host)
			if err != nil {
				return fmt.Errorf("%w: host: %v", domain.ErrInvalidShares, err)
			}
			proto, err := fixedpoint.ParseDecimal(u.Protocol)
			if err != nil {
				return fmt.Errorf("%w: protocol: %v", domain.ErrInvalidShares, err)
			}
			return reg.SetShares(caller, host, proto)
		},
	},
	"max-units": {
		view: func(v configView) interface{} { return v.MaxUnitCount },
		set: func(reg *protocol.Registry, caller string, u configUpdate) error {
			n, err := strconv.Atoi(u.Value)
			if err != nil {
				return fmt.Errorf("%w: %q", domain.ErrInvalidMaxUnits, u.Value)
			}
			return reg.SetMaxUnitCount(caller, n)
		},
	},
	"min-wager": {
		view: func(v configView) interface{} { return v.MinWager },
		set: func(reg *protocol.Registry, caller string, u configUpdate) error {
			v, err := fixedpoint.ParseUnits(u.Value)
			if err != nil {
				return err
			}
			return reg.SetMinWager(caller, v)
		},
	},
	"provider": {
		view: func(v configView) interface{} { return map[string]interface{}{"active": v.ActiveProvider, "params": v.Providers} },
		set: func(reg *protocol.Registry, caller string, u configUpdate) error {
			if u.Params != nil {
				if err := reg.SetProviderParams(caller, *u.Params); err != nil {
					return err
				}
			}
			if u.Value == "" {
				return nil
			}
			return reg.SetActiveProvider(caller, domain.ProviderKind(u.Value))
		},
	},
	"batch-limit": {
		view: func(v configView) interface{} { return v.BatchResolveLimit },
		set: func(reg *protocol.Registry, caller string, u configUpdate) error {
			n, err := strconv.Atoi(u.Value)
			if err != nil {
				return fmt.Errorf("%w: batch limit %q", domain.ErrInvalidConfig, u.Value)
			}
			return reg.SetBatchResolveLimit(caller, n)
		},
	},
	"withdraw-delay": {
		view: func(v configView) interface{} { return v.WithdrawDelay },
		set: func(reg *protocol.Registry, caller string, u configUpdate) error {
			n, err := strconv.ParseUint(u.Value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: withdraw delay %q", domain.ErrInvalidConfig, u.Value)
			}
			return reg.SetWithdrawDelay(caller, n)
		},
	},
	"edge-mode": {
		view: func(v configView) interface{} { return v.EdgeMode },
		set: func(reg *protocol.Registry, caller string, u configUpdate) error {
			return reg.SetEdgeMode(caller, domain.EdgeMode(u.Value))
		},
	},
}

func (h *handler) getConfig(w http.ResponseWriter, r *http.Request) {
	reg := h.engine.Registry()
	if !reg.IsOwner(middleware.Caller(r.Context())) {
		h.fail(w, r, domain.ErrNotOwner)
		return
	}
	writeJSON(w, http.StatusOK, newConfigView(reg.Snapshot()))
}

func (h *handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Caller(r.Context())
	name := mux.Vars(r)["field"]
	reg := h.engine.Registry()
	field, known := configFields[name]

	change := configChange{Caller: caller, Field: name, TraceID: logger.TraceID(r.Context())}
	if known {
		change.Before = field.view(newConfigView(reg.Snapshot()))
	}

	err := h.applyUpdate(r, reg, caller, name)
	change.Status = http.StatusOK
	if err != nil {
		change.Status, change.Code = classify(err)
	} else {
		change.Applied = true
		change.After = field.view(newConfigView(reg.Snapshot()))
	}
	h.changes.record(change)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newConfigView(reg.Snapshot()))
}

// applyUpdate decodes and commits one field.
func (h *handler) applyUpdate(r *http.Request, reg *protocol.Registry, caller, field string) error {
	if !reg.IsOwner(caller) {
		return domain.ErrNotOwner
	}
	f, ok := configFields[field]
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownField, field)
	}
	var u configUpdate
	if err := decodeJSON(r, &u); err != nil {
		return err
	}
	return f.set(reg, caller, u)
}

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Registry().IsOwner(middleware.Caller(r.Context())) {
		h.fail(w, r, domain.ErrNotOwner)
		return
	}
	q := r.URL.Query()
	filter := changeFilter{Field: q.Get("field"), Caller: q.Get("caller")}
	writeJSON(w, http.StatusOK, h.changes.recent(filter, queryInt(r, "limit", 100, 500)))
}
