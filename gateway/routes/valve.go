package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"launchcore/native/valve"
	"launchcore/observability"
)

type valveRoutes struct {
	core *Core
}

func (v *valveRoutes) mount(r chi.Router) {
	r.Post("/open", v.open)
	r.Post("/close", v.close)
	r.Post("/swapped-out", v.setSwappedOut)
	r.Get("/{asset}", v.status)
}

type valveAssetRequest struct {
	Asset string `json:"asset"`
}

type valveStateBody struct {
	Asset         string `json:"asset"`
	IsOpen        bool   `json:"isOpen"`
	SavedBaseline string `json:"savedBaseline"`
	OpenedAt      int64  `json:"openedAt,omitempty"`
	ClosedAt      int64  `json:"closedAt,omitempty"`
}

func valveStateToBody(s *valve.State) valveStateBody {
	return valveStateBody{
		Asset:         s.Asset.Hex(),
		IsOpen:        s.IsOpen,
		SavedBaseline: amountString(s.SavedBaseline),
		OpenedAt:      s.OpenedAt,
		ClosedAt:      s.ClosedAt,
	}
}

func (v *valveRoutes) open(w http.ResponseWriter, r *http.Request) {
	var req valveAssetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	asset, err := requireAddr("asset", req.Asset)
	if err != nil {
		writeError(w, err)
		return
	}
	var st *valve.State
	err = v.core.exec(func() error {
		var innerErr error
		st, innerErr = v.core.Valve.OpenValve(asset)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	observability.LaunchMetrics().RecordValve(asset.Hex(), true)
	writeJSON(w, http.StatusOK, valveStateToBody(st))
}

type valveSwappedOutRequest struct {
	Caller     string `json:"caller"`
	Percentage uint32 `json:"percentage"`
}

func (v *valveRoutes) setSwappedOut(w http.ResponseWriter, r *http.Request) {
	var req valveSwappedOutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, err := requireAddr("caller", req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	err = v.core.exec(func() error {
		return v.core.Valve.SetPercentSwappedOut(caller, req.Percentage)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"percentSwappedOut": req.Percentage})
}

type valveCloseRequest struct {
	Caller string `json:"caller,omitempty"`
	Asset  string `json:"asset"`
}

func (v *valveRoutes) close(w http.ResponseWriter, r *http.Request) {
	var req valveCloseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	asset, err := requireAddr("asset", req.Asset)
	if err != nil {
		writeError(w, err)
		return
	}
	// The zero caller closes by condition only; the manager may override.
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	var st *valve.State
	err = v.core.exec(func() error {
		var innerErr error
		st, innerErr = v.core.Valve.CloseValve(caller, asset)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	observability.LaunchMetrics().RecordValve(asset.Hex(), false)
	writeJSON(w, http.StatusOK, valveStateToBody(st))
}

func (v *valveRoutes) status(w http.ResponseWriter, r *http.Request) {
	asset, err := requireAddr("asset", chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	var st *valve.State
	var canOpen, canClose bool
	err = v.core.exec(func() error {
		var innerErr error
		if st, innerErr = v.core.Valve.Status(asset); innerErr != nil {
			return innerErr
		}
		if canOpen, innerErr = v.core.Valve.CanOpenValve(asset); innerErr != nil {
			return innerErr
		}
		canClose, innerErr = v.core.Valve.CanCloseValve(asset)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    valveStateToBody(st),
		"canOpen":  canOpen,
		"canClose": canClose,
	})
}
