package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"launchcore/core/faults"
	"launchcore/native/allocation"
	"launchcore/observability"
)

type allocationRoutes struct {
	core *Core
}

func (a *allocationRoutes) mount(r chi.Router) {
	r.Post("/config", a.createConfig)
	r.Post("/disable", a.disable)
	r.Post("/minted", a.minted)
	r.Get("/{asset}", a.config)
}

type allocationEntryBody struct {
	Kind            string `json:"kind"`
	Recipient       string `json:"recipient,omitempty"`
	Percentage      uint32 `json:"percentage"`
	Cliff           int64  `json:"cliff,omitempty"`
	VestingDuration int64  `json:"vestingDuration,omitempty"`
	LockupDuration  int64  `json:"lockupDuration,omitempty"`
	StreamDuration  int64  `json:"streamDuration,omitempty"`
}

func (b allocationEntryBody) toEntry() (allocation.Entry, error) {
	entry := allocation.Entry{
		Percentage:      b.Percentage,
		Cliff:           b.Cliff,
		VestingDuration: b.VestingDuration,
		LockupDuration:  b.LockupDuration,
		StreamDuration:  b.StreamDuration,
	}
	switch b.Kind {
	case "vault":
		entry.Kind = allocation.KindVault
	case "staking":
		entry.Kind = allocation.KindStaking
	default:
		return entry, faults.Validationf("entry kind %q unknown", b.Kind)
	}
	recipient, err := parseAddr("recipient", b.Recipient)
	if err != nil {
		return entry, err
	}
	entry.Recipient = recipient
	return entry, nil
}

func entryToBody(e allocation.Entry) allocationEntryBody {
	body := allocationEntryBody{
		Kind:            e.Kind.String(),
		Percentage:      e.Percentage,
		Cliff:           e.Cliff,
		VestingDuration: e.VestingDuration,
		LockupDuration:  e.LockupDuration,
		StreamDuration:  e.StreamDuration,
	}
	if !e.Recipient.IsZero() {
		body.Recipient = e.Recipient.Hex()
	}
	return body
}

type createConfigRequest struct {
	Asset   string                `json:"asset"`
	Entries []allocationEntryBody `json:"entries"`
}

type configResponse struct {
	Asset     string                `json:"asset"`
	Entries   []allocationEntryBody `json:"entries"`
	Disabled  bool                  `json:"disabled"`
	CreatedAt int64                 `json:"createdAt"`
}

func configToResponse(cfg *allocation.Config) configResponse {
	resp := configResponse{
		Asset:     cfg.Asset.Hex(),
		Disabled:  cfg.Disabled,
		CreatedAt: cfg.CreatedAt,
	}
	for _, entry := range cfg.Entries {
		resp.Entries = append(resp.Entries, entryToBody(entry))
	}
	return resp
}

func (a *allocationRoutes) createConfig(w http.ResponseWriter, r *http.Request) {
	var req createConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	asset, err := requireAddr("asset", req.Asset)
	if err != nil {
		writeError(w, err)
		return
	}
	entries := make([]allocation.Entry, 0, len(req.Entries))
	for _, body := range req.Entries {
		entry, err := body.toEntry()
		if err != nil {
			writeError(w, err)
			return
		}
		entries = append(entries, entry)
	}
	var cfg *allocation.Config
	err = a.core.exec(func() error {
		var innerErr error
		cfg, innerErr = a.core.Allocation.CreateAllocationConfig(asset, entries)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, configToResponse(cfg))
}

type disableRequest struct {
	Asset string `json:"asset"`
}

func (a *allocationRoutes) disable(w http.ResponseWriter, r *http.Request) {
	var req disableRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	asset, err := requireAddr("asset", req.Asset)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.core.exec(func() error { return a.core.Allocation.DisableHook(asset) }); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": asset.Hex(), "status": "disabled"})
}

type mintedRequest struct {
	Caller      string `json:"caller"`
	Asset       string `json:"asset"`
	TotalSupply string `json:"totalSupply"`
}

type entryResultBody struct {
	Kind      string `json:"kind"`
	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount"`
}

type fanOutResponse struct {
	Asset       string            `json:"asset"`
	TotalSupply string            `json:"totalSupply"`
	Allocated   string            `json:"allocated"`
	Remainder   string            `json:"remainder"`
	Entries     []entryResultBody `json:"entries"`
}

func (a *allocationRoutes) minted(w http.ResponseWriter, r *http.Request) {
	var req mintedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, err := requireAddr("caller", req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	asset, err := requireAddr("asset", req.Asset)
	if err != nil {
		writeError(w, err)
		return
	}
	supply, err := parseAmount("totalSupply", req.TotalSupply)
	if err != nil {
		writeError(w, err)
		return
	}
	var out *allocation.FanOut
	err = a.core.exec(func() error {
		var innerErr error
		out, innerErr = a.core.Allocation.OnAssetMinted(caller, asset, supply)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	observability.LaunchMetrics().RecordFanOut(asset.Hex())
	resp := fanOutResponse{
		Asset:       out.Asset.Hex(),
		TotalSupply: amountString(out.TotalSupply),
		Allocated:   amountString(out.Allocated),
		Remainder:   amountString(out.Remainder),
	}
	for _, entry := range out.Entries {
		body := entryResultBody{Kind: entry.Kind.String(), Amount: amountString(entry.Amount)}
		if !entry.Recipient.IsZero() {
			body.Recipient = entry.Recipient.Hex()
		}
		resp.Entries = append(resp.Entries, body)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *allocationRoutes) config(w http.ResponseWriter, r *http.Request) {
	asset, err := requireAddr("asset", chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := a.core.Allocation.Config(asset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configToResponse(cfg))
}
