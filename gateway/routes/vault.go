package routes

import (
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"launchcore/native/streampool"
	"launchcore/native/vault"
	"launchcore/observability"
)

type vaultRoutes struct {
	core *Core
}

func (v *vaultRoutes) mount(r chi.Router) {
	r.Post("/create", v.create)
	r.Post("/claim", v.claim)
	r.Post("/members", v.updateMembers)
	r.Post("/members/add", v.addMemberUnits)
	r.Post("/admin", v.editAdmin)
	r.Get("/{asset}/{admin}", v.allocationInfo)
	r.Get("/{asset}/{admin}/members", v.members)
}

type createVaultRequest struct {
	Caller          string `json:"caller"`
	Asset           string `json:"asset"`
	Admin           string `json:"admin"`
	Amount          string `json:"amount"`
	Cliff           int64  `json:"cliff"`
	VestingDuration int64  `json:"vestingDuration"`
}

type allocationBody struct {
	Asset           string `json:"asset"`
	Admin           string `json:"admin"`
	Box             string `json:"box"`
	AmountTotal     string `json:"amountTotal"`
	Claimed         string `json:"claimed"`
	Cliff           int64  `json:"cliff"`
	VestingDuration int64  `json:"vestingDuration"`
	CreatedAt       int64  `json:"createdAt"`
}

func allocationToBody(a *vault.Allocation) allocationBody {
	return allocationBody{
		Asset:           a.Asset.Hex(),
		Admin:           a.Admin.Hex(),
		Box:             a.Box.Hex(),
		AmountTotal:     amountString(a.AmountTotal),
		Claimed:         amountString(a.Claimed),
		Cliff:           a.Cliff,
		VestingDuration: a.VestingDuration,
		CreatedAt:       a.CreatedAt,
	}
}

func (v *vaultRoutes) create(w http.ResponseWriter, r *http.Request) {
	var req createVaultRequest
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
	admin, err := requireAddr("admin", req.Admin)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	var alloc *vault.Allocation
	err = v.core.exec(func() error {
		var innerErr error
		alloc, innerErr = v.core.Vault.CreateVault(caller, asset, admin, amount, req.Cliff, req.VestingDuration)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, allocationToBody(alloc))
}

type claimRequest struct {
	Asset string `json:"asset"`
	Admin string `json:"admin"`
}

func (v *vaultRoutes) claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	asset, err := requireAddr("asset", req.Asset)
	if err != nil {
		writeError(w, err)
		return
	}
	admin, err := requireAddr("admin", req.Admin)
	if err != nil {
		writeError(w, err)
		return
	}
	var delta *big.Int
	err = v.core.exec(func() error {
		var innerErr error
		delta, innerErr = v.core.Vault.Claim(asset, admin)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	observability.LaunchMetrics().RecordClaim(asset.Hex())
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":       asset.Hex(),
		"admin":       admin.Hex(),
		"distributed": amountString(delta),
	})
}

type memberUpdateBody struct {
	Member string `json:"member"`
	Units  string `json:"units"`
}

type updateMembersRequest struct {
	Caller  string             `json:"caller"`
	Asset   string             `json:"asset"`
	Admin   string             `json:"admin"`
	Updates []memberUpdateBody `json:"updates"`
}

func (v *vaultRoutes) updateMembers(w http.ResponseWriter, r *http.Request) {
	var req updateMembersRequest
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
	admin, err := requireAddr("admin", req.Admin)
	if err != nil {
		writeError(w, err)
		return
	}
	updates := make([]vault.MemberUpdate, 0, len(req.Updates))
	for _, body := range req.Updates {
		member, err := requireAddr("member", body.Member)
		if err != nil {
			writeError(w, err)
			return
		}
		units, err := parseAmount("units", body.Units)
		if err != nil {
			writeError(w, err)
			return
		}
		updates = append(updates, vault.MemberUpdate{Member: member, Units: units})
	}
	err = v.core.exec(func() error {
		return v.core.Vault.UpdateMemberUnitsBatch(caller, asset, admin, updates)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": len(updates)})
}

type addMemberUnitsRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	Admin  string `json:"admin"`
	Member string `json:"member"`
	Delta  string `json:"delta"`
}

func (v *vaultRoutes) addMemberUnits(w http.ResponseWriter, r *http.Request) {
	var req addMemberUnitsRequest
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
	admin, err := requireAddr("admin", req.Admin)
	if err != nil {
		writeError(w, err)
		return
	}
	member, err := requireAddr("member", req.Member)
	if err != nil {
		writeError(w, err)
		return
	}
	delta, err := parseAmount("delta", req.Delta)
	if err != nil {
		writeError(w, err)
		return
	}
	err = v.core.exec(func() error {
		return v.core.Vault.AddMemberUnits(caller, asset, admin, member, delta)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	var units *big.Int
	if err := v.core.exec(func() error {
		var innerErr error
		units, innerErr = v.core.Vault.Units(asset, admin, member)
		return innerErr
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"member": member.Hex(),
		"units":  amountString(units),
	})
}

type editAdminRequest struct {
	Caller   string `json:"caller"`
	Asset    string `json:"asset"`
	Admin    string `json:"admin"`
	NewAdmin string `json:"newAdmin"`
}

func (v *vaultRoutes) editAdmin(w http.ResponseWriter, r *http.Request) {
	var req editAdminRequest
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
	admin, err := requireAddr("admin", req.Admin)
	if err != nil {
		writeError(w, err)
		return
	}
	newAdmin, err := requireAddr("newAdmin", req.NewAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	var moved *vault.Allocation
	err = v.core.exec(func() error {
		var innerErr error
		moved, innerErr = v.core.Vault.EditAllocationAdmin(caller, asset, admin, newAdmin)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allocationToBody(moved))
}

func (v *vaultRoutes) allocationInfo(w http.ResponseWriter, r *http.Request) {
	asset, err := requireAddr("asset", chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	admin, err := requireAddr("admin", chi.URLParam(r, "admin"))
	if err != nil {
		writeError(w, err)
		return
	}
	var alloc *vault.Allocation
	var streamed *big.Int
	err = v.core.exec(func() error {
		var innerErr error
		if alloc, innerErr = v.core.Vault.Allocation(asset, admin); innerErr != nil {
			return innerErr
		}
		streamed, innerErr = v.core.Vault.Streamed(asset, admin)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	body := allocationToBody(alloc)
	writeJSON(w, http.StatusOK, map[string]any{
		"allocation": body,
		"streamed":   amountString(streamed),
	})
}

type memberStatusBody struct {
	Member  string `json:"member"`
	Units   string `json:"units"`
	Accrued string `json:"accrued"`
}

func (v *vaultRoutes) members(w http.ResponseWriter, r *http.Request) {
	asset, err := requireAddr("asset", chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	admin, err := requireAddr("admin", chi.URLParam(r, "admin"))
	if err != nil {
		writeError(w, err)
		return
	}
	var members []streampool.MemberUnits
	err = v.core.exec(func() error {
		var innerErr error
		members, innerErr = v.core.Vault.MembersWithUnits(asset, admin)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]memberStatusBody, 0, len(members))
	for _, m := range members {
		out = append(out, memberStatusBody{
			Member:  m.Address.Hex(),
			Units:   amountString(m.Units),
			Accrued: amountString(m.Accrued),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}
