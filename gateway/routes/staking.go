package routes

import (
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"launchcore/core/faults"
	"launchcore/core/types"
	"launchcore/native/staking"
	"launchcore/observability"
)

type stakingRoutes struct {
	core *Core
}

func (s *stakingRoutes) mount(r chi.Router) {
	r.Post("/stake", s.stake)
	r.Post("/unstake", s.unstake)
	r.Post("/delegate", s.delegate)
	r.Post("/rewards/claim", s.claimRewards)
	r.Post("/valve-share", s.setValveShare)
	r.Get("/{asset}", s.wrapper)
	r.Get("/{asset}/{holder}", s.position)
}

type stakeRequest struct {
	Caller     string `json:"caller"`
	Asset      string `json:"asset"`
	OnBehalfOf string `json:"onBehalfOf,omitempty"`
	Delegatee  string `json:"delegatee,omitempty"`
	Amount     string `json:"amount"`
}

type positionBody struct {
	Asset          string `json:"asset"`
	Holder         string `json:"holder"`
	WrappedBalance string `json:"wrappedBalance"`
	UnlockTime     int64  `json:"unlockTime"`
	Delegatee      string `json:"delegatee,omitempty"`
}

func positionToBody(p *staking.Position) positionBody {
	body := positionBody{
		Asset:          p.Asset.Hex(),
		Holder:         p.Holder.Hex(),
		WrappedBalance: amountString(p.WrappedBalance),
		UnlockTime:     p.UnlockTime,
	}
	if !p.Delegatee.IsZero() {
		body.Delegatee = p.Delegatee.Hex()
	}
	return body
}

func (s *stakingRoutes) stake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
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
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.OnBehalfOf != "" && req.Delegatee != "" {
		writeError(w, faults.Validationf("onBehalfOf and delegatee are mutually exclusive"))
		return
	}
	var pos *staking.Position
	err = s.core.exec(func() error {
		var innerErr error
		switch {
		case req.Delegatee != "":
			var delegatee types.Address
			if delegatee, innerErr = requireAddr("delegatee", req.Delegatee); innerErr != nil {
				return innerErr
			}
			pos, innerErr = s.core.Staking.StakeAndDelegate(caller, asset, delegatee, amount)
		case req.OnBehalfOf != "":
			var onBehalfOf types.Address
			if onBehalfOf, innerErr = requireAddr("onBehalfOf", req.OnBehalfOf); innerErr != nil {
				return innerErr
			}
			pos, innerErr = s.core.Staking.Stake(caller, asset, onBehalfOf, amount)
		default:
			pos, innerErr = s.core.Staking.Stake(caller, asset, caller, amount)
		}
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionToBody(pos))
}

type unstakeRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (s *stakingRoutes) unstake(w http.ResponseWriter, r *http.Request) {
	var req unstakeRequest
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
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	var pos *staking.Position
	err = s.core.exec(func() error {
		var innerErr error
		pos, innerErr = s.core.Staking.Unstake(caller, asset, amount)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionToBody(pos))
}

type delegateRequest struct {
	Caller    string `json:"caller"`
	Asset     string `json:"asset"`
	Delegatee string `json:"delegatee,omitempty"`
}

func (s *stakingRoutes) delegate(w http.ResponseWriter, r *http.Request) {
	var req delegateRequest
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
	// An empty delegatee returns the reward units to the holder.
	delegatee, err := parseAddr("delegatee", req.Delegatee)
	if err != nil {
		writeError(w, err)
		return
	}
	var pos *staking.Position
	err = s.core.exec(func() error {
		var innerErr error
		pos, innerErr = s.core.Staking.Delegate(caller, asset, delegatee)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionToBody(pos))
}

type claimRewardsRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
}

func (s *stakingRoutes) claimRewards(w http.ResponseWriter, r *http.Request) {
	var req claimRewardsRequest
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
	var amount *big.Int
	err = s.core.exec(func() error {
		var innerErr error
		amount, innerErr = s.core.Staking.ClaimRewards(caller, asset)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	observability.LaunchMetrics().RecordWithdrawal(asset.Hex())
	writeJSON(w, http.StatusOK, map[string]string{
		"holder": caller.Hex(),
		"asset":  asset.Hex(),
		"amount": amountString(amount),
	})
}

type valveShareRequest struct {
	Caller     string `json:"caller"`
	Percentage uint32 `json:"percentage"`
}

func (s *stakingRoutes) setValveShare(w http.ResponseWriter, r *http.Request) {
	var req valveShareRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, err := requireAddr("caller", req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.core.exec(func() error {
		return s.core.Staking.SetPercentageToValve(caller, req.Percentage)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"percentageToValve": req.Percentage})
}

type wrapperBody struct {
	Asset          string `json:"asset"`
	Address        string `json:"address"`
	LockupDuration int64  `json:"lockupDuration"`
	StreamDuration int64  `json:"streamDuration"`
	SeededAmount   string `json:"seededAmount"`
	BaselineUnits  string `json:"baselineUnits"`
	CreatedAt      int64  `json:"createdAt"`
}

func (s *stakingRoutes) wrapper(w http.ResponseWriter, r *http.Request) {
	asset, err := requireAddr("asset", chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	var wrapper *staking.Wrapper
	err = s.core.exec(func() error {
		var innerErr error
		wrapper, innerErr = s.core.Staking.Wrapper(asset)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wrapperBody{
		Asset:          wrapper.Asset.Hex(),
		Address:        wrapper.Address.Hex(),
		LockupDuration: wrapper.LockupDuration,
		StreamDuration: wrapper.StreamDuration,
		SeededAmount:   amountString(wrapper.SeededAmount),
		BaselineUnits:  amountString(wrapper.BaselineUnits),
		CreatedAt:      wrapper.CreatedAt,
	})
}

func (s *stakingRoutes) position(w http.ResponseWriter, r *http.Request) {
	asset, err := requireAddr("asset", chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	holder, err := requireAddr("holder", chi.URLParam(r, "holder"))
	if err != nil {
		writeError(w, err)
		return
	}
	var pos *staking.Position
	var units *big.Int
	err = s.core.exec(func() error {
		var innerErr error
		if pos, innerErr = s.core.Staking.Position(asset, holder); innerErr != nil {
			return innerErr
		}
		units, innerErr = s.core.Staking.RewardUnits(asset, holder)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"position":    positionToBody(pos),
		"rewardUnits": amountString(units),
	})
}
