package vault

import (
	"math/big"

	"launchcore/core/types"
)

// Allocation is a per (asset, admin) vesting allocation. The box is an
// exclusively owned custody sub-account holding the not-yet-streamed balance;
// it doubles as the funding source of the allocation's distribution pool.
type Allocation struct {
	Asset           types.Address `json:"asset"`
	Admin           types.Address `json:"admin"`
	AmountTotal     *big.Int      `json:"amountTotal"`
	Cliff           int64         `json:"cliff"`
	VestingDuration int64         `json:"vestingDuration"`
	CreatedAt       int64         `json:"createdAt"`
	Box             types.Address `json:"box"`
	PoolID          [32]byte      `json:"poolId"`
	Claimed         *big.Int      `json:"claimed"`
}

// Clone returns a deep copy of the allocation.
func (a *Allocation) Clone() *Allocation {
	if a == nil {
		return nil
	}
	clone := *a
	if a.AmountTotal != nil {
		clone.AmountTotal = new(big.Int).Set(a.AmountTotal)
	} else {
		clone.AmountTotal = big.NewInt(0)
	}
	if a.Claimed != nil {
		clone.Claimed = new(big.Int).Set(a.Claimed)
	} else {
		clone.Claimed = big.NewInt(0)
	}
	return &clone
}

// vestingEnd is the instant at which the allocation is fully vested.
func (a *Allocation) vestingEnd() int64 {
	return a.CreatedAt + a.Cliff + a.VestingDuration
}

// vestedAt computes the linearly vested amount at the given instant. Before
// the cliff nothing vests; a zero vesting duration vests everything the moment
// the cliff elapses.
func (a *Allocation) vestedAt(now int64) *big.Int {
	start := a.CreatedAt + a.Cliff
	if now < start {
		return big.NewInt(0)
	}
	if a.VestingDuration <= 0 || now >= a.vestingEnd() {
		return new(big.Int).Set(a.AmountTotal)
	}
	elapsed := now - start
	vested := new(big.Int).Mul(a.AmountTotal, big.NewInt(elapsed))
	return vested.Quo(vested, big.NewInt(a.VestingDuration))
}

// MemberUpdate is one row of a batched unit update.
type MemberUpdate struct {
	Member types.Address `json:"member"`
	Units  *big.Int      `json:"units"`
}
