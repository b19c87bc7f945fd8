package staking

import (
	"math/big"

	"launchcore/core/types"
)

// Wrapper is the per-asset lock-and-stream staking instance. Its address is
// derived deterministically from the asset, acts as the custody account for
// locked underlying, and identifies the wrapped (staked) balance. The factory
// itself holds BaselineUnits in the reward pool, representing the escrowed
// remainder that no holder has individually staked yet.
type Wrapper struct {
	Asset          types.Address `json:"asset"`
	Address        types.Address `json:"address"`
	PoolID         [32]byte      `json:"poolId"`
	LockupDuration int64         `json:"lockupDuration"`
	StreamDuration int64         `json:"streamDuration"`
	BaselineUnits  *big.Int      `json:"baselineUnits"`
	SeededAmount   *big.Int      `json:"seededAmount"`
	BaselineLocked bool          `json:"baselineLocked"`
	CreatedAt      int64         `json:"createdAt"`
}

// Clone returns a deep copy of the wrapper.
func (w *Wrapper) Clone() *Wrapper {
	if w == nil {
		return nil
	}
	clone := *w
	if w.BaselineUnits != nil {
		clone.BaselineUnits = new(big.Int).Set(w.BaselineUnits)
	} else {
		clone.BaselineUnits = big.NewInt(0)
	}
	if w.SeededAmount != nil {
		clone.SeededAmount = new(big.Int).Set(w.SeededAmount)
	} else {
		clone.SeededAmount = big.NewInt(0)
	}
	return &clone
}

// Position tracks one holder's wrapped balance and lock status. Delegatee is
// the zero address while the holder keeps their own reward units.
// BaselineConsumed records how much of the factory baseline this position's
// stakes actually decremented, so unstaking restores exactly that much and
// the baseline can never grow past the seeded escrow.
type Position struct {
	Asset            types.Address `json:"asset"`
	Holder           types.Address `json:"holder"`
	WrappedBalance   *big.Int      `json:"wrappedBalance"`
	BaselineConsumed *big.Int      `json:"baselineConsumed"`
	UnlockTime       int64         `json:"unlockTime"`
	Delegatee        types.Address `json:"delegatee"`
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	if p.WrappedBalance != nil {
		clone.WrappedBalance = new(big.Int).Set(p.WrappedBalance)
	} else {
		clone.WrappedBalance = big.NewInt(0)
	}
	if p.BaselineConsumed != nil {
		clone.BaselineConsumed = new(big.Int).Set(p.BaselineConsumed)
	} else {
		clone.BaselineConsumed = big.NewInt(0)
	}
	return &clone
}

// rewardTarget is the pool member currently carrying the position's units.
func (p *Position) rewardTarget() types.Address {
	if p.Delegatee.IsZero() {
		return p.Holder
	}
	return p.Delegatee
}
