package streampool

import (
	"math/big"

	"launchcore/core/types"
)

// Pool is a continuous proportional payout primitive. Members hold unit
// weights and share an inbound flow in proportion to their units. All payout
// accounting is lazy: nothing moves until a call settles the pool against the
// elapsed wall-clock time.
type Pool struct {
	ID             [32]byte      `json:"id"`
	Asset          types.Address `json:"asset"`
	Owner          types.Address `json:"owner"`
	FundingAccount types.Address `json:"fundingAccount"`
	TotalUnits     *big.Int      `json:"totalUnits"`
	FlowRate       *big.Int      `json:"flowRate"` // tokens per second
	PerUnitIndex   *big.Int      `json:"perUnitIndex"`
	IndexRemainder *big.Int      `json:"indexRemainder"`
	Funding        *big.Int      `json:"funding"`
	Streamed       *big.Int      `json:"streamed"`
	LastSettled    int64         `json:"lastSettled"`
}

// Clone returns a deep copy of the pool so callers can mutate the copy
// without affecting the stored instance.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalUnits = copyBigInt(p.TotalUnits)
	clone.FlowRate = copyBigInt(p.FlowRate)
	clone.PerUnitIndex = copyBigInt(p.PerUnitIndex)
	clone.IndexRemainder = copyBigInt(p.IndexRemainder)
	clone.Funding = copyBigInt(p.Funding)
	clone.Streamed = copyBigInt(p.Streamed)
	return &clone
}

// Member records one recipient's weight and settled accrual inside a pool.
// AccruedScaled carries the member's lifetime accrual at index precision so
// repeated unit changes never lose sub-token dust.
type Member struct {
	Pool          [32]byte      `json:"pool"`
	Address       types.Address `json:"address"`
	Units         *big.Int      `json:"units"`
	IndexSnapshot *big.Int      `json:"indexSnapshot"`
	AccruedScaled *big.Int      `json:"accruedScaled"`
	Withdrawn     *big.Int      `json:"withdrawn"`
}

// Clone returns a deep copy of the member record.
func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Units = copyBigInt(m.Units)
	clone.IndexSnapshot = copyBigInt(m.IndexSnapshot)
	clone.AccruedScaled = copyBigInt(m.AccruedScaled)
	clone.Withdrawn = copyBigInt(m.Withdrawn)
	return &clone
}

// MemberUnits is the read-only projection row returned by Members.
type MemberUnits struct {
	Address types.Address `json:"address"`
	Units   *big.Int      `json:"units"`
	Accrued *big.Int      `json:"accrued"`
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
