package vault

import (
	"errors"
	"math/big"
	"time"

	"launchcore/core/events"
	"launchcore/core/faults"
	"launchcore/core/types"
	"launchcore/crypto"
	"launchcore/native/streampool"
)

var (
	errNilState = errors.New("vault engine: state not configured")
	errNilPools = errors.New("vault engine: pool engine not configured")
)

type engineState interface {
	VaultAllocationGet(asset, admin types.Address) (*Allocation, bool, error)
	VaultAllocationPut(*Allocation) error
	VaultAllocationDelete(asset, admin types.Address) error
	// EnsureStreamable converts the holder's balance of the asset into its
	// streaming-capable representation and reports the asset the allocation
	// must be keyed by. For natively streamable assets this is the identity.
	EnsureStreamable(asset, holder types.Address, amount *big.Int) (types.Address, error)
	Transfer(asset, from, to types.Address, amount *big.Int) error
}

// Engine manages per (asset, admin) vesting allocations: isolated custody
// boxes, cliff and linear vesting gates, and one distribution pool per
// allocation. The engine is the only mutator of its pools' unit ledgers.
type Engine struct {
	state   engineState
	pools   *streampool.Engine
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a vault engine owning the supplied pool engine.
func NewEngine(pools *streampool.Engine) *Engine {
	return &Engine{
		pools:   pools,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source for the engine and its owned pool
// engine so vesting math and pool settlement observe the same clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
	} else {
		e.nowFn = now
	}
	if e.pools != nil {
		e.pools.SetNowFunc(now)
	}
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.pools == nil {
		return errNilPools
	}
	return nil
}

func (e *Engine) loadAllocation(asset, admin types.Address) (*Allocation, error) {
	alloc, ok, err := e.state.VaultAllocationGet(asset, admin)
	if err != nil {
		return nil, err
	}
	if !ok || alloc == nil {
		return nil, faults.Validationf("no vault allocation for asset %s admin %s", asset.Hex(), admin.Hex())
	}
	return alloc, nil
}

// CreateVault debits amount from the caller into a custody box for
// (asset, beneficiary), creates the allocation's distribution pool, and
// records the allocation. The box backs the pool directly, so the continuous
// stream set up by Claim draws straight from allocation custody.
func (e *Engine) CreateVault(caller, asset, beneficiary types.Address, amount *big.Int, cliff, vestingDuration int64) (*Allocation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, faults.Validationf("vault amount must be positive")
	}
	if cliff < 0 || vestingDuration < 0 {
		return nil, faults.Validationf("cliff and vesting duration must be non-negative")
	}
	streamAsset, err := e.state.EnsureStreamable(asset, caller, amount)
	if err != nil {
		return nil, err
	}
	if _, ok, err := e.state.VaultAllocationGet(streamAsset, beneficiary); err != nil {
		return nil, err
	} else if ok {
		return nil, faults.StateConflictf("vault allocation already exists for asset %s admin %s", streamAsset.Hex(), beneficiary.Hex())
	}
	box := crypto.VaultBoxAddress(streamAsset, beneficiary)
	pool, err := e.pools.CreatePool(box, streamAsset, box)
	if err != nil {
		return nil, err
	}
	if err := e.pools.Fund(pool.ID, caller, amount); err != nil {
		return nil, err
	}
	alloc := &Allocation{
		Asset:           streamAsset,
		Admin:           beneficiary,
		AmountTotal:     new(big.Int).Set(amount),
		Cliff:           cliff,
		VestingDuration: vestingDuration,
		CreatedAt:       e.now(),
		Box:             box,
		PoolID:          pool.ID,
		Claimed:         big.NewInt(0),
	}
	if err := e.state.VaultAllocationPut(alloc); err != nil {
		return nil, err
	}
	e.emit(VaultCreatedEvent(alloc))
	return alloc.Clone(), nil
}

// UpdateMemberUnits sets a member's unit weight in the admin's pool. Only the
// allocation admin may call it; the change is effective immediately because
// payout is computed continuously from current units and flow rate.
func (e *Engine) UpdateMemberUnits(caller, asset, admin, member types.Address, units *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	alloc, err := e.loadAllocation(asset, admin)
	if err != nil {
		return err
	}
	if caller != alloc.Admin {
		return faults.Authorizationf("caller %s is not the allocation admin", caller.Hex())
	}
	if err := e.pools.SetUnits(alloc.PoolID, member, units); err != nil {
		return err
	}
	e.emit(VaultMemberUnitsEvent(alloc, member, units))
	return nil
}

// AddMemberUnits increases a member's unit weight by delta.
func (e *Engine) AddMemberUnits(caller, asset, admin, member types.Address, delta *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if delta == nil || delta.Sign() <= 0 {
		return faults.Validationf("unit delta must be positive")
	}
	alloc, err := e.loadAllocation(asset, admin)
	if err != nil {
		return err
	}
	if caller != alloc.Admin {
		return faults.Authorizationf("caller %s is not the allocation admin", caller.Hex())
	}
	current, err := e.pools.Units(alloc.PoolID, member)
	if err != nil {
		return err
	}
	units := new(big.Int).Add(current, delta)
	if err := e.pools.SetUnits(alloc.PoolID, member, units); err != nil {
		return err
	}
	e.emit(VaultMemberUnitsEvent(alloc, member, units))
	return nil
}

// UpdateMemberUnitsBatch applies several unit updates in one call. The whole
// batch is validated before the first write.
func (e *Engine) UpdateMemberUnitsBatch(caller, asset, admin types.Address, updates []MemberUpdate) error {
	if err := e.ready(); err != nil {
		return err
	}
	if len(updates) == 0 {
		return faults.Validationf("empty member update batch")
	}
	alloc, err := e.loadAllocation(asset, admin)
	if err != nil {
		return err
	}
	if caller != alloc.Admin {
		return faults.Authorizationf("caller %s is not the allocation admin", caller.Hex())
	}
	for _, u := range updates {
		if u.Units == nil || u.Units.Sign() < 0 {
			return faults.Validationf("units for member %s must be non-negative", u.Member.Hex())
		}
	}
	for _, u := range updates {
		if err := e.pools.SetUnits(alloc.PoolID, u.Member, u.Units); err != nil {
			return err
		}
		e.emit(VaultMemberUnitsEvent(alloc, u.Member, u.Units))
	}
	return nil
}

// Units returns the member's current unit weight in the admin's pool.
func (e *Engine) Units(asset, admin, member types.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	alloc, err := e.loadAllocation(asset, admin)
	if err != nil {
		return nil, err
	}
	return e.pools.Units(alloc.PoolID, member)
}

// EditAllocationAdmin atomically moves the allocation keyed by oldAdmin to
// newAdmin. Afterwards exactly one of the two keys holds the allocation; the
// amount, box, and pool are untouched.
func (e *Engine) EditAllocationAdmin(caller, asset, oldAdmin, newAdmin types.Address) (*Allocation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if newAdmin.IsZero() {
		return nil, faults.Validationf("new admin must not be the zero address")
	}
	alloc, err := e.loadAllocation(asset, oldAdmin)
	if err != nil {
		return nil, err
	}
	if caller != alloc.Admin {
		return nil, faults.Authorizationf("caller %s is not the allocation admin", caller.Hex())
	}
	if oldAdmin == newAdmin {
		return alloc.Clone(), nil
	}
	if _, ok, err := e.state.VaultAllocationGet(asset, newAdmin); err != nil {
		return nil, err
	} else if ok {
		return nil, faults.StateConflictf("vault allocation already exists for asset %s admin %s", asset.Hex(), newAdmin.Hex())
	}
	moved := alloc.Clone()
	moved.Admin = newAdmin
	if err := e.state.VaultAllocationPut(moved); err != nil {
		return nil, err
	}
	if err := e.state.VaultAllocationDelete(asset, oldAdmin); err != nil {
		return nil, err
	}
	e.emit(VaultAdminEditedEvent(moved, oldAdmin))
	return moved.Clone(), nil
}

// Claim advances the allocation's vesting stream. Before the cliff it fails
// with a timing error. Otherwise the delta between the linearly vested amount
// and what has already streamed is distributed instantly, and the flow rate is
// retargeted so the unvested remainder streams evenly over the remaining
// vesting window. Claims past full vesting are no-ops; the pool never streams
// more than AmountTotal.
func (e *Engine) Claim(asset, admin types.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	alloc, err := e.loadAllocation(asset, admin)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if now < alloc.CreatedAt+alloc.Cliff {
		return nil, faults.Timingf("cliff not reached until %d", alloc.CreatedAt+alloc.Cliff)
	}
	pool, err := e.pools.Settle(alloc.PoolID)
	if err != nil {
		return nil, err
	}
	vested := alloc.vestedAt(now)
	delta := new(big.Int).Sub(vested, pool.Streamed)
	if delta.Sign() > 0 && pool.TotalUnits.Sign() > 0 {
		if err := e.pools.Distribute(alloc.PoolID, delta); err != nil {
			return nil, err
		}
	} else {
		delta = big.NewInt(0)
	}
	remainder := new(big.Int).Sub(alloc.AmountTotal, vested)
	rate := big.NewInt(0)
	if remaining := alloc.vestingEnd() - now; remaining > 0 && remainder.Sign() > 0 {
		// Ceiling division so the stream completes within the window; the
		// funding balance caps the last second's overshoot.
		rate = new(big.Int).Add(remainder, big.NewInt(remaining-1))
		rate.Quo(rate, big.NewInt(remaining))
	}
	if err := e.pools.SetFlowRate(alloc.PoolID, rate); err != nil {
		return nil, err
	}
	alloc.Claimed = vested
	if err := e.state.VaultAllocationPut(alloc); err != nil {
		return nil, err
	}
	e.emit(VaultClaimedEvent(alloc, delta, rate))
	return delta, nil
}

// Allocation returns a copy of the stored allocation.
func (e *Engine) Allocation(asset, admin types.Address) (*Allocation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	alloc, err := e.loadAllocation(asset, admin)
	if err != nil {
		return nil, err
	}
	return alloc.Clone(), nil
}

// Streamed reports the amount the allocation's pool has distributed so far.
func (e *Engine) Streamed(asset, admin types.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	alloc, err := e.loadAllocation(asset, admin)
	if err != nil {
		return nil, err
	}
	pool, err := e.pools.Pool(alloc.PoolID)
	if err != nil {
		return nil, err
	}
	return pool.Streamed, nil
}

// MembersWithUnits returns the (member, units, accrued) projection of the
// allocation's pool. Auditing aid; no side effects.
func (e *Engine) MembersWithUnits(asset, admin types.Address) ([]streampool.MemberUnits, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	alloc, err := e.loadAllocation(asset, admin)
	if err != nil {
		return nil, err
	}
	return e.pools.Members(alloc.PoolID)
}
