package staking

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
	errNilState = errors.New("staking engine: state not configured")
	errNilPools = errors.New("staking engine: pool engine not configured")
)

type engineState interface {
	StakedWrapperGet(asset types.Address) (*Wrapper, bool, error)
	StakedWrapperPut(*Wrapper) error
	StakePositionGet(asset, holder types.Address) (*Position, bool, error)
	StakePositionPut(*Position) error
	Transfer(asset, from, to types.Address, amount *big.Int) error
}

// Engine is the staking factory: it constructs per-asset staked wrapper
// instances from a single template, locks underlying 1:1 against wrapped
// balance, and streams seeded rewards to stakers through one distribution
// pool per asset. Reward units can be delegated independently of wrapped
// balance ownership.
type Engine struct {
	state          engineState
	pools          *streampool.Engine
	emitter        events.Emitter
	nowFn          func() int64
	manager        types.Address
	percentToValve uint32
	defaultLockup  int64
}

// NewEngine constructs a staking engine owning the supplied pool engine.
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

// SetNowFunc overrides the time source for the engine and its pool engine.
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

// SetManager configures the address allowed to tune factory parameters.
func (e *Engine) SetManager(addr types.Address) { e.manager = addr }

// SetDefaultLockup configures the lockup applied when a wrapper is created
// lazily by a first stake instead of by the orchestrator's seed.
func (e *Engine) SetDefaultLockup(seconds int64) { e.defaultLockup = seconds }

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

// PredictStakedWrapperAddress returns the deterministic wrapper address for
// the asset, whether or not the wrapper exists yet.
func (e *Engine) PredictStakedWrapperAddress(asset types.Address) types.Address {
	return crypto.StakedWrapperAddress(asset)
}

func (e *Engine) loadWrapper(asset types.Address) (*Wrapper, error) {
	wrapper, ok, err := e.state.StakedWrapperGet(asset)
	if err != nil {
		return nil, err
	}
	if !ok || wrapper == nil {
		return nil, faults.Validationf("no staked wrapper for asset %s", asset.Hex())
	}
	return wrapper, nil
}

func (e *Engine) createWrapper(asset types.Address, lockup, stream int64) (*Wrapper, error) {
	addr := crypto.StakedWrapperAddress(asset)
	pool, err := e.pools.CreatePool(addr, asset, types.ZeroAddress)
	if err != nil {
		return nil, err
	}
	wrapper := &Wrapper{
		Asset:          asset,
		Address:        addr,
		PoolID:         pool.ID,
		LockupDuration: lockup,
		StreamDuration: stream,
		BaselineUnits:  big.NewInt(0),
		SeededAmount:   big.NewInt(0),
		CreatedAt:      e.now(),
	}
	if err := e.state.StakedWrapperPut(wrapper); err != nil {
		return nil, err
	}
	return wrapper, nil
}

// SeedStake is the orchestrator's entrypoint: it creates the per-asset
// wrapper and pool, escrows the seeded amount as the reward stream, and
// grants the factory its baseline unit share covering the not-yet-staked
// remainder.
func (e *Engine) SeedStake(from, asset types.Address, amount *big.Int, lockupDuration, streamDuration int64) (*Wrapper, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, faults.Validationf("seed amount must be positive")
	}
	if lockupDuration < 0 || streamDuration <= 0 {
		return nil, faults.Validationf("lockup must be non-negative and stream duration positive")
	}
	if _, ok, err := e.state.StakedWrapperGet(asset); err != nil {
		return nil, err
	} else if ok {
		return nil, faults.StateConflictf("staked wrapper already seeded for asset %s", asset.Hex())
	}
	wrapper, err := e.createWrapper(asset, lockupDuration, streamDuration)
	if err != nil {
		return nil, err
	}
	if err := e.pools.Fund(wrapper.PoolID, from, amount); err != nil {
		return nil, err
	}
	// Ceiling division so the seeded stream completes within the window.
	rate := new(big.Int).Add(amount, big.NewInt(streamDuration-1))
	rate.Quo(rate, big.NewInt(streamDuration))
	if err := e.pools.SetFlowRate(wrapper.PoolID, rate); err != nil {
		return nil, err
	}
	wrapper.BaselineUnits = new(big.Int).Set(amount)
	wrapper.SeededAmount = new(big.Int).Set(amount)
	if err := e.pools.SetUnits(wrapper.PoolID, wrapper.Address, wrapper.BaselineUnits); err != nil {
		return nil, err
	}
	if err := e.state.StakedWrapperPut(wrapper); err != nil {
		return nil, err
	}
	e.emit(StakingSeededEvent(wrapper, amount, rate))
	return wrapper.Clone(), nil
}

func (e *Engine) loadPosition(asset, holder types.Address) (*Position, error) {
	pos, ok, err := e.state.StakePositionGet(asset, holder)
	if err != nil {
		return nil, err
	}
	if !ok || pos == nil {
		pos = &Position{
			Asset:            asset,
			Holder:           holder,
			WrappedBalance:   big.NewInt(0),
			BaselineConsumed: big.NewInt(0),
		}
	}
	return pos, nil
}

func (e *Engine) adjustUnits(poolID [32]byte, member types.Address, delta *big.Int) error {
	current, err := e.pools.Units(poolID, member)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	return e.pools.SetUnits(poolID, member, next)
}

func (e *Engine) stake(caller, asset, onBehalfOf, delegatee types.Address, amount *big.Int) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, faults.Validationf("stake amount must be positive")
	}
	wrapper, ok, err := e.state.StakedWrapperGet(asset)
	if err != nil {
		return nil, err
	}
	if !ok || wrapper == nil {
		// Create-on-first-use when no seed preceded the stake.
		wrapper, err = e.createWrapper(asset, e.defaultLockup, 0)
		if err != nil {
			return nil, err
		}
	}
	if err := e.state.Transfer(asset, caller, wrapper.Address, amount); err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(asset, onBehalfOf)
	if err != nil {
		return nil, err
	}
	if pos.WrappedBalance.Sign() == 0 {
		pos.UnlockTime = e.now() + wrapper.LockupDuration
	}
	// Re-staking while still locked does not reset the unlock time.
	if !delegatee.IsZero() && delegatee != onBehalfOf {
		// Atomic stake-and-delegate: move any existing units first.
		if err := e.moveUnits(wrapper, pos, delegatee); err != nil {
			return nil, err
		}
		pos.Delegatee = delegatee
	}
	pos.WrappedBalance = new(big.Int).Add(pos.WrappedBalance, amount)
	if err := e.adjustUnits(wrapper.PoolID, pos.rewardTarget(), amount); err != nil {
		return nil, err
	}
	if !wrapper.BaselineLocked && wrapper.BaselineUnits.Sign() > 0 {
		dec := new(big.Int).Set(amount)
		if dec.Cmp(wrapper.BaselineUnits) > 0 {
			dec.Set(wrapper.BaselineUnits)
		}
		wrapper.BaselineUnits = new(big.Int).Sub(wrapper.BaselineUnits, dec)
		pos.BaselineConsumed = new(big.Int).Add(pos.BaselineConsumed, dec)
		if err := e.pools.SetUnits(wrapper.PoolID, wrapper.Address, wrapper.BaselineUnits); err != nil {
			return nil, err
		}
		if err := e.state.StakedWrapperPut(wrapper); err != nil {
			return nil, err
		}
	}
	if err := e.state.StakePositionPut(pos); err != nil {
		return nil, err
	}
	e.emit(StakingStakedEvent(wrapper, pos, amount))
	return pos.Clone(), nil
}

// Stake locks amount of the underlying debited from the caller and mints
// wrapped balance for onBehalfOf. The unlock time is set only when the
// position's balance goes from zero to non-zero.
func (e *Engine) Stake(caller, asset, onBehalfOf types.Address, amount *big.Int) (*Position, error) {
	return e.stake(caller, asset, onBehalfOf, types.ZeroAddress, amount)
}

// StakeAndDelegate atomically stakes for the caller and assigns the reward
// units to delegatee.
func (e *Engine) StakeAndDelegate(caller, asset, delegatee types.Address, amount *big.Int) (*Position, error) {
	return e.stake(caller, asset, caller, delegatee, amount)
}

// moveUnits shifts the position's current reward weight to a new target.
func (e *Engine) moveUnits(wrapper *Wrapper, pos *Position, newTarget types.Address) error {
	if pos.WrappedBalance.Sign() == 0 {
		return nil
	}
	old := pos.rewardTarget()
	if old == newTarget {
		return nil
	}
	neg := new(big.Int).Neg(pos.WrappedBalance)
	if err := e.adjustUnits(wrapper.PoolID, old, neg); err != nil {
		return err
	}
	return e.adjustUnits(wrapper.PoolID, newTarget, pos.WrappedBalance)
}

// Delegate moves the caller's reward units to delegatee. Delegating to self
// or to the zero address returns the units to the caller. Wrapped balance
// ownership is unaffected.
func (e *Engine) Delegate(caller, asset, delegatee types.Address) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	wrapper, err := e.loadWrapper(asset)
	if err != nil {
		return nil, err
	}
	pos, ok, err := e.state.StakePositionGet(asset, caller)
	if err != nil {
		return nil, err
	}
	if !ok || pos == nil {
		return nil, faults.Validationf("no stake position for holder %s", caller.Hex())
	}
	target := delegatee
	if target == caller {
		target = types.ZeroAddress
	}
	newTarget := caller
	if !target.IsZero() {
		newTarget = target
	}
	if err := e.moveUnits(wrapper, pos, newTarget); err != nil {
		return nil, err
	}
	pos.Delegatee = target
	if err := e.state.StakePositionPut(pos); err != nil {
		return nil, err
	}
	e.emit(StakingDelegatedEvent(pos))
	return pos.Clone(), nil
}

// Unstake burns wrapped balance after the lockup has elapsed, returns the
// underlying, and restores the factory's baseline units.
func (e *Engine) Unstake(caller, asset types.Address, amount *big.Int) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, faults.Validationf("unstake amount must be positive")
	}
	wrapper, err := e.loadWrapper(asset)
	if err != nil {
		return nil, err
	}
	pos, ok, err := e.state.StakePositionGet(asset, caller)
	if err != nil {
		return nil, err
	}
	if !ok || pos == nil {
		return nil, faults.Validationf("no stake position for holder %s", caller.Hex())
	}
	if pos.WrappedBalance.Cmp(amount) < 0 {
		return nil, faults.InsufficientBalancef("wrapped balance %s below %s", pos.WrappedBalance, amount)
	}
	if e.now() < pos.UnlockTime {
		return nil, faults.Timingf("position locked until %d", pos.UnlockTime)
	}
	if err := e.state.Transfer(asset, wrapper.Address, caller, amount); err != nil {
		return nil, err
	}
	pos.WrappedBalance = new(big.Int).Sub(pos.WrappedBalance, amount)
	if err := e.adjustUnits(wrapper.PoolID, pos.rewardTarget(), new(big.Int).Neg(amount)); err != nil {
		return nil, err
	}
	if !wrapper.BaselineLocked {
		// Restore only what this position's stakes consumed, so the baseline
		// never exceeds the seeded escrow.
		restore := new(big.Int).Set(amount)
		if pos.BaselineConsumed == nil {
			pos.BaselineConsumed = big.NewInt(0)
		}
		if restore.Cmp(pos.BaselineConsumed) > 0 {
			restore.Set(pos.BaselineConsumed)
		}
		if restore.Sign() > 0 {
			pos.BaselineConsumed = new(big.Int).Sub(pos.BaselineConsumed, restore)
			wrapper.BaselineUnits = new(big.Int).Add(wrapper.BaselineUnits, restore)
			if err := e.pools.SetUnits(wrapper.PoolID, wrapper.Address, wrapper.BaselineUnits); err != nil {
				return nil, err
			}
			if err := e.state.StakedWrapperPut(wrapper); err != nil {
				return nil, err
			}
		}
	}
	if err := e.state.StakePositionPut(pos); err != nil {
		return nil, err
	}
	e.emit(StakingUnstakedEvent(wrapper, pos, amount))
	return pos.Clone(), nil
}

// ClaimRewards withdraws the caller's accrued reward stream from the asset's
// pool.
func (e *Engine) ClaimRewards(caller, asset types.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	wrapper, err := e.loadWrapper(asset)
	if err != nil {
		return nil, err
	}
	return e.pools.Withdraw(wrapper.PoolID, caller)
}

// SetPercentageToValve configures the health threshold consumed by the
// safety valve. Manager only.
func (e *Engine) SetPercentageToValve(caller types.Address, pct uint32) error {
	if e == nil {
		return errNilState
	}
	if caller != e.manager {
		return faults.Authorizationf("caller %s is not the staking manager", caller.Hex())
	}
	if pct > 100 {
		return faults.Validationf("percentage to valve must be <= 100")
	}
	e.percentToValve = pct
	return nil
}

// PercentageToValve reports the configured valve threshold.
func (e *Engine) PercentageToValve() uint32 { return e.percentToValve }

// BaselineUnits reports the factory's own unit share for the asset.
func (e *Engine) BaselineUnits(asset types.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	wrapper, err := e.loadWrapper(asset)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(wrapper.BaselineUnits), nil
}

// ClampBaseline forcibly reduces the factory baseline units to the floor and
// locks them against stake/unstake adjustments. Returns the previous
// baseline. Reserved for the safety valve.
func (e *Engine) ClampBaseline(asset types.Address, floor *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if floor == nil || floor.Sign() < 0 {
		return nil, faults.Validationf("baseline floor must be non-negative")
	}
	wrapper, err := e.loadWrapper(asset)
	if err != nil {
		return nil, err
	}
	prev := new(big.Int).Set(wrapper.BaselineUnits)
	wrapper.BaselineUnits = new(big.Int).Set(floor)
	wrapper.BaselineLocked = true
	if err := e.pools.SetUnits(wrapper.PoolID, wrapper.Address, wrapper.BaselineUnits); err != nil {
		return nil, err
	}
	if err := e.state.StakedWrapperPut(wrapper); err != nil {
		return nil, err
	}
	e.emit(StakingBaselineEvent(wrapper))
	return prev, nil
}

// RestoreBaseline resets the factory baseline units and unlocks them.
// Reserved for the safety valve.
func (e *Engine) RestoreBaseline(asset types.Address, units *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if units == nil || units.Sign() < 0 {
		return faults.Validationf("baseline units must be non-negative")
	}
	wrapper, err := e.loadWrapper(asset)
	if err != nil {
		return err
	}
	wrapper.BaselineUnits = new(big.Int).Set(units)
	wrapper.BaselineLocked = false
	if err := e.pools.SetUnits(wrapper.PoolID, wrapper.Address, wrapper.BaselineUnits); err != nil {
		return err
	}
	if err := e.state.StakedWrapperPut(wrapper); err != nil {
		return err
	}
	e.emit(StakingBaselineEvent(wrapper))
	return nil
}

// Wrapper returns a copy of the stored wrapper instance.
func (e *Engine) Wrapper(asset types.Address) (*Wrapper, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	wrapper, err := e.loadWrapper(asset)
	if err != nil {
		return nil, err
	}
	return wrapper.Clone(), nil
}

// Position returns a copy of the holder's stake position.
func (e *Engine) Position(asset, holder types.Address) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pos, ok, err := e.state.StakePositionGet(asset, holder)
	if err != nil {
		return nil, err
	}
	if !ok || pos == nil {
		return nil, faults.Validationf("no stake position for holder %s", holder.Hex())
	}
	return pos.Clone(), nil
}

// RewardUnits reports the pool units currently held by the member.
func (e *Engine) RewardUnits(asset, member types.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	wrapper, err := e.loadWrapper(asset)
	if err != nil {
		return nil, err
	}
	return e.pools.Units(wrapper.PoolID, member)
}
