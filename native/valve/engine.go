package valve

import (
	"errors"
	"math/big"
	"time"

	"launchcore/core/events"
	"launchcore/core/faults"
	"launchcore/core/types"
)

var (
	errNilState   = errors.New("valve engine: state not configured")
	errNilFactory = errors.New("valve engine: staking factory not configured")
)

// State is the per-asset valve record.
type State struct {
	Asset         types.Address `json:"asset"`
	IsOpen        bool          `json:"isOpen"`
	SavedBaseline *big.Int      `json:"savedBaseline"`
	OpenedAt      int64         `json:"openedAt"`
	ClosedAt      int64         `json:"closedAt"`
}

// Clone returns a deep copy of the valve state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	if s.SavedBaseline != nil {
		clone.SavedBaseline = new(big.Int).Set(s.SavedBaseline)
	} else {
		clone.SavedBaseline = big.NewInt(0)
	}
	return &clone
}

// factory is the slice of the staking engine the valve is allowed to touch.
// While a valve is open, the factory's baseline units for that asset are
// mutated exclusively through this interface.
type factory interface {
	BaselineUnits(asset types.Address) (*big.Int, error)
	ClampBaseline(asset types.Address, floor *big.Int) (*big.Int, error)
	RestoreBaseline(asset types.Address, units *big.Int) error
	PercentageToValve() uint32
}

type engineState interface {
	ValveGet(asset types.Address) (*State, bool, error)
	ValvePut(*State) error
}

// Engine is the safety-valve governor. It watches a per-asset health ratio
// and can forcibly clamp the staking factory's baseline pool units to a
// configured floor, redirecting nearly all of the reward stream to real
// stakers until the condition recovers.
type Engine struct {
	state             engineState
	factory           factory
	emitter           events.Emitter
	nowFn             func() int64
	manager           types.Address
	floorUnits        *big.Int
	percentSwappedOut uint32
}

// NewEngine constructs a valve engine around the staking factory.
func NewEngine(f factory) *Engine {
	return &Engine{
		factory:    f,
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
		floorUnits: big.NewInt(1),
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

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetManager configures the override authority for closing the valve.
func (e *Engine) SetManager(addr types.Address) { e.manager = addr }

// SetFloorUnits configures the baseline floor applied when a valve opens.
func (e *Engine) SetFloorUnits(units *big.Int) {
	if units == nil || units.Sign() < 0 {
		e.floorUnits = big.NewInt(1)
		return
	}
	e.floorUnits = new(big.Int).Set(units)
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
	if e.factory == nil {
		return errNilFactory
	}
	return nil
}

// SetPercentSwappedOut records the externally observed swap-out ratio that
// feeds the health computation. Manager only.
func (e *Engine) SetPercentSwappedOut(caller types.Address, pct uint32) error {
	if e == nil {
		return errNilState
	}
	if caller != e.manager {
		return faults.Authorizationf("caller %s is not the valve manager", caller.Hex())
	}
	if pct > 100 {
		return faults.Validationf("percent swapped out must be <= 100")
	}
	e.percentSwappedOut = pct
	return nil
}

// PercentSwappedOut reports the last recorded swap-out ratio.
func (e *Engine) PercentSwappedOut() uint32 { return e.percentSwappedOut }

func (e *Engine) loadState(asset types.Address) (*State, error) {
	st, ok, err := e.state.ValveGet(asset)
	if err != nil {
		return nil, err
	}
	if !ok || st == nil {
		st = &State{Asset: asset, SavedBaseline: big.NewInt(0)}
	}
	return st, nil
}

// breached reports whether the monitored health ratio for the asset crosses
// the factory-configured threshold.
func (e *Engine) breached() bool {
	threshold := e.factory.PercentageToValve()
	return threshold > 0 && e.percentSwappedOut >= threshold
}

// CanOpenValve reports whether the valve may transition Closed -> Open.
func (e *Engine) CanOpenValve(asset types.Address) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	st, err := e.loadState(asset)
	if err != nil {
		return false, err
	}
	if st.IsOpen {
		return false, nil
	}
	if !e.breached() {
		return false, nil
	}
	if _, err := e.factory.BaselineUnits(asset); err != nil {
		// No staked wrapper for the asset means nothing to clamp.
		return false, nil
	}
	return true, nil
}

// OpenValve clamps the factory's baseline units for the asset to the
// configured floor. Callable by anyone once CanOpenValve reports true.
func (e *Engine) OpenValve(asset types.Address) (*State, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	st, err := e.loadState(asset)
	if err != nil {
		return nil, err
	}
	if st.IsOpen {
		return nil, faults.StateConflictf("valve already open for asset %s", asset.Hex())
	}
	ok, err := e.CanOpenValve(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, faults.StateConflictf("valve open precondition not met for asset %s", asset.Hex())
	}
	prev, err := e.factory.ClampBaseline(asset, e.floorUnits)
	if err != nil {
		return nil, err
	}
	st.IsOpen = true
	st.SavedBaseline = prev
	st.OpenedAt = e.now()
	if err := e.state.ValvePut(st); err != nil {
		return nil, err
	}
	e.emit(ValveOpenedEvent(st, e.floorUnits))
	return st.Clone(), nil
}

// CanCloseValve reports whether the valve may transition Open -> Closed
// without a manager override.
func (e *Engine) CanCloseValve(asset types.Address) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	st, err := e.loadState(asset)
	if err != nil {
		return false, err
	}
	return st.IsOpen && !e.breached(), nil
}

// CloseValve restores the factory baseline recorded when the valve opened.
// Gated by the inverse health condition, or by an explicit manager override.
func (e *Engine) CloseValve(caller, asset types.Address) (*State, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	st, err := e.loadState(asset)
	if err != nil {
		return nil, err
	}
	if !st.IsOpen {
		return nil, faults.StateConflictf("valve not open for asset %s", asset.Hex())
	}
	if e.breached() && caller != e.manager {
		return nil, faults.StateConflictf("valve close precondition not met for asset %s", asset.Hex())
	}
	if err := e.factory.RestoreBaseline(asset, st.SavedBaseline); err != nil {
		return nil, err
	}
	st.IsOpen = false
	st.ClosedAt = e.now()
	if err := e.state.ValvePut(st); err != nil {
		return nil, err
	}
	e.emit(ValveClosedEvent(st))
	return st.Clone(), nil
}

// Status returns a copy of the per-asset valve state.
func (e *Engine) Status(asset types.Address) (*State, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	st, err := e.loadState(asset)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}
