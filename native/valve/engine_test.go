package valve

import (
	"errors"
	"math/big"
	"testing"

	"launchcore/core/faults"
	"launchcore/core/types"
)

type mockFactory struct {
	baselines map[types.Address]*big.Int
	locked    map[types.Address]bool
	threshold uint32
}

func newMockFactory(threshold uint32) *mockFactory {
	return &mockFactory{
		baselines: make(map[types.Address]*big.Int),
		locked:    make(map[types.Address]bool),
		threshold: threshold,
	}
}

func (f *mockFactory) BaselineUnits(asset types.Address) (*big.Int, error) {
	b, ok := f.baselines[asset]
	if !ok {
		return nil, faults.Validationf("no staked wrapper for asset %s", asset.Hex())
	}
	return new(big.Int).Set(b), nil
}

func (f *mockFactory) ClampBaseline(asset types.Address, floor *big.Int) (*big.Int, error) {
	prev, err := f.BaselineUnits(asset)
	if err != nil {
		return nil, err
	}
	f.baselines[asset] = new(big.Int).Set(floor)
	f.locked[asset] = true
	return prev, nil
}

func (f *mockFactory) RestoreBaseline(asset types.Address, units *big.Int) error {
	f.baselines[asset] = new(big.Int).Set(units)
	f.locked[asset] = false
	return nil
}

func (f *mockFactory) PercentageToValve() uint32 { return f.threshold }

type mockState struct {
	valves map[types.Address]*State
}

func (m *mockState) ValveGet(asset types.Address) (*State, bool, error) {
	st, ok := m.valves[asset]
	if !ok {
		return nil, false, nil
	}
	return st.Clone(), true, nil
}

func (m *mockState) ValvePut(st *State) error {
	m.valves[st.Asset] = st.Clone()
	return nil
}

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func newTestEngine(threshold uint32) (*Engine, *mockFactory) {
	f := newMockFactory(threshold)
	engine := NewEngine(f)
	engine.SetState(&mockState{valves: make(map[types.Address]*State)})
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	engine.SetManager(addr(0x0A))
	engine.SetFloorUnits(big.NewInt(1))
	return engine, f
}

func TestValveOpenRequiresPrecondition(t *testing.T) {
	engine, f := newTestEngine(40)
	asset := addr(0xAA)
	f.baselines[asset] = big.NewInt(1_000_000)

	ok, err := engine.CanOpenValve(asset)
	if err != nil || ok {
		t.Fatalf("can open = %v/%v, want false below threshold", ok, err)
	}
	if _, err := engine.OpenValve(asset); !errors.Is(err, faults.ErrStateConflict) {
		t.Fatalf("open below threshold err = %v, want state conflict", err)
	}

	if err := engine.SetPercentSwappedOut(addr(0x0A), 45); err != nil {
		t.Fatalf("set percent: %v", err)
	}
	ok, err = engine.CanOpenValve(asset)
	if err != nil || !ok {
		t.Fatalf("can open = %v/%v, want true at threshold", ok, err)
	}

	st, err := engine.OpenValve(asset)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !st.IsOpen || st.SavedBaseline.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("state after open: %+v", st)
	}
	if f.baselines[asset].Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("baseline %s after open, want floor 1", f.baselines[asset])
	}

	// Once open the opening condition reports false.
	ok, _ = engine.CanOpenValve(asset)
	if ok {
		t.Fatalf("can open returned true while already open")
	}
	if _, err := engine.OpenValve(asset); !errors.Is(err, faults.ErrStateConflict) {
		t.Fatalf("double open err = %v, want state conflict", err)
	}
}

func TestValveCloseByConditionOrOverride(t *testing.T) {
	engine, f := newTestEngine(40)
	asset := addr(0xAA)
	manager := addr(0x0A)
	f.baselines[asset] = big.NewInt(500)

	if err := engine.SetPercentSwappedOut(manager, 80); err != nil {
		t.Fatalf("set percent: %v", err)
	}
	if _, err := engine.OpenValve(asset); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Condition still breached: only the manager may close.
	if _, err := engine.CloseValve(addr(0x0B), asset); !errors.Is(err, faults.ErrStateConflict) {
		t.Fatalf("close while breached err = %v, want state conflict", err)
	}
	st, err := engine.CloseValve(manager, asset)
	if err != nil {
		t.Fatalf("manager close: %v", err)
	}
	if st.IsOpen {
		t.Fatalf("valve still open after manager close")
	}
	if f.baselines[asset].Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("baseline %s after close, want restored 500", f.baselines[asset])
	}

	// Reopen, then recover the ratio: anyone may close.
	if _, err := engine.OpenValve(asset); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := engine.SetPercentSwappedOut(manager, 10); err != nil {
		t.Fatalf("set percent: %v", err)
	}
	ok, _ := engine.CanCloseValve(asset)
	if !ok {
		t.Fatalf("can close = false after recovery")
	}
	if _, err := engine.CloseValve(addr(0x0B), asset); err != nil {
		t.Fatalf("close after recovery: %v", err)
	}

	// Closing a closed valve conflicts.
	if _, err := engine.CloseValve(manager, asset); !errors.Is(err, faults.ErrStateConflict) {
		t.Fatalf("double close err = %v, want state conflict", err)
	}
}

func TestValveIgnoresUnknownAsset(t *testing.T) {
	engine, _ := newTestEngine(40)
	if err := engine.SetPercentSwappedOut(addr(0x0A), 90); err != nil {
		t.Fatalf("set percent: %v", err)
	}
	ok, err := engine.CanOpenValve(addr(0xEE))
	if err != nil || ok {
		t.Fatalf("can open unknown asset = %v/%v, want false", ok, err)
	}
}

func TestValveManagerAuthorization(t *testing.T) {
	engine, _ := newTestEngine(40)
	if err := engine.SetPercentSwappedOut(addr(0x0B), 50); !errors.Is(err, faults.ErrAuthorization) {
		t.Fatalf("non-manager set err = %v, want authorization", err)
	}
	if err := engine.SetPercentSwappedOut(addr(0x0A), 150); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("out of range err = %v, want validation", err)
	}
}
