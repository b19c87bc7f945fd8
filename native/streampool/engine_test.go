package streampool

import (
	"errors"
	"math/big"
	"testing"

	"launchcore/core/faults"
	"launchcore/core/types"
)

type mockState struct {
	pools    map[[32]byte]*Pool
	members  map[string]*Member
	seq      map[types.Address]uint64
	balances map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		pools:    make(map[[32]byte]*Pool),
		members:  make(map[string]*Member),
		seq:      make(map[types.Address]uint64),
		balances: make(map[string]*big.Int),
	}
}

func balanceKey(asset, holder types.Address) string {
	return string(append(append([]byte{}, asset[:]...), holder[:]...))
}

func memberKey(pool [32]byte, addr types.Address) string {
	return string(append(append([]byte{}, pool[:]...), addr[:]...))
}

func (m *mockState) PoolGet(id [32]byte) (*Pool, bool, error) {
	pool, ok := m.pools[id]
	if !ok {
		return nil, false, nil
	}
	return pool.Clone(), true, nil
}

func (m *mockState) PoolPut(p *Pool) error {
	m.pools[p.ID] = p.Clone()
	return nil
}

func (m *mockState) PoolNextSequence(owner types.Address) (uint64, error) {
	next := m.seq[owner]
	m.seq[owner] = next + 1
	return next, nil
}

func (m *mockState) PoolMemberGet(pool [32]byte, addr types.Address) (*Member, bool, error) {
	member, ok := m.members[memberKey(pool, addr)]
	if !ok {
		return nil, false, nil
	}
	return member.Clone(), true, nil
}

func (m *mockState) PoolMemberPut(member *Member) error {
	m.members[memberKey(member.Pool, member.Address)] = member.Clone()
	return nil
}

func (m *mockState) PoolMembers(pool [32]byte) ([]*Member, error) {
	out := make([]*Member, 0)
	for _, member := range m.members {
		if member.Pool == pool {
			out = append(out, member.Clone())
		}
	}
	return out, nil
}

func (m *mockState) balance(asset, holder types.Address) *big.Int {
	if b, ok := m.balances[balanceKey(asset, holder)]; ok {
		return b
	}
	return big.NewInt(0)
}

func (m *mockState) credit(asset, holder types.Address, amount *big.Int) {
	m.balances[balanceKey(asset, holder)] = new(big.Int).Add(m.balance(asset, holder), amount)
}

func (m *mockState) Transfer(asset, from, to types.Address, amount *big.Int) error {
	if m.balance(asset, from).Cmp(amount) < 0 {
		return faults.InsufficientBalancef("balance of %s below %s", from.Hex(), amount)
	}
	m.balances[balanceKey(asset, from)] = new(big.Int).Sub(m.balance(asset, from), amount)
	m.credit(asset, to, amount)
	return nil
}

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func newTestEngine(t *testing.T, state *mockState) (*Engine, *int64) {
	t.Helper()
	now := int64(1_000_000)
	engine := NewEngine()
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return now })
	return engine, &now
}

func TestPoolStreamsProportionally(t *testing.T) {
	state := newMockState()
	engine, now := newTestEngine(t, state)

	asset := addr(0xAA)
	owner := addr(0x01)
	funder := addr(0x02)
	alice := addr(0x03)
	bob := addr(0x04)

	state.credit(asset, funder, big.NewInt(1_000_000))

	pool, err := engine.CreatePool(owner, asset, types.ZeroAddress)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := engine.Fund(pool.ID, funder, big.NewInt(900_000)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := engine.SetUnits(pool.ID, alice, big.NewInt(3)); err != nil {
		t.Fatalf("set units: %v", err)
	}
	if err := engine.SetUnits(pool.ID, bob, big.NewInt(1)); err != nil {
		t.Fatalf("set units: %v", err)
	}
	if err := engine.SetFlowRate(pool.ID, big.NewInt(100)); err != nil {
		t.Fatalf("set flow rate: %v", err)
	}

	*now += 1000 // 100_000 streamed

	accruedAlice, err := engine.Accrued(pool.ID, alice)
	if err != nil {
		t.Fatalf("accrued: %v", err)
	}
	accruedBob, err := engine.Accrued(pool.ID, bob)
	if err != nil {
		t.Fatalf("accrued: %v", err)
	}
	if accruedAlice.Cmp(big.NewInt(75_000)) != 0 {
		t.Fatalf("alice accrued %s, want 75000", accruedAlice)
	}
	if accruedBob.Cmp(big.NewInt(25_000)) != 0 {
		t.Fatalf("bob accrued %s, want 25000", accruedBob)
	}

	// Accrued is a pure view: the stored pool must be untouched.
	stored := state.pools[pool.ID]
	if stored.Streamed.Sign() != 0 {
		t.Fatalf("view mutated pool state: streamed=%s", stored.Streamed)
	}
}

func TestPoolUnitChangeMidStream(t *testing.T) {
	state := newMockState()
	engine, now := newTestEngine(t, state)

	asset := addr(0xAA)
	funder := addr(0x02)
	alice := addr(0x03)
	bob := addr(0x04)
	state.credit(asset, funder, big.NewInt(1_000_000))

	pool, err := engine.CreatePool(addr(0x01), asset, types.ZeroAddress)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := engine.Fund(pool.ID, funder, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := engine.SetUnits(pool.ID, alice, big.NewInt(1)); err != nil {
		t.Fatalf("set units: %v", err)
	}
	if err := engine.SetFlowRate(pool.ID, big.NewInt(10)); err != nil {
		t.Fatalf("set flow rate: %v", err)
	}

	*now += 100 // alice alone: 1000

	if err := engine.SetUnits(pool.ID, bob, big.NewInt(1)); err != nil {
		t.Fatalf("set units: %v", err)
	}

	*now += 100 // split evenly: 500 each

	accruedAlice, _ := engine.Accrued(pool.ID, alice)
	accruedBob, _ := engine.Accrued(pool.ID, bob)
	if accruedAlice.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("alice accrued %s, want 1500", accruedAlice)
	}
	if accruedBob.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("bob accrued %s, want 500", accruedBob)
	}

	// Dropping bob to zero units keeps his accrual claimable.
	if err := engine.SetUnits(pool.ID, bob, big.NewInt(0)); err != nil {
		t.Fatalf("set units: %v", err)
	}
	*now += 100
	accruedBob, _ = engine.Accrued(pool.ID, bob)
	if accruedBob.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("bob accrued %s after removal, want 500", accruedBob)
	}
}

func TestPoolWithdrawAndExhaustion(t *testing.T) {
	state := newMockState()
	engine, now := newTestEngine(t, state)

	asset := addr(0xAA)
	funder := addr(0x02)
	alice := addr(0x03)
	state.credit(asset, funder, big.NewInt(500))

	pool, err := engine.CreatePool(addr(0x01), asset, types.ZeroAddress)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := engine.Fund(pool.ID, funder, big.NewInt(500)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := engine.SetUnits(pool.ID, alice, big.NewInt(1)); err != nil {
		t.Fatalf("set units: %v", err)
	}
	if err := engine.SetFlowRate(pool.ID, big.NewInt(100)); err != nil {
		t.Fatalf("set flow rate: %v", err)
	}

	// 10s at rate 100 would stream 1000, but funding caps the stream at 500.
	*now += 10

	paid, err := engine.Withdraw(pool.ID, alice)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if paid.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("withdrew %s, want 500", paid)
	}
	if got := state.balance(asset, alice); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("alice balance %s, want 500", got)
	}

	// Second withdraw is a no-op.
	paid, err = engine.Withdraw(pool.ID, alice)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if paid.Sign() != 0 {
		t.Fatalf("second withdraw paid %s, want 0", paid)
	}
}

func TestPoolValidation(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(t, state)

	pool, err := engine.CreatePool(addr(0x01), addr(0xAA), types.ZeroAddress)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := engine.SetUnits(pool.ID, addr(0x03), big.NewInt(-1)); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("negative units err = %v, want validation", err)
	}
	if err := engine.Fund(pool.ID, addr(0x02), big.NewInt(0)); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("zero fund err = %v, want validation", err)
	}
	var missing [32]byte
	if _, err := engine.Accrued(missing, addr(0x03)); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("unknown pool err = %v, want validation", err)
	}
}
