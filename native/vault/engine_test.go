package vault

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"launchcore/core/faults"
	"launchcore/core/types"
	"launchcore/native/streampool"
)

const day = int64(86_400)

// mockState backs both the vault engine and its owned pool engine.
type mockState struct {
	allocations map[string]*Allocation
	pools       map[[32]byte]*streampool.Pool
	members     map[string]*streampool.Member
	seq         map[types.Address]uint64
	balances    map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		allocations: make(map[string]*Allocation),
		pools:       make(map[[32]byte]*streampool.Pool),
		members:     make(map[string]*streampool.Member),
		seq:         make(map[types.Address]uint64),
		balances:    make(map[string]*big.Int),
	}
}

func allocKey(asset, admin types.Address) string {
	return string(append(append([]byte{}, asset[:]...), admin[:]...))
}

func (m *mockState) VaultAllocationGet(asset, admin types.Address) (*Allocation, bool, error) {
	alloc, ok := m.allocations[allocKey(asset, admin)]
	if !ok {
		return nil, false, nil
	}
	return alloc.Clone(), true, nil
}

func (m *mockState) VaultAllocationPut(a *Allocation) error {
	m.allocations[allocKey(a.Asset, a.Admin)] = a.Clone()
	return nil
}

func (m *mockState) VaultAllocationDelete(asset, admin types.Address) error {
	delete(m.allocations, allocKey(asset, admin))
	return nil
}

func (m *mockState) EnsureStreamable(asset, holder types.Address, amount *big.Int) (types.Address, error) {
	return asset, nil
}

func (m *mockState) PoolGet(id [32]byte) (*streampool.Pool, bool, error) {
	pool, ok := m.pools[id]
	if !ok {
		return nil, false, nil
	}
	return pool.Clone(), true, nil
}

func (m *mockState) PoolPut(p *streampool.Pool) error {
	m.pools[p.ID] = p.Clone()
	return nil
}

func (m *mockState) PoolNextSequence(owner types.Address) (uint64, error) {
	next := m.seq[owner]
	m.seq[owner] = next + 1
	return next, nil
}

func memberKey(pool [32]byte, addr types.Address) string {
	return string(append(append([]byte{}, pool[:]...), addr[:]...))
}

func (m *mockState) PoolMemberGet(pool [32]byte, addr types.Address) (*streampool.Member, bool, error) {
	member, ok := m.members[memberKey(pool, addr)]
	if !ok {
		return nil, false, nil
	}
	return member.Clone(), true, nil
}

func (m *mockState) PoolMemberPut(member *streampool.Member) error {
	m.members[memberKey(member.Pool, member.Address)] = member.Clone()
	return nil
}

func (m *mockState) PoolMembers(pool [32]byte) ([]*streampool.Member, error) {
	out := make([]*streampool.Member, 0)
	for _, member := range m.members {
		if member.Pool == pool {
			out = append(out, member.Clone())
		}
	}
	return out, nil
}

func balanceKey(asset, holder types.Address) string {
	return string(append(append([]byte{}, asset[:]...), holder[:]...))
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

func newTestEngine(state *mockState) (*Engine, *int64) {
	now := int64(1_700_000_000)
	pools := streampool.NewEngine()
	pools.SetState(state)
	engine := NewEngine(pools)
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return now })
	return engine, &now
}

// tokens scales a whole-token amount to 18 decimals so per-second flow rates
// stay meaningful.
func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil))
}

func TestVaultVestingLifecycle(t *testing.T) {
	state := newMockState()
	engine, now := newTestEngine(state)

	asset := addr(0xAA)
	funder := addr(0x01)
	admin := addr(0x02)
	alice := addr(0x03)
	total := tokens(1_000_000)
	state.credit(asset, funder, total)

	alloc, err := engine.CreateVault(funder, asset, admin, total, 7*day, 90*day)
	require.NoError(t, err)
	require.Equal(t, 0, alloc.AmountTotal.Cmp(total))

	// The box holds the entire allocation up front.
	require.Equal(t, 0, state.balance(asset, alloc.Box).Cmp(total))

	require.NoError(t, engine.UpdateMemberUnits(admin, asset, admin, alice, big.NewInt(1)))

	// Before the cliff the claim fails with a timing error.
	*now += 6 * day
	_, err = engine.Claim(asset, admin)
	require.ErrorIs(t, err, faults.ErrTiming)

	// At the cliff the claim succeeds, nothing has streamed yet, and the
	// flow rate is armed for the vesting window.
	*now += 1 * day
	delta, err := engine.Claim(asset, admin)
	require.NoError(t, err)
	require.Zero(t, delta.Sign())
	streamed, err := engine.Streamed(asset, admin)
	require.NoError(t, err)
	require.Zero(t, streamed.Sign())

	// Halfway through vesting roughly half the allocation has streamed,
	// with no further claim required.
	*now += 45 * day
	accrued, err := engine.MembersWithUnits(asset, admin)
	require.NoError(t, err)
	require.Len(t, accrued, 1)
	half := tokens(500_000)
	diff := new(big.Int).Sub(accrued[0].Accrued, half)
	require.LessOrEqual(t, diff.CmpAbs(tokens(10)), 0, "accrued %s not within tolerance of %s", accrued[0].Accrued, half)

	// Past the end of vesting a claim flushes the remainder exactly.
	*now += 46 * day
	_, err = engine.Claim(asset, admin)
	require.NoError(t, err)
	streamed, err = engine.Streamed(asset, admin)
	require.NoError(t, err)
	require.Equal(t, 0, streamed.Cmp(total), "streamed %s, want %s", streamed, total)

	// Further claims are no-ops and never stream more than the total.
	*now += 10 * day
	delta, err = engine.Claim(asset, admin)
	require.NoError(t, err)
	require.Zero(t, delta.Sign())
	streamed, err = engine.Streamed(asset, admin)
	require.NoError(t, err)
	require.Equal(t, 0, streamed.Cmp(total))
}

func TestVaultCreateValidation(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)

	asset := addr(0xAA)
	funder := addr(0x01)
	admin := addr(0x02)
	state.credit(asset, funder, tokens(10))

	_, err := engine.CreateVault(funder, asset, admin, big.NewInt(0), 0, 0)
	require.ErrorIs(t, err, faults.ErrValidation)

	_, err = engine.CreateVault(funder, asset, admin, tokens(5), 0, 0)
	require.NoError(t, err)

	// Only one live allocation per (asset, admin).
	_, err = engine.CreateVault(funder, asset, admin, tokens(5), 0, 0)
	require.ErrorIs(t, err, faults.ErrStateConflict)
}

func TestVaultMemberUnitsAuthorization(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)

	asset := addr(0xAA)
	funder := addr(0x01)
	admin := addr(0x02)
	intruder := addr(0x04)
	state.credit(asset, funder, tokens(10))

	_, err := engine.CreateVault(funder, asset, admin, tokens(10), 0, 0)
	require.NoError(t, err)

	err = engine.UpdateMemberUnits(intruder, asset, admin, addr(0x05), big.NewInt(1))
	require.ErrorIs(t, err, faults.ErrAuthorization)

	require.NoError(t, engine.UpdateMemberUnits(admin, asset, admin, addr(0x05), big.NewInt(1)))
	require.NoError(t, engine.AddMemberUnits(admin, asset, admin, addr(0x05), big.NewInt(10)))
	units, err := engine.Units(asset, admin, addr(0x05))
	require.NoError(t, err)
	require.Equal(t, int64(11), units.Int64())
}

func TestVaultEditAllocationAdmin(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)

	asset := addr(0xAA)
	funder := addr(0x01)
	oldAdmin := addr(0x02)
	newAdmin := addr(0x06)
	state.credit(asset, funder, tokens(10))

	created, err := engine.CreateVault(funder, asset, oldAdmin, tokens(10), day, 10*day)
	require.NoError(t, err)

	_, err = engine.EditAllocationAdmin(newAdmin, asset, oldAdmin, newAdmin)
	require.ErrorIs(t, err, faults.ErrAuthorization)

	moved, err := engine.EditAllocationAdmin(oldAdmin, asset, oldAdmin, newAdmin)
	require.NoError(t, err)
	require.Equal(t, newAdmin, moved.Admin)
	require.Equal(t, created.Box, moved.Box)
	require.Equal(t, created.PoolID, moved.PoolID)
	require.Equal(t, 0, created.AmountTotal.Cmp(moved.AmountTotal))

	// Exactly one of the two keys holds the allocation.
	_, err = engine.Allocation(asset, oldAdmin)
	require.ErrorIs(t, err, faults.ErrValidation)
	_, err = engine.Allocation(asset, newAdmin)
	require.NoError(t, err)
}

func TestVaultBatchUpdateValidatesBeforeWriting(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)

	asset := addr(0xAA)
	funder := addr(0x01)
	admin := addr(0x02)
	state.credit(asset, funder, tokens(10))

	_, err := engine.CreateVault(funder, asset, admin, tokens(10), 0, 0)
	require.NoError(t, err)

	err = engine.UpdateMemberUnitsBatch(admin, asset, admin, []MemberUpdate{
		{Member: addr(0x05), Units: big.NewInt(3)},
		{Member: addr(0x06), Units: big.NewInt(-1)},
	})
	require.ErrorIs(t, err, faults.ErrValidation)

	// The invalid row aborted the whole batch.
	units, err := engine.Units(asset, admin, addr(0x05))
	require.NoError(t, err)
	require.Zero(t, units.Sign())
}
