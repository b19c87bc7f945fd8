package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"launchcore/core/faults"
	"launchcore/core/types"
	"launchcore/native/streampool"
	"launchcore/native/vault"
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func TestStoreLedger(t *testing.T) {
	store := NewStore()
	asset := addr(0xAA)
	alice := addr(0x01)
	bob := addr(0x02)

	require.NoError(t, store.Mint(asset, alice, big.NewInt(1_000)))
	require.Error(t, store.Mint(asset, alice, big.NewInt(0)))

	require.NoError(t, store.Transfer(asset, alice, bob, big.NewInt(300)))
	require.Equal(t, int64(700), store.Balance(asset, alice).Int64())
	require.Equal(t, int64(300), store.Balance(asset, bob).Int64())

	err := store.Transfer(asset, bob, alice, big.NewInt(301))
	require.ErrorIs(t, err, faults.ErrInsufficientBalance)

	// Zero transfers are accepted and change nothing.
	require.NoError(t, store.Transfer(asset, bob, alice, big.NewInt(0)))
	require.Equal(t, int64(300), store.Balance(asset, bob).Int64())
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewStore()
	asset := addr(0xAA)
	admin := addr(0x01)

	alloc := &vault.Allocation{
		Asset:       asset,
		Admin:       admin,
		AmountTotal: big.NewInt(500),
		Claimed:     big.NewInt(0),
	}
	require.NoError(t, store.VaultAllocationPut(alloc))

	// Mutating the caller's copy must not leak into the store.
	alloc.AmountTotal.SetInt64(9_999)
	got, ok, err := store.VaultAllocationGet(asset, admin)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(500), got.AmountTotal.Int64())

	got.AmountTotal.SetInt64(1)
	again, _, err := store.VaultAllocationGet(asset, admin)
	require.NoError(t, err)
	require.Equal(t, int64(500), again.AmountTotal.Int64())
}

func TestStoreRoles(t *testing.T) {
	store := NewStore()
	admin := addr(0x01)

	ok, err := store.HasRole("deployer", admin)
	require.NoError(t, err)
	require.False(t, ok)

	store.GrantRole("deployer", admin)
	ok, err = store.HasRole("deployer", admin)
	require.NoError(t, err)
	require.True(t, ok)

	store.RevokeRole("deployer", admin)
	ok, err = store.HasRole("deployer", admin)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorePoolSequencesAndMembers(t *testing.T) {
	store := NewStore()
	owner := addr(0x01)

	first, err := store.PoolNextSequence(owner)
	require.NoError(t, err)
	second, err := store.PoolNextSequence(owner)
	require.NoError(t, err)
	require.Equal(t, first+1, second)

	var pool [32]byte
	pool[0] = 0xFF
	for _, b := range []byte{0x03, 0x01, 0x02} {
		require.NoError(t, store.PoolMemberPut(&streampool.Member{
			Pool:    pool,
			Address: addr(b),
			Units:   big.NewInt(int64(b)),
		}))
	}

	members, err := store.PoolMembers(pool)
	require.NoError(t, err)
	require.Len(t, members, 3)
	require.Equal(t, addr(0x01), members[0].Address)
	require.Equal(t, addr(0x02), members[1].Address)
	require.Equal(t, addr(0x03), members[2].Address)
}

func TestStoreSnapshotRevert(t *testing.T) {
	store := NewStore()
	asset := addr(0xAA)
	alice := addr(0x01)

	require.NoError(t, store.Mint(asset, alice, big.NewInt(100)))
	snap := store.Snapshot()

	require.NoError(t, store.Mint(asset, alice, big.NewInt(900)))
	require.NoError(t, store.AllocationMarkLaunched(asset))
	store.GrantRole("deployer", alice)

	store.RevertToSnapshot(snap)
	require.Equal(t, int64(100), store.Balance(asset, alice).Int64())
	launched, err := store.AllocationLaunched(asset)
	require.NoError(t, err)
	require.False(t, launched)
	ok, err := store.HasRole("deployer", alice)
	require.NoError(t, err)
	require.False(t, ok)

	// Reverted handles are gone; replayed reverts are no-ops.
	require.NoError(t, store.Mint(asset, alice, big.NewInt(5)))
	store.RevertToSnapshot(snap)
	require.Equal(t, int64(105), store.Balance(asset, alice).Int64())
}

func TestStoreDiscardSnapshot(t *testing.T) {
	store := NewStore()
	asset := addr(0xAA)
	alice := addr(0x01)

	snap := store.Snapshot()
	require.NoError(t, store.Mint(asset, alice, big.NewInt(50)))
	store.DiscardSnapshot(snap)

	store.RevertToSnapshot(snap)
	require.Equal(t, int64(50), store.Balance(asset, alice).Int64())
}
