package routes

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"launchcore/core/types"
	"launchcore/gateway/middleware"
	"launchcore/native/allocation"
	"launchcore/native/staking"
	"launchcore/native/streampool"
	"launchcore/native/valve"
	"launchcore/native/vault"
	"launchcore/state"
)

const day = int64(86_400)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

type testEnv struct {
	handler http.Handler
	store   *state.Store
	core    *Core
	now     *int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := state.NewStore()
	now := int64(1_700_000_000)
	clock := func() int64 { return now }

	vaultPools := streampool.NewEngine()
	vaultPools.SetState(store)
	vaults := vault.NewEngine(vaultPools)
	vaults.SetState(store)
	vaults.SetNowFunc(clock)

	stakingPools := streampool.NewEngine()
	stakingPools.SetState(store)
	stakes := staking.NewEngine(stakingPools)
	stakes.SetState(store)
	stakes.SetNowFunc(clock)

	alloc := allocation.NewEngine(vaults, stakes)
	alloc.SetState(store)
	alloc.SetNowFunc(clock)

	valves := valve.NewEngine(stakes)
	valves.SetState(store)
	valves.SetNowFunc(clock)

	core := &Core{
		Store:      store,
		Allocation: alloc,
		Vault:      vaults,
		Staking:    stakes,
		Valve:      valves,
	}
	handler := New(Config{Core: core, CORS: middleware.CORSConfig{}})
	return &testEnv{handler: handler, store: store, core: core, now: &now}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestGatewayHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestGatewayAllocationLifecycle(t *testing.T) {
	env := newTestEnv(t)

	asset := addr(0xAA)
	deployer := addr(0x01)
	team := addr(0x02)
	env.store.GrantRole(allocation.RoleDeployer, deployer)
	require.NoError(t, env.store.Mint(asset, deployer, big.NewInt(100_000_000_000)))

	rec := env.do(t, http.MethodPost, "/v1/allocation/config", map[string]any{
		"asset": asset.Hex(),
		"entries": []map[string]any{
			{"kind": "vault", "recipient": team.Hex(), "percentage": 20, "cliff": 7 * day, "vestingDuration": 90 * day},
			{"kind": "staking", "percentage": 20, "lockupDuration": day, "streamDuration": 365 * day},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Configs are immutable: the second create conflicts.
	rec = env.do(t, http.MethodPost, "/v1/allocation/config", map[string]any{
		"asset": asset.Hex(),
		"entries": []map[string]any{
			{"kind": "staking", "percentage": 5, "streamDuration": day},
		},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/allocation/"+asset.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg configResponse
	decodeBody(t, rec, &cfg)
	require.Len(t, cfg.Entries, 2)

	rec = env.do(t, http.MethodPost, "/v1/allocation/minted", map[string]any{
		"caller":      deployer.Hex(),
		"asset":       asset.Hex(),
		"totalSupply": "100000000000",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var out fanOutResponse
	decodeBody(t, rec, &out)
	require.Equal(t, "40000000000", out.Allocated)
	require.Equal(t, "60000000000", out.Remainder)

	// Launch is once per asset.
	rec = env.do(t, http.MethodPost, "/v1/allocation/minted", map[string]any{
		"caller":      deployer.Hex(),
		"asset":       asset.Hex(),
		"totalSupply": "100000000000",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGatewayErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	asset := addr(0xAA)
	outsider := addr(0x09)

	// Missing deployer role maps to 403.
	rec := env.do(t, http.MethodPost, "/v1/allocation/minted", map[string]any{
		"caller":      outsider.Hex(),
		"asset":       asset.Hex(),
		"totalSupply": "1000",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	var resp errorResponse
	decodeBody(t, rec, &resp)
	require.Equal(t, "authorization", resp.Error.Code)

	// Malformed addresses map to 400.
	rec = env.do(t, http.MethodPost, "/v1/vault/claim", map[string]any{
		"asset": "xyz",
		"admin": outsider.Hex(),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown request fields are rejected.
	rec = env.do(t, http.MethodPost, "/v1/vault/claim", map[string]any{
		"asset":   asset.Hex(),
		"admin":   outsider.Hex(),
		"suprise": true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGatewayVaultFlow(t *testing.T) {
	env := newTestEnv(t)
	asset := addr(0xAA)
	funder := addr(0x01)
	admin := addr(0x02)
	alice := addr(0x03)
	require.NoError(t, env.store.Mint(asset, funder, big.NewInt(1_000_000_000_000)))

	rec := env.do(t, http.MethodPost, "/v1/vault/create", map[string]any{
		"caller":          funder.Hex(),
		"asset":           asset.Hex(),
		"admin":           admin.Hex(),
		"amount":          "1000000000000",
		"cliff":           7 * day,
		"vestingDuration": 90 * day,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created allocationBody
	decodeBody(t, rec, &created)
	require.Equal(t, "1000000000000", created.AmountTotal)

	rec = env.do(t, http.MethodPost, "/v1/vault/members", map[string]any{
		"caller": admin.Hex(),
		"asset":  asset.Hex(),
		"admin":  admin.Hex(),
		"updates": []map[string]any{
			{"member": alice.Hex(), "units": "1"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Claims before the cliff map to 409.
	rec = env.do(t, http.MethodPost, "/v1/vault/claim", map[string]any{
		"asset": asset.Hex(),
		"admin": admin.Hex(),
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	*env.now += 8 * day
	rec = env.do(t, http.MethodPost, "/v1/vault/claim", map[string]any{
		"asset": asset.Hex(),
		"admin": admin.Hex(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/vault/"+asset.Hex()+"/"+admin.Hex()+"/members", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGatewayStakingFlow(t *testing.T) {
	env := newTestEnv(t)
	asset := addr(0xAA)
	seeder := addr(0x01)
	alice := addr(0x03)
	require.NoError(t, env.store.Mint(asset, seeder, big.NewInt(2_000_000)))
	require.NoError(t, env.store.Mint(asset, alice, big.NewInt(500_000)))

	_, err := env.core.Staking.SeedStake(seeder, asset, big.NewInt(1_000_000), day, 365*day)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/v1/staking/stake", map[string]any{
		"caller": alice.Hex(),
		"asset":  asset.Hex(),
		"amount": "500000",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var pos positionBody
	decodeBody(t, rec, &pos)
	require.Equal(t, "500000", pos.WrappedBalance)

	// Unstaking before the unlock maps to 409.
	rec = env.do(t, http.MethodPost, "/v1/staking/unstake", map[string]any{
		"caller": alice.Hex(),
		"asset":  asset.Hex(),
		"amount": "500000",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	// Unstaking more than staked maps to 422 after the lock expires.
	*env.now += 2 * day
	rec = env.do(t, http.MethodPost, "/v1/staking/unstake", map[string]any{
		"caller": alice.Hex(),
		"asset":  asset.Hex(),
		"amount": "600000",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/staking/"+asset.Hex()+"/"+alice.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGatewayValveFlow(t *testing.T) {
	env := newTestEnv(t)
	asset := addr(0xAA)
	seeder := addr(0x01)
	manager := addr(0x0E)
	env.core.Staking.SetManager(manager)
	env.core.Valve.SetManager(manager)
	require.NoError(t, env.store.Mint(asset, seeder, big.NewInt(1_000_000)))

	_, err := env.core.Staking.SeedStake(seeder, asset, big.NewInt(1_000_000), day, 365*day)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/v1/staking/valve-share", map[string]any{
		"caller":     manager.Hex(),
		"percentage": 40,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Only the manager may report the swap-out ratio.
	rec = env.do(t, http.MethodPost, "/v1/valve/swapped-out", map[string]any{
		"caller":     seeder.Hex(),
		"percentage": 50,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/valve/swapped-out", map[string]any{
		"caller":     manager.Hex(),
		"percentage": 50,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/valve/"+asset.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		CanOpen bool `json:"canOpen"`
	}
	decodeBody(t, rec, &status)
	require.True(t, status.CanOpen)

	rec = env.do(t, http.MethodPost, "/v1/valve/open", map[string]any{
		"asset": asset.Hex(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var st valveStateBody
	decodeBody(t, rec, &st)
	require.True(t, st.IsOpen)
	require.Equal(t, "1000000", st.SavedBaseline)
}
