package allocation

import (
	"errors"
	"math/big"
	"time"

	"launchcore/core/events"
	"launchcore/core/faults"
	"launchcore/core/types"
	"launchcore/native/staking"
	"launchcore/native/vault"
)

// RoleDeployer is the permission-table role allowed to report mints.
const RoleDeployer = "allocation.deployer"

// DefaultMaxEntries bounds the number of entries a single config may carry.
const DefaultMaxEntries = 10

var (
	errNilState       = errors.New("allocation engine: state not configured")
	errNilDispatchers = errors.New("allocation engine: dispatchers not configured")
)

type engineState interface {
	AllocationConfigGet(asset types.Address) (*Config, bool, error)
	AllocationConfigPut(cfg *Config) error
	AllocationLaunched(asset types.Address) (bool, error)
	AllocationMarkLaunched(asset types.Address) error
	HasRole(role string, addr types.Address) (bool, error)
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

type vaultDispatcher interface {
	CreateVault(caller, asset, beneficiary types.Address, amount *big.Int, cliff, vestingDuration int64) (*vault.Allocation, error)
}

type stakingDispatcher interface {
	SeedStake(from, asset types.Address, amount *big.Int, lockupDuration, streamDuration int64) (*staking.Wrapper, error)
}

// Engine coordinates the one-shot distribution of freshly minted supply
// across the vault and staking modules. Configs are written before launch
// and consumed exactly once when the deployer reports the mint.
type Engine struct {
	state      engineState
	vaults     vaultDispatcher
	staking    stakingDispatcher
	emitter    events.Emitter
	nowFn      func() int64
	maxEntries int

	defaultEntries []Entry
}

// NewEngine constructs an allocation engine bound to the supplied vault and
// staking dispatchers.
func NewEngine(vaults vaultDispatcher, staking stakingDispatcher) *Engine {
	return &Engine{
		vaults:     vaults,
		staking:    staking,
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
		maxEntries: DefaultMaxEntries,
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

// SetNowFunc overrides the time source used for config timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	e.nowFn = now
}

// SetMaxEntries adjusts the per-config entry cap.
func (e *Engine) SetMaxEntries(max int) {
	if max > 0 {
		e.maxEntries = max
	}
}

// SetDefaultEntries installs the split applied to assets launched without a
// stored config. The entries pass the same validation as stored configs.
func (e *Engine) SetDefaultEntries(entries []Entry) error {
	if err := e.validateEntries(entries); err != nil {
		return err
	}
	e.defaultEntries = append([]Entry(nil), entries...)
	return nil
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.vaults == nil || e.staking == nil {
		return errNilDispatchers
	}
	return nil
}

func (e *Engine) validateEntries(entries []Entry) error {
	if len(entries) == 0 {
		return faults.Validationf("allocation config requires at least one entry")
	}
	if len(entries) > e.maxEntries {
		return faults.Validationf("allocation config exceeds %d entries", e.maxEntries)
	}
	var total uint64
	seenVault := make(map[types.Address]struct{}, len(entries))
	for _, entry := range entries {
		if err := entry.validate(); err != nil {
			return err
		}
		if entry.Kind == KindVault {
			// Each beneficiary owns at most one vault per asset, so a
			// duplicate would only fail later at dispatch.
			if _, dup := seenVault[entry.Recipient]; dup {
				return faults.Validationf("duplicate vault entry for recipient %s", entry.Recipient.Hex())
			}
			seenVault[entry.Recipient] = struct{}{}
		}
		total += uint64(entry.Percentage)
	}
	if total > 100 {
		return faults.Validationf("allocation percentages sum to %d, exceeding 100", total)
	}
	return nil
}

// CreateAllocationConfig registers the pre-launch split for an asset. Configs
// are immutable: a second call for the same asset fails with a state conflict.
func (e *Engine) CreateAllocationConfig(asset types.Address, entries []Entry) (*Config, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if asset.IsZero() {
		return nil, faults.Validationf("asset address must not be zero")
	}
	if err := e.validateEntries(entries); err != nil {
		return nil, err
	}
	if _, ok, err := e.state.AllocationConfigGet(asset); err != nil {
		return nil, err
	} else if ok {
		return nil, faults.StateConflictf("allocation config for %s already exists", asset.Hex())
	}
	cfg := &Config{
		Asset:     asset,
		Entries:   append([]Entry(nil), entries...),
		CreatedAt: e.nowFn(),
	}
	if err := e.state.AllocationConfigPut(cfg); err != nil {
		return nil, err
	}
	e.emit(ConfigCreatedEvent(cfg))
	return cfg.Clone(), nil
}

// DisableHook stores the explicit opt-out sentinel for an asset: when it
// later launches, no supply is routed through the core. The sentinel is as
// immutable as a regular config.
func (e *Engine) DisableHook(asset types.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if asset.IsZero() {
		return faults.Validationf("asset address must not be zero")
	}
	if _, ok, err := e.state.AllocationConfigGet(asset); err != nil {
		return err
	} else if ok {
		return faults.StateConflictf("allocation config for %s already exists", asset.Hex())
	}
	cfg := &Config{Asset: asset, Disabled: true, CreatedAt: e.nowFn()}
	if err := e.state.AllocationConfigPut(cfg); err != nil {
		return err
	}
	e.emit(HookDisabledEvent(asset))
	return nil
}

// Config returns a copy of the stored config for an asset.
func (e *Engine) Config(asset types.Address) (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, ok, err := e.state.AllocationConfigGet(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, faults.Validationf("no allocation config for %s", asset.Hex())
	}
	return cfg.Clone(), nil
}

// Launched reports whether the asset's mint has already been processed.
func (e *Engine) Launched(asset types.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.AllocationLaunched(asset)
}

// OnAssetMinted fans the freshly minted supply out across the asset's
// configured entries. The caller must hold the deployer role and the minted
// balance; each entry is funded by a transfer out of the caller. The dispatch
// is atomic: if any entry fails, state written by earlier entries is rolled
// back and the error is returned. Entry amounts use floor division, so dust
// below the percentage granularity stays with the caller.
func (e *Engine) OnAssetMinted(caller, asset types.Address, totalSupply *big.Int) (*FanOut, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if asset.IsZero() {
		return nil, faults.Validationf("asset address must not be zero")
	}
	if totalSupply == nil || totalSupply.Sign() <= 0 {
		return nil, faults.Validationf("total supply must be positive")
	}
	if ok, err := e.state.HasRole(RoleDeployer, caller); err != nil {
		return nil, err
	} else if !ok {
		return nil, faults.Authorizationf("%s lacks the %s role", caller.Hex(), RoleDeployer)
	}
	if launched, err := e.state.AllocationLaunched(asset); err != nil {
		return nil, err
	} else if launched {
		return nil, faults.StateConflictf("asset %s has already launched", asset.Hex())
	}

	entries := e.defaultEntries
	if cfg, ok, err := e.state.AllocationConfigGet(asset); err != nil {
		return nil, err
	} else if ok {
		if cfg.Disabled {
			if err := e.state.AllocationMarkLaunched(asset); err != nil {
				return nil, err
			}
			out := &FanOut{
				Asset:       asset,
				TotalSupply: new(big.Int).Set(totalSupply),
				Allocated:   big.NewInt(0),
				Remainder:   new(big.Int).Set(totalSupply),
			}
			e.emit(FanOutEvent(out))
			return out, nil
		}
		entries = cfg.Entries
	}
	if len(entries) == 0 {
		return nil, faults.Validationf("no allocation entries for %s and no default split", asset.Hex())
	}

	out := &FanOut{
		Asset:       asset,
		TotalSupply: new(big.Int).Set(totalSupply),
		Allocated:   big.NewInt(0),
	}
	snapshot := e.state.Snapshot()
	for _, entry := range entries {
		amount := new(big.Int).Mul(totalSupply, big.NewInt(int64(entry.Percentage)))
		amount.Div(amount, big.NewInt(100))
		if amount.Sign() == 0 {
			continue
		}
		var err error
		switch entry.Kind {
		case KindVault:
			_, err = e.vaults.CreateVault(caller, asset, entry.Recipient, amount, entry.Cliff, entry.VestingDuration)
		case KindStaking:
			_, err = e.staking.SeedStake(caller, asset, amount, entry.LockupDuration, entry.StreamDuration)
		}
		if err != nil {
			e.state.RevertToSnapshot(snapshot)
			return nil, err
		}
		out.Allocated.Add(out.Allocated, amount)
		out.Entries = append(out.Entries, EntryResult{Kind: entry.Kind, Recipient: entry.Recipient, Amount: amount})
	}
	if err := e.state.AllocationMarkLaunched(asset); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return nil, err
	}
	e.state.DiscardSnapshot(snapshot)
	out.Remainder = new(big.Int).Sub(totalSupply, out.Allocated)
	e.emit(FanOutEvent(out))
	return out, nil
}
