package state

import (
	"math/big"
	"sort"
	"sync"

	"launchcore/core/faults"
	"launchcore/core/types"
	"launchcore/native/allocation"
	"launchcore/native/staking"
	"launchcore/native/streampool"
	"launchcore/native/valve"
	"launchcore/native/vault"
)

// Store is the in-memory ledger and object store every engine runs against.
// All stored values are deep-copied on the way in and out, so callers can
// never alias internal state. Individual methods are safe for concurrent use;
// multi-step engine operations are serialized by the service layer.
type Store struct {
	mu sync.RWMutex

	balances    map[pairKey]*big.Int
	roles       map[string]map[types.Address]bool
	configs     map[types.Address]*allocation.Config
	launched    map[types.Address]bool
	allocations map[pairKey]*vault.Allocation
	wrappers    map[types.Address]*staking.Wrapper
	positions   map[pairKey]*staking.Position
	valves      map[types.Address]*valve.State
	pools       map[[32]byte]*streampool.Pool
	members     map[memberKey]*streampool.Member
	seq         map[types.Address]uint64

	snapshots []*Store
}

type pairKey struct {
	a, b types.Address
}

type memberKey struct {
	pool [32]byte
	addr types.Address
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		balances:    make(map[pairKey]*big.Int),
		roles:       make(map[string]map[types.Address]bool),
		configs:     make(map[types.Address]*allocation.Config),
		launched:    make(map[types.Address]bool),
		allocations: make(map[pairKey]*vault.Allocation),
		wrappers:    make(map[types.Address]*staking.Wrapper),
		positions:   make(map[pairKey]*staking.Position),
		valves:      make(map[types.Address]*valve.State),
		pools:       make(map[[32]byte]*streampool.Pool),
		members:     make(map[memberKey]*streampool.Member),
		seq:         make(map[types.Address]uint64),
	}
}

// --- ledger ---

func (s *Store) balanceLocked(asset, holder types.Address) *big.Int {
	if b, ok := s.balances[pairKey{asset, holder}]; ok {
		return b
	}
	return big.NewInt(0)
}

// Balance returns the holder's balance of the asset.
func (s *Store) Balance(asset, holder types.Address) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.balanceLocked(asset, holder))
}

// Mint credits freshly created supply to the holder.
func (s *Store) Mint(asset, holder types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return faults.Validationf("mint amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[pairKey{asset, holder}] = new(big.Int).Add(s.balanceLocked(asset, holder), amount)
	return nil
}

// Transfer moves balance between two holders of the same asset.
func (s *Store) Transfer(asset, from, to types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return faults.Validationf("transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.balanceLocked(asset, from)
	if bal.Cmp(amount) < 0 {
		return faults.InsufficientBalancef("balance of %s is %s, need %s", from.Hex(), bal, amount)
	}
	s.balances[pairKey{asset, from}] = new(big.Int).Sub(bal, amount)
	s.balances[pairKey{asset, to}] = new(big.Int).Add(s.balanceLocked(asset, to), amount)
	return nil
}

// EnsureStreamable reports the streaming-capable asset backing the holder's
// balance. Every asset in this ledger streams natively, so this is the
// identity mapping.
func (s *Store) EnsureStreamable(asset, holder types.Address, amount *big.Int) (types.Address, error) {
	return asset, nil
}

// --- permission table ---

// GrantRole adds the address to the role's member set.
func (s *Store) GrantRole(role string, addr types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[role] == nil {
		s.roles[role] = make(map[types.Address]bool)
	}
	s.roles[role][addr] = true
}

// RevokeRole removes the address from the role's member set.
func (s *Store) RevokeRole(role string, addr types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles[role], addr)
}

// HasRole reports whether the address holds the role.
func (s *Store) HasRole(role string, addr types.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[role][addr], nil
}

// --- allocation module ---

func (s *Store) AllocationConfigGet(asset types.Address) (*allocation.Config, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[asset]
	if !ok {
		return nil, false, nil
	}
	return cfg.Clone(), true, nil
}

func (s *Store) AllocationConfigPut(cfg *allocation.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.Asset] = cfg.Clone()
	return nil
}

func (s *Store) AllocationLaunched(asset types.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.launched[asset], nil
}

func (s *Store) AllocationMarkLaunched(asset types.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launched[asset] = true
	return nil
}

// --- vault module ---

func (s *Store) VaultAllocationGet(asset, admin types.Address) (*vault.Allocation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alloc, ok := s.allocations[pairKey{asset, admin}]
	if !ok {
		return nil, false, nil
	}
	return alloc.Clone(), true, nil
}

func (s *Store) VaultAllocationPut(a *vault.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocations[pairKey{a.Asset, a.Admin}] = a.Clone()
	return nil
}

func (s *Store) VaultAllocationDelete(asset, admin types.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.allocations, pairKey{asset, admin})
	return nil
}

// --- staking module ---

func (s *Store) StakedWrapperGet(asset types.Address) (*staking.Wrapper, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wrappers[asset]
	if !ok {
		return nil, false, nil
	}
	return w.Clone(), true, nil
}

func (s *Store) StakedWrapperPut(w *staking.Wrapper) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wrappers[w.Asset] = w.Clone()
	return nil
}

func (s *Store) StakePositionGet(asset, holder types.Address) (*staking.Position, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[pairKey{asset, holder}]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (s *Store) StakePositionPut(p *staking.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pairKey{p.Asset, p.Holder}] = p.Clone()
	return nil
}

// --- valve module ---

func (s *Store) ValveGet(asset types.Address) (*valve.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.valves[asset]
	if !ok {
		return nil, false, nil
	}
	return v.Clone(), true, nil
}

func (s *Store) ValvePut(v *valve.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valves[v.Asset] = v.Clone()
	return nil
}

// --- distribution pools ---

func (s *Store) PoolGet(id [32]byte) (*streampool.Pool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[id]
	if !ok {
		return nil, false, nil
	}
	return pool.Clone(), true, nil
}

func (s *Store) PoolPut(p *streampool.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[p.ID] = p.Clone()
	return nil
}

func (s *Store) PoolNextSequence(owner types.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.seq[owner]
	s.seq[owner] = next + 1
	return next, nil
}

func (s *Store) PoolMemberGet(pool [32]byte, addr types.Address) (*streampool.Member, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	member, ok := s.members[memberKey{pool, addr}]
	if !ok {
		return nil, false, nil
	}
	return member.Clone(), true, nil
}

func (s *Store) PoolMemberPut(member *streampool.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey{member.Pool, member.Address}] = member.Clone()
	return nil
}

// PoolMembers returns the pool's members ordered by address so iteration is
// deterministic.
func (s *Store) PoolMembers(pool [32]byte) ([]*streampool.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*streampool.Member, 0)
	for key, member := range s.members {
		if key.pool == pool {
			out = append(out, member.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		for k := range out[i].Address {
			if out[i].Address[k] != out[j].Address[k] {
				return out[i].Address[k] < out[j].Address[k]
			}
		}
		return false
	})
	return out, nil
}

// --- snapshots ---

func (s *Store) copyLocked() *Store {
	cp := NewStore()
	for k, v := range s.balances {
		cp.balances[k] = new(big.Int).Set(v)
	}
	for role, members := range s.roles {
		cp.roles[role] = make(map[types.Address]bool, len(members))
		for addr, ok := range members {
			cp.roles[role][addr] = ok
		}
	}
	for k, v := range s.configs {
		cp.configs[k] = v.Clone()
	}
	for k, v := range s.launched {
		cp.launched[k] = v
	}
	for k, v := range s.allocations {
		cp.allocations[k] = v.Clone()
	}
	for k, v := range s.wrappers {
		cp.wrappers[k] = v.Clone()
	}
	for k, v := range s.positions {
		cp.positions[k] = v.Clone()
	}
	for k, v := range s.valves {
		cp.valves[k] = v.Clone()
	}
	for k, v := range s.pools {
		cp.pools[k] = v.Clone()
	}
	for k, v := range s.members {
		cp.members[k] = v.Clone()
	}
	for k, v := range s.seq {
		cp.seq[k] = v
	}
	return cp
}

// Snapshot records the current state and returns a handle for RevertToSnapshot.
func (s *Store) Snapshot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, s.copyLocked())
	return len(s.snapshots) - 1
}

// RevertToSnapshot restores the state captured by the handle and discards it
// together with any later snapshots. Unknown handles are ignored.
func (s *Store) RevertToSnapshot(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return
	}
	saved := s.snapshots[id]
	s.balances = saved.balances
	s.roles = saved.roles
	s.configs = saved.configs
	s.launched = saved.launched
	s.allocations = saved.allocations
	s.wrappers = saved.wrappers
	s.positions = saved.positions
	s.valves = saved.valves
	s.pools = saved.pools
	s.members = saved.members
	s.seq = saved.seq
	s.snapshots = s.snapshots[:id]
}

// DiscardSnapshot drops the handle and everything after it without reverting.
func (s *Store) DiscardSnapshot(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return
	}
	s.snapshots = s.snapshots[:id]
}
