package streampool

import (
	"errors"
	"math/big"
	"sort"
	"time"

	"launchcore/core/events"
	"launchcore/core/faults"
	"launchcore/core/types"
	"launchcore/crypto"
)

var (
	errNilState = errors.New("streampool engine: state not configured")
)

// indexScale fixes the precision of the per-unit distribution index. Member
// accrual is carried at this precision so unit changes mid-stream never drop
// sub-token dust.
var indexScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type engineState interface {
	PoolGet(id [32]byte) (*Pool, bool, error)
	PoolPut(*Pool) error
	PoolNextSequence(owner types.Address) (uint64, error)
	PoolMemberGet(pool [32]byte, member types.Address) (*Member, bool, error)
	PoolMemberPut(*Member) error
	PoolMembers(pool [32]byte) ([]*Member, error)
	Transfer(asset, from, to types.Address, amount *big.Int) error
}

// Engine implements the distribution pool substrate: unit ledgers, flow
// rates, and lazy settlement against elapsed time. The unit ledger of a pool
// is only ever mutated through the component that owns the pool.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a pool engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
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

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
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

func (e *Engine) loadPool(id [32]byte) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, ok, err := e.state.PoolGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return nil, faults.Validationf("unknown pool %x", id)
	}
	return pool, nil
}

func (e *Engine) loadMember(pool [32]byte, addr types.Address) (*Member, error) {
	member, ok, err := e.state.PoolMemberGet(pool, addr)
	if err != nil {
		return nil, err
	}
	if !ok || member == nil {
		member = &Member{
			Pool:          pool,
			Address:       addr,
			Units:         big.NewInt(0),
			IndexSnapshot: big.NewInt(0),
			AccruedScaled: big.NewInt(0),
			Withdrawn:     big.NewInt(0),
		}
	}
	return member, nil
}

// CreatePool allocates a pool for the given owner with a deterministic id.
// The funding sub-account is derived from the id unless the caller supplies
// its own custody account (e.g. a vault box).
func (e *Engine) CreatePool(owner, asset, fundingAccount types.Address) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	seq, err := e.state.PoolNextSequence(owner)
	if err != nil {
		return nil, err
	}
	id := crypto.PoolID(owner, seq)
	if fundingAccount.IsZero() {
		fundingAccount = crypto.PoolFundingAddress(id)
	}
	pool := &Pool{
		ID:             id,
		Asset:          asset,
		Owner:          owner,
		FundingAccount: fundingAccount,
		TotalUnits:     big.NewInt(0),
		FlowRate:       big.NewInt(0),
		PerUnitIndex:   big.NewInt(0),
		IndexRemainder: big.NewInt(0),
		Funding:        big.NewInt(0),
		Streamed:       big.NewInt(0),
		LastSettled:    e.now(),
	}
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	e.emit(PoolCreatedEvent(pool))
	return pool.Clone(), nil
}

// settle advances the pool's per-unit index to now. No more than the
// remaining funding is ever distributed; with no members the flow pauses.
func settle(p *Pool, now int64) {
	if now <= p.LastSettled {
		return
	}
	elapsed := now - p.LastSettled
	p.LastSettled = now
	if p.FlowRate.Sign() <= 0 || p.TotalUnits.Sign() <= 0 || p.Funding.Sign() <= 0 {
		return
	}
	streamed := new(big.Int).Mul(p.FlowRate, big.NewInt(elapsed))
	if streamed.Cmp(p.Funding) > 0 {
		streamed.Set(p.Funding)
	}
	num := new(big.Int).Mul(streamed, indexScale)
	num.Add(num, p.IndexRemainder)
	quo, rem := new(big.Int).QuoRem(num, p.TotalUnits, new(big.Int))
	p.PerUnitIndex = new(big.Int).Add(p.PerUnitIndex, quo)
	p.IndexRemainder = rem
	p.Funding = new(big.Int).Sub(p.Funding, streamed)
	p.Streamed = new(big.Int).Add(p.Streamed, streamed)
}

// fold settles the member's pending accrual against the pool index.
func fold(p *Pool, m *Member) {
	delta := new(big.Int).Sub(p.PerUnitIndex, m.IndexSnapshot)
	if delta.Sign() > 0 && m.Units.Sign() > 0 {
		m.AccruedScaled = new(big.Int).Add(m.AccruedScaled, delta.Mul(delta, m.Units))
	}
	m.IndexSnapshot = new(big.Int).Set(p.PerUnitIndex)
}

// Fund moves tokens from the supplied account into the pool's funding
// sub-account, extending the stream.
func (e *Engine) Fund(id [32]byte, from types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return faults.Validationf("fund amount must be positive")
	}
	pool, err := e.loadPool(id)
	if err != nil {
		return err
	}
	settle(pool, e.now())
	if err := e.state.Transfer(pool.Asset, from, pool.FundingAccount, amount); err != nil {
		return err
	}
	pool.Funding = new(big.Int).Add(pool.Funding, amount)
	if err := e.state.PoolPut(pool); err != nil {
		return err
	}
	e.emit(PoolFundedEvent(pool, from, amount))
	return nil
}

// Settle advances the pool's index to now, persists it, and returns a copy.
func (e *Engine) Settle(id [32]byte) (*Pool, error) {
	pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	settle(pool, e.now())
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// Distribute instantly distributes amount from the funding balance across the
// current unit holders. Counterpart to the continuous flow: the amount lands
// in member accruals in the same step.
func (e *Engine) Distribute(id [32]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return faults.Validationf("distribute amount must be positive")
	}
	pool, err := e.loadPool(id)
	if err != nil {
		return err
	}
	settle(pool, e.now())
	if pool.Funding.Cmp(amount) < 0 {
		return faults.InsufficientBalancef("pool funding %s below %s", pool.Funding, amount)
	}
	if pool.TotalUnits.Sign() <= 0 {
		return faults.Validationf("pool has no unit holders")
	}
	num := new(big.Int).Mul(amount, indexScale)
	num.Add(num, pool.IndexRemainder)
	quo, rem := new(big.Int).QuoRem(num, pool.TotalUnits, new(big.Int))
	pool.PerUnitIndex = new(big.Int).Add(pool.PerUnitIndex, quo)
	pool.IndexRemainder = rem
	pool.Funding = new(big.Int).Sub(pool.Funding, amount)
	pool.Streamed = new(big.Int).Add(pool.Streamed, amount)
	if err := e.state.PoolPut(pool); err != nil {
		return err
	}
	e.emit(PoolDistributedEvent(pool, amount))
	return nil
}

// SetFlowRate settles the pool and replaces its flow rate.
func (e *Engine) SetFlowRate(id [32]byte, rate *big.Int) error {
	if rate == nil || rate.Sign() < 0 {
		return faults.Validationf("flow rate must be non-negative")
	}
	pool, err := e.loadPool(id)
	if err != nil {
		return err
	}
	settle(pool, e.now())
	pool.FlowRate = new(big.Int).Set(rate)
	if err := e.state.PoolPut(pool); err != nil {
		return err
	}
	e.emit(PoolFlowRateEvent(pool))
	return nil
}

// SetUnits settles the pool, folds the member's pending accrual, and swaps the
// member's unit weight. Setting zero units keeps already accrued value
// claimable.
func (e *Engine) SetUnits(id [32]byte, addr types.Address, units *big.Int) error {
	if units == nil || units.Sign() < 0 {
		return faults.Validationf("units must be non-negative")
	}
	pool, err := e.loadPool(id)
	if err != nil {
		return err
	}
	settle(pool, e.now())
	member, err := e.loadMember(id, addr)
	if err != nil {
		return err
	}
	fold(pool, member)
	pool.TotalUnits = new(big.Int).Sub(pool.TotalUnits, member.Units)
	pool.TotalUnits.Add(pool.TotalUnits, units)
	member.Units = new(big.Int).Set(units)
	if err := e.state.PoolMemberPut(member); err != nil {
		return err
	}
	if err := e.state.PoolPut(pool); err != nil {
		return err
	}
	e.emit(PoolUnitsEvent(pool, member))
	return nil
}

// Units returns the member's current unit weight.
func (e *Engine) Units(id [32]byte, addr types.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	member, ok, err := e.state.PoolMemberGet(id, addr)
	if err != nil {
		return nil, err
	}
	if !ok || member == nil {
		return big.NewInt(0), nil
	}
	return copyBigInt(member.Units), nil
}

// Accrued computes the member's lifetime accrual as of now without mutating
// any state.
func (e *Engine) Accrued(id [32]byte, addr types.Address) (*big.Int, error) {
	pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	member, err := e.loadMember(id, addr)
	if err != nil {
		return nil, err
	}
	return accruedAt(pool, member, e.now()), nil
}

// accruedAt projects the member's lifetime accrual at the given instant
// against an unsettled pool copy.
func accruedAt(p *Pool, m *Member, now int64) *big.Int {
	virtual := p.Clone()
	settle(virtual, now)
	scaled := new(big.Int).Sub(virtual.PerUnitIndex, m.IndexSnapshot)
	scaled.Mul(scaled, m.Units)
	scaled.Add(scaled, m.AccruedScaled)
	return scaled.Quo(scaled, indexScale)
}

// Withdraw settles the pool and transfers the member's accrued-but-unpaid
// balance from the funding sub-account to the member.
func (e *Engine) Withdraw(id [32]byte, addr types.Address) (*big.Int, error) {
	pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	settle(pool, e.now())
	member, err := e.loadMember(id, addr)
	if err != nil {
		return nil, err
	}
	fold(pool, member)
	payable := new(big.Int).Quo(member.AccruedScaled, indexScale)
	payable.Sub(payable, member.Withdrawn)
	if payable.Sign() <= 0 {
		if err := e.state.PoolPut(pool); err != nil {
			return nil, err
		}
		return big.NewInt(0), nil
	}
	if err := e.state.Transfer(pool.Asset, pool.FundingAccount, addr, payable); err != nil {
		return nil, err
	}
	member.Withdrawn = new(big.Int).Add(member.Withdrawn, payable)
	if err := e.state.PoolMemberPut(member); err != nil {
		return nil, err
	}
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	e.emit(PoolWithdrawnEvent(pool, member, payable))
	return payable, nil
}

// Members returns the pool's (member, units, accrued) rows sorted by address.
// Read-only projection for auditing; no side effects.
func (e *Engine) Members(id [32]byte) ([]MemberUnits, error) {
	pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	members, err := e.state.PoolMembers(id)
	if err != nil {
		return nil, err
	}
	now := e.now()
	rows := make([]MemberUnits, 0, len(members))
	for _, m := range members {
		if m == nil {
			continue
		}
		rows = append(rows, MemberUnits{
			Address: m.Address,
			Units:   copyBigInt(m.Units),
			Accrued: accruedAt(pool, m, now),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Address.Hex() < rows[j].Address.Hex()
	})
	return rows, nil
}

// Pool returns a copy of the stored pool.
func (e *Engine) Pool(id [32]byte) (*Pool, error) {
	pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}
