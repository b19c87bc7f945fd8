package streampool

import (
	"encoding/hex"
	"math/big"

	"launchcore/core/events"
	"launchcore/core/types"
)

const (
	// EventTypePoolCreated is emitted when a new distribution pool is allocated.
	EventTypePoolCreated = "pool.created"
	// EventTypePoolFunded is emitted when the funding balance is topped up.
	EventTypePoolFunded = "pool.funded"
	// EventTypePoolFlowRate is emitted when the flow rate changes.
	EventTypePoolFlowRate = "pool.flowrate.updated"
	// EventTypePoolUnits is emitted when a member's unit weight changes.
	EventTypePoolUnits = "pool.units.updated"
	// EventTypePoolWithdrawn is emitted when a member withdraws accrued value.
	EventTypePoolWithdrawn = "pool.withdrawn"
	// EventTypePoolDistributed is emitted on an instant distribution.
	EventTypePoolDistributed = "pool.distributed"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func poolHex(id [32]byte) string { return hex.EncodeToString(id[:]) }

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// PoolCreatedEvent returns the structured payload for pool creation.
func PoolCreatedEvent(p *Pool) *types.Event {
	return &types.Event{
		Type: EventTypePoolCreated,
		Attributes: map[string]string{
			"pool":    poolHex(p.ID),
			"asset":   p.Asset.Hex(),
			"owner":   p.Owner.Hex(),
			"funding": p.FundingAccount.Hex(),
		},
	}
}

// PoolFundedEvent returns the structured payload for a funding top-up.
func PoolFundedEvent(p *Pool, from types.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypePoolFunded,
		Attributes: map[string]string{
			"pool":    poolHex(p.ID),
			"from":    from.Hex(),
			"amount":  amountString(amount),
			"funding": amountString(p.Funding),
		},
	}
}

// PoolFlowRateEvent returns the structured payload for a flow rate change.
func PoolFlowRateEvent(p *Pool) *types.Event {
	return &types.Event{
		Type: EventTypePoolFlowRate,
		Attributes: map[string]string{
			"pool":     poolHex(p.ID),
			"flowRate": amountString(p.FlowRate),
		},
	}
}

// PoolUnitsEvent returns the structured payload for a unit weight change.
func PoolUnitsEvent(p *Pool, m *Member) *types.Event {
	return &types.Event{
		Type: EventTypePoolUnits,
		Attributes: map[string]string{
			"pool":       poolHex(p.ID),
			"member":     m.Address.Hex(),
			"units":      amountString(m.Units),
			"totalUnits": amountString(p.TotalUnits),
		},
	}
}

// PoolDistributedEvent returns the structured payload for an instant distribution.
func PoolDistributedEvent(p *Pool, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypePoolDistributed,
		Attributes: map[string]string{
			"pool":    poolHex(p.ID),
			"amount":  amountString(amount),
			"funding": amountString(p.Funding),
		},
	}
}

// PoolWithdrawnEvent returns the structured payload for a member withdrawal.
func PoolWithdrawnEvent(p *Pool, m *Member, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypePoolWithdrawn,
		Attributes: map[string]string{
			"pool":   poolHex(p.ID),
			"member": m.Address.Hex(),
			"amount": amountString(amount),
		},
	}
}
