package staking

import (
	"math/big"
	"strconv"

	"launchcore/core/events"
	"launchcore/core/types"
)

const (
	// EventTypeStakingSeeded is emitted when the orchestrator seeds an asset.
	EventTypeStakingSeeded = "staking.seeded"
	// EventTypeStakingStaked is emitted on every stake.
	EventTypeStakingStaked = "staking.staked"
	// EventTypeStakingUnstaked is emitted on every unstake.
	EventTypeStakingUnstaked = "staking.unstaked"
	// EventTypeStakingDelegated is emitted when reward units move targets.
	EventTypeStakingDelegated = "staking.delegated"
	// EventTypeStakingBaseline is emitted when the factory baseline changes
	// through the safety valve.
	EventTypeStakingBaseline = "staking.baseline.updated"
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

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// StakingSeededEvent returns the structured payload for a seed stake.
func StakingSeededEvent(w *Wrapper, amount, rate *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeStakingSeeded,
		Attributes: map[string]string{
			"asset":          w.Asset.Hex(),
			"wrapper":        w.Address.Hex(),
			"amount":         amountString(amount),
			"flowRate":       amountString(rate),
			"lockupDuration": strconv.FormatInt(w.LockupDuration, 10),
			"streamDuration": strconv.FormatInt(w.StreamDuration, 10),
		},
	}
}

// StakingStakedEvent returns the structured payload for a stake.
func StakingStakedEvent(w *Wrapper, p *Position, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeStakingStaked,
		Attributes: map[string]string{
			"asset":      w.Asset.Hex(),
			"holder":     p.Holder.Hex(),
			"amount":     amountString(amount),
			"wrapped":    amountString(p.WrappedBalance),
			"unlockTime": strconv.FormatInt(p.UnlockTime, 10),
		},
	}
}

// StakingUnstakedEvent returns the structured payload for an unstake.
func StakingUnstakedEvent(w *Wrapper, p *Position, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeStakingUnstaked,
		Attributes: map[string]string{
			"asset":   w.Asset.Hex(),
			"holder":  p.Holder.Hex(),
			"amount":  amountString(amount),
			"wrapped": amountString(p.WrappedBalance),
		},
	}
}

// StakingDelegatedEvent returns the structured payload for a delegation.
func StakingDelegatedEvent(p *Position) *types.Event {
	return &types.Event{
		Type: EventTypeStakingDelegated,
		Attributes: map[string]string{
			"asset":     p.Asset.Hex(),
			"holder":    p.Holder.Hex(),
			"delegatee": p.Delegatee.Hex(),
		},
	}
}

// StakingBaselineEvent returns the structured payload for a baseline change.
func StakingBaselineEvent(w *Wrapper) *types.Event {
	return &types.Event{
		Type: EventTypeStakingBaseline,
		Attributes: map[string]string{
			"asset":    w.Asset.Hex(),
			"baseline": amountString(w.BaselineUnits),
			"locked":   strconv.FormatBool(w.BaselineLocked),
		},
	}
}
