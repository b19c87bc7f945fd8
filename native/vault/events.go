package vault

import (
	"math/big"
	"strconv"

	"launchcore/core/events"
	"launchcore/core/types"
)

const (
	// EventTypeVaultCreated is emitted when a vesting allocation is recorded.
	EventTypeVaultCreated = "vault.created"
	// EventTypeVaultMemberUnits is emitted when a member's units change.
	EventTypeVaultMemberUnits = "vault.member.units"
	// EventTypeVaultAdminEdited is emitted when an allocation moves admins.
	EventTypeVaultAdminEdited = "vault.admin.edited"
	// EventTypeVaultClaimed is emitted when a claim advances the stream.
	EventTypeVaultClaimed = "vault.claimed"
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

// VaultCreatedEvent returns the structured payload for allocation creation.
func VaultCreatedEvent(a *Allocation) *types.Event {
	return &types.Event{
		Type: EventTypeVaultCreated,
		Attributes: map[string]string{
			"asset":           a.Asset.Hex(),
			"admin":           a.Admin.Hex(),
			"amountTotal":     amountString(a.AmountTotal),
			"cliff":           strconv.FormatInt(a.Cliff, 10),
			"vestingDuration": strconv.FormatInt(a.VestingDuration, 10),
			"box":             a.Box.Hex(),
		},
	}
}

// VaultMemberUnitsEvent returns the structured payload for a unit update.
func VaultMemberUnitsEvent(a *Allocation, member types.Address, units *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeVaultMemberUnits,
		Attributes: map[string]string{
			"asset":  a.Asset.Hex(),
			"admin":  a.Admin.Hex(),
			"member": member.Hex(),
			"units":  amountString(units),
		},
	}
}

// VaultAdminEditedEvent returns the structured payload for an admin move.
func VaultAdminEditedEvent(a *Allocation, oldAdmin types.Address) *types.Event {
	return &types.Event{
		Type: EventTypeVaultAdminEdited,
		Attributes: map[string]string{
			"asset":    a.Asset.Hex(),
			"oldAdmin": oldAdmin.Hex(),
			"newAdmin": a.Admin.Hex(),
		},
	}
}

// VaultClaimedEvent returns the structured payload for a claim.
func VaultClaimedEvent(a *Allocation, distributed, flowRate *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeVaultClaimed,
		Attributes: map[string]string{
			"asset":       a.Asset.Hex(),
			"admin":       a.Admin.Hex(),
			"distributed": amountString(distributed),
			"flowRate":    amountString(flowRate),
			"claimed":     amountString(a.Claimed),
		},
	}
}
