package allocation

import (
	"math/big"
	"strconv"

	"launchcore/core/events"
	"launchcore/core/types"
)

const (
	// EventTypeConfigCreated is emitted when a pre-launch split is registered.
	EventTypeConfigCreated = "allocation.config.created"
	// EventTypeHookDisabled is emitted when an asset opts out of the fan-out.
	EventTypeHookDisabled = "allocation.hook.disabled"
	// EventTypeFanOut is emitted after a mint has been distributed.
	EventTypeFanOut = "allocation.fanout"
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

// ConfigCreatedEvent returns the structured payload for a new config.
func ConfigCreatedEvent(cfg *Config) *types.Event {
	return &types.Event{
		Type: EventTypeConfigCreated,
		Attributes: map[string]string{
			"asset":   cfg.Asset.Hex(),
			"entries": strconv.Itoa(len(cfg.Entries)),
		},
	}
}

// HookDisabledEvent returns the structured payload for an opt-out sentinel.
func HookDisabledEvent(asset types.Address) *types.Event {
	return &types.Event{
		Type: EventTypeHookDisabled,
		Attributes: map[string]string{
			"asset": asset.Hex(),
		},
	}
}

// FanOutEvent returns the structured payload for a completed distribution.
func FanOutEvent(out *FanOut) *types.Event {
	return &types.Event{
		Type: EventTypeFanOut,
		Attributes: map[string]string{
			"asset":       out.Asset.Hex(),
			"totalSupply": amountString(out.TotalSupply),
			"allocated":   amountString(out.Allocated),
			"remainder":   amountString(out.Remainder),
			"entries":     strconv.Itoa(len(out.Entries)),
		},
	}
}
