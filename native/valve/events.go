package valve

import (
	"math/big"
	"strconv"

	"launchcore/core/events"
	"launchcore/core/types"
)

const (
	// EventTypeValveOpened is emitted when a valve clamps the baseline.
	EventTypeValveOpened = "valve.opened"
	// EventTypeValveClosed is emitted when a valve restores the baseline.
	EventTypeValveClosed = "valve.closed"
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

// ValveOpenedEvent returns the structured payload for a valve opening.
func ValveOpenedEvent(s *State, floor *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeValveOpened,
		Attributes: map[string]string{
			"asset":         s.Asset.Hex(),
			"savedBaseline": amountString(s.SavedBaseline),
			"floor":         amountString(floor),
			"openedAt":      strconv.FormatInt(s.OpenedAt, 10),
		},
	}
}

// ValveClosedEvent returns the structured payload for a valve closing.
func ValveClosedEvent(s *State) *types.Event {
	return &types.Event{
		Type: EventTypeValveClosed,
		Attributes: map[string]string{
			"asset":    s.Asset.Hex(),
			"restored": amountString(s.SavedBaseline),
			"closedAt": strconv.FormatInt(s.ClosedAt, 10),
		},
	}
}
