package input

import (
	"errors"
	"fmt"
)

// MaxGamepads is the number of controller slots.
const MaxGamepads = 16

// ErrInvalidSlot is returned for a slot outside 0..MaxGamepads-1.
var ErrInvalidSlot = errors.New("invalid gamepad slot")

// DefaultGamepadType is announced when a client never says what it has.
const DefaultGamepadType = "xbox"

// gamepads tracks which slots have announced a controller so an arrival can be
// synthesized ahead of the first state report.
type gamepads struct {
	connected [MaxGamepads]bool
}

func checkSlot(slot int) error {
	if slot < 0 || slot >= MaxGamepads {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	return nil
}

func (g *gamepads) connect(slot int, typ string) ([]Event, error) {
	if err := checkSlot(slot); err != nil {
		return nil, err
	}
	if typ == "" {
		typ = DefaultGamepadType
	}
	if g.connected[slot] {
		return nil, nil
	}
	g.connected[slot] = true
	return []Event{GamepadArrival{Slot: slot, Type: typ}}, nil
}

func (g *gamepads) state(st GamepadState) ([]Event, error) {
	if err := checkSlot(st.Slot); err != nil {
		return nil, err
	}
	var out []Event
	if !g.connected[st.Slot] {
		g.connected[st.Slot] = true
		out = append(out, GamepadArrival{Slot: st.Slot, Type: DefaultGamepadType})
	}
	return append(out, st), nil
}

func (g *gamepads) disconnect(slot int) ([]Event, error) {
	if err := checkSlot(slot); err != nil {
		return nil, err
	}
	if !g.connected[slot] {
		return nil, nil
	}
	g.connected[slot] = false
	return []Event{GamepadRemoval{Slot: slot}}, nil
}

func (g *gamepads) motion(m GamepadMotion) ([]Event, error) {
	if err := checkSlot(m.Slot); err != nil {
		return nil, err
	}
	if !g.connected[m.Slot] {
		return nil, nil
	}
	return []Event{m}, nil
}

// removeAll returns removals for every connected slot.
func (g *gamepads) removeAll() []Event {
	var out []Event
	for slot, ok := range g.connected {
		if ok {
			g.connected[slot] = false
			out = append(out, GamepadRemoval{Slot: slot})
		}
	}
	return out
}
