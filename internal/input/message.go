package input

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// JSON message types sent by the client.
const (
	TypeMouseMove         = "mouse_move"
	TypeMouseDown         = "mouse_down"
	TypeMouseUp           = "mouse_up"
	TypeMouseWheel        = "mouse_wheel"
	TypeKeyDown           = "key_down"
	TypeKeyUp             = "key_up"
	TypeGamepadConnect    = "gamepad_connect"
	TypeGamepadState      = "gamepad_state"
	TypeGamepadDisconnect = "gamepad_disconnect"
	TypeGamepadMotion     = "gamepad_motion"
)

// Message is a JSON control message. Fields not used by a type are ignored.
type Message struct {
	Type string `json:"type"`

	// Mouse; x and y are normalized to 0..1.
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button int     `json:"button"`
	DeltaX int     `json:"dx"`
	DeltaY int     `json:"dy"`

	// Keyboard
	Code  string `json:"code"`
	Shift bool   `json:"shift"`
	Ctrl  bool   `json:"ctrl"`
	Alt   bool   `json:"alt"`
	Meta  bool   `json:"meta"`

	// Gamepad
	Gamepad      int     `json:"gamepad"`
	GamepadType  string  `json:"gamepad_type"`
	Buttons      uint32  `json:"buttons"`
	LeftTrigger  uint8   `json:"lt"`
	RightTrigger uint8   `json:"rt"`
	LeftX        int16   `json:"lx"`
	LeftY        int16   `json:"ly"`
	RightX       int16   `json:"rx"`
	RightY       int16   `json:"ry"`
	MotionType   int     `json:"motion_type"`
	MotionX      float32 `json:"mx"`
	MotionY      float32 `json:"my"`
	MotionZ      float32 `json:"mz"`
}

// ParseMessage decodes a JSON control message.
func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("invalid control message: %w", err)
	}
	if m.Type == "" {
		return m, fmt.Errorf("%w: missing type", ErrUnknownMessage)
	}
	return m, nil
}

func (m Message) modifiers() uint8 {
	var mods uint8
	if m.Shift {
		mods |= ModShift
	}
	if m.Ctrl {
		mods |= ModCtrl
	}
	if m.Alt {
		mods |= ModAlt
	}
	if m.Meta {
		mods |= ModMeta
	}
	return mods
}

func normalize(v float64) uint16 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return math.MaxUint16
	}
	return uint16(math.Round(v * math.MaxUint16))
}

// ErrUnknownKey is returned for a key code without a host mapping.
var ErrUnknownKey = errors.New("unknown key code")

// translate turns a message into native events, consulting the gamepad slots.
func (m Message) translate(pads *gamepads) ([]Event, error) {
	switch m.Type {
	case TypeMouseMove:
		return []Event{MouseMove{X: normalize(m.X), Y: normalize(m.Y)}}, nil
	case TypeMouseDown, TypeMouseUp:
		return []Event{MouseButton{Button: m.Button, Down: m.Type == TypeMouseDown}}, nil
	case TypeMouseWheel:
		return []Event{MouseWheel{DeltaX: m.DeltaX, DeltaY: m.DeltaY}}, nil
	case TypeKeyDown, TypeKeyUp:
		vk, ok := VirtualKey(m.Code)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKey, m.Code)
		}
		return []Event{Key{VK: vk, Down: m.Type == TypeKeyDown, Modifiers: m.modifiers()}}, nil
	case TypeGamepadConnect:
		return pads.connect(m.Gamepad, m.GamepadType)
	case TypeGamepadState:
		return pads.state(GamepadState{
			Slot:         m.Gamepad,
			Buttons:      m.Buttons,
			LeftTrigger:  m.LeftTrigger,
			RightTrigger: m.RightTrigger,
			LeftX:        m.LeftX,
			LeftY:        m.LeftY,
			RightX:       m.RightX,
			RightY:       m.RightY,
		})
	case TypeGamepadDisconnect:
		return pads.disconnect(m.Gamepad)
	case TypeGamepadMotion:
		return pads.motion(GamepadMotion{
			Slot:       m.Gamepad,
			MotionType: m.MotionType,
			X:          m.MotionX,
			Y:          m.MotionY,
			Z:          m.MotionZ,
		})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
}
