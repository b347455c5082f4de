// Package input implements the control protocol spoken over the input data
// channel: the compact binary mouse-move message with sequence gating, JSON
// control messages for mouse, keyboard and gamepads, and host-to-client
// feedback. Decoded messages become native Events handed to an Injector.
package input

// Event kinds.
const (
	KindMouseMove      = "mouse_move"
	KindMouseButton    = "mouse_button"
	KindMouseWheel     = "mouse_wheel"
	KindKey            = "key"
	KindGamepadArrival = "gamepad_arrival"
	KindGamepadState   = "gamepad_state"
	KindGamepadRemoval = "gamepad_removal"
	KindGamepadMotion  = "gamepad_motion"
)

// Event is a native input event ready for injection.
type Event interface {
	Kind() string
}

// MouseMove is an absolute move in normalized coordinates (0..65535 on each axis).
type MouseMove struct {
	X uint16 `json:"x"`
	Y uint16 `json:"y"`
}

// MouseButton presses or releases a button.
type MouseButton struct {
	Button int  `json:"button"`
	Down   bool `json:"down"`
}

// MouseWheel scrolls by wheel units.
type MouseWheel struct {
	DeltaX int `json:"dx"`
	DeltaY int `json:"dy"`
}

// Modifier bits.
const (
	ModShift uint8 = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// Key presses or releases a host virtual key.
type Key struct {
	VK        uint16 `json:"vk"`
	Down      bool   `json:"down"`
	Modifiers uint8  `json:"modifiers"`
}

// GamepadArrival announces a controller in a slot.
type GamepadArrival struct {
	Slot int    `json:"slot"`
	Type string `json:"type"`
}

// GamepadState is a full controller state report.
type GamepadState struct {
	Slot         int    `json:"slot"`
	Buttons      uint32 `json:"buttons"`
	LeftTrigger  uint8  `json:"lt"`
	RightTrigger uint8  `json:"rt"`
	LeftX        int16  `json:"lx"`
	LeftY        int16  `json:"ly"`
	RightX       int16  `json:"rx"`
	RightY       int16  `json:"ry"`
}

// GamepadRemoval removes the controller in a slot.
type GamepadRemoval struct {
	Slot int `json:"slot"`
}

// GamepadMotion is an accelerometer or gyroscope sample.
type GamepadMotion struct {
	Slot       int     `json:"slot"`
	MotionType int     `json:"motion_type"`
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Z          float32 `json:"z"`
}

func (MouseMove) Kind() string      { return KindMouseMove }
func (MouseButton) Kind() string    { return KindMouseButton }
func (MouseWheel) Kind() string     { return KindMouseWheel }
func (Key) Kind() string            { return KindKey }
func (GamepadArrival) Kind() string { return KindGamepadArrival }
func (GamepadState) Kind() string   { return KindGamepadState }
func (GamepadRemoval) Kind() string { return KindGamepadRemoval }
func (GamepadMotion) Kind() string  { return KindGamepadMotion }
