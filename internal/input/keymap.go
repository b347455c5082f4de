package input

import "strconv"

// keyCodes maps DOM KeyboardEvent.code values to Windows virtual-key codes.
var keyCodes = map[string]uint16{
	"Backspace":   0x08,
	"Tab":         0x09,
	"Enter":       0x0D,
	"Pause":       0x13,
	"CapsLock":    0x14,
	"Escape":      0x1B,
	"Space":       0x20,
	"PageUp":      0x21,
	"PageDown":    0x22,
	"End":         0x23,
	"Home":        0x24,
	"ArrowLeft":   0x25,
	"ArrowUp":     0x26,
	"ArrowRight":  0x27,
	"ArrowDown":   0x28,
	"PrintScreen": 0x2C,
	"Insert":      0x2D,
	"Delete":      0x2E,
	"MetaLeft":    0x5B,
	"MetaRight":   0x5C,
	"ContextMenu": 0x5D,

	"NumpadMultiply": 0x6A,
	"NumpadAdd":      0x6B,
	"NumpadSubtract": 0x6D,
	"NumpadDecimal":  0x6E,
	"NumpadDivide":   0x6F,
	"NumpadEnter":    0x0D,
	"NumLock":        0x90,
	"ScrollLock":     0x91,

	"ShiftLeft":    0xA0,
	"ShiftRight":   0xA1,
	"ControlLeft":  0xA2,
	"ControlRight": 0xA3,
	"AltLeft":      0xA4,
	"AltRight":     0xA5,

	"Semicolon":    0xBA,
	"Equal":        0xBB,
	"Comma":        0xBC,
	"Minus":        0xBD,
	"Period":       0xBE,
	"Slash":        0xBF,
	"Backquote":    0xC0,
	"BracketLeft":  0xDB,
	"Backslash":    0xDC,
	"BracketRight": 0xDD,
	"Quote":        0xDE,

	"IntlBackslash": 0xE2,
}

func init() {
	for c := 'A'; c <= 'Z'; c++ {
		keyCodes["Key"+string(c)] = uint16(c)
	}
	for d := 0; d <= 9; d++ {
		keyCodes["Digit"+string(rune('0'+d))] = uint16(0x30 + d)
		keyCodes["Numpad"+string(rune('0'+d))] = uint16(0x60 + d)
	}
	for f := 1; f <= 24; f++ {
		keyCodes["F"+strconv.Itoa(f)] = uint16(0x6F + f)
	}
}

// VirtualKey returns the host virtual-key code for a DOM key code.
func VirtualKey(code string) (uint16, bool) {
	vk, ok := keyCodes[code]
	return vk, ok
}
