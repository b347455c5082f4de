package input

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Binary message types.
const (
	MsgMouseMove byte = 0x01
)

// MouseMoveSize is the wire size of a binary mouse-move message:
// type (1) | sequence (2) | x (2) | y (2), little-endian.
const MouseMoveSize = 7

// DefaultMouseIdle is the gap after which any sequence number is accepted.
const DefaultMouseIdle = time.Second

var (
	ErrShortMessage   = errors.New("message too short")
	ErrUnknownMessage = errors.New("unknown message type")
)

// DecodeMouseMove parses a binary mouse-move message.
func DecodeMouseMove(b []byte) (seq uint16, ev MouseMove, err error) {
	if len(b) < MouseMoveSize {
		return 0, ev, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(b))
	}
	if b[0] != MsgMouseMove {
		return 0, ev, fmt.Errorf("%w: 0x%02x", ErrUnknownMessage, b[0])
	}
	seq = binary.LittleEndian.Uint16(b[1:3])
	ev.X = binary.LittleEndian.Uint16(b[3:5])
	ev.Y = binary.LittleEndian.Uint16(b[5:7])
	return seq, ev, nil
}

// EncodeMouseMove builds a binary mouse-move message.
func EncodeMouseMove(seq uint16, ev MouseMove) []byte {
	b := make([]byte, MouseMoveSize)
	b[0] = MsgMouseMove
	binary.LittleEndian.PutUint16(b[1:3], seq)
	binary.LittleEndian.PutUint16(b[3:5], ev.X)
	binary.LittleEndian.PutUint16(b[5:7], ev.Y)
	return b
}

// SeqGate drops stale moves on an unordered channel. A sequence number is
// accepted when it is newer than the last accepted one under 16-bit
// wraparound, or when the channel has been idle longer than the threshold.
type SeqGate struct {
	idle   time.Duration
	has    bool
	last   uint16
	lastAt time.Time
}

// NewSeqGate creates a gate with the given idle threshold.
func NewSeqGate(idle time.Duration) *SeqGate {
	if idle <= 0 {
		idle = DefaultMouseIdle
	}
	return &SeqGate{idle: idle}
}

// Accept reports whether seq should be applied and records it if so.
func (g *SeqGate) Accept(seq uint16, now time.Time) bool {
	if g.has && int16(seq-g.last) <= 0 && now.Sub(g.lastAt) <= g.idle {
		return false
	}
	g.has = true
	g.last = seq
	g.lastAt = now
	return true
}
