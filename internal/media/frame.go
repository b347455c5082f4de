// Package media defines the frame types that flow from the capture pipeline
// through the per-session queues into the media engine.
package media

import "time"

// RawVideoQueueCapacity bounds the per-session queue of uncompressed frames.
const RawVideoQueueCapacity = 2

// Payload is an immutable byte buffer shared by every session that consumes
// the same produced frame. Holders must not modify the bytes returned by Bytes.
type Payload struct {
	b []byte
}

// NewPayload wraps b without copying. The caller gives up ownership of b.
func NewPayload(b []byte) *Payload {
	return &Payload{b: b}
}

// Bytes returns the underlying buffer.
func (p *Payload) Bytes() []byte {
	if p == nil {
		return nil
	}
	return p.b
}

// Len returns the payload size in bytes.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.b)
}

// VideoPacket is one encoded video access unit produced by the encoder.
type VideoPacket struct {
	Payload    *Payload
	FrameIndex uint64
	Keyframe   bool

	// CaptureTime is the capture clock position of the frame. It is only
	// meaningful when HasCaptureTime is set.
	CaptureTime    time.Duration
	HasCaptureTime bool
}

// AudioFrame is one buffer of audio handed over by the capture pipeline.
// Data holds Opus packets when Encoded is set, interleaved S16LE samples otherwise.
type AudioFrame struct {
	Data       *Payload
	SampleRate int
	Channels   int
	FrameCount int
	Encoded    bool
}

// Duration returns the playback duration covered by the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.FrameCount) * time.Second / time.Duration(f.SampleRate)
}

// RawVideoFrame is an unencoded image. The raw path is buffered per session
// but no track consumes it.
type RawVideoFrame struct {
	Data   *Payload
	Width  int
	Height int
	Stride int
	Format string
}
