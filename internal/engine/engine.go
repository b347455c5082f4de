// Package engine abstracts the WebRTC media engine behind the operations the
// session layer needs: peers with encoded-frame video and audio tracks, an
// input data channel, SDP exchange and ICE.
package engine

import (
	"errors"
	"time"
)

// Errors returned by engine implementations.
var (
	ErrClosed         = errors.New("peer closed")
	ErrBusy           = errors.New("send queue full")
	ErrNoTrack        = errors.New("track not attached")
	ErrInvalidSDP     = errors.New("invalid session description")
	ErrPCMUnsupported = errors.New("pcm audio requires an encoder")
)

// SessionDescription is an SDP blob with its type (offer, answer, pranswer).
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is a trickled ICE candidate.
type ICECandidate struct {
	Mid        string `json:"sdpMid"`
	MLineIndex int    `json:"sdpMLineIndex"`
	Candidate  string `json:"candidate"`
}

// ICEServer is a STUN or TURN server.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// VideoSample is one encoded access unit ready for packetization.
type VideoSample struct {
	Data     []byte
	Duration time.Duration
	Keyframe bool
}

// AudioSample is one audio buffer.
type AudioSample struct {
	Data     []byte
	Duration time.Duration
	Encoded  bool
}

// DataChannel is a negotiated data channel.
type DataChannel interface {
	Label() string
	Send(data []byte) error
	SendText(text string) error
	OnMessage(fn func(data []byte, isString bool))
	OnOpen(fn func())
	OnClose(fn func())
	IsOpen() bool
	Close() error
}

// Observer receives asynchronous peer events. Callbacks run on engine
// goroutines and must not block.
type Observer interface {
	OnICECandidate(c ICECandidate)
	OnDataChannel(dc DataChannel)
	OnKeyframeRequest()
	OnConnectionStateChange(state string)
}

// Peer is a single peer connection.
type Peer interface {
	AddVideoTrack(codec string) error
	AddAudioTrack(channels int) error

	SetRemoteDescription(desc SessionDescription) error
	CreateAnswer() (SessionDescription, error)
	SetLocalDescription(desc SessionDescription) error
	AddICECandidate(c ICECandidate) error

	// WriteVideo hands a sample to the peer's sender without blocking. done
	// is called exactly once when the sample has been written, unless
	// WriteVideo returns an error.
	WriteVideo(sample VideoSample, done func(error)) error
	WriteAudio(sample AudioSample) error

	Close() error
}

// Engine creates peers.
type Engine interface {
	NewPeer(obs Observer) (Peer, error)
}
