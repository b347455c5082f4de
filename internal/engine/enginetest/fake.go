// Package enginetest provides an in-memory engine.Engine for tests.
package enginetest

import (
	"errors"
	"sync"

	"github.com/Harshitk-cp/hivecast/internal/engine"
)

// Stage names for injected failures.
const (
	StageNewPeer      = "new_peer"
	StageVideoTrack   = "video_track"
	StageAudioTrack   = "audio_track"
	StageSetRemote    = "set_remote"
	StageCreateAnswer = "create_answer"
	StageSetLocal     = "set_local"
)

// ErrInjected is returned by stages configured to fail.
var ErrInjected = errors.New("injected failure")

// Write kinds recorded in the engine log.
const (
	KindVideo = "video"
	KindAudio = "audio"
)

// Write is one sample accepted by a peer, in engine-wide order.
type Write struct {
	Peer *Peer
	Kind string
}

// Engine records every peer it creates.
type Engine struct {
	mu     sync.Mutex
	fail   map[string]bool
	peers  []*Peer
	writes []Write

	// ManualAck keeps video writes in flight until Ack is called on the peer.
	ManualAck bool
}

// New creates a fake engine.
func New() *Engine {
	return &Engine{fail: make(map[string]bool)}
}

// Fail makes the given stage fail for subsequently created peers.
func (e *Engine) Fail(stage string, fail bool) {
	e.mu.Lock()
	e.fail[stage] = fail
	e.mu.Unlock()
}

func (e *Engine) failing(stage string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fail[stage]
}

func (e *Engine) record(p *Peer, kind string) {
	e.mu.Lock()
	e.writes = append(e.writes, Write{Peer: p, Kind: kind})
	e.mu.Unlock()
}

// Writes returns every accepted sample across all peers in write order.
func (e *Engine) Writes() []Write {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Write(nil), e.writes...)
}

// Peers returns the peers created so far.
func (e *Engine) Peers() []*Peer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Peer(nil), e.peers...)
}

// LastPeer returns the most recently created peer or nil.
func (e *Engine) LastPeer() *Peer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.peers) == 0 {
		return nil
	}
	return e.peers[len(e.peers)-1]
}

// NewPeer implements engine.Engine.
func (e *Engine) NewPeer(obs engine.Observer) (engine.Peer, error) {
	if e.failing(StageNewPeer) {
		return nil, ErrInjected
	}
	p := &Peer{engine: e, Observer: obs, manualAck: e.ManualAck}
	e.mu.Lock()
	e.peers = append(e.peers, p)
	e.mu.Unlock()
	return p, nil
}

// Peer is a fake peer.
type Peer struct {
	engine    *Engine
	Observer  engine.Observer
	manualAck bool

	mu          sync.Mutex
	videoCodec  string
	audio       bool
	remote      *engine.SessionDescription
	local       *engine.SessionDescription
	candidates  []engine.ICECandidate
	video       []engine.VideoSample
	audioFrames []engine.AudioSample
	pending     []func(error)
	closed      bool
}

func (p *Peer) AddVideoTrack(codec string) error {
	if p.engine.failing(StageVideoTrack) {
		return ErrInjected
	}
	p.mu.Lock()
	p.videoCodec = codec
	p.mu.Unlock()
	return nil
}

func (p *Peer) AddAudioTrack(int) error {
	if p.engine.failing(StageAudioTrack) {
		return ErrInjected
	}
	p.mu.Lock()
	p.audio = true
	p.mu.Unlock()
	return nil
}

func (p *Peer) SetRemoteDescription(desc engine.SessionDescription) error {
	if p.engine.failing(StageSetRemote) {
		return ErrInjected
	}
	p.mu.Lock()
	p.remote = &desc
	p.mu.Unlock()
	return nil
}

func (p *Peer) CreateAnswer() (engine.SessionDescription, error) {
	if p.engine.failing(StageCreateAnswer) {
		return engine.SessionDescription{}, ErrInjected
	}
	return engine.SessionDescription{Type: "answer", SDP: "v=0\r\ns=fake-answer\r\n"}, nil
}

func (p *Peer) SetLocalDescription(desc engine.SessionDescription) error {
	if p.engine.failing(StageSetLocal) {
		return ErrInjected
	}
	p.mu.Lock()
	p.local = &desc
	p.mu.Unlock()
	return nil
}

func (p *Peer) AddICECandidate(c engine.ICECandidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return engine.ErrClosed
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *Peer) WriteVideo(s engine.VideoSample, done func(error)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return engine.ErrClosed
	}
	if p.videoCodec == "" {
		p.mu.Unlock()
		return engine.ErrNoTrack
	}
	p.video = append(p.video, s)
	p.engine.record(p, KindVideo)
	if p.manualAck {
		p.pending = append(p.pending, done)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	done(nil)
	return nil
}

func (p *Peer) WriteAudio(s engine.AudioSample) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return engine.ErrClosed
	}
	if !p.audio {
		return engine.ErrNoTrack
	}
	p.audioFrames = append(p.audioFrames, s)
	p.engine.record(p, KindAudio)
	return nil
}

func (p *Peer) Close() error {
	p.mu.Lock()
	p.closed = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, done := range pending {
		done(engine.ErrClosed)
	}
	return nil
}

// Ack completes every pending video write.
func (p *Peer) Ack() int {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, done := range pending {
		done(nil)
	}
	return len(pending)
}

// Video returns the video samples written so far.
func (p *Peer) Video() []engine.VideoSample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.VideoSample(nil), p.video...)
}

// Audio returns the audio samples written so far.
func (p *Peer) Audio() []engine.AudioSample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.AudioSample(nil), p.audioFrames...)
}

// Remote returns the applied remote description.
func (p *Peer) Remote() *engine.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

// Local returns the applied local description.
func (p *Peer) Local() *engine.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

// RemoteCandidates returns the candidates added to the peer.
func (p *Peer) RemoteCandidates() []engine.ICECandidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.ICECandidate(nil), p.candidates...)
}

// Closed reports whether Close was called.
func (p *Peer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// HasVideoTrack reports whether a video track was attached.
func (p *Peer) HasVideoTrack() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.videoCodec != ""
}

// DataChannel is a fake data channel.
type DataChannel struct {
	label string

	mu      sync.Mutex
	open    bool
	closed  bool
	sent    []string
	onMsg   func([]byte, bool)
	onOpen  func()
	onClose func()
}

// NewDataChannel creates a closed channel with label.
func NewDataChannel(label string) *DataChannel {
	return &DataChannel{label: label}
}

func (d *DataChannel) Label() string { return d.label }

func (d *DataChannel) Send(data []byte) error { return d.SendText(string(data)) }

func (d *DataChannel) SendText(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return engine.ErrClosed
	}
	d.sent = append(d.sent, text)
	return nil
}

func (d *DataChannel) OnMessage(fn func([]byte, bool)) {
	d.mu.Lock()
	d.onMsg = fn
	d.mu.Unlock()
}

func (d *DataChannel) OnOpen(fn func()) {
	d.mu.Lock()
	d.onOpen = fn
	d.mu.Unlock()
}

func (d *DataChannel) OnClose(fn func()) {
	d.mu.Lock()
	d.onClose = fn
	d.mu.Unlock()
}

func (d *DataChannel) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *DataChannel) Close() error {
	d.mu.Lock()
	wasOpen := d.open
	d.open = false
	d.closed = true
	fn := d.onClose
	d.mu.Unlock()

	if wasOpen && fn != nil {
		fn()
	}
	return nil
}

// Open marks the channel open and fires the open handler.
func (d *DataChannel) Open() {
	d.mu.Lock()
	d.open = true
	fn := d.onOpen
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Deliver simulates a message from the remote end.
func (d *DataChannel) Deliver(data []byte, isString bool) {
	d.mu.Lock()
	fn := d.onMsg
	d.mu.Unlock()

	if fn != nil {
		fn(data, isString)
	}
}

// Sent returns the messages sent over the channel.
func (d *DataChannel) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

// Closed reports whether Close was called.
func (d *DataChannel) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
