package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
)

const (
	streamID      = "hivecast"
	videoQueueLen = 16
)

// PionConfig configures the pion engine.
type PionConfig struct {
	ICEServers []ICEServer
	UDPPortMin uint16
	UDPPortMax uint16
}

// PionEngine is an Engine backed by pion/webrtc.
type PionEngine struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	log        *slog.Logger
}

// NewPionEngine builds the media engine, interceptors and settings shared by
// every peer.
func NewPionEngine(cfg PionConfig, loggerFactory logging.LoggerFactory, log *slog.Logger) (*PionEngine, error) {
	if log == nil {
		log = slog.Default()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if loggerFactory != nil {
		se.LoggerFactory = loggerFactory
	}
	if cfg.UDPPortMin > 0 && cfg.UDPPortMax >= cfg.UDPPortMin {
		if err := se.SetEphemeralUDPPortRange(cfg.UDPPortMin, cfg.UDPPortMax); err != nil {
			return nil, fmt.Errorf("invalid udp port range: %w", err)
		}
	}

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return &PionEngine{
		api:        webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir), webrtc.WithSettingEngine(se)),
		iceServers: iceServers,
		log:        log.With("component", "engine"),
	}, nil
}

// NewPeer creates a peer connection reporting to obs.
func (e *PionEngine) NewPeer(obs Observer) (Peer, error) {
	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.iceServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	p := &pionPeer{
		pc:     pc,
		obs:    obs,
		log:    e.log,
		jobs:   make(chan videoJob, videoQueueLen),
		closed: make(chan struct{}),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		cand := ICECandidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			cand.Mid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			cand.MLineIndex = int(*init.SDPMLineIndex)
		}
		obs.OnICECandidate(cand)
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		obs.OnDataChannel(&pionDataChannel{dc: dc})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		obs.OnConnectionStateChange(state.String())
	})

	go p.sendLoop()
	return p, nil
}

type videoJob struct {
	sample VideoSample
	done   func(error)
}

type pionPeer struct {
	pc  *webrtc.PeerConnection
	obs Observer
	log *slog.Logger

	mu    sync.RWMutex
	video *webrtc.TrackLocalStaticSample
	audio *webrtc.TrackLocalStaticSample

	jobs      chan videoJob
	closed    chan struct{}
	closeOnce sync.Once
}

func videoMimeType(codec string) (string, error) {
	switch strings.ToLower(codec) {
	case "h264", "":
		return webrtc.MimeTypeH264, nil
	case "vp8":
		return webrtc.MimeTypeVP8, nil
	case "vp9":
		return webrtc.MimeTypeVP9, nil
	case "av1":
		return webrtc.MimeTypeAV1, nil
	}
	return "", fmt.Errorf("unsupported video codec %q", codec)
}

func (p *pionPeer) AddVideoTrack(codec string) error {
	mime, err := videoMimeType(codec)
	if err != nil {
		return err
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "video", streamID)
	if err != nil {
		return fmt.Errorf("failed to create video track: %w", err)
	}
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("failed to add video track: %w", err)
	}
	go p.readRTCP(sender, true)

	p.mu.Lock()
	p.video = track
	p.mu.Unlock()
	return nil
}

func (p *pionPeer) AddAudioTrack(channels int) error {
	if channels <= 0 {
		channels = 2
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  uint16(channels),
	}, "audio", streamID)
	if err != nil {
		return fmt.Errorf("failed to create audio track: %w", err)
	}
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("failed to add audio track: %w", err)
	}
	go p.readRTCP(sender, false)

	p.mu.Lock()
	p.audio = track
	p.mu.Unlock()
	return nil
}

// readRTCP drains the sender's RTCP so interceptors keep working and turns
// PLI and FIR into keyframe requests.
func (p *pionPeer) readRTCP(sender *webrtc.RTPSender, video bool) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		if !video {
			continue
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				p.log.Debug("Remote requested keyframe", "rtcp", fmt.Sprintf("%T", pkt))
				p.obs.OnKeyframeRequest()
			}
		}
	}
}

func (p *pionPeer) SetRemoteDescription(desc SessionDescription) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (p *pionPeer) CreateAnswer() (SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (p *pionPeer) SetLocalDescription(desc SessionDescription) error {
	return p.pc.SetLocalDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (p *pionPeer) AddICECandidate(c ICECandidate) error {
	mid := c.Mid
	idx := uint16(c.MLineIndex)
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})
}

func (p *pionPeer) WriteVideo(sample VideoSample, done func(error)) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	select {
	case p.jobs <- videoJob{sample: sample, done: done}:
		return nil
	default:
		return ErrBusy
	}
}

func (p *pionPeer) sendLoop() {
	for {
		select {
		case job := <-p.jobs:
			job.done(p.writeVideo(job.sample))
		case <-p.closed:
			for {
				select {
				case job := <-p.jobs:
					job.done(ErrClosed)
				default:
					return
				}
			}
		}
	}
}

func (p *pionPeer) writeVideo(s VideoSample) error {
	p.mu.RLock()
	track := p.video
	p.mu.RUnlock()
	if track == nil {
		return ErrNoTrack
	}
	return track.WriteSample(pionmedia.Sample{Data: s.Data, Duration: s.Duration})
}

func (p *pionPeer) WriteAudio(s AudioSample) error {
	if !s.Encoded {
		return ErrPCMUnsupported
	}
	p.mu.RLock()
	track := p.audio
	p.mu.RUnlock()
	if track == nil {
		return ErrNoTrack
	}
	return track.WriteSample(pionmedia.Sample{Data: s.Data, Duration: s.Duration})
}

func (p *pionPeer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.pc.Close()
	})
	return err
}

type pionDataChannel struct {
	dc *webrtc.DataChannel
}

func (d *pionDataChannel) Label() string              { return d.dc.Label() }
func (d *pionDataChannel) Send(data []byte) error     { return d.dc.Send(data) }
func (d *pionDataChannel) SendText(text string) error { return d.dc.SendText(text) }
func (d *pionDataChannel) OnOpen(fn func())           { d.dc.OnOpen(fn) }
func (d *pionDataChannel) OnClose(fn func())          { d.dc.OnClose(fn) }
func (d *pionDataChannel) Close() error               { return d.dc.Close() }

func (d *pionDataChannel) IsOpen() bool {
	return d.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (d *pionDataChannel) OnMessage(fn func(data []byte, isString bool)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data, msg.IsString)
	})
}
