package service

import (
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/hivecast/internal/capture"
	"github.com/Harshitk-cp/hivecast/internal/engine"
	"github.com/Harshitk-cp/hivecast/internal/framequeue"
	"github.com/Harshitk-cp/hivecast/internal/input"
	"github.com/Harshitk-cp/hivecast/internal/media"
	"github.com/Harshitk-cp/hivecast/internal/model"
	"github.com/Harshitk-cp/hivecast/internal/pacing"
)

// session is one logical peer connection. Every field except inFlight is
// guarded by Service.mu.
type session struct {
	id        string
	createdAt time.Time

	audio   bool
	video   bool
	encoded bool

	capture     capture.Config
	audioCodec  string
	audioMaxAge time.Duration

	signaling model.SignalingState
	peerState string
	lastError string

	// offerGen identifies the current offer attempt. Callbacks from an
	// abandoned attempt carry an older generation and are ignored.
	offerGen      uint64
	peer          engine.Peer
	hasVideo      bool
	hasAudio      bool
	remoteApplied bool
	answer        *engine.SessionDescription
	answerReady   chan struct{}
	answerDone    bool

	remoteCandidates []engine.ICECandidate
	pendingRemote    []engine.ICECandidate
	localCandidates  []localCandidate
	candidatesCh     chan struct{}

	channel engine.DataChannel
	input   *input.Channel

	videoQueue *pacing.Queue
	audioQueue *framequeue.Queue[media.AudioFrame]
	rawQueue   *framequeue.Queue[media.RawVideoFrame]
	pacer      *pacing.Pacer
	stats      model.SessionStats

	// lastCapture is the capture time of the last video frame handed to the
	// engine, the reference for the next sample's duration.
	lastCapture    time.Duration
	hasLastCapture bool

	// inFlight counts video samples handed to the engine and not yet written.
	inFlight atomic.Int64

	done   chan struct{}
	closed bool
}

func newSession(id string, now time.Time, opts sessionOptions) *session {
	return &session{
		id:           id,
		createdAt:    now,
		audio:        opts.audio,
		video:        opts.video,
		encoded:      opts.encoded,
		capture:      opts.capture,
		audioCodec:   "opus",
		audioMaxAge:  opts.audioMaxAge,
		signaling:    model.SignalingCreated,
		answerReady:  make(chan struct{}),
		candidatesCh: make(chan struct{}),
		videoQueue:   pacing.NewQueue(opts.videoCapacity),
		audioQueue:   framequeue.New[media.AudioFrame](opts.audioCapacity, nil),
		rawQueue:     framequeue.New[media.RawVideoFrame](media.RawVideoQueueCapacity, nil),
		pacer:        pacing.New(opts.pacing),
		done:         make(chan struct{}),
	}
}

// sessionOptions are the resolved creation options.
type sessionOptions struct {
	audio         bool
	video         bool
	encoded       bool
	capture       capture.Config
	pacing        pacing.Config
	audioMaxAge   time.Duration
	videoCapacity int
	audioCapacity int
}

// localCandidate is a gathered candidate and the offer attempt that produced
// it. Candidates of abandoned attempts keep their index but are not served.
type localCandidate struct {
	model.Candidate
	gen uint64
}

func (s *session) currentCandidates() int {
	n := 0
	for _, c := range s.localCandidates {
		if c.gen == s.offerGen {
			n++
		}
	}
	return n
}

// sampleDuration returns how far the RTP clock advances for f: the capture
// time elapsed since the last sent frame, so frames dropped in between keep
// their share of the timeline. nominal is used without usable capture times.
func (s *session) sampleDuration(f pacing.Frame, nominal time.Duration) time.Duration {
	if !f.HasCaptureTime || !s.hasLastCapture {
		return nominal
	}
	gap := f.CaptureTime - s.lastCapture
	if gap <= 0 || gap > maxSampleGap {
		return nominal
	}
	return gap
}

// live reports whether the session still takes frames.
func (s *session) live() bool {
	return !s.closed && s.peer != nil
}

// finishAnswer wakes answer waiters for the current attempt.
func (s *session) finishAnswer() {
	if !s.answerDone {
		s.answerDone = true
		close(s.answerReady)
	}
}

// notifyCandidates wakes candidate watchers.
func (s *session) notifyCandidates() {
	close(s.candidatesCh)
	s.candidatesCh = make(chan struct{})
}

func (s *session) snapshot() model.SessionState {
	cfg := s.pacer.Config()
	pstats := s.pacer.Stats()

	stats := s.stats
	stats.VideoQueueDepth = s.videoQueue.Len()
	stats.AudioQueueDepth = s.audioQueue.Len()
	stats.RawQueueDepth = s.rawQueue.Len()
	stats.InFlight = s.inFlight.Load()

	return model.SessionState{
		ID:        s.id,
		CreatedAt: s.createdAt,
		Signaling: s.signaling,
		PeerState: s.peerState,
		Audio:     s.audio,
		Video:     s.video,
		Encoded:   s.encoded,
		Media: model.MediaParams{
			App:            s.capture.App,
			Width:          s.capture.Width,
			Height:         s.capture.Height,
			FPS:            s.capture.FPS,
			Bitrate:        s.capture.Bitrate,
			Codec:          s.capture.Codec,
			HDR:            s.capture.HDR,
			ChromaSampling: s.capture.ChromaSampling,
			AudioChannels:  s.capture.AudioChannels,
			AudioCodec:     s.audioCodec,
			HostAudio:      s.capture.HostAudio,
		},
		Pacing: model.PacingState{
			Mode:               string(cfg.Mode),
			Slack:              cfg.Slack,
			MaxFrameAge:        cfg.MaxFrameAge,
			MaxAgeFrames:       cfg.MaxAgeFrames,
			AudioMaxAge:        s.audioMaxAge,
			WaitingForKeyframe: pstats.WaitingForKeyframe,
			DriftResets:        pstats.DriftResets,
			KeyframeRequests:   pstats.KeyframeRequests,
			InFlightOverflows:  pstats.InFlightOverflows,
		},
		Stats:            stats,
		InputChannelOpen: s.channel != nil && s.channel.IsOpen(),
		LocalCandidates:  s.currentCandidates(),
		LastError:        s.lastError,
	}
}
