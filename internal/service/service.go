// Package service owns the session table: session lifecycle, the offer and
// answer exchange, the per-session frame queues fed by the capture pipeline,
// and the media worker that paces frames into the media engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/hivecast/internal/capture"
	"github.com/Harshitk-cp/hivecast/internal/config"
	"github.com/Harshitk-cp/hivecast/internal/engine"
	"github.com/Harshitk-cp/hivecast/internal/input"
	"github.com/Harshitk-cp/hivecast/internal/metrics"
	"github.com/Harshitk-cp/hivecast/internal/model"
	"github.com/Harshitk-cp/hivecast/internal/pacing"
	"github.com/Harshitk-cp/hivecast/internal/util"
)

// Errors returned by the service.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidOptions    = errors.New("invalid session options")
	ErrInvalidOffer      = errors.New("invalid offer")
	ErrAlreadyNegotiated = errors.New("session already has a peer")
	ErrNoPeer            = errors.New("session has no peer")
	ErrNegotiationFailed = errors.New("negotiation failed")
	ErrAnswerTimeout     = errors.New("timed out waiting for answer")
)

// Default media parameters for options a client leaves out.
const (
	DefaultWidth         = 1920
	DefaultHeight        = 1080
	DefaultFPS           = 60
	DefaultBitrate       = 10_000_000
	DefaultCodec         = capture.CodecH264
	DefaultChroma        = "420"
	DefaultAudioChannels = 2
)

// Service is the session table and media worker.
type Service struct {
	cfg      *config.Config
	engine   engine.Engine
	capture  *capture.Manager
	injector input.Injector
	metrics  metrics.Collector
	log      *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	sessions map[string]*session
	stopping bool

	running atomic.Bool
	now     func() time.Time
}

// New creates the service. factory builds capture pipelines; legacy is the
// gate shared with the legacy streaming subsystem and may be nil.
func New(cfg *config.Config, eng engine.Engine, factory capture.Factory, legacy *capture.LegacyGate, injector input.Injector, collector metrics.Collector, log *slog.Logger) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	if injector == nil {
		injector = input.LogInjector{Log: log}
	}
	s := &Service{
		cfg:      cfg,
		engine:   eng,
		injector: injector,
		metrics:  collector,
		log:      log.With("component", "service"),
		sessions: make(map[string]*session),
		now:      time.Now,
	}
	s.cond = sync.NewCond(&s.mu)
	s.capture = capture.NewManager(
		capture.ManagerConfig{IdleGrace: cfg.Capture.IdleGrace},
		factory, legacy, s, s.Count, collector, log,
	)
	return s
}

// Capture returns the capture lifecycle manager.
func (s *Service) Capture() *capture.Manager { return s.capture }

// Count returns the number of sessions.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Create creates a session from req.
func (s *Service) Create(req model.CreateSessionRequest) (model.SessionState, error) {
	if err := util.Validate(req); err != nil {
		return model.SessionState{}, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	opts, err := s.resolveOptions(req)
	if err != nil {
		return model.SessionState{}, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	id := util.NewSessionID()
	sess := newSession(id, s.now(), opts)

	s.mu.Lock()
	s.sessions[id] = sess
	state := sess.snapshot()
	s.mu.Unlock()

	s.metrics.SessionCreated()
	s.log.Info("Session created", "session", id, "app", opts.capture.App, "mode", opts.pacing.Mode)
	return state, nil
}

func (s *Service) resolveOptions(req model.CreateSessionRequest) (sessionOptions, error) {
	defaults := s.cfg.Session

	modeName := req.PacingMode
	if modeName == "" {
		modeName = defaults.PacingMode
	}
	mode, err := pacing.ParseMode(modeName)
	if err != nil {
		return sessionOptions{}, err
	}

	c := capture.Config{
		App:            req.App,
		Width:          orDefault(req.Width, DefaultWidth),
		Height:         orDefault(req.Height, DefaultHeight),
		FPS:            orDefault(req.FPS, DefaultFPS),
		Bitrate:        orDefault(req.Bitrate, DefaultBitrate),
		Codec:          req.Codec,
		HDR:            req.HDR,
		ChromaSampling: req.ChromaSampling,
		AudioChannels:  orDefault(req.AudioChannels, DefaultAudioChannels),
		HostAudio:      req.HostAudio,
	}
	if c.Codec == "" {
		c.Codec = DefaultCodec
	}
	if c.ChromaSampling == "" {
		c.ChromaSampling = DefaultChroma
	}

	pc := pacing.DefaultConfig(mode, c.FPS)
	switch mode {
	case pacing.ModeLatency:
		pc.Slack, pc.MaxAgeFrames = defaults.LatencySlack, defaults.LatencyMaxAgeFrames
	case pacing.ModeBalanced:
		pc.Slack, pc.MaxAgeFrames = defaults.BalancedSlack, defaults.BalancedMaxAgeFrames
	case pacing.ModeSmoothness:
		pc.Slack, pc.MaxAgeFrames = defaults.SmoothnessSlack, defaults.SmoothnessMaxAgeFrames
	}
	pc.MaxFrameAge = defaults.MaxFrameAge
	pc.KeyframeRequestInterval = defaults.KeyframeRequestInterval
	pc.ResyncInterval = defaults.ResyncInterval
	if req.SlackMs > 0 {
		pc.Slack = time.Duration(req.SlackMs) * time.Millisecond
	}
	if req.MaxAgeFrames > 0 {
		pc.MaxAgeFrames = req.MaxAgeFrames
	}
	if req.MaxFrameAgeMs > 0 {
		pc.MaxFrameAge = time.Duration(req.MaxFrameAgeMs) * time.Millisecond
	}

	audioMaxAge := defaults.AudioMaxAge
	if req.AudioMaxAgeMs > 0 {
		audioMaxAge = time.Duration(req.AudioMaxAgeMs) * time.Millisecond
	}

	return sessionOptions{
		audio:         boolOr(req.Audio, true),
		video:         boolOr(req.Video, true),
		encoded:       boolOr(req.Encoded, true),
		capture:       c,
		pacing:        pc,
		audioMaxAge:   audioMaxAge,
		videoCapacity: defaults.VideoQueueCapacity,
		audioCapacity: defaults.AudioQueueCapacity,
	}, nil
}

// Get returns a snapshot of one session.
func (s *Service) Get(id string) (model.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return model.SessionState{}, ErrSessionNotFound
	}
	return sess.snapshot(), nil
}

// List returns snapshots of every session ordered by creation time.
func (s *Service) List() []model.SessionState {
	s.mu.Lock()
	out := make([]model.SessionState, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.snapshot())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close destroys a session. It reports false for an unknown id. Engine
// resources are released asynchronously.
func (s *Service) Close(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.sessions, id)
	peer, dc, ic := s.detachLocked(sess)
	sess.closed = true
	close(sess.done)
	remaining := len(s.sessions)
	s.cond.Broadcast()
	s.mu.Unlock()

	s.release(sess.id, peer, dc, ic)
	s.metrics.SessionClosed()
	s.log.Info("Session closed", "session", id, "remaining", remaining)

	if remaining == 0 {
		s.capture.ScheduleIdleStop()
	}
	return true
}

// detachLocked moves the engine handles out of sess and clears its queues.
func (s *Service) detachLocked(sess *session) (engine.Peer, engine.DataChannel, *input.Channel) {
	peer, dc, ic := sess.peer, sess.channel, sess.input
	sess.peer = nil
	sess.channel = nil
	sess.input = nil
	sess.hasVideo = false
	sess.hasAudio = false
	sess.remoteApplied = false
	sess.pendingRemote = nil
	sess.videoQueue.Clear()
	sess.audioQueue.Clear()
	sess.rawQueue.Clear()
	return peer, dc, ic
}

// release frees engine handles outside the table lock.
func (s *Service) release(id string, peer engine.Peer, dc engine.DataChannel, ic *input.Channel) {
	if ic != nil {
		ic.Close()
	}
	if dc != nil {
		if err := dc.Close(); err != nil {
			s.log.Debug("Failed to close data channel", "session", id, "error", err)
		}
	}
	if peer != nil {
		go func() {
			if err := peer.Close(); err != nil {
				s.log.Warn("Failed to close peer", "session", id, "error", err)
			}
		}()
	}
}

// EnsureCapture starts capture with the session's parameters, or reuses the
// running pipeline when its key matches.
func (s *Service) EnsureCapture(ctx context.Context, id string) (capture.Key, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return capture.Key{}, ErrSessionNotFound
	}
	cfg := sess.capture
	s.mu.Unlock()

	if err := s.capture.Ensure(ctx, cfg); err != nil {
		s.log.Warn("Capture not started", "session", id, "reason", capture.Reason(err), "error", err)
		return capture.Key{}, err
	}
	return cfg.Key(), nil
}

// SetLegacy marks a legacy streaming session for app as active.
func (s *Service) SetLegacy(app string) {
	s.capture.Legacy().Set(app)
	s.log.Info("Legacy session active", "app", app)
}

// ClearLegacy clears the legacy session flag. Capture stops when no session
// needs it anymore.
func (s *Service) ClearLegacy() {
	s.capture.Legacy().Clear()
	s.log.Info("Legacy session cleared")
	if s.Count() == 0 {
		s.capture.ScheduleIdleStop()
	}
}

// Shutdown closes every session and stops capture.
func (s *Service) Shutdown() error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Close(id)
	}
	return s.capture.Close()
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
