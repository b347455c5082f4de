package service

import (
	"github.com/Harshitk-cp/hivecast/internal/engine"
	"github.com/Harshitk-cp/hivecast/internal/input"
	"github.com/Harshitk-cp/hivecast/internal/model"
	"github.com/Harshitk-cp/hivecast/internal/pacing"
)

// observer receives engine callbacks for one offer attempt of a session.
type observer struct {
	svc *Service
	id  string
	gen uint64
}

// lookupLocked returns the session if this attempt is still current.
func (o *observer) lookupLocked() *session {
	sess, ok := o.svc.sessions[o.id]
	if !ok || sess.offerGen != o.gen || sess.closed {
		return nil
	}
	return sess
}

func (o *observer) OnICECandidate(c engine.ICECandidate) {
	s := o.svc
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := o.lookupLocked()
	if sess == nil {
		return
	}
	sess.localCandidates = append(sess.localCandidates, localCandidate{
		Candidate: model.Candidate{
			Index:         uint64(len(sess.localCandidates)) + 1,
			SDPMid:        c.Mid,
			SDPMLineIndex: c.MLineIndex,
			Candidate:     c.Candidate,
		},
		gen: o.gen,
	})
	sess.notifyCandidates()
}

func (o *observer) OnDataChannel(dc engine.DataChannel) {
	s := o.svc
	label := dc.Label()
	if label != s.cfg.Input.Label {
		s.log.Warn("Rejected data channel", "session", o.id, "label", label)
		if err := dc.Close(); err != nil {
			s.log.Debug("Failed to close rejected data channel", "session", o.id, "error", err)
		}
		return
	}

	ic := input.NewChannel(input.ChannelConfig{MouseIdle: s.cfg.Input.MouseIdle}, s.injector, s.metrics, s.log.With("session", o.id))

	s.mu.Lock()
	sess := o.lookupLocked()
	if sess == nil {
		s.mu.Unlock()
		dc.Close()
		return
	}
	oldDC, oldIC := sess.channel, sess.input
	sess.channel = dc
	sess.input = ic
	s.mu.Unlock()

	if oldDC != nil {
		s.release(o.id, nil, oldDC, oldIC)
	}

	dc.OnMessage(func(data []byte, isString bool) {
		if err := ic.Handle(data, isString); err != nil {
			s.log.Debug("Input message rejected", "session", o.id, "error", err)
		}
	})
	dc.OnOpen(func() {
		s.log.Info("Input channel open", "session", o.id)
	})
	dc.OnClose(func() {
		s.mu.Lock()
		if sess.channel == dc {
			sess.channel = nil
			sess.input = nil
		}
		s.mu.Unlock()
		ic.Close()
		s.log.Info("Input channel closed", "session", o.id)
	})
}

func (o *observer) OnKeyframeRequest() {
	s := o.svc
	s.mu.Lock()
	sess := o.lookupLocked()
	if sess == nil {
		s.mu.Unlock()
		return
	}
	ok := sess.pacer.RequestKeyframe(s.now())
	s.mu.Unlock()

	if ok {
		s.metrics.KeyframeRequested(pacing.ReasonRemote)
		s.capture.RequestKeyframe()
	}
}

func (o *observer) OnConnectionStateChange(state string) {
	s := o.svc
	s.mu.Lock()
	sess := o.lookupLocked()
	if sess != nil {
		sess.peerState = state
	}
	s.mu.Unlock()
	if sess == nil {
		return
	}

	s.metrics.PeerStateChanged(state)
	switch state {
	case "failed", "closed":
		s.log.Warn("Peer connection ended", "session", o.id, "state", state)
	default:
		s.log.Info("Peer connection state changed", "session", o.id, "state", state)
	}
}

// BroadcastFeedback sends fb to every session whose input channel is open
// and returns how many received it.
func (s *Service) BroadcastFeedback(fb input.Feedback) (int, error) {
	payload, err := fb.Encode()
	if err != nil {
		return 0, err
	}

	type target struct {
		id string
		dc engine.DataChannel
	}
	s.mu.Lock()
	targets := make([]target, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if sess.channel != nil && sess.channel.IsOpen() {
			targets = append(targets, target{id: id, dc: sess.channel})
		}
	}
	s.mu.Unlock()

	sent := 0
	for _, t := range targets {
		if err := t.dc.SendText(string(payload)); err != nil {
			s.log.Debug("Failed to send feedback", "session", t.id, "error", err)
			continue
		}
		sent++
	}
	s.metrics.FeedbackSent(fb.Type, sent)
	return sent, nil
}
