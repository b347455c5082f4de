package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Harshitk-cp/hivecast/internal/engine"
	"github.com/Harshitk-cp/hivecast/internal/input"
	"github.com/Harshitk-cp/hivecast/internal/model"
)

// Offer failure stages reported to metrics.
const (
	stageParse        = "parse"
	stageNewPeer      = "new_peer"
	stageVideoTrack   = "video_track"
	stageAudioTrack   = "audio_track"
	stageSetRemote    = "set_remote"
	stageCreateAnswer = "create_answer"
	stageSetLocal     = "set_local"
)

// negotiation carries what an asynchronous offer step needs to resume.
type negotiation struct {
	id    string
	gen   uint64
	peer  engine.Peer
	offer engine.SessionDescription
}

// SetRemoteOffer accepts a remote offer. The peer is created and tracks are
// attached before it returns; the remote description, answer and local
// description are applied in the background. Failures abandon the attempt
// and leave the session ready for another offer.
func (s *Service) SetRemoteOffer(id string, offer engine.SessionDescription) error {
	if offer.Type != "offer" {
		return fmt.Errorf("%w: type %q", ErrInvalidOffer, offer.Type)
	}
	media, err := engine.ParseOffer(offer.SDP)
	if err != nil {
		s.metrics.OfferFailed(stageParse)
		return fmt.Errorf("%w: %w", ErrInvalidOffer, err)
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if sess.peer != nil || sess.signaling != model.SignalingCreated {
		s.mu.Unlock()
		return ErrAlreadyNegotiated
	}
	sess.offerGen++
	gen := sess.offerGen
	sess.signaling = model.SignalingHasRemoteOffer
	sess.lastError = ""
	sess.answer = nil
	if sess.answerDone {
		sess.answerReady = make(chan struct{})
		sess.answerDone = false
	}
	wantVideo := sess.video && media.Video
	wantAudio := sess.audio && media.Audio
	codec := sess.capture.Codec
	channels := sess.capture.AudioChannels
	s.mu.Unlock()

	peer, err := s.engine.NewPeer(&observer{svc: s, id: id, gen: gen})
	if err != nil {
		s.abandon(id, gen, nil, stageNewPeer, err)
		return fmt.Errorf("failed to create peer: %w", err)
	}
	if wantVideo {
		if err := peer.AddVideoTrack(codec); err != nil {
			s.abandon(id, gen, peer, stageVideoTrack, err)
			return fmt.Errorf("failed to add video track: %w", err)
		}
	}
	if wantAudio {
		if err := peer.AddAudioTrack(channels); err != nil {
			s.abandon(id, gen, peer, stageAudioTrack, err)
			return fmt.Errorf("failed to add audio track: %w", err)
		}
	}

	s.mu.Lock()
	sess, ok = s.sessions[id]
	if !ok || sess.offerGen != gen {
		s.mu.Unlock()
		go peer.Close()
		return ErrSessionNotFound
	}
	sess.peer = peer
	sess.hasVideo = wantVideo
	sess.hasAudio = wantAudio
	sess.signaling = model.SignalingAnswerPending
	sess.videoQueue.Clear()
	sess.pacer.Reset()
	sess.hasLastCapture = false
	s.mu.Unlock()

	s.log.Info("Offer accepted", "session", id, "video", wantVideo, "audio", wantAudio, "datachannel", media.Application)
	go s.negotiate(negotiation{id: id, gen: gen, peer: peer, offer: offer})
	return nil
}

// negotiate applies the offer and produces the local answer.
func (s *Service) negotiate(n negotiation) {
	if err := n.peer.SetRemoteDescription(n.offer); err != nil {
		s.abandon(n.id, n.gen, n.peer, stageSetRemote, err)
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[n.id]
	if !ok || sess.offerGen != n.gen {
		s.mu.Unlock()
		return
	}
	sess.remoteApplied = true
	pending := sess.pendingRemote
	sess.pendingRemote = nil
	s.mu.Unlock()

	for _, c := range pending {
		if err := n.peer.AddICECandidate(c); err != nil {
			s.log.Warn("Failed to add buffered candidate", "session", n.id, "error", err)
		}
	}

	answer, err := n.peer.CreateAnswer()
	if err != nil {
		s.abandon(n.id, n.gen, n.peer, stageCreateAnswer, err)
		return
	}
	if err := n.peer.SetLocalDescription(answer); err != nil {
		s.abandon(n.id, n.gen, n.peer, stageSetLocal, err)
		return
	}

	s.mu.Lock()
	sess, ok = s.sessions[n.id]
	if !ok || sess.offerGen != n.gen {
		s.mu.Unlock()
		return
	}
	sess.answer = &answer
	sess.signaling = model.SignalingHasLocalAnswer
	sess.finishAnswer()
	s.mu.Unlock()

	s.log.Info("Local answer ready", "session", n.id)
}

// abandon tears down a failed offer attempt. The session goes back to the
// created state so the client can retry with a new offer.
func (s *Service) abandon(id string, gen uint64, peer engine.Peer, stage string, cause error) {
	s.metrics.OfferFailed(stage)
	s.log.Error("Offer failed", "session", id, "stage", stage, "error", cause)

	var (
		dc engine.DataChannel
		ic *input.Channel
	)
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok && sess.offerGen == gen {
		// The attached peer, if any, is the one that failed.
		_, dc, ic = s.detachLocked(sess)
		// Candidates gathered by the failed peer are no longer served.
		sess.offerGen++
		sess.signaling = model.SignalingCreated
		sess.lastError = fmt.Sprintf("%s: %v", stage, cause)
		sess.answer = nil
		sess.finishAnswer()
	}
	s.mu.Unlock()

	s.release(id, peer, dc, ic)
}

// AddICECandidate records a remote candidate and forwards it to the peer
// once the remote description is applied. Candidates that arrive before any
// peer exists are only recorded.
func (s *Service) AddICECandidate(id string, c engine.ICECandidate) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	sess.remoteCandidates = append(sess.remoteCandidates, c)
	peer := sess.peer
	if peer != nil && !sess.remoteApplied {
		sess.pendingRemote = append(sess.pendingRemote, c)
		peer = nil
	}
	s.mu.Unlock()

	if peer == nil {
		return nil
	}
	if err := peer.AddICECandidate(c); err != nil {
		return fmt.Errorf("failed to add candidate: %w", err)
	}
	return nil
}

// LocalAnswer returns the local answer if it is ready.
func (s *Service) LocalAnswer(id string) (engine.SessionDescription, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return engine.SessionDescription{}, false, ErrSessionNotFound
	}
	if sess.answer == nil {
		return engine.SessionDescription{}, false, nil
	}
	return *sess.answer, true, nil
}

// WaitForLocalAnswer blocks until the local answer is ready, the attempt
// fails, the session closes, ctx ends or timeout elapses.
func (s *Service) WaitForLocalAnswer(ctx context.Context, id string, timeout time.Duration) (engine.SessionDescription, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return engine.SessionDescription{}, ErrSessionNotFound
	}
	if sess.answer != nil {
		answer := *sess.answer
		s.mu.Unlock()
		return answer, nil
	}
	ready, done := sess.answerReady, sess.done
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
	case <-done:
		return engine.SessionDescription{}, ErrSessionNotFound
	case <-timer.C:
		return engine.SessionDescription{}, ErrAnswerTimeout
	case <-ctx.Done():
		return engine.SessionDescription{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.closed {
		return engine.SessionDescription{}, ErrSessionNotFound
	}
	if sess.answer == nil {
		return engine.SessionDescription{}, fmt.Errorf("%w: %s", ErrNegotiationFailed, sess.lastError)
	}
	return *sess.answer, nil
}

// LocalCandidates returns the local candidates with an index greater than
// since, and the index to poll from next.
func (s *Service) LocalCandidates(id string, since uint64) ([]model.Candidate, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, since, ErrSessionNotFound
	}
	return candidatesSince(sess.localCandidates, sess.offerGen, since)
}

// candidatesSince returns the candidates of attempt gen after since. Skipped
// candidates of abandoned attempts still advance next.
func candidatesSince(all []localCandidate, gen, since uint64) ([]model.Candidate, uint64, error) {
	next := since
	out := []model.Candidate{}
	// Indexes are 1-based and dense, so position i holds index i+1.
	if since < uint64(len(all)) {
		for _, c := range all[since:] {
			if c.gen == gen {
				out = append(out, c.Candidate)
			}
		}
		next = all[len(all)-1].Index
	}
	return out, next, nil
}

// CandidateUpdates returns a channel that is closed when the next local
// candidate is added, and one that is closed when the session closes.
func (s *Service) CandidateUpdates(id string) (<-chan struct{}, <-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	return sess.candidatesCh, sess.done, nil
}
