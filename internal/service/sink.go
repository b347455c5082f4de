package service

import (
	"github.com/Harshitk-cp/hivecast/internal/media"
	"github.com/Harshitk-cp/hivecast/internal/metrics"
	"github.com/Harshitk-cp/hivecast/internal/pacing"
)

// Eviction reasons reported to metrics.
const (
	dropEvicted  = "evicted"
	dropPacing   = "pacing"
	dropInFlight = "in_flight"
	dropAudioAge = "audio_age"
	dropEngine   = "engine"
)

// SubmitVideoPacket queues an encoded packet on every session with a video
// track. The payload is shared, not copied.
func (s *Service) SubmitVideoPacket(pkt media.VideoPacket) {
	now := s.now()
	evicted := 0

	s.mu.Lock()
	for _, sess := range s.sessions {
		if !sess.live() || !sess.hasVideo {
			continue
		}
		if _, ok := sess.videoQueue.Push(pacing.Frame{VideoPacket: pkt, EnqueuedAt: now}, true); ok {
			sess.stats.VideoFramesDropped++
			sess.pacer.NoteLoss()
			evicted++
		}
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	if evicted > 0 {
		s.metrics.FrameDropped(metrics.KindVideo, dropEvicted, evicted)
	}
}

// SubmitAudioFrame queues an audio buffer on every session with an audio
// track.
func (s *Service) SubmitAudioFrame(frame media.AudioFrame) {
	evicted := 0

	s.mu.Lock()
	for _, sess := range s.sessions {
		if !sess.live() || !sess.hasAudio {
			continue
		}
		if _, ok := sess.audioQueue.Push(frame, false); ok {
			sess.stats.AudioFramesDropped++
			evicted++
		}
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	if evicted > 0 {
		s.metrics.FrameDropped(metrics.KindAudio, dropEvicted, evicted)
	}
}

// SubmitVideoFrame buffers a raw frame on every session with a video track.
// No track consumes raw frames; the worker drains and counts them.
func (s *Service) SubmitVideoFrame(frame media.RawVideoFrame) {
	evicted := 0

	s.mu.Lock()
	for _, sess := range s.sessions {
		if !sess.live() || !sess.hasVideo {
			continue
		}
		sess.stats.RawFramesReceived++
		if _, ok := sess.rawQueue.Push(frame, false); ok {
			sess.stats.RawFramesDropped++
			evicted++
		}
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	if evicted > 0 {
		s.metrics.FrameDropped(metrics.KindRawVideo, dropEvicted, evicted)
	}
}
