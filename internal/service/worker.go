package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Harshitk-cp/hivecast/internal/engine"
	"github.com/Harshitk-cp/hivecast/internal/media"
	"github.com/Harshitk-cp/hivecast/internal/metrics"
	"github.com/Harshitk-cp/hivecast/internal/pacing"
)

// audioDrainInterval bounds each pacing sleep so queued audio keeps flowing
// while video waits for its target time.
const audioDrainInterval = 2 * time.Millisecond

// maxSampleGap bounds the capture gap a single video sample may cover. Larger
// gaps are timestamp jumps and fall back to the frame interval.
const maxSampleGap = time.Second

// ErrWorkerRunning is returned when Run is called twice.
var ErrWorkerRunning = errors.New("media worker already running")

type videoJob struct {
	sess     *session
	pacer    *pacing.Pacer
	frame    pacing.Frame
	target   time.Time
	duration time.Duration
}

type audioJob struct {
	sess   *session
	peer   engine.Peer
	frames []media.AudioFrame
}

// pass is the work collected from the session table in one iteration.
type pass struct {
	video []videoJob
	audio []audioJob

	keyframeReasons []string
	videoDropped    int
	videoSkipped    int
	audioDropped    int
	driftResets     int
}

// Run runs the media worker until ctx ends. The worker sleeps on a condition
// variable until a frame is queued or a session changes.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrWorkerRunning
	}
	defer s.running.Store(false)

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.stopping = true
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.log.Info("Media worker started")
	for {
		s.mu.Lock()
		for !s.stopping && !s.hasWorkLocked() {
			s.cond.Wait()
		}
		if s.stopping {
			s.stopping = false
			s.mu.Unlock()
			s.log.Info("Media worker stopped")
			return nil
		}
		p := s.planLocked(s.now())
		s.mu.Unlock()

		s.deliver(p)
	}
}

// WorkerRunning reports whether the media worker is running.
func (s *Service) WorkerRunning() bool { return s.running.Load() }

func (s *Service) hasWorkLocked() bool {
	for _, sess := range s.sessions {
		if !sess.live() {
			continue
		}
		if sess.videoQueue.Len() > 0 || sess.audioQueue.Len() > 0 || sess.rawQueue.Len() > 0 {
			return true
		}
	}
	return false
}

// planLocked runs the pacer of every session and collects what to send.
func (s *Service) planLocked(now time.Time) pass {
	var p pass
	for _, sess := range s.sessions {
		if !sess.live() {
			continue
		}
		s.takeAudioLocked(sess, &p)
		sess.rawQueue.Clear()

		if !sess.hasVideo || sess.videoQueue.Len() == 0 {
			continue
		}
		d := sess.pacer.Plan(now, sess.videoQueue)
		sess.stats.VideoFramesDropped += uint64(d.Dropped)
		sess.stats.VideoFramesSkipped += uint64(d.Skipped)
		p.videoDropped += d.Dropped
		p.videoSkipped += d.Skipped
		if d.DriftReset {
			p.driftResets++
		}
		if d.RequestKeyframe {
			p.keyframeReasons = append(p.keyframeReasons, d.KeyframeReason)
		}
		if d.Send {
			p.video = append(p.video, videoJob{
				sess:     sess,
				pacer:    sess.pacer,
				frame:    d.Frame,
				target:   d.Target,
				duration: sess.pacer.Config().FrameInterval,
			})
		}
	}
	return p
}

// takeAudioLocked moves the queued audio of sess into p. A queue holding more
// than the session's audio age allows is dropped wholesale.
func (s *Service) takeAudioLocked(sess *session, p *pass) {
	if !sess.hasAudio || sess.audioQueue.Len() == 0 {
		return
	}
	oldest, _ := sess.audioQueue.Peek()
	if sess.audioQueue.Len() > pacing.AudioBudget(sess.audioMaxAge, oldest.Duration()) {
		n := sess.audioQueue.Clear()
		sess.stats.AudioFramesDropped += uint64(n)
		p.audioDropped += n
		return
	}
	job := audioJob{sess: sess, peer: sess.peer}
	for {
		f, ok := sess.audioQueue.Pop()
		if !ok {
			break
		}
		job.frames = append(job.frames, f)
	}
	p.audio = append(p.audio, job)
}

// deliver performs the engine calls of a pass outside the table lock. Video
// frames go out in order of target time across sessions.
func (s *Service) deliver(p pass) {
	for _, reason := range p.keyframeReasons {
		s.metrics.KeyframeRequested(reason)
	}
	if len(p.keyframeReasons) > 0 {
		s.capture.RequestKeyframe()
	}
	if p.videoDropped > 0 {
		s.metrics.FrameDropped(metrics.KindVideo, dropPacing, p.videoDropped)
	}
	if p.videoSkipped > 0 {
		s.metrics.FrameSkipped(p.videoSkipped)
	}
	if p.audioDropped > 0 {
		s.metrics.FrameDropped(metrics.KindAudio, dropAudioAge, p.audioDropped)
	}
	for i := 0; i < p.driftResets; i++ {
		s.metrics.DriftReset()
	}

	s.writeAudio(p.audio)

	sort.SliceStable(p.video, func(i, j int) bool {
		return p.video[i].target.Before(p.video[j].target)
	})
	for _, job := range p.video {
		s.waitFor(job)
		s.sendVideo(job)
	}
}

// waitFor sleeps until the job's target time, draining audio every few
// milliseconds.
func (s *Service) waitFor(job videoJob) {
	for {
		wait := job.pacer.SleepFor(job.target, s.now())
		if wait <= 0 {
			return
		}
		if wait > audioDrainInterval {
			wait = audioDrainInterval
		}
		time.Sleep(wait)
		s.drainAudio()
	}
}

func (s *Service) drainAudio() {
	var p pass
	s.mu.Lock()
	for _, sess := range s.sessions {
		if sess.live() {
			s.takeAudioLocked(sess, &p)
		}
	}
	s.mu.Unlock()

	if p.audioDropped > 0 {
		s.metrics.FrameDropped(metrics.KindAudio, dropAudioAge, p.audioDropped)
	}
	s.writeAudio(p.audio)
}

func (s *Service) writeAudio(jobs []audioJob) {
	for _, job := range jobs {
		sent, dropped, lastBytes := 0, 0, 0
		for _, f := range job.frames {
			err := job.peer.WriteAudio(engine.AudioSample{
				Data:     f.Data.Bytes(),
				Duration: f.Duration(),
				Encoded:  f.Encoded,
			})
			if err != nil {
				dropped++
				if !errors.Is(err, engine.ErrClosed) {
					s.log.Debug("Failed to write audio", "session", job.sess.id, "error", err)
				}
				continue
			}
			sent++
			lastBytes = f.Data.Len()
			s.metrics.FrameSent(metrics.KindAudio, lastBytes)
		}

		now := s.now()
		s.mu.Lock()
		job.sess.stats.AudioPacketsSent += uint64(sent)
		job.sess.stats.AudioFramesDropped += uint64(dropped)
		if sent > 0 {
			job.sess.stats.LastAudioSentAt = now
			job.sess.stats.LastAudioBytes = lastBytes
		}
		s.mu.Unlock()

		if dropped > 0 {
			s.metrics.FrameDropped(metrics.KindAudio, dropEngine, dropped)
		}
	}
}

// sendVideo hands one frame to the engine, subject to the in-flight bound.
func (s *Service) sendVideo(job videoJob) {
	sess := job.sess
	now := s.now()

	s.mu.Lock()
	if !sess.live() || !sess.hasVideo {
		s.mu.Unlock()
		return
	}
	admit, requestKeyframe := sess.pacer.AdmitInFlight(now, sess.inFlight.Load(), job.frame.Keyframe)
	if !admit {
		sess.stats.VideoFramesDropped++
		s.mu.Unlock()

		s.metrics.FrameDropped(metrics.KindVideo, dropInFlight, 1)
		if requestKeyframe {
			s.metrics.KeyframeRequested(pacing.ReasonInFlight)
			s.capture.RequestKeyframe()
		}
		return
	}
	peer := sess.peer
	duration := sess.sampleDuration(job.frame, job.duration)
	sess.inFlight.Add(1)
	s.mu.Unlock()

	sample := engine.VideoSample{
		Data:     job.frame.Payload.Bytes(),
		Duration: duration,
		Keyframe: job.frame.Keyframe,
	}
	err := peer.WriteVideo(sample, func(error) {
		sess.inFlight.Add(-1)
	})

	s.mu.Lock()
	if err != nil {
		sess.inFlight.Add(-1)
		sess.stats.VideoFramesDropped++
		sess.pacer.NoteLoss()
		s.mu.Unlock()

		s.metrics.FrameDropped(metrics.KindVideo, dropEngine, 1)
		if !errors.Is(err, engine.ErrClosed) {
			s.log.Debug("Failed to write video", "session", sess.id, "error", err)
		}
		return
	}
	sess.stats.VideoPacketsSent++
	sess.stats.LastVideoSentAt = now
	sess.stats.LastVideoBytes = job.frame.Payload.Len()
	sess.stats.LastFrameIndex = job.frame.FrameIndex
	sess.stats.LastFrameKeyframe = job.frame.Keyframe
	sess.lastCapture = job.frame.CaptureTime
	sess.hasLastCapture = job.frame.HasCaptureTime
	sess.pacer.OnSent(job.frame, now)
	s.mu.Unlock()

	s.metrics.FrameSent(metrics.KindVideo, job.frame.Payload.Len())
	s.metrics.PacingLag(now.Sub(job.target))
}
