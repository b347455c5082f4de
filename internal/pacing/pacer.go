package pacing

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/Harshitk-cp/hivecast/internal/framequeue"
	"github.com/Harshitk-cp/hivecast/internal/media"
)

// Frame is a queued encoded video frame.
type Frame struct {
	media.VideoPacket
	EnqueuedAt time.Time
}

// Queue is the per-session encoded video queue.
type Queue = framequeue.Queue[Frame]

// NewQueue creates a video queue where non-keyframes are sacrificial.
func NewQueue(capacity int) *Queue {
	return framequeue.New(capacity, func(f Frame) bool { return !f.Keyframe })
}

// Keyframe request reasons.
const (
	ReasonBacklog  = "backlog"
	ReasonWaiting  = "waiting"
	ReasonLoss     = "loss"
	ReasonInFlight = "in_flight"
	ReasonRemote   = "remote"
)

// Decision is the outcome of planning one session for one worker pass.
type Decision struct {
	Frame  Frame
	Target time.Time
	Send   bool

	// Dropped counts frames discarded as lost while planning.
	Dropped int
	// Skipped counts non-keyframes passed over while waiting for a keyframe.
	Skipped int

	RequestKeyframe bool
	KeyframeReason  string
	DriftReset      bool
}

// Stats are cumulative pacer counters.
type Stats struct {
	DriftResets        uint64
	KeyframeRequests   uint64
	WaitingForKeyframe bool
	InFlightOverflows  uint64
}

// Pacer holds the pacing state of one session. It is not safe for concurrent
// use; the media worker owns it.
type Pacer struct {
	cfg     Config
	limiter *rate.Limiter

	anchored      bool
	anchorCapture time.Duration
	anchorSend    time.Time

	lastTarget    time.Time
	hasLastTarget bool

	driftResetAt      time.Time
	preferLatestUntil time.Time
	lastKeyframeSent  time.Time

	waitingForKeyframe bool
	// lossPending records a latency-mode loss not yet answered with a
	// keyframe request.
	lossPending bool
	stats       Stats
}

// New creates a pacer. It starts out waiting for a keyframe.
func New(cfg Config) *Pacer {
	if cfg.KeyframeRequestInterval <= 0 {
		cfg.KeyframeRequestInterval = DefaultKeyframeRequestInterval
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = DefaultResyncInterval
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = time.Second / DefaultFPS
	}
	return &Pacer{
		cfg:                cfg,
		limiter:            rate.NewLimiter(rate.Every(cfg.KeyframeRequestInterval), 1),
		waitingForKeyframe: true,
	}
}

// Config returns the pacer configuration.
func (p *Pacer) Config() Config { return p.cfg }

// Reset returns the pacer to its initial state, used when a video track is
// (re)attached.
func (p *Pacer) Reset() {
	p.clearAnchor()
	p.preferLatestUntil = time.Time{}
	p.waitingForKeyframe = true
	p.lossPending = false
}

// WaitingForKeyframe reports whether only keyframes are currently forwarded.
func (p *Pacer) WaitingForKeyframe() bool { return p.waitingForKeyframe }

// Stats returns a copy of the pacer counters.
func (p *Pacer) Stats() Stats {
	s := p.stats
	s.WaitingForKeyframe = p.waitingForKeyframe
	return s
}

// NoteLoss records that frames were lost before reaching the pacer. The
// decoder chain is broken, so delivery resumes at the next keyframe. Latency
// mode keeps forwarding the newest frame and asks for a keyframe instead.
func (p *Pacer) NoteLoss() {
	if p.cfg.Mode == ModeLatency {
		p.lossPending = true
		return
	}
	p.waitingForKeyframe = true
}

// Plan picks the frame to send next from q, if any, and computes its target
// send time. Frames it discards are removed from q.
func (p *Pacer) Plan(now time.Time, q *Queue) Decision {
	var d Decision
	if q.Len() == 0 {
		return d
	}

	maxAge := p.cfg.maxFrameAge()
	oldest, _ := q.Peek()
	backlogged := q.Full() || now.Sub(oldest.EnqueuedAt) > maxAge
	recentReset := !p.driftResetAt.IsZero() && now.Sub(p.driftResetAt) < maxAge

	lost := false
	if bound := p.cfg.staleBound(); bound > 0 {
		for q.Len() > 1 {
			f, _ := q.Peek()
			if now.Sub(f.EnqueuedAt) <= bound {
				break
			}
			q.DropOldest(p.waitingForKeyframe)
			d.Dropped++
			lost = true
		}
	}

	if backlogged {
		p.driftReset(now)
		d.DriftReset = true
		if p.cfg.Mode == ModeBalanced {
			p.preferLatestUntil = now.Add(maxAge)
		}
		p.askKeyframe(now, false, ReasonBacklog, &d)
	}

	preferLatest := p.cfg.Mode == ModeLatency ||
		(p.cfg.Mode == ModeBalanced && (backlogged || recentReset || now.Before(p.preferLatestUntil)))

	if p.waitingForKeyframe {
		return p.planWaiting(now, q, preferLatest, d)
	}

	var f Frame
	if preferLatest {
		var n int
		f, n, _ = q.PopLatest()
		d.Dropped += n
		lost = lost || n > 0
	} else {
		f, _ = q.Pop()
	}

	lost = lost || p.lossPending
	p.lossPending = false
	switch {
	case !lost || f.Keyframe:
	case p.cfg.Mode == ModeLatency:
		// The newest frame goes out anyway; the keyframe repairs the chain.
		p.askKeyframe(now, true, ReasonLoss, &d)
	default:
		d.Dropped++
		p.waitingForKeyframe = true
		p.clearAnchor()
		p.askKeyframe(now, true, ReasonLoss, &d)
		return d
	}

	d.Frame = f
	d.Target = p.target(now, f, &d)
	d.Send = true
	return d
}

// planWaiting forwards only keyframes. With preferLatest it jumps to the
// newest queued keyframe, dropping older keyframes on the way.
func (p *Pacer) planWaiting(now time.Time, q *Queue, preferLatest bool, d Decision) Decision {
	if preferLatest {
		last := -1
		i := 0
		q.Each(func(f Frame) {
			if f.Keyframe {
				last = i
			}
			i++
		})
		for ; last > 0; last-- {
			f, _ := q.Pop()
			if f.Keyframe {
				d.Dropped++
			} else {
				d.Skipped++
			}
		}
	}
	for q.Len() > 0 {
		f, _ := q.Pop()
		if !f.Keyframe {
			d.Skipped++
			continue
		}
		p.waitingForKeyframe = false
		p.lossPending = false
		p.clearAnchor()
		d.Frame = f
		d.Target = p.target(now, f, &d)
		d.Send = true
		return d
	}
	p.askKeyframe(now, true, ReasonWaiting, &d)
	return d
}

// target maps the frame's capture time onto the send schedule.
func (p *Pacer) target(now time.Time, f Frame, d *Decision) time.Time {
	if p.cfg.Mode == ModeLatency || !f.HasCaptureTime {
		p.lastTarget = now
		p.hasLastTarget = true
		return now
	}

	if !p.anchored {
		p.anchor(f.CaptureTime, now)
		return now
	}

	t := p.anchorSend.Add(f.CaptureTime - p.anchorCapture)
	if p.hasLastTarget {
		if floor := p.lastTarget.Add(p.cfg.FrameInterval); t.Before(floor) {
			t = floor
		}
	}

	maxAge := p.cfg.maxFrameAge()
	if now.Sub(t) > maxAge || t.Sub(now) > maxAge {
		p.driftReset(now)
		d.DriftReset = true
		p.anchor(f.CaptureTime, now)
		return now
	}

	p.lastTarget = t
	return t
}

func (p *Pacer) anchor(capture time.Duration, now time.Time) {
	p.anchored = true
	p.anchorCapture = capture
	p.anchorSend = now
	p.lastTarget = now
	p.hasLastTarget = true
}

func (p *Pacer) clearAnchor() {
	p.anchored = false
	p.hasLastTarget = false
	p.lastTarget = time.Time{}
}

func (p *Pacer) driftReset(now time.Time) {
	p.clearAnchor()
	p.driftResetAt = now
	p.stats.DriftResets++
}

// SleepFor returns how long to wait before sending a frame due at target.
// Targets within the slack window are due immediately.
func (p *Pacer) SleepFor(target, now time.Time) time.Duration {
	wait := target.Sub(now)
	if wait <= p.cfg.Slack {
		return 0
	}
	return wait
}

// AdmitInFlight checks the in-flight bound before a push. On overflow the
// frame must be dropped; the pacer then waits for a keyframe and may ask
// for one.
func (p *Pacer) AdmitInFlight(now time.Time, inFlight int64, keyframe bool) (admit bool, requestKeyframe bool) {
	if inFlight < int64(p.cfg.MaxInFlight(keyframe)) {
		return true, false
	}
	p.stats.InFlightOverflows++
	p.waitingForKeyframe = true
	p.clearAnchor()
	var d Decision
	p.askKeyframe(now, true, ReasonInFlight, &d)
	return false, d.RequestKeyframe
}

// OnSent records a frame handed to the media engine.
func (p *Pacer) OnSent(f Frame, now time.Time) {
	if f.Keyframe {
		p.lastKeyframeSent = now
	}
}

// RequestKeyframe asks for a keyframe on behalf of the remote peer. It
// reports whether the request passed the rate limit.
func (p *Pacer) RequestKeyframe(now time.Time) bool {
	var d Decision
	p.askKeyframe(now, true, ReasonRemote, &d)
	return d.RequestKeyframe
}

// askKeyframe rate-limits keyframe requests. Unforced requests are also
// suppressed while a recently sent keyframe is still fresh.
func (p *Pacer) askKeyframe(now time.Time, force bool, reason string, d *Decision) {
	if d.RequestKeyframe {
		return
	}
	if !force && !p.lastKeyframeSent.IsZero() && now.Sub(p.lastKeyframeSent) < p.cfg.ResyncInterval {
		return
	}
	if !p.limiter.AllowN(now, 1) {
		return
	}
	p.stats.KeyframeRequests++
	d.RequestKeyframe = true
	d.KeyframeReason = reason
}
