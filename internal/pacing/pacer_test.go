package pacing

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/hivecast/internal/media"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func frame(idx uint64, key bool, capture time.Duration, enqueued time.Time) Frame {
	return Frame{
		VideoPacket: media.VideoPacket{
			Payload:        media.NewPayload([]byte{byte(idx)}),
			FrameIndex:     idx,
			Keyframe:       key,
			CaptureTime:    capture,
			HasCaptureTime: true,
		},
		EnqueuedAt: enqueued,
	}
}

// sendFirstKeyframe moves a fresh pacer out of the waiting state.
func sendFirstKeyframe(t *testing.T, p *Pacer, q *Queue, now time.Time) {
	t.Helper()
	q.Push(frame(0, true, 0, now), true)
	d := p.Plan(now, q)
	require.True(t, d.Send)
	require.False(t, p.WaitingForKeyframe())
	p.OnSent(d.Frame, now)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Mode{
		"":           ModeBalanced,
		"latency":    ModeLatency,
		" LATENCY ":  ModeLatency,
		"balanced":   ModeBalanced,
		"Smoothness": ModeSmoothness,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("fastest")
	assert.Error(t, err)
}

func TestTargetsNonDecreasingUntilReset(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeBalanced, ModeSmoothness} {
		cfg := DefaultConfig(mode, 60)
		p := New(cfg)
		q := NewQueue(2)
		rng := rand.New(rand.NewSource(7))

		now := t0
		var prev time.Time
		for i := 0; i < 300; i++ {
			capture := time.Duration(i) * cfg.FrameInterval
			q.Push(frame(uint64(i), i == 0, capture, now), true)

			d := p.Plan(now, q)
			require.True(t, d.Send, "mode %s frame %d", mode, i)
			if d.DriftReset {
				assert.Equal(t, now, d.Target)
			} else if i > 0 {
				assert.False(t, d.Target.Before(prev), "mode %s frame %d went backwards", mode, i)
			}
			prev = d.Target
			p.OnSent(d.Frame, now)

			jitter := time.Duration(rng.Intn(6000)-3000) * time.Microsecond
			now = now.Add(cfg.FrameInterval + jitter)
		}
	}
}

func TestBacklogResetTargetsNow(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig(ModeBalanced, 60))
	q := NewQueue(2)
	sendFirstKeyframe(t, p, q, t0)

	now := t0.Add(50 * time.Millisecond)
	q.Push(frame(1, false, 16*time.Millisecond, t0.Add(16*time.Millisecond)), true)
	q.Push(frame(2, true, 33*time.Millisecond, t0.Add(33*time.Millisecond)), true)

	d := p.Plan(now, q)
	require.True(t, d.Send)
	assert.True(t, d.DriftReset)
	assert.Equal(t, uint64(2), d.Frame.FrameIndex)
	assert.Equal(t, now, d.Target)
	assert.Equal(t, 1, d.Dropped)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, uint64(1), p.Stats().DriftResets)
}

func TestFutureTimestampJumpResetsAnchor(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig(ModeBalanced, 60))
	q := NewQueue(2)
	sendFirstKeyframe(t, p, q, t0)

	now := t0.Add(16 * time.Millisecond)
	q.Push(frame(1, false, 10*time.Second, now), true)

	d := p.Plan(now, q)
	require.True(t, d.Send)
	assert.True(t, d.DriftReset)
	assert.Equal(t, now, d.Target)

	// The new anchor maps the next frame one interval later.
	next := now.Add(16 * time.Millisecond)
	q.Push(frame(2, false, 10*time.Second+16*time.Millisecond, next), true)
	d = p.Plan(next, q)
	require.True(t, d.Send)
	assert.False(t, d.DriftReset)
	assert.False(t, d.Target.Before(now.Add(p.Config().FrameInterval)))
}

func TestWaitingNeverForwardsNonKeyframes(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeLatency, ModeBalanced, ModeSmoothness} {
		cfg := DefaultConfig(mode, 60)
		p := New(cfg)
		q := NewQueue(2)
		rng := rand.New(rand.NewSource(42))

		now := t0
		for i := 0; i < 2000; i++ {
			for n := rng.Intn(3); n >= 0; n-- {
				key := rng.Intn(10) == 0
				if _, evicted := q.Push(frame(uint64(i), key, time.Duration(i)*cfg.FrameInterval, now), true); evicted {
					p.NoteLoss()
				}
			}
			if rng.Intn(20) == 0 {
				p.NoteLoss()
			}

			waiting := p.WaitingForKeyframe()
			d := p.Plan(now, q)
			if waiting && d.Send {
				require.True(t, d.Frame.Keyframe, "mode %s forwarded a non-keyframe while waiting", mode)
				assert.False(t, p.WaitingForKeyframe())
			}
			if d.Send {
				p.OnSent(d.Frame, now)
			}
			now = now.Add(time.Duration(rng.Intn(40)) * time.Millisecond)
		}
	}
}

func TestWaitingSkipsAreNotDrops(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig(ModeBalanced, 60))
	q := NewQueue(4)
	q.Push(frame(1, false, 0, t0), true)
	q.Push(frame(2, false, 16*time.Millisecond, t0), true)
	q.Push(frame(3, true, 33*time.Millisecond, t0), true)

	d := p.Plan(t0, q)
	require.True(t, d.Send)
	assert.Equal(t, uint64(3), d.Frame.FrameIndex)
	assert.Equal(t, 2, d.Skipped)
	assert.Equal(t, 0, d.Dropped)
	assert.False(t, p.WaitingForKeyframe())
}

func TestWaitingWithoutKeyframeRequestsOne(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig(ModeSmoothness, 60))
	q := NewQueue(4)
	q.Push(frame(1, false, 0, t0), true)

	d := p.Plan(t0, q)
	assert.False(t, d.Send)
	assert.Equal(t, 1, d.Skipped)
	assert.True(t, d.RequestKeyframe)
	assert.Equal(t, ReasonWaiting, d.KeyframeReason)
	assert.True(t, p.WaitingForKeyframe())
}

func TestLatencyForwardsOnlyNewest(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig(ModeLatency, 60))
	q := NewQueue(2)

	evictions := 0
	for i := 0; i < 5; i++ {
		at := t0.Add(time.Duration(i) * 16 * time.Millisecond)
		if _, ok := q.Push(frame(uint64(i), true, time.Duration(i)*16*time.Millisecond, at), true); ok {
			evictions++
		}
	}

	now := t0.Add(64 * time.Millisecond)
	d := p.Plan(now, q)
	require.True(t, d.Send)
	assert.Equal(t, uint64(4), d.Frame.FrameIndex)
	assert.Equal(t, now, d.Target)
	assert.Equal(t, 4, evictions+d.Dropped)
	assert.Equal(t, 0, q.Len())

	d = p.Plan(now, q)
	assert.False(t, d.Send)
}

func TestLatencyLossForwardsNewestAndRequestsKeyframe(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig(ModeLatency, 60))
	q := NewQueue(2)
	sendFirstKeyframe(t, p, q, t0)

	evictions := 0
	for i := 1; i <= 5; i++ {
		capture := time.Duration(i) * 16 * time.Millisecond
		if _, ok := q.Push(frame(uint64(i), false, capture, t0.Add(capture)), true); ok {
			evictions++
			p.NoteLoss()
		}
	}

	now := t0.Add(80 * time.Millisecond)
	d := p.Plan(now, q)
	require.True(t, d.Send)
	assert.Equal(t, uint64(5), d.Frame.FrameIndex)
	assert.False(t, d.Frame.Keyframe)
	assert.Equal(t, 4, evictions+d.Dropped)
	assert.True(t, d.RequestKeyframe)
	assert.Equal(t, ReasonLoss, d.KeyframeReason)
	assert.False(t, p.WaitingForKeyframe())
	p.OnSent(d.Frame, now)

	now = now.Add(16 * time.Millisecond)
	q.Push(frame(6, false, 96*time.Millisecond, now), true)
	d = p.Plan(now, q)
	require.True(t, d.Send)
	assert.Equal(t, uint64(6), d.Frame.FrameIndex)
	assert.False(t, d.RequestKeyframe)
}

func TestLossWithoutKeyframeEntersWaiting(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig(ModeBalanced, 60))
	q := NewQueue(2)
	sendFirstKeyframe(t, p, q, t0)

	now := t0.Add(40 * time.Millisecond)
	q.Push(frame(1, false, 16*time.Millisecond, t0.Add(16*time.Millisecond)), true)
	q.Push(frame(2, false, 33*time.Millisecond, t0.Add(33*time.Millisecond)), true)

	d := p.Plan(now, q)
	assert.False(t, d.Send)
	assert.Equal(t, 2, d.Dropped)
	assert.True(t, p.WaitingForKeyframe())
	assert.True(t, d.RequestKeyframe)
	assert.Equal(t, ReasonLoss, d.KeyframeReason)
}

func TestInFlightThrottleRateLimitsKeyframeRequests(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig(ModeBalanced, 60)
	p := New(cfg)
	limit := int64(cfg.MaxInFlight(false))
	require.Equal(t, int64(6), limit)

	admit, _ := p.AdmitInFlight(t0, limit-1, false)
	assert.True(t, admit)

	requests := 0
	for i := 0; i < 100; i++ {
		admit, req := p.AdmitInFlight(t0.Add(time.Duration(i)*time.Millisecond), limit, false)
		assert.False(t, admit)
		if req {
			requests++
		}
	}
	assert.Equal(t, 1, requests)
	assert.True(t, p.WaitingForKeyframe())
	assert.Equal(t, uint64(100), p.Stats().InFlightOverflows)

	_, req := p.AdmitInFlight(t0.Add(350*time.Millisecond), limit, false)
	assert.True(t, req)
}

func TestKeyframesGetInFlightAllowance(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig(ModeBalanced, 60)
	p := New(cfg)

	admit, _ := p.AdmitInFlight(t0, 6, true)
	assert.True(t, admit)
	admit, _ = p.AdmitInFlight(t0, int64(cfg.MaxInFlight(true)), true)
	assert.False(t, admit)
}

func TestBacklogRequestSuppressedAfterRecentKeyframe(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig(ModeBalanced, 60))
	q := NewQueue(2)
	sendFirstKeyframe(t, p, q, t0)

	now := t0.Add(50 * time.Millisecond)
	q.Push(frame(1, true, 16*time.Millisecond, t0.Add(16*time.Millisecond)), true)
	q.Push(frame(2, true, 33*time.Millisecond, t0.Add(33*time.Millisecond)), true)

	d := p.Plan(now, q)
	require.True(t, d.Send)
	assert.True(t, d.DriftReset)
	assert.False(t, d.RequestKeyframe)

	// A remote request is forced and only rate limited.
	assert.True(t, p.RequestKeyframe(now))
	assert.False(t, p.RequestKeyframe(now.Add(10*time.Millisecond)))
}

func TestSleepForHonorsSlack(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig(ModeBalanced, 60))
	assert.Zero(t, p.SleepFor(t0.Add(3*time.Millisecond), t0))
	assert.Zero(t, p.SleepFor(t0.Add(-time.Second), t0))
	assert.Equal(t, 10*time.Millisecond, p.SleepFor(t0.Add(10*time.Millisecond), t0))
}

func TestAudioBudget(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3, AudioBudget(60*time.Millisecond, 20*time.Millisecond))
	assert.Equal(t, 3, AudioBudget(50*time.Millisecond, 20*time.Millisecond))
	assert.Equal(t, 1, AudioBudget(10*time.Millisecond, 20*time.Millisecond))
	assert.Equal(t, 1<<30, AudioBudget(0, 20*time.Millisecond))
}
