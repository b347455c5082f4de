package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/hivecast/internal/media"
)

type fakePipeline struct {
	startErr  error
	started   atomic.Int32
	stopped   atomic.Int32
	keyframes atomic.Int32
}

func (p *fakePipeline) Start(context.Context, Config, Sink) error {
	if p.startErr != nil {
		return p.startErr
	}
	p.started.Add(1)
	return nil
}

func (p *fakePipeline) Stop()            { p.stopped.Add(1) }
func (p *fakePipeline) RequestKeyframe() { p.keyframes.Add(1) }

type fakeFactory struct {
	mu        sync.Mutex
	startErr  error
	pipelines []*fakePipeline
}

func (f *fakeFactory) New(app string) (Pipeline, error) {
	if app == "missing" {
		return nil, fmt.Errorf("%w: %q", ErrNoApplication, app)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePipeline{startErr: f.startErr}
	f.pipelines = append(f.pipelines, p)
	return p, nil
}

func (f *fakeFactory) all() []*fakePipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakePipeline(nil), f.pipelines...)
}

type nopSink struct{}

func (nopSink) SubmitVideoPacket(media.VideoPacket)  {}
func (nopSink) SubmitVideoFrame(media.RawVideoFrame) {}
func (nopSink) SubmitAudioFrame(media.AudioFrame)    {}

func desktop() Config {
	return Config{App: "desktop", Width: 1920, Height: 1080, FPS: 60, Bitrate: 20_000_000, Codec: "h264", AudioChannels: 2}
}

func newTestManager(grace time.Duration, sessions *atomic.Int32) (*Manager, *fakeFactory) {
	f := &fakeFactory{}
	count := func() int { return int(sessions.Load()) }
	return NewManager(ManagerConfig{IdleGrace: grace}, f, &LegacyGate{}, nopSink{}, count, nil, nil), f
}

func TestEnsureReusesMatchingKey(t *testing.T) {
	t.Parallel()
	var sessions atomic.Int32
	m, f := newTestManager(time.Hour, &sessions)

	require.NoError(t, m.Ensure(context.Background(), desktop()))
	require.NoError(t, m.Ensure(context.Background(), desktop()))

	ps := f.all()
	require.Len(t, ps, 1)
	assert.Equal(t, int32(1), ps[0].started.Load())
	assert.Zero(t, ps[0].stopped.Load())
	assert.True(t, m.State().Active)
}

func TestEnsureRestartsOnKeyChange(t *testing.T) {
	t.Parallel()
	var sessions atomic.Int32
	m, f := newTestManager(time.Hour, &sessions)

	require.NoError(t, m.Ensure(context.Background(), desktop()))
	cfg := desktop()
	cfg.FPS = 120
	require.NoError(t, m.Ensure(context.Background(), cfg))

	ps := f.all()
	require.Len(t, ps, 2)
	assert.Equal(t, int32(1), ps[0].stopped.Load())
	assert.Zero(t, ps[1].stopped.Load())
	assert.Equal(t, 120, m.State().Key.FPS)
	assert.Equal(t, uint64(2), m.State().Starts)
}

func TestEnsureFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		reason string
	}{
		{"invalid codec", func(c *Config) { c.Codec = "mpeg2" }, ReasonInvalidCodec},
		{"bad resolution", func(c *Config) { c.Width = 0 }, ReasonDisplayConfig},
		{"bad fps", func(c *Config) { c.FPS = 1000 }, ReasonDisplayConfig},
		{"unknown app", func(c *Config) { c.App = "missing" }, ReasonNoApplication},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var sessions atomic.Int32
			m, _ := newTestManager(time.Hour, &sessions)
			cfg := desktop()
			tt.mutate(&cfg)

			err := m.Ensure(context.Background(), cfg)
			require.Error(t, err)
			assert.Equal(t, tt.reason, Reason(err))
			assert.False(t, m.State().Active)
		})
	}
}

func TestEnsureWrapsStartFailureAsEncoderInit(t *testing.T) {
	t.Parallel()
	var sessions atomic.Int32
	m, f := newTestManager(time.Hour, &sessions)
	f.startErr = errors.New("nvenc unavailable")

	err := m.Ensure(context.Background(), desktop())
	require.ErrorIs(t, err, ErrEncoderInit)
	assert.Equal(t, ReasonEncoderInit, Reason(err))
	assert.False(t, m.State().Active)
}

func TestLegacySessionBlocksOtherApps(t *testing.T) {
	t.Parallel()
	var sessions atomic.Int32
	m, _ := newTestManager(time.Hour, &sessions)

	m.Legacy().Set("steam")

	err := m.Ensure(context.Background(), desktop())
	require.ErrorIs(t, err, ErrLegacySessionActive)
	assert.Equal(t, ReasonLegacySessionActive, Reason(err))

	cfg := desktop()
	cfg.App = "steam"
	assert.NoError(t, m.Ensure(context.Background(), cfg))

	m.Legacy().Clear()
	assert.NoError(t, m.Ensure(context.Background(), desktop()))
}

func TestStopIfIdle(t *testing.T) {
	t.Parallel()
	var sessions atomic.Int32
	m, f := newTestManager(time.Hour, &sessions)
	require.NoError(t, m.Ensure(context.Background(), desktop()))

	sessions.Store(1)
	assert.False(t, m.StopIfIdle())

	sessions.Store(0)
	m.Legacy().Set("desktop")
	assert.False(t, m.StopIfIdle())

	m.Legacy().Clear()
	assert.True(t, m.StopIfIdle())
	assert.Equal(t, int32(1), f.all()[0].stopped.Load())
	assert.False(t, m.StopIfIdle())
}

func TestScheduledIdleStopFires(t *testing.T) {
	t.Parallel()
	var sessions atomic.Int32
	m, f := newTestManager(10*time.Millisecond, &sessions)
	require.NoError(t, m.Ensure(context.Background(), desktop()))

	m.ScheduleIdleStop()

	require.Eventually(t, func() bool { return !m.State().Active }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), f.all()[0].stopped.Load())
}

func TestScheduledIdleStopCancelledByEnsure(t *testing.T) {
	t.Parallel()
	var sessions atomic.Int32
	m, f := newTestManager(30*time.Millisecond, &sessions)
	require.NoError(t, m.Ensure(context.Background(), desktop()))

	m.ScheduleIdleStop()
	require.NoError(t, m.Ensure(context.Background(), desktop()))

	time.Sleep(80 * time.Millisecond)
	assert.True(t, m.State().Active)
	assert.Zero(t, f.all()[0].stopped.Load())
}

func TestRequestKeyframeForwardsToPipeline(t *testing.T) {
	t.Parallel()
	var sessions atomic.Int32
	m, f := newTestManager(time.Hour, &sessions)

	m.RequestKeyframe()
	require.NoError(t, m.Ensure(context.Background(), desktop()))
	m.RequestKeyframe()

	assert.Equal(t, int32(1), f.all()[0].keyframes.Load())
}

func TestCloseStopsPipeline(t *testing.T) {
	t.Parallel()
	var sessions atomic.Int32
	m, f := newTestManager(time.Hour, &sessions)
	require.NoError(t, m.Ensure(context.Background(), desktop()))
	sessions.Store(3)

	require.NoError(t, m.Close())
	assert.Equal(t, int32(1), f.all()[0].stopped.Load())
	assert.NoError(t, m.Close())
}

func TestKeyNormalizesCodec(t *testing.T) {
	t.Parallel()
	a := desktop()
	b := desktop()
	b.Codec = " H264 "
	assert.Equal(t, a.Key(), b.Key())

	b.HostAudio = true
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestReason(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Reason(nil))
	assert.Equal(t, ReasonUnknown, Reason(errors.New("boom")))
	assert.Equal(t, ReasonInvalidCodec, Reason(fmt.Errorf("wrapped: %w", ErrInvalidCodec)))
}
