package capture

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/hivecast/internal/media"
)

type recordingSink struct {
	mu     sync.Mutex
	video  []media.VideoPacket
	audio  []media.AudioFrame
	frames int
}

func (s *recordingSink) SubmitVideoPacket(p media.VideoPacket) {
	s.mu.Lock()
	s.video = append(s.video, p)
	s.mu.Unlock()
}

func (s *recordingSink) SubmitVideoFrame(media.RawVideoFrame) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}

func (s *recordingSink) SubmitAudioFrame(f media.AudioFrame) {
	s.mu.Lock()
	s.audio = append(s.audio, f)
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() ([]media.VideoPacket, []media.AudioFrame, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]media.VideoPacket(nil), s.video...), append([]media.AudioFrame(nil), s.audio...), s.frames
}

func TestSyntheticProducesKeyframeFirst(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	p := NewSynthetic(AppConfig{KeyframeInterval: time.Hour, RawFrames: true}, slog.Default())

	cfg := desktop()
	cfg.FPS = 100
	require.NoError(t, p.Start(context.Background(), cfg, sink))
	defer p.Stop()

	require.Eventually(t, func() bool {
		v, a, raw := sink.snapshot()
		return len(v) >= 3 && len(a) >= 1 && raw >= 1
	}, 2*time.Second, 5*time.Millisecond)

	v, a, _ := sink.snapshot()
	assert.True(t, v[0].Keyframe)
	assert.False(t, v[1].Keyframe)
	assert.Equal(t, uint64(1), v[1].FrameIndex)
	assert.True(t, v[1].CaptureTime > v[0].CaptureTime)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 0x65}, v[0].Payload.Bytes()[:5])
	assert.True(t, a[0].Encoded)
	assert.Equal(t, 2, a[0].Channels)
	assert.Equal(t, 20*time.Millisecond, a[0].Duration())
}

func TestSyntheticHonorsKeyframeRequest(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	p := NewSynthetic(AppConfig{KeyframeInterval: time.Hour}, slog.Default())

	cfg := desktop()
	cfg.FPS = 100
	require.NoError(t, p.Start(context.Background(), cfg, sink))

	require.Eventually(t, func() bool {
		v, _, _ := sink.snapshot()
		return len(v) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	p.RequestKeyframe()
	require.Eventually(t, func() bool {
		v, _, _ := sink.snapshot()
		keys := 0
		for _, pkt := range v {
			if pkt.Keyframe {
				keys++
			}
		}
		return keys >= 2
	}, 2*time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry(map[string]AppConfig{
		"desktop": {Source: SourceSynthetic},
		"camera":  {Source: SourceRTMP, URL: "rtmp://localhost/live/cam"},
		"broken":  {Source: SourceRTMP},
		"odd":     {Source: "v4l2"},
	}, nil)

	p, err := r.New("desktop")
	require.NoError(t, err)
	assert.IsType(t, &Synthetic{}, p)

	p, err = r.New("camera")
	require.NoError(t, err)
	assert.IsType(t, &RTMP{}, p)

	for _, app := range []string{"broken", "odd", "nope"} {
		_, err := r.New(app)
		assert.ErrorIs(t, err, ErrNoApplication, app)
	}
}
