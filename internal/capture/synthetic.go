package capture

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/hivecast/internal/media"
)

const (
	syntheticAudioRate     = 48000
	syntheticAudioInterval = 20 * time.Millisecond
)

// opusSilence is a single 20ms Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Synthetic produces a test pattern: Annex-B framed video access units at the
// configured rate and Opus silence.
type Synthetic struct {
	app AppConfig
	log *slog.Logger

	forceKey atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSynthetic creates a synthetic pipeline.
func NewSynthetic(app AppConfig, log *slog.Logger) *Synthetic {
	if app.KeyframeInterval <= 0 {
		app.KeyframeInterval = 2 * time.Second
	}
	return &Synthetic{app: app, log: log}
}

// Start starts producing frames.
func (s *Synthetic) Start(ctx context.Context, cfg Config, sink Sink) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.forceKey.Store(true)

	s.wg.Add(2)
	go s.produceVideo(ctx, cfg, sink)
	go s.produceAudio(ctx, cfg, sink)

	s.log.Info("Synthetic capture started", "key", cfg.Key().String())
	return nil
}

// Stop stops the producers and waits for them to exit.
func (s *Synthetic) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.log.Info("Synthetic capture stopped")
	})
}

// RequestKeyframe makes the next produced frame a keyframe.
func (s *Synthetic) RequestKeyframe() {
	s.forceKey.Store(true)
}

func (s *Synthetic) produceVideo(ctx context.Context, cfg Config, sink Sink) {
	defer s.wg.Done()

	interval := time.Second / time.Duration(cfg.FPS)
	gop := uint64(s.app.KeyframeInterval / interval)
	if gop == 0 {
		gop = 1
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	var index uint64
	for {
		select {
		case <-ticker.C:
			key := s.forceKey.Swap(false) || index%gop == 0
			sink.SubmitVideoPacket(media.VideoPacket{
				Payload:        media.NewPayload(testPattern(index, key, cfg.Bitrate/cfg.FPS/8)),
				FrameIndex:     index,
				Keyframe:       key,
				CaptureTime:    time.Since(start),
				HasCaptureTime: true,
			})
			if s.app.RawFrames {
				sink.SubmitVideoFrame(media.RawVideoFrame{
					Data:   media.NewPayload(make([]byte, cfg.Width*4)),
					Width:  cfg.Width,
					Height: 1,
					Stride: cfg.Width * 4,
					Format: "bgra",
				})
			}
			index++
		case <-ctx.Done():
			return
		}
	}
}

func (s *Synthetic) produceAudio(ctx context.Context, cfg Config, sink Sink) {
	defer s.wg.Done()

	channels := cfg.AudioChannels
	if channels <= 0 {
		return
	}
	ticker := time.NewTicker(syntheticAudioInterval)
	defer ticker.Stop()

	frameCount := int(syntheticAudioRate * syntheticAudioInterval / time.Second)
	for {
		select {
		case <-ticker.C:
			sink.SubmitAudioFrame(media.AudioFrame{
				Data:       media.NewPayload(opusSilence),
				SampleRate: syntheticAudioRate,
				Channels:   channels,
				FrameCount: frameCount,
				Encoded:    true,
			})
		case <-ctx.Done():
			return
		}
	}
}

// testPattern builds an Annex-B access unit of roughly size bytes carrying the
// frame index. Keyframes use an IDR slice header, others a non-IDR slice.
func testPattern(index uint64, key bool, size int) []byte {
	if size < 16 {
		size = 16
	}
	if size > 64*1024 {
		size = 64 * 1024
	}
	b := make([]byte, size)
	copy(b, []byte{0x00, 0x00, 0x00, 0x01})
	if key {
		b[4] = 0x65
	} else {
		b[4] = 0x41
	}
	binary.BigEndian.PutUint64(b[5:13], index)
	for i := 13; i < len(b); i++ {
		// Avoid emulating a start code inside the payload.
		b[i] = byte(i%251) | 0x01
	}
	return b
}
