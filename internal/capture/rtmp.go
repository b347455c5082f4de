package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/nareix/joy4/format/rtmp"

	"github.com/Harshitk-cp/hivecast/internal/media"
)

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// RTMP pulls an H.264 stream from an RTMP server and submits it as Annex-B
// access units. Audio tracks are ignored.
type RTMP struct {
	app AppConfig
	log *slog.Logger

	conn     *rtmp.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	keyframeRequests atomic.Uint64
}

// NewRTMP creates an RTMP pull pipeline.
func NewRTMP(app AppConfig, log *slog.Logger) *RTMP {
	if app.DialTimeout <= 0 {
		app.DialTimeout = 5 * time.Second
	}
	return &RTMP{app: app, log: log, done: make(chan struct{})}
}

// Start connects to the source and starts reading packets.
func (r *RTMP) Start(ctx context.Context, cfg Config, sink Sink) error {
	if cfg.Key().Codec != CodecH264 {
		return fmt.Errorf("%w: rtmp sources carry h264 only", ErrInvalidCodec)
	}

	conn, err := rtmp.DialTimeout(r.app.URL, r.app.DialTimeout)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", r.app.URL, err)
	}

	streams, err := conn.Streams()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to read stream headers: %w", err)
	}

	videoIdx := -1
	var codec h264parser.CodecData
	for i, s := range streams {
		if c, ok := s.(h264parser.CodecData); ok {
			videoIdx = i
			codec = c
			break
		}
	}
	if videoIdx < 0 {
		conn.Close()
		return errors.New("source has no h264 video stream")
	}

	r.conn = conn
	ctx, r.cancel = context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go r.readLoop(int8(videoIdx), codec, sink)

	r.log.Info("RTMP capture started",
		"url", r.app.URL,
		"width", codec.Width(),
		"height", codec.Height(),
	)
	return nil
}

// Stop closes the connection and waits for the read loop to exit.
func (r *RTMP) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel == nil {
			return
		}
		r.cancel()
		<-r.done
		r.log.Info("RTMP capture stopped", "keyframe_requests", r.keyframeRequests.Load())
	})
}

// RequestKeyframe is recorded only; an RTMP source cannot be asked for an IDR
// and the next GOP boundary resynchronizes the receiver.
func (r *RTMP) RequestKeyframe() {
	r.keyframeRequests.Add(1)
}

func (r *RTMP) readLoop(videoIdx int8, codec h264parser.CodecData, sink Sink) {
	defer close(r.done)

	var index uint64
	for {
		pkt, err := r.conn.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.log.Info("RTMP source ended")
			} else {
				r.log.Warn("RTMP read failed", "error", err)
			}
			return
		}
		if pkt.Idx != videoIdx {
			continue
		}

		sink.SubmitVideoPacket(media.VideoPacket{
			Payload:        media.NewPayload(toAnnexB(pkt, codec)),
			FrameIndex:     index,
			Keyframe:       pkt.IsKeyFrame,
			CaptureTime:    pkt.Time + pkt.CompositionTime,
			HasCaptureTime: true,
		})
		index++
	}
}

// toAnnexB converts an AVCC packet to Annex-B, prepending SPS and PPS on
// keyframes so every IDR is independently decodable.
func toAnnexB(pkt av.Packet, codec h264parser.CodecData) []byte {
	nalus, _ := h264parser.SplitNALUs(pkt.Data)

	size := 0
	for _, n := range nalus {
		size += len(annexBStartCode) + len(n)
	}
	if pkt.IsKeyFrame {
		size += 2*len(annexBStartCode) + len(codec.SPS()) + len(codec.PPS())
	}

	out := make([]byte, 0, size)
	if pkt.IsKeyFrame {
		out = append(out, annexBStartCode...)
		out = append(out, codec.SPS()...)
		out = append(out, annexBStartCode...)
		out = append(out, codec.PPS()...)
	}
	for _, n := range nalus {
		out = append(out, annexBStartCode...)
		out = append(out, n...)
	}
	return out
}
