package capture

import (
	"fmt"
	"strings"
)

// Supported codec identifiers.
const (
	CodecH264 = "h264"
	CodecVP8  = "vp8"
	CodecVP9  = "vp9"
	CodecAV1  = "av1"
)

// Display limits accepted by the pipelines.
const (
	MaxWidth  = 7680
	MaxHeight = 4320
	MaxFPS    = 240
)

// Config describes the capture a session asks for.
type Config struct {
	App            string `json:"app"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	FPS            int    `json:"fps"`
	Bitrate        int    `json:"bitrate"`
	Codec          string `json:"codec"`
	HDR            bool   `json:"hdr"`
	ChromaSampling string `json:"chroma_sampling"`
	AudioChannels  int    `json:"audio_channels"`
	HostAudio      bool   `json:"host_audio"`
}

// Key is the part of a Config that requires a full pipeline restart when it
// changes. Two sessions whose keys compare equal share one pipeline.
type Key struct {
	App            string
	Width          int
	Height         int
	FPS            int
	Bitrate        int
	Codec          string
	HDR            bool
	ChromaSampling string
	AudioChannels  int
	HostAudio      bool
}

// Key returns the restart key of c.
func (c Config) Key() Key {
	return Key{
		App:            c.App,
		Width:          c.Width,
		Height:         c.Height,
		FPS:            c.FPS,
		Bitrate:        c.Bitrate,
		Codec:          normalizeCodec(c.Codec),
		HDR:            c.HDR,
		ChromaSampling: c.ChromaSampling,
		AudioChannels:  c.AudioChannels,
		HostAudio:      c.HostAudio,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s %dx%d@%d %s %dbps hdr=%t chroma=%s ch=%d host_audio=%t",
		k.App, k.Width, k.Height, k.FPS, k.Codec, k.Bitrate, k.HDR, k.ChromaSampling, k.AudioChannels, k.HostAudio)
}

func normalizeCodec(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

// validate checks the request before any pipeline work starts.
func (c Config) validate() error {
	switch normalizeCodec(c.Codec) {
	case CodecH264, CodecVP8, CodecVP9, CodecAV1:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCodec, c.Codec)
	}
	if c.HDR && normalizeCodec(c.Codec) == CodecVP8 {
		return fmt.Errorf("%w: vp8 has no hdr profile", ErrInvalidCodec)
	}
	if c.Width <= 0 || c.Height <= 0 || c.Width > MaxWidth || c.Height > MaxHeight {
		return fmt.Errorf("%w: unsupported resolution %dx%d", ErrDisplayConfig, c.Width, c.Height)
	}
	if c.FPS <= 0 || c.FPS > MaxFPS {
		return fmt.Errorf("%w: unsupported frame rate %d", ErrDisplayConfig, c.FPS)
	}
	return nil
}
