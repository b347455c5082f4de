// Package pacing decides when, and whether, each queued encoded video frame
// of a session is handed to the media engine.
//
// A Pacer maps capture timestamps onto a wall-clock send schedule through an
// anchor (capture time, send time) pair, detects backlog and timestamp drift,
// gates delivery on keyframes after any loss, and bounds the number of frames
// in flight inside the media engine.
package pacing

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the steady-state delivery policy.
type Mode string

const (
	// ModeLatency sends the newest queued frame immediately and drops the rest.
	ModeLatency Mode = "latency"

	// ModeBalanced paces frames and collapses a backlog to its newest frame.
	ModeBalanced Mode = "balanced"

	// ModeSmoothness paces frames and never drops a backlog proactively.
	ModeSmoothness Mode = "smoothness"
)

// ParseMode parses a pacing mode name. The empty string selects balanced.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLatency:
		return ModeLatency, nil
	case ModeBalanced, "":
		return ModeBalanced, nil
	case ModeSmoothness:
		return ModeSmoothness, nil
	}
	return "", fmt.Errorf("unknown pacing mode %q", s)
}

// Default timing constants.
const (
	DefaultKeyframeRequestInterval = 250 * time.Millisecond
	DefaultResyncInterval          = time.Second
	DefaultFPS                     = 60
)

// Config is the per-session pacing configuration.
type Config struct {
	Mode          Mode
	FrameInterval time.Duration
	Slack         time.Duration

	// MaxFrameAge bounds how old a queued frame may get and how far a
	// computed target may stray from now. Zero derives it from MaxAgeFrames.
	MaxFrameAge  time.Duration
	MaxAgeFrames int

	KeyframeRequestInterval time.Duration
	ResyncInterval          time.Duration
}

// DefaultConfig returns the defaults for mode at the given frame rate.
func DefaultConfig(mode Mode, fps int) Config {
	if fps <= 0 {
		fps = DefaultFPS
	}
	cfg := Config{
		Mode:                    mode,
		FrameInterval:           time.Second / time.Duration(fps),
		KeyframeRequestInterval: DefaultKeyframeRequestInterval,
		ResyncInterval:          DefaultResyncInterval,
	}
	switch mode {
	case ModeLatency:
		cfg.Slack = time.Millisecond
		cfg.MaxAgeFrames = 1
	case ModeSmoothness:
		cfg.Slack = 8 * time.Millisecond
		cfg.MaxAgeFrames = 6
	default:
		cfg.Mode = ModeBalanced
		cfg.Slack = 4 * time.Millisecond
		cfg.MaxAgeFrames = 3
	}
	return cfg
}

func (c Config) ageFrames() int {
	if c.MaxAgeFrames < 1 {
		return 1
	}
	return c.MaxAgeFrames
}

// maxFrameAge is the resolved age bound used for backlog and drift checks.
func (c Config) maxFrameAge() time.Duration {
	if c.MaxFrameAge > 0 {
		return c.MaxFrameAge
	}
	age := time.Duration(c.ageFrames()) * c.FrameInterval
	if age <= 0 {
		age = time.Duration(c.ageFrames()) * time.Second / DefaultFPS
	}
	return age
}

// staleBound is the age beyond which queued frames are discarded outright.
// Smoothness only discards when a bound was configured explicitly.
func (c Config) staleBound() time.Duration {
	if c.Mode == ModeSmoothness {
		return c.MaxFrameAge
	}
	return c.maxFrameAge()
}

// MaxInFlight returns how many frames may be outstanding in the media engine
// before the next one is dropped. Keyframes get extra room since they are
// larger and take longer to packetize.
func (c Config) MaxInFlight(keyframe bool) int {
	n := 2 * c.ageFrames()
	if keyframe {
		n += c.ageFrames() + 1
	}
	return n
}

// AudioBudget returns how many audio frames of frameDuration fit into
// maxAge. A session whose audio queue holds more is dropped wholesale.
func AudioBudget(maxAge, frameDuration time.Duration) int {
	if maxAge <= 0 || frameDuration <= 0 {
		return 1 << 30
	}
	n := int((maxAge + frameDuration - 1) / frameDuration)
	if n < 1 {
		n = 1
	}
	return n
}
