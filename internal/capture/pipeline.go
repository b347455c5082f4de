package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Harshitk-cp/hivecast/internal/media"
)

// Sink receives everything a running pipeline produces. Implementations must
// not block.
type Sink interface {
	SubmitVideoPacket(pkt media.VideoPacket)
	SubmitVideoFrame(frame media.RawVideoFrame)
	SubmitAudioFrame(frame media.AudioFrame)
}

// Pipeline is a capture and encode pipeline. Start returns once the encoder is
// initialized; production continues on the pipeline's own goroutines until
// Stop is called or ctx is cancelled.
type Pipeline interface {
	Start(ctx context.Context, cfg Config, sink Sink) error
	Stop()
	RequestKeyframe()
}

// Factory creates a pipeline for an application.
type Factory interface {
	New(app string) (Pipeline, error)
}

// Pipeline sources.
const (
	SourceSynthetic = "synthetic"
	SourceRTMP      = "rtmp"
)

// AppConfig describes how an application's output is captured.
type AppConfig struct {
	Source           string
	URL              string
	KeyframeInterval time.Duration
	DialTimeout      time.Duration
	RawFrames        bool
}

// Registry is a Factory backed by a fixed set of applications.
type Registry struct {
	apps map[string]AppConfig
	log  *slog.Logger
}

// NewRegistry creates a registry over apps.
func NewRegistry(apps map[string]AppConfig, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{apps: apps, log: log}
}

// New creates a pipeline for app.
func (r *Registry) New(app string) (Pipeline, error) {
	ac, ok := r.apps[app]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoApplication, app)
	}
	switch ac.Source {
	case SourceSynthetic, "":
		return NewSynthetic(ac, r.log.With("app", app)), nil
	case SourceRTMP:
		if ac.URL == "" {
			return nil, fmt.Errorf("%w: app %q has no rtmp url", ErrNoApplication, app)
		}
		return NewRTMP(ac, r.log.With("app", app)), nil
	}
	return nil, fmt.Errorf("%w: app %q has unknown source %q", ErrNoApplication, app, ac.Source)
}
