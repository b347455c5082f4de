package metrics

import (
	"net/http"
	"time"
)

// Nop is a Collector that records nothing.
type Nop struct{}

var _ Collector = Nop{}

func (Nop) SessionCreated() {}
func (Nop) SessionClosed() {}
func (Nop) PeerStateChanged(string) {}
func (Nop) OfferFailed(string) {}
func (Nop) FrameSent(string, int) {}
func (Nop) FrameDropped(string, string, int) {}
func (Nop) FrameSkipped(int) {}
func (Nop) PacingLag(time.Duration) {}
func (Nop) KeyframeRequested(string) {}
func (Nop) DriftReset() {}
func (Nop) CaptureStarted(string) {}
func (Nop) CaptureStopped(string) {}
func (Nop) CaptureFailed(string) {}
func (Nop) InputEvent(string) {}
func (Nop) InputRejected(string) {}
func (Nop) FeedbackSent(string, int) {}

// Handler returns a handler that answers 404.
func (Nop) Handler() http.Handler { return http.NotFoundHandler() }
