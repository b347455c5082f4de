package input

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Harshitk-cp/hivecast/internal/metrics"
)

// DefaultLabel is the expected label of the input data channel.
const DefaultLabel = "input"

// Rejection reasons reported to metrics.
const (
	RejectStaleSequence = "stale_sequence"
	RejectMalformed     = "malformed"
	RejectUnknown       = "unknown"
	RejectInjector      = "injector"
)

// Injector hands native events to the host input subsystem.
type Injector interface {
	Passthrough(ev Event) error
}

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	MouseIdle time.Duration
}

// Channel decodes the messages of one input data channel. It keeps the
// per-channel sequence gate and gamepad slots.
type Channel struct {
	injector Injector
	metrics  metrics.Collector
	log      *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	gate *SeqGate
	pads gamepads
}

// NewChannel creates a decoder for one channel.
func NewChannel(cfg ChannelConfig, injector Injector, collector metrics.Collector, log *slog.Logger) *Channel {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		injector: injector,
		metrics:  collector,
		log:      log,
		now:      time.Now,
		gate:     NewSeqGate(cfg.MouseIdle),
	}
}

// Handle processes one data channel message. Binary messages are mouse moves;
// text messages are JSON control messages. Stale moves are dropped silently
// and are not an error.
func (c *Channel) Handle(data []byte, isString bool) error {
	events, err := c.decode(data, isString)
	if err != nil {
		reason := RejectMalformed
		if errors.Is(err, ErrUnknownMessage) || errors.Is(err, ErrUnknownKey) {
			reason = RejectUnknown
		}
		c.metrics.InputRejected(reason)
		return err
	}

	for _, ev := range events {
		if err := c.injector.Passthrough(ev); err != nil {
			c.metrics.InputRejected(RejectInjector)
			return err
		}
		c.metrics.InputEvent(ev.Kind())
	}
	return nil
}

func (c *Channel) decode(data []byte, isString bool) ([]Event, error) {
	if !isString {
		seq, ev, err := DecodeMouseMove(data)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		ok := c.gate.Accept(seq, c.now())
		c.mu.Unlock()
		if !ok {
			c.metrics.InputRejected(RejectStaleSequence)
			return nil, nil
		}
		return []Event{ev}, nil
	}

	m, err := ParseMessage(data)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return m.translate(&c.pads)
}

// Close releases every controller the channel announced.
func (c *Channel) Close() {
	c.mu.Lock()
	removals := c.pads.removeAll()
	c.mu.Unlock()

	for _, ev := range removals {
		if err := c.injector.Passthrough(ev); err != nil {
			c.log.Warn("Failed to release gamepad", "error", err)
		}
	}
}
