// Package capture owns the single active capture pipeline: which application
// is captured with which parameters, when the pipeline starts and restarts,
// and the deferred teardown once no session needs it anymore.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Harshitk-cp/hivecast/internal/metrics"
)

// DefaultIdleGrace is how long an unused pipeline keeps running.
const DefaultIdleGrace = 3 * time.Minute

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	IdleGrace time.Duration
}

// State is a snapshot of the manager.
type State struct {
	Active    bool   `json:"active"`
	Key       Key    `json:"key"`
	IdleToken uint64 `json:"idle_token"`
	Starts    uint64 `json:"starts"`
	Stops     uint64 `json:"stops"`
}

// Manager is the Capture Lifecycle Manager.
//
// lifecycle serializes pipeline starts and stops, which may block. mu guards
// the active flag, key and idle token and is never held across a pipeline call.
type Manager struct {
	log      *slog.Logger
	factory  Factory
	legacy   *LegacyGate
	sink     Sink
	sessions func() int
	metrics  metrics.Collector
	grace    time.Duration

	lifecycle sync.Mutex

	mu        sync.Mutex
	active    bool
	key       Key
	pipeline  Pipeline
	cancel    context.CancelFunc
	idleToken uint64
	starts    uint64
	stops     uint64
}

// NewManager creates a manager. sessions reports the number of live sessions;
// it is called without the manager's locks held.
func NewManager(cfg ManagerConfig, factory Factory, legacy *LegacyGate, sink Sink, sessions func() int, collector metrics.Collector, log *slog.Logger) *Manager {
	if cfg.IdleGrace <= 0 {
		cfg.IdleGrace = DefaultIdleGrace
	}
	if legacy == nil {
		legacy = &LegacyGate{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "capture"),
		factory:  factory,
		legacy:   legacy,
		sink:     sink,
		sessions: sessions,
		metrics:  collector,
		grace:    cfg.IdleGrace,
	}
}

// Legacy returns the legacy coordination gate.
func (m *Manager) Legacy() *LegacyGate { return m.legacy }

// Ensure starts the pipeline for cfg unless one with the same key already
// runs. A running pipeline with a different key is stopped first. Any pending
// idle teardown is cancelled.
func (m *Manager) Ensure(ctx context.Context, cfg Config) error {
	err := m.ensure(ctx, cfg)
	if err != nil {
		m.metrics.CaptureFailed(Reason(err))
	}
	return err
}

func (m *Manager) ensure(ctx context.Context, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if active, app := m.legacy.Active(); active && app != cfg.App {
		return fmt.Errorf("%w: running %q", ErrLegacySessionActive, app)
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	key := cfg.Key()

	m.mu.Lock()
	m.idleToken++
	if m.active && m.key == key {
		m.mu.Unlock()
		return nil
	}
	old, oldKey, oldCancel := m.pipeline, m.key, m.cancel
	m.clearLocked()
	m.mu.Unlock()

	if old != nil {
		m.log.Info("Restarting capture with new configuration", "old", oldKey.String(), "new", key.String())
		m.stopPipeline(old, oldCancel, oldKey)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := m.factory.New(cfg.App)
	if err != nil {
		return err
	}

	// The pipeline outlives the request that started it.
	runCtx, cancel := context.WithCancel(context.Background())
	if err := p.Start(runCtx, cfg, m.sink); err != nil {
		cancel()
		if Reason(err) == ReasonUnknown {
			err = fmt.Errorf("%w: %w", ErrEncoderInit, err)
		}
		m.log.Error("Failed to start capture", "key", key.String(), "error", err)
		return err
	}

	m.mu.Lock()
	m.active = true
	m.key = key
	m.pipeline = p
	m.cancel = cancel
	m.starts++
	m.mu.Unlock()

	m.metrics.CaptureStarted(cfg.App)
	m.log.Info("Capture started", "key", key.String())
	return nil
}

// StopIfIdle stops the pipeline when no session remains and no legacy session
// is active. It reports whether a pipeline was stopped.
func (m *Manager) StopIfIdle() bool {
	return m.stopIfIdle(nil)
}

// ScheduleIdleStop arranges for StopIfIdle to run after the grace period. A
// later Ensure or ScheduleIdleStop supersedes it.
func (m *Manager) ScheduleIdleStop() {
	m.mu.Lock()
	m.idleToken++
	token := m.idleToken
	active := m.active
	m.mu.Unlock()

	if !active {
		return
	}
	m.log.Debug("Scheduling idle capture stop", "grace", m.grace, "token", token)
	time.AfterFunc(m.grace, func() {
		m.stopIfIdle(&token)
	})
}

func (m *Manager) stopIfIdle(token *uint64) bool {
	if m.sessions != nil && m.sessions() > 0 {
		return false
	}
	if active, _ := m.legacy.Active(); active {
		return false
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if !m.active || (token != nil && *token != m.idleToken) {
		m.mu.Unlock()
		return false
	}
	p, key, cancel := m.pipeline, m.key, m.cancel
	m.clearLocked()
	m.mu.Unlock()

	m.log.Info("Stopping idle capture", "key", key.String())
	m.stopPipeline(p, cancel, key)
	return true
}

// RequestKeyframe forwards a keyframe request to the running pipeline.
func (m *Manager) RequestKeyframe() {
	m.mu.Lock()
	p := m.pipeline
	m.mu.Unlock()

	if p != nil {
		p.RequestKeyframe()
	}
}

// State returns a snapshot of the manager.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Active:    m.active,
		Key:       m.key,
		IdleToken: m.idleToken,
		Starts:    m.starts,
		Stops:     m.stops,
	}
}

// Close stops the pipeline unconditionally.
func (m *Manager) Close() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	m.idleToken++
	p, key, cancel := m.pipeline, m.key, m.cancel
	m.clearLocked()
	m.mu.Unlock()

	if p == nil {
		return nil
	}
	m.stopPipeline(p, cancel, key)
	return nil
}

func (m *Manager) clearLocked() {
	if m.pipeline != nil {
		m.stops++
	}
	m.active = false
	m.key = Key{}
	m.pipeline = nil
	m.cancel = nil
}

func (m *Manager) stopPipeline(p Pipeline, cancel context.CancelFunc, key Key) {
	p.Stop()
	if cancel != nil {
		cancel()
	}
	m.metrics.CaptureStopped(key.App)
}
