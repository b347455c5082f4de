package capture

import "sync"

// LegacyGate is the shared flag through which the legacy streaming subsystem
// announces that it owns the capture pipeline.
type LegacyGate struct {
	mu     sync.RWMutex
	active bool
	app    string
}

// Set marks a legacy session as active for app.
func (g *LegacyGate) Set(app string) {
	g.mu.Lock()
	g.active = true
	g.app = app
	g.mu.Unlock()
}

// Clear marks the legacy session as gone.
func (g *LegacyGate) Clear() {
	g.mu.Lock()
	g.active = false
	g.app = ""
	g.mu.Unlock()
}

// Active reports whether a legacy session is active and which app it runs.
func (g *LegacyGate) Active() (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active, g.app
}
