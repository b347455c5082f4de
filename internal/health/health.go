// Package health tracks the health of the server's components and reports an
// overall status to the HTTP probes and the gRPC health service.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates that the component is healthy
	StatusUp Status = "up"
	// StatusDown indicates that the component is unhealthy
	StatusDown Status = "down"
	// StatusDegraded indicates that the component is partially healthy
	StatusDegraded Status = "degraded"
)

// Component represents a component that can be health checked
type Component struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// CheckFunc reports the status of one component.
type CheckFunc func(ctx context.Context) (Status, error)

// Checker runs registered checks periodically and caches their results.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	checks     map[string]CheckFunc
	updatedAt  time.Time
	listeners  []func(Status)

	period  time.Duration
	timeout time.Duration
	log     *slog.Logger
}

// NewChecker creates a checker that runs every period.
func NewChecker(period time.Duration, log *slog.Logger) *Checker {
	if period <= 0 {
		period = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		components: make(map[string]*Component),
		checks:     make(map[string]CheckFunc),
		period:     period,
		timeout:    5 * time.Second,
		log:        log.With("component", "health"),
	}
}

// Register registers a component. It reports down until its first check.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components[name] = &Component{Name: name, Status: StatusDown}
	c.checks[name] = check
}

// OnChange registers fn to be called with the overall status after every
// round of checks.
func (c *Checker) OnChange(fn func(Status)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Run checks every component until ctx ends.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	c.CheckNow(ctx)
	for {
		select {
		case <-ticker.C:
			c.CheckNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckNow runs every check in parallel and returns the overall status.
func (c *Checker) CheckNow(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	type result struct {
		name   string
		status Status
		err    error
	}
	results := make(chan result, len(checks))

	var wg sync.WaitGroup
	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			status, err := fn(ctx)
			results <- result{name: name, status: status, err: err}
		}(name, fn)
	}
	wg.Wait()
	close(results)

	c.mu.Lock()
	for r := range results {
		comp, ok := c.components[r.name]
		if !ok {
			continue
		}
		if comp.Status != r.status {
			c.log.Info("Component status changed", "name", r.name, "from", comp.Status, "to", r.status, "error", r.err)
		}
		comp.Status = r.status
		comp.Error = ""
		if r.err != nil {
			comp.Error = r.err.Error()
		}
	}
	c.updatedAt = time.Now()
	overall := c.overallLocked()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(overall)
	}
	return overall
}

// Component returns the cached status of one component.
func (c *Checker) Component(name string) (Component, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	comp, ok := c.components[name]
	if !ok {
		return Component{}, fmt.Errorf("component not found: %s", name)
	}
	return *comp, nil
}

// Components returns the cached status of every component ordered by name.
func (c *Checker) Components() []Component {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Component, 0, len(c.components))
	for _, comp := range c.components {
		out = append(out, *comp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Overall returns the overall status: down with no components, degraded when
// any component is not up.
func (c *Checker) Overall() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.overallLocked()
}

func (c *Checker) overallLocked() Status {
	if len(c.components) == 0 {
		return StatusDown
	}
	for _, comp := range c.components {
		if comp.Status != StatusUp {
			return StatusDegraded
		}
	}
	return StatusUp
}

// UpdatedAt returns when the checks last ran.
func (c *Checker) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Static returns a check that always reports up.
func Static() CheckFunc {
	return func(context.Context) (Status, error) { return StatusUp, nil }
}

// Bool returns a check that reports up while ok returns true.
func Bool(ok func() bool, reason string) CheckFunc {
	return func(context.Context) (Status, error) {
		if ok() {
			return StatusUp, nil
		}
		return StatusDown, errors.New(reason)
	}
}
