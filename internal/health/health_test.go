package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverallStatus(t *testing.T) {
	t.Parallel()
	c := NewChecker(time.Hour, nil)
	assert.Equal(t, StatusDown, c.Overall())

	var ok atomic.Bool
	c.Register("worker", Bool(ok.Load, "media worker not running"))
	c.Register("http", Static())

	assert.Equal(t, StatusDegraded, c.CheckNow(context.Background()))
	comp, err := c.Component("worker")
	require.NoError(t, err)
	assert.Equal(t, StatusDown, comp.Status)
	assert.Equal(t, "media worker not running", comp.Error)

	ok.Store(true)
	assert.Equal(t, StatusUp, c.CheckNow(context.Background()))
	comp, err = c.Component("worker")
	require.NoError(t, err)
	assert.Empty(t, comp.Error)

	names := []string{}
	for _, comp := range c.Components() {
		names = append(names, comp.Name)
	}
	assert.Equal(t, []string{"http", "worker"}, names)
	assert.False(t, c.UpdatedAt().IsZero())

	_, err = c.Component("missing")
	assert.Error(t, err)
}

func TestOnChangeReceivesOverall(t *testing.T) {
	t.Parallel()
	c := NewChecker(time.Hour, nil)
	c.Register("capture", func(context.Context) (Status, error) {
		return StatusDown, errors.New("no pipeline")
	})

	var got []Status
	c.OnChange(func(s Status) { got = append(got, s) })
	c.CheckNow(context.Background())

	assert.Equal(t, []Status{StatusDegraded}, got)
}

func TestListenersMayRegisterDuringNotify(t *testing.T) {
	t.Parallel()
	c := NewChecker(time.Hour, nil)
	c.Register("http", Static())

	var first, late int
	c.OnChange(func(Status) {
		first++
		if first == 1 {
			c.OnChange(func(Status) { late++ })
		}
	})

	assert.Equal(t, StatusUp, c.CheckNow(context.Background()))
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, late)

	c.CheckNow(context.Background())
	assert.Equal(t, 2, first)
	assert.Equal(t, 1, late)
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()
	c := NewChecker(5*time.Millisecond, nil)
	var calls atomic.Int32
	c.Register("tick", func(context.Context) (Status, error) {
		calls.Add(1)
		return StatusUp, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
