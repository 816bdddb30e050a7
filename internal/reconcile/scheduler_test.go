package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	runs atomic.Int32
	err  error
}

func (c *countingSweeper) RunScheduledReverification(context.Context) (SweepResult, error) {
	c.runs.Add(1)
	return SweepResult{}, c.err
}

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

func TestSchedulerRunsAtStartAndOnEachTick(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("index down")}
	ticker := &manualTicker{ch: make(chan time.Time)}
	var interval time.Duration
	s, err := NewScheduler(sweeper, time.Hour, WithTicker(func(d time.Duration) Ticker {
		interval = d
		return ticker
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return sweeper.runs.Load() == 1 }, time.Second, time.Millisecond)
	ticker.ch <- time.Now()
	ticker.ch <- time.Now()
	assert.Eventually(t, func() bool { return sweeper.runs.Load() == 3 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.True(t, ticker.stopped.Load())
	assert.Equal(t, time.Hour, interval)
}

func TestNewSchedulerValidates(t *testing.T) {
	_, err := NewScheduler(nil, time.Hour)
	assert.ErrorContains(t, err, "sweeper is required")

	_, err = NewScheduler(&countingSweeper{}, 0)
	assert.ErrorContains(t, err, "interval must be positive")
}
