package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultInterval between scheduled sweeps.
const DefaultInterval = 6 * time.Hour

// Sweeper runs one reverification pass.
type Sweeper interface {
	RunScheduledReverification(ctx context.Context) (SweepResult, error)
}

// Ticker abstracts time.Ticker so tests can drive the loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// Scheduler runs a sweep at start and then on every tick until its context
// is cancelled. A failed sweep is logged and the loop continues.
type Scheduler struct {
	sweeper   Sweeper
	interval  time.Duration
	logger    *slog.Logger
	newTicker func(time.Duration) Ticker
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithTicker(newTicker func(time.Duration) Ticker) SchedulerOption {
	return func(s *Scheduler) {
		s.newTicker = newTicker
	}
}

func NewScheduler(sweeper Sweeper, interval time.Duration, opts ...SchedulerOption) (*Scheduler, error) {
	if sweeper == nil {
		return nil, errors.New("sweeper is required")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	s := &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		newTicker: func(d time.Duration) Ticker {
			return timeTicker{t: time.NewTicker(d)}
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Run blocks until ctx is done and returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.newTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ticker.C():
			s.runOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result, err := s.sweeper.RunScheduledReverification(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "reverification sweep failed", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "reverification sweep finished",
		"checked", result.Checked,
		"revoked", result.Revoked,
		"deferred", result.Deferred,
	)
}
