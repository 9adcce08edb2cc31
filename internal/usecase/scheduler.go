package usecase

import (
	"context"
	"errors"

	"FeedBot/internal/ports"
)

// Scheduler wires the cron-like driver with the sweeper.
type Scheduler struct {
	driver  ports.Scheduler
	sweeper *Sweeper
}

// NewScheduler returns a helper to start/stop recurring sweeps.
func NewScheduler(driver ports.Scheduler, sweeper *Sweeper) *Scheduler {
	return &Scheduler{driver: driver, sweeper: sweeper}
}

// Start registers the scheduled sweep with the provided driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.sweeper == nil {
		return nil
	}

	job := func(jobCtx context.Context) {
		if _, err := s.sweeper.RunScheduled(jobCtx); err != nil && !errors.Is(err, ErrSweepInProgress) {
			s.sweeper.logger.Error("scheduled sweep failed", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
