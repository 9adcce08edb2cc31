package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"FeedBot/internal/ports"
)

// CronScheduler runs a job on a cron spec. Overlapping runs are skipped
// and panics are recovered and logged.
type CronScheduler struct {
	spec       string
	location   *time.Location
	runOnStart bool
	logger     *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// Options configures a CronScheduler.
type Options struct {
	Spec       string
	Location   *time.Location
	RunOnStart bool
	Logger     *slog.Logger
}

// NewCronScheduler builds a scheduler configured via cron expression string.
func NewCronScheduler(opts Options) *CronScheduler {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CronScheduler{
		spec:       opts.Spec,
		location:   loc,
		runOnStart: opts.RunOnStart,
		logger:     logger,
	}
}

// Start registers the job and begins ticking until ctx is done or Stop is called.
func (c *CronScheduler) Start(ctx context.Context, job func(context.Context)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(c.logger.Handler(), slog.LevelWarn))
	cr := cron.New(cron.WithLocation(c.location), cron.WithLogger(cronLogger))
	// The run-on-start call shares the skip guard with ticks.
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cronLogger), cron.Recover(cronLogger)).
		Then(cron.FuncJob(func() { job(ctx) }))

	if _, err := cr.AddJob(c.spec, wrapped); err != nil {
		return fmt.Errorf("schedule %q: %w", c.spec, err)
	}

	cr.Start()
	c.cron = cr
	c.logger.Info("scheduler started", "spec", c.spec, "location", c.location.String())

	if c.runOnStart {
		go wrapped.Run()
	}

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()

	return nil
}

// Stop halts ticking and waits for a running job, bounded by ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()

	if cr == nil {
		return nil
	}

	done := cr.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
