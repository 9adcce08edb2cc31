package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"FeedBot/internal/config"
	"FeedBot/internal/domain"
	"FeedBot/internal/metrics"
)

var (
	// ErrSweepInProgress is returned to a scheduled trigger that found another sweep running.
	ErrSweepInProgress = errors.New("sweep already in progress")
	// ErrUnknownChannel is returned for a manual sweep of a channel that is not configured.
	ErrUnknownChannel = errors.New("unknown channel")
)

// Sweeper serializes sweeps across triggers. Scheduled sweeps skip while
// another sweep runs; manual sweeps wait for it.
type Sweeper struct {
	pipeline *Pipeline
	channels []config.ChannelConfig
	sem      *semaphore.Weighted
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper builds a sweeper over the configured channels.
func NewSweeper(pipeline *Pipeline, channels []config.ChannelConfig, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		pipeline: pipeline,
		channels: channels,
		sem:      semaphore.NewWeighted(1),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// RunScheduled sweeps every channel unless a sweep is already running.
func (s *Sweeper) RunScheduled(ctx context.Context) (domain.SweepReport, error) {
	if !s.sem.TryAcquire(1) {
		s.metrics.SweepSkipped()
		s.logger.Warn("scheduled sweep skipped, previous sweep still running")
		return domain.SweepReport{}, ErrSweepInProgress
	}
	defer s.sem.Release(1)

	return s.sweep(ctx, domain.TriggerScheduled, s.channels), nil
}

// RunManual sweeps the given channels, or all of them when none are named.
// It waits for a running sweep to finish first; ctx bounds only that wait.
func (s *Sweeper) RunManual(ctx context.Context, channelIDs ...string) (domain.SweepReport, error) {
	channels, err := s.selectChannels(channelIDs)
	if err != nil {
		return domain.SweepReport{}, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return domain.SweepReport{}, fmt.Errorf("wait for running sweep: %w", err)
	}
	defer s.sem.Release(1)

	return s.sweep(ctx, domain.TriggerManual, channels), nil
}

func (s *Sweeper) selectChannels(ids []string) ([]config.ChannelConfig, error) {
	if len(ids) == 0 {
		return s.channels, nil
	}
	selected := make([]config.ChannelConfig, 0, len(ids))
	for _, id := range ids {
		found := false
		for _, ch := range s.channels {
			if ch.ID == id {
				selected = append(selected, ch)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, id)
		}
	}
	return selected, nil
}

func (s *Sweeper) sweep(ctx context.Context, trigger domain.Trigger, channels []config.ChannelConfig) domain.SweepReport {
	report := domain.SweepReport{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: s.now(),
	}
	logger := s.logger.With("sweep", report.ID, "trigger", trigger)
	logger.Info("sweep started", "channels", len(channels))

	// A started sweep runs to completion; fetches stay bounded by the client timeout.
	report.Channels = s.pipeline.ProcessChannels(context.WithoutCancel(ctx), channels)
	report.FinishedAt = s.now()

	elapsed := report.FinishedAt.Sub(report.StartedAt)
	s.metrics.ObserveSweep(trigger, report.OK(), elapsed)
	logger.Info("sweep finished", "ok", report.OK(), "elapsed", elapsed)
	return report
}
