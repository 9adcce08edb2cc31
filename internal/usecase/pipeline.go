package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"FeedBot/internal/config"
	"FeedBot/internal/domain"
	"FeedBot/internal/metrics"
	"FeedBot/internal/ports"
)

// ChannelSource scans every configured source of a channel.
type ChannelSource interface {
	Collect(ctx context.Context, channel config.ChannelConfig) []domain.SourceResult
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source   ChannelSource
	Store    ports.SeenStore
	Notifier ports.Notifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Pipeline implements the per-channel pass: collect, persist, notify.
type Pipeline struct {
	source   ChannelSource
	store    ports.SeenStore
	notifier ports.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:   deps.Source,
		store:    deps.Store,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// ProcessChannel runs one channel pass. State is persisted once, and only
// when some source produced articles. A persist failure is reported but
// the digest is still delivered; memory state is kept for the next pass.
func (p *Pipeline) ProcessChannel(ctx context.Context, channel config.ChannelConfig) domain.ChannelReport {
	report := domain.ChannelReport{ChannelID: channel.ID}
	if p.source == nil {
		return report
	}

	report.Sources = p.source.Collect(ctx, channel)
	digest := report.Digest()
	if len(digest.Sources) == 0 {
		p.logger.Debug("channel pass produced nothing", "channel", channel.ID, "sources", len(report.Sources))
		return report
	}

	if p.store != nil {
		if err := p.store.Persist(ctx); err != nil {
			report.PersistErr = fmt.Errorf("persist seen state: %w", err)
			p.metrics.PersistFailed()
			p.logger.Error("persist failed, state kept in memory", "channel", channel.ID, "error", err)
		}
	}

	if p.notifier != nil {
		if err := p.notifier.Publish(ctx, digest); err != nil {
			report.NotifyErr = fmt.Errorf("publish digest: %w", err)
			p.metrics.NotifyFailed()
			p.logger.Error("publish failed", "channel", channel.ID, "error", err)
		}
	}

	p.logger.Info("channel pass done",
		"channel", channel.ID,
		"sources", len(report.Sources),
		"articles", digest.ArticleCount(),
		"ok", report.OK())
	return report
}

// ProcessChannels runs the channels in order.
func (p *Pipeline) ProcessChannels(ctx context.Context, channels []config.ChannelConfig) []domain.ChannelReport {
	reports := make([]domain.ChannelReport, 0, len(channels))
	for _, ch := range channels {
		reports = append(reports, p.ProcessChannel(ctx, ch))
	}
	return reports
}
