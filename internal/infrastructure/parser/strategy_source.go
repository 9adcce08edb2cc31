package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"FeedBot/internal/config"
	"FeedBot/internal/domain"
	"FeedBot/internal/metrics"
	"FeedBot/internal/ports"
	"FeedBot/internal/scanner"
)

// CutoffFunc resolves the cutoff for a follow block.
type CutoffFunc func(config.FollowConfig) time.Time

// StrategySource runs a channel's configured sources through the registered
// scanners. One failing source never stops its siblings.
type StrategySource struct {
	registry *scanner.Registry
	store    ports.SeenStore
	cutoff   CutoffFunc
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewStrategySource wires scanner registry with the seen store.
func NewStrategySource(reg *scanner.Registry, store ports.SeenStore, cutoff CutoffFunc, m *metrics.Metrics, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		store:    store,
		cutoff:   cutoff,
		metrics:  m,
		logger:   log,
	}
}

// Collect scans every target of the channel in configuration order and
// returns one result per target. Links from scanners that defer marking
// are marked seen here, once the result is accepted.
func (s *StrategySource) Collect(ctx context.Context, channel config.ChannelConfig) []domain.SourceResult {
	s.debug("collect channel", "channel", channel.ID, "blocks", len(channel.FollowArticles))

	var results []domain.SourceResult
	for _, follow := range channel.FollowArticles {
		kind, err := follow.Kind()
		if err != nil {
			results = append(results, domain.SourceResult{Target: follow.Type, Err: err})
			continue
		}

		strategy, err := s.registry.Resolve(kind)
		if err != nil {
			results = append(results, domain.SourceResult{Kind: kind, Target: follow.Type, Err: err})
			continue
		}

		cutoff := time.Unix(0, 0)
		if s.cutoff != nil {
			cutoff = s.cutoff(follow)
		}

		for _, target := range follow.Targets() {
			if err := ctx.Err(); err != nil {
				results = append(results, domain.SourceResult{Kind: kind, Target: target, Err: err})
				continue
			}

			started := time.Now()
			res, scanErr := s.scanOne(ctx, strategy, scanner.Request{Target: target, Cutoff: cutoff, Store: s.store})

			if strategy.DefersMarking() {
				for _, a := range res.Articles {
					s.store.MarkSeen(a.Link)
				}
			}

			result := domain.SourceResult{
				Kind:     kind,
				Target:   target,
				Author:   res.Author,
				Articles: res.Articles,
				Err:      scanErr,
			}
			s.observe(result, time.Since(started))
			results = append(results, result)
		}
	}

	return results
}

func (s *StrategySource) scanOne(ctx context.Context, strategy scanner.Scanner, req scanner.Request) (res scanner.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = scanner.Result{}
			err = fmt.Errorf("%s scanner panicked on %s: %v", strategy.Kind(), req.Target, r)
		}
	}()
	return strategy.Scan(ctx, req)
}

func (s *StrategySource) observe(result domain.SourceResult, elapsed time.Duration) {
	outcome := metrics.OutcomeOK
	var partial *scanner.PartialError
	switch {
	case errors.As(result.Err, &partial):
		outcome = metrics.OutcomePartial
	case result.Err != nil:
		outcome = metrics.OutcomeError
	}
	s.metrics.ObserveSource(result.Kind, outcome, len(result.Articles))

	if result.Err != nil {
		if s.logger != nil {
			s.logger.Error("source failed",
				"kind", result.Kind, "target", result.Target,
				"articles", len(result.Articles), "outcome", outcome, "error", result.Err)
		}
		return
	}
	s.debug("source scanned", "kind", result.Kind, "target", result.Target,
		"author", result.Author, "articles", len(result.Articles), "elapsed", elapsed)
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
