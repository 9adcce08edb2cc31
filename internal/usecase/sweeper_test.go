package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"FeedBot/internal/config"
	"FeedBot/internal/domain"
)

func TestSweeperRunsAllChannelsInOrder(t *testing.T) {
	t.Parallel()

	source := &stubSource{}
	channels := []config.ChannelConfig{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	s := NewSweeper(NewPipeline(PipelineDeps{Source: source}), channels, nil, nil)

	report, err := s.RunScheduled(context.Background())
	if err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}
	if report.ID == "" || report.Trigger != domain.TriggerScheduled {
		t.Fatalf("unexpected report header: %+v", report)
	}
	if len(report.Channels) != 3 || source.calls[0] != "1" || source.calls[2] != "3" {
		t.Fatalf("unexpected order: %v", source.calls)
	}
}

func TestSweeperManualSelectsChannels(t *testing.T) {
	t.Parallel()

	source := &stubSource{}
	s := NewSweeper(NewPipeline(PipelineDeps{Source: source}), []config.ChannelConfig{{ID: "1"}, {ID: "2"}}, nil, nil)

	report, err := s.RunManual(context.Background(), "2")
	if err != nil {
		t.Fatalf("RunManual: %v", err)
	}
	if report.Trigger != domain.TriggerManual || len(report.Channels) != 1 || report.Channels[0].ChannelID != "2" {
		t.Fatalf("unexpected report: %+v", report)
	}

	if _, err := s.RunManual(context.Background(), "9"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected unknown channel, got %v", err)
	}
}

func TestSweeperSerializesTriggers(t *testing.T) {
	t.Parallel()

	source := &stubSource{entered: make(chan string, 4), release: make(chan struct{})}
	s := NewSweeper(NewPipeline(PipelineDeps{Source: source}), []config.ChannelConfig{{ID: "1"}}, nil, nil)

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.RunManual(context.Background())
		firstDone <- err
	}()
	<-source.entered

	if _, err := s.RunScheduled(context.Background()); !errors.Is(err, ErrSweepInProgress) {
		t.Fatalf("scheduled trigger should skip, got %v", err)
	}

	secondDone := make(chan error, 1)
	go func() {
		_, err := s.RunManual(context.Background())
		secondDone <- err
	}()

	select {
	case <-source.entered:
		t.Fatalf("second manual sweep must wait for the first")
	case <-time.After(50 * time.Millisecond):
	}

	source.release <- struct{}{}
	if err := <-firstDone; err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	<-source.entered
	source.release <- struct{}{}
	if err := <-secondDone; err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if source.callCount() != 2 {
		t.Fatalf("expected two passes, got %d", source.callCount())
	}
}

func TestSweeperManualHonoursCancel(t *testing.T) {
	t.Parallel()

	source := &stubSource{entered: make(chan string, 1), release: make(chan struct{})}
	s := NewSweeper(NewPipeline(PipelineDeps{Source: source}), []config.ChannelConfig{{ID: "1"}}, nil, nil)

	go func() { _, _ = s.RunScheduled(context.Background()) }()
	<-source.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.RunManual(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	close(source.release)
}

func TestSweeperManualRunsToCompletionAfterCallerCancels(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &stubSource{
		results: map[string][]domain.SourceResult{
			"1": {withArticles("a", 1)},
			"2": {withArticles("b", 1)},
		},
		onCollect: func(channelID string) {
			if channelID == "2" {
				cancel()
			}
		},
	}
	store := &stubStore{}
	notifier := &stubNotifier{}
	pipeline := NewPipeline(PipelineDeps{Source: source, Store: store, Notifier: notifier})
	s := NewSweeper(pipeline, []config.ChannelConfig{{ID: "1"}, {ID: "2"}}, nil, nil)

	report, err := s.RunManual(ctx)
	if err != nil {
		t.Fatalf("RunManual: %v", err)
	}
	if !report.OK() || len(report.Channels) != 2 {
		t.Fatalf("sweep should finish every channel, got %+v", report)
	}
	for i, ctxErr := range source.ctxErrs {
		if ctxErr != nil {
			t.Fatalf("channel %d saw canceled context: %v", i, ctxErr)
		}
	}
	if store.persists != 2 || len(notifier.digests) != 2 {
		t.Fatalf("expected both channels persisted and delivered, got %d/%d", store.persists, len(notifier.digests))
	}
}
