package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"FeedBot/internal/domain"
	"FeedBot/internal/scanner"
)

const (
	unknownAuthor = "Unknown"
	// strictLayout is the only published format trusted as-is; anything
	// else is stamped with the fetch time.
	strictLayout = "2006-01-02T15:04:05Z"
)

// FeedScanner reads RSS/Atom feeds. It never marks links seen: the caller
// does that once it accepts the batch.
type FeedScanner struct {
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

var _ scanner.Scanner = (*FeedScanner)(nil)

// NewFeedScanner wires an HTTP client; a nil client gets a 20s timeout.
func NewFeedScanner(client *http.Client, logger *slog.Logger) *FeedScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedScanner{client: defaultClient(client), logger: logger, now: time.Now}
}

// Kind identifies the strategy inside the registry.
func (f *FeedScanner) Kind() domain.SourceKind {
	return domain.KindFeed
}

// DefersMarking is always true for feeds.
func (f *FeedScanner) DefersMarking() bool {
	return true
}

// Scan returns unseen entries newer than the cutoff, oldest first.
func (f *FeedScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	body, err := fetchBody(ctx, f.client, req.Target)
	if err != nil {
		return scanner.Result{}, fmt.Errorf("feed %s: %w: %w", req.Target, scanner.ErrSourceUnavailable, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return scanner.Result{}, fmt.Errorf("feed %s: %w: %w", req.Target, scanner.ErrSourceUnavailable, err)
	}

	author := feed.Title
	if author == "" {
		author = unknownAuthor
	}

	var articles []domain.Article
	for i := len(feed.Items) - 1; i >= 0; i-- {
		item := feed.Items[i]
		if item == nil {
			continue
		}
		if req.Store != nil && req.Store.IsSeen(item.Link) {
			continue
		}

		published := f.publishedAt(item.Published)
		if published.Before(req.Cutoff) {
			continue
		}

		articles = append(articles, domain.Article{
			Title:       item.Title,
			Link:        item.Link,
			PublishedAt: published,
			Summary:     truncate(plainText(item.Description), summaryLimit, continuationMarker),
		})
	}

	f.logger.Debug("feed scanned", "feed", req.Target, "entries", len(feed.Items), "new", len(articles))
	return scanner.Result{Author: author, Articles: articles}, nil
}

func (f *FeedScanner) publishedAt(raw string) time.Time {
	if parsed, err := time.Parse(strictLayout, raw); err == nil {
		return parsed
	}
	return f.now()
}
