package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"FeedBot/internal/domain"
)

func TestNotifierPrintsArticles(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n := NewNotifier(&buf)
	digest := domain.ChannelDigest{
		ChannelID: "42",
		Sources: []domain.SourceResult{{
			Author: "alice",
			Articles: []domain.Article{
				{Title: "One", Link: "https://a/1", Summary: "short", PublishedAt: time.Unix(0, 0)},
			},
		}},
	}

	if err := n.Publish(context.Background(), digest); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"[42] One", "https://a/1", "by alice at 1970-01-01 08:00:00", "short"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
