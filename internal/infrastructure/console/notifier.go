package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"FeedBot/internal/domain"
	"FeedBot/internal/ports"
)

// Notifier prints digests to a writer. It is used when no chat platform
// is configured.
type Notifier struct {
	mu  sync.Mutex
	out io.Writer
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier writes to out, or stdout when out is nil.
func NewNotifier(out io.Writer) *Notifier {
	if out == nil {
		out = os.Stdout
	}
	return &Notifier{out: out}
}

// Publish writes one block per article.
func (n *Notifier) Publish(ctx context.Context, digest domain.ChannelDigest) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, src := range digest.Sources {
		for _, a := range src.Articles {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := fmt.Fprintf(n.out, "[%s] %s\n  %s\n  by %s at %s\n",
				digest.ChannelID, a.Title, a.Link, src.Author, a.TimeString())
			if err != nil {
				return fmt.Errorf("write digest: %w", err)
			}
			if a.Summary != "" {
				if _, err := fmt.Fprintf(n.out, "  %s\n", a.Summary); err != nil {
					return fmt.Errorf("write digest: %w", err)
				}
			}
		}
	}
	return nil
}
