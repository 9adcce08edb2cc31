package ports

import (
	"context"

	"FeedBot/internal/domain"
)

// SeenChecker is the read-only view of seen-state.
type SeenChecker interface {
	IsSeen(url string) bool
}

// SeenStore owns the seen URL set and the paginated-source checkpoints.
// Mutations stay in memory until Persist succeeds.
type SeenStore interface {
	SeenChecker
	MarkSeen(url string)
	Checkpoint(sourceID string) int
	SetCheckpoint(sourceID string, count int)
	Persist(ctx context.Context) error
	Stats() (urls, checkpoints int)
}

// Notifier renders a channel digest to the chat platform.
type Notifier interface {
	Publish(ctx context.Context, digest domain.ChannelDigest) error
}

// Scheduler controls when sweeps execute.
type Scheduler interface {
	Start(ctx context.Context, job func(context.Context)) error
	Stop(ctx context.Context) error
}
