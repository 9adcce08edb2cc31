package domain

import "time"

// DisplayLayout is the timestamp layout shown next to each article.
const DisplayLayout = "2006-01-02 15:04:05"

// DisplayZone is the zone articles are rendered in (UTC+8).
var DisplayZone = time.FixedZone("UTC+8", 8*60*60)

// Article is a transient crawl result; only Link outlives the sweep.
type Article struct {
	Title       string
	Link        string
	PublishedAt time.Time
	Summary     string
}

// TimeString renders PublishedAt for notifiers.
func (a Article) TimeString() string {
	return a.PublishedAt.In(DisplayZone).Format(DisplayLayout)
}

// SourceKind tags the scanner that handles a configured source.
type SourceKind string

const (
	KindFeed  SourceKind = "rss"
	KindLuogu SourceKind = "luogu"
)

// SourceResult is the outcome of scanning one configured target.
type SourceResult struct {
	Kind     SourceKind
	Target   string
	Author   string
	Articles []Article
	Err      error
}

// Failed reports whether the source failed, fully or partially.
func (r SourceResult) Failed() bool {
	return r.Err != nil
}

// ChannelDigest is what a notifier renders for one channel after a pass.
type ChannelDigest struct {
	ChannelID string
	Sources   []SourceResult
}

// ArticleCount sums articles across all sources of the digest.
func (d ChannelDigest) ArticleCount() int {
	total := 0
	for _, src := range d.Sources {
		total += len(src.Articles)
	}
	return total
}
