package domain

import "time"

// ChannelReport captures how one channel pass went, source by source.
type ChannelReport struct {
	ChannelID  string
	Sources    []SourceResult
	PersistErr error
	NotifyErr  error
}

// OK is true when every source succeeded, state was persisted and the
// digest (if any) was delivered.
func (r ChannelReport) OK() bool {
	if r.PersistErr != nil || r.NotifyErr != nil {
		return false
	}
	for _, src := range r.Sources {
		if src.Failed() {
			return false
		}
	}
	return true
}

// Digest returns only the sources that produced articles, in order.
func (r ChannelReport) Digest() ChannelDigest {
	digest := ChannelDigest{ChannelID: r.ChannelID}
	for _, src := range r.Sources {
		if len(src.Articles) > 0 {
			digest.Sources = append(digest.Sources, src)
		}
	}
	return digest
}

// Trigger records what started a sweep.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// SweepReport aggregates channel reports for a whole sweep.
type SweepReport struct {
	ID         string
	Trigger    Trigger
	StartedAt  time.Time
	FinishedAt time.Time
	Channels   []ChannelReport
}

// OK is true when every channel pass was OK.
func (r SweepReport) OK() bool {
	for _, ch := range r.Channels {
		if !ch.OK() {
			return false
		}
	}
	return true
}
