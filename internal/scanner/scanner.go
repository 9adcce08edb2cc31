package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FeedBot/internal/domain"
	"FeedBot/internal/ports"
)

var (
	// ErrSourceUnavailable marks a source that could not be fetched or parsed at all.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceStructure marks a listing page missing its embedded data block.
	ErrSourceStructure = errors.New("source structure invalid")
	// ErrUnknownKind is returned by the registry for unregistered kinds.
	ErrUnknownKind = errors.New("unknown source kind")
)

// PartialError reports a walk that stopped early; the articles collected
// before Page are still returned alongside it.
type PartialError struct {
	Page int
	Err  error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("walk stopped at page %d: %v", e.Page, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// Request carries all parameters required to scan one configured target.
type Request struct {
	Target string
	Cutoff time.Time
	Store  ports.SeenStore
}

// Result is what a scanner hands back to the pipeline.
type Result struct {
	Author   string
	Articles []domain.Article
}

// Scanner captures a single source-shape implementation (feed, paginated listing).
type Scanner interface {
	Kind() domain.SourceKind
	// DefersMarking is true when the caller, not the scanner, marks emitted links seen.
	DefersMarking() bool
	Scan(ctx context.Context, req Request) (Result, error)
}

// Registry keeps a mapping from source kinds to their implementations.
type Registry struct {
	scanners map[domain.SourceKind]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[domain.SourceKind]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(s Scanner) {
	if r.scanners == nil {
		r.scanners = map[domain.SourceKind]Scanner{}
	}
	r.scanners[s.Kind()] = s
}

// Resolve returns a scanner by kind or ErrUnknownKind.
func (r *Registry) Resolve(kind domain.SourceKind) (Scanner, error) {
	if s, ok := r.scanners[kind]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
}
