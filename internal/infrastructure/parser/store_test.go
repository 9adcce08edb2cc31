package parser

import (
	"context"
	"sync"
)

// memStore is an in-memory SeenStore for scanner tests.
type memStore struct {
	mu          sync.Mutex
	seen        map[string]bool
	checkpoints map[string]int
}

func newMemStore(seen ...string) *memStore {
	s := &memStore{seen: map[string]bool{}, checkpoints: map[string]int{}}
	for _, u := range seen {
		s.seen[u] = true
	}
	return s
}

func (s *memStore) IsSeen(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[url]
}

func (s *memStore) MarkSeen(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[url] = true
}

func (s *memStore) Checkpoint(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[id]
}

func (s *memStore) SetCheckpoint(id string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[id] = count
}

func (s *memStore) Persist(context.Context) error { return nil }

func (s *memStore) Stats() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen), len(s.checkpoints)
}
