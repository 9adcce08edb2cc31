package storage

import (
	"sort"
	"sync"
)

// seenState is the in-memory half shared by every SeenStore backend.
// Dirty sets track what changed since the last successful persist.
type seenState struct {
	mu               sync.RWMutex
	urls             map[string]struct{}
	checkpoints      map[string]int
	dirtyURLs        map[string]struct{}
	dirtyCheckpoints map[string]struct{}
}

func newSeenState() *seenState {
	return &seenState{
		urls:             map[string]struct{}{},
		checkpoints:      map[string]int{},
		dirtyURLs:        map[string]struct{}{},
		dirtyCheckpoints: map[string]struct{}{},
	}
}

func (s *seenState) IsSeen(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.urls[url]
	return ok
}

func (s *seenState) MarkSeen(url string) {
	if url == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[url]; ok {
		return
	}
	s.urls[url] = struct{}{}
	s.dirtyURLs[url] = struct{}{}
}

func (s *seenState) Checkpoint(sourceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[sourceID]
}

func (s *seenState) SetCheckpoint(sourceID string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.checkpoints[sourceID]; ok && prev == count {
		return
	}
	s.checkpoints[sourceID] = count
	s.dirtyCheckpoints[sourceID] = struct{}{}
}

func (s *seenState) Stats() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.urls), len(s.checkpoints)
}

// snapshot copies the full state; urls come back sorted so that
// persisted output is stable between identical runs.
func (s *seenState) snapshot() ([]string, map[string]int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	urls := make([]string, 0, len(s.urls))
	for u := range s.urls {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	checkpoints := make(map[string]int, len(s.checkpoints))
	for k, v := range s.checkpoints {
		checkpoints[k] = v
	}
	return urls, checkpoints
}

// dirty copies the pending changes without clearing them.
func (s *seenState) dirty() ([]string, map[string]int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	urls := make([]string, 0, len(s.dirtyURLs))
	for u := range s.dirtyURLs {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	checkpoints := make(map[string]int, len(s.dirtyCheckpoints))
	for id := range s.dirtyCheckpoints {
		checkpoints[id] = s.checkpoints[id]
	}
	return urls, checkpoints
}

// clean drops the given entries from the dirty sets. A checkpoint that
// changed again after the snapshot stays dirty.
func (s *seenState) clean(urls []string, checkpoints map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range urls {
		delete(s.dirtyURLs, u)
	}
	for id, v := range checkpoints {
		if s.checkpoints[id] == v {
			delete(s.dirtyCheckpoints, id)
		}
	}
}

// load replaces state with persisted values; nothing loaded is dirty.
func (s *seenState) load(urls []string, checkpoints map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range urls {
		if u != "" {
			s.urls[u] = struct{}{}
		}
	}
	for k, v := range checkpoints {
		s.checkpoints[k] = v
	}
}
