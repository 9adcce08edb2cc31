package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreStartsEmptyWithoutFiles(t *testing.T) {
	t.Parallel()

	store := OpenFileStore(t.TempDir(), nil)

	if store.IsSeen("https://example.org/a") {
		t.Fatalf("expected empty seen set")
	}
	if got := store.Checkpoint("123"); got != 0 {
		t.Fatalf("expected checkpoint 0, got %d", got)
	}
}

func TestFileStoreMarkSeenIsIdempotent(t *testing.T) {
	t.Parallel()

	store := OpenFileStore(t.TempDir(), nil)
	store.MarkSeen("https://example.org/a")
	store.MarkSeen("https://example.org/a")

	urls, _ := store.Stats()
	if urls != 1 {
		t.Fatalf("expected 1 url, got %d", urls)
	}
	if !store.IsSeen("https://example.org/a") {
		t.Fatalf("expected url to be seen")
	}
}

func TestFileStorePersistRoundTrip(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	store := OpenFileStore(dir, nil)
	store.MarkSeen("https://example.org/b")
	store.MarkSeen("https://example.org/a?x=1&y=<2>")
	store.SetCheckpoint("42", 23)

	if err := store.Persist(context.Background()); err != nil {
		t.Fatalf("persist: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, DefaultURLFile))
	if err != nil {
		t.Fatalf("read url file: %v", err)
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		t.Fatalf("decode url file: %v", err)
	}
	if len(urls) != 2 || urls[0] != "https://example.org/a?x=1&y=<2>" {
		t.Fatalf("unexpected urls: %v", urls)
	}
	if bytes.Contains(raw, []byte(`\u0026`)) {
		t.Fatalf("expected unescaped output, got %s", raw)
	}

	reopened := OpenFileStore(dir, nil)
	if !reopened.IsSeen("https://example.org/b") {
		t.Fatalf("expected url to survive reload")
	}
	if got := reopened.Checkpoint("42"); got != 23 {
		t.Fatalf("expected checkpoint 23, got %d", got)
	}
}

func TestFileStorePersistIsByteStable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := OpenFileStore(dir, nil)
	for _, u := range []string{"https://c", "https://a", "https://b"} {
		store.MarkSeen(u)
	}
	store.SetCheckpoint("7", 10)

	ctx := context.Background()
	if err := store.Persist(ctx); err != nil {
		t.Fatalf("first persist: %v", err)
	}
	first := readBoth(t, dir)

	store.MarkSeen("https://a")
	store.SetCheckpoint("7", 10)
	if err := store.Persist(ctx); err != nil {
		t.Fatalf("second persist: %v", err)
	}
	second := readBoth(t, dir)

	if !bytes.Equal(first, second) {
		t.Fatalf("persisted bytes changed:\n%s\n---\n%s", first, second)
	}
}

func TestFileStoreCorruptFileStartsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultURLFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DefaultCheckpointFile), []byte(`{"9": 4}`), 0o644); err != nil {
		t.Fatalf("write checkpoint file: %v", err)
	}

	store := OpenFileStore(dir, nil)
	urls, checkpoints := store.Stats()
	if urls != 0 || checkpoints != 1 {
		t.Fatalf("unexpected stats urls=%d checkpoints=%d", urls, checkpoints)
	}
	if got := store.Checkpoint("9"); got != 4 {
		t.Fatalf("expected checkpoint 4, got %d", got)
	}
}

func TestFileStorePersistFailureKeepsMemoryState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	// a regular file where the state directory should be
	store := OpenFileStore(filepath.Join(blocker, "state"), nil)
	store.MarkSeen("https://example.org/a")

	if err := store.Persist(context.Background()); err == nil {
		t.Fatalf("expected persist error")
	}
	if !store.IsSeen("https://example.org/a") {
		t.Fatalf("expected in-memory state to survive failed persist")
	}
}

func readBoth(t *testing.T, dir string) []byte {
	t.Helper()
	a, err := os.ReadFile(filepath.Join(dir, DefaultURLFile))
	if err != nil {
		t.Fatalf("read url file: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, DefaultCheckpointFile))
	if err != nil {
		t.Fatalf("read checkpoint file: %v", err)
	}
	return append(a, b...)
}

func TestFileStorePersistIgnoresCanceledContext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := OpenFileStore(dir, nil)
	store.MarkSeen("https://example.org/late")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Persist(ctx); err != nil {
		t.Fatalf("Persist after cancel returned error: %v", err)
	}

	reopened := OpenFileStore(dir, nil)
	if !reopened.IsSeen("https://example.org/late") {
		t.Fatalf("link marked before cancel should be on disk")
	}
}
