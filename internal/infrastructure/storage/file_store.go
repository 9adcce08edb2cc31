package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"FeedBot/internal/ports"
)

const (
	DefaultURLFile        = "seen_url.json"
	DefaultCheckpointFile = "seen_luogu.json"
)

// FileStore keeps seen-state in two human-readable JSON files: an array of
// seen URLs and an object mapping source ids to their last total count.
type FileStore struct {
	*seenState

	urlFile        string
	checkpointFile string
	logger         *slog.Logger

	persistMu sync.Mutex
}

var _ ports.SeenStore = (*FileStore)(nil)

// OpenFileStore loads state from dir using the default file names.
func OpenFileStore(dir string, logger *slog.Logger) *FileStore {
	return NewFileStore(filepath.Join(dir, DefaultURLFile), filepath.Join(dir, DefaultCheckpointFile), logger)
}

// NewFileStore loads both files. Missing files start empty; unreadable or
// corrupt files also start empty, with a warning.
func NewFileStore(urlFile, checkpointFile string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{
		seenState:      newSeenState(),
		urlFile:        urlFile,
		checkpointFile: checkpointFile,
		logger:         logger,
	}

	var urls []string
	if err := readJSON(urlFile, &urls); err != nil {
		logger.Warn("seen url file unusable, starting empty", "path", urlFile, "error", err)
		urls = nil
	}
	var checkpoints map[string]int
	if err := readJSON(checkpointFile, &checkpoints); err != nil {
		logger.Warn("checkpoint file unusable, starting empty", "path", checkpointFile, "error", err)
		checkpoints = nil
	}
	s.load(urls, checkpoints)

	logger.Debug("seen state loaded", "urls", len(urls), "checkpoints", len(checkpoints))
	return s
}

// Persist rewrites both files with the full in-memory state. It writes
// even when ctx is already done.
func (s *FileStore) Persist(_ context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	pendingURLs, pendingCheckpoints := s.dirty()
	urls, checkpoints := s.snapshot()
	if err := writeJSON(s.urlFile, urls); err != nil {
		return fmt.Errorf("persist seen urls: %w", err)
	}
	if err := writeJSON(s.checkpointFile, checkpoints); err != nil {
		return fmt.Errorf("persist checkpoints: %w", err)
	}
	s.clean(pendingURLs, pendingCheckpoints)
	return nil
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// writeJSON writes through a temp file in the same directory and renames it
// over the target.
func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp: %w", err)
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
