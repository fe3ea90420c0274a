package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bull/docsync/internal/indexer"
	"github.com/bull/docsync/internal/state"
)

// StatusStore is the part of the chunk store that status reads.
type StatusStore interface {
	ListDocuments(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// IndexStatus describes the index and how far it lags the watched folder.
type IndexStatus struct {
	Documents   []string  // Documents with chunks in the store
	TotalChunks int       // Chunks in the store
	TrackedDocs int       // Entries in the hash record
	LastSync    time.Time // Hash record write time, zero before the first sync
	Pending     []string  // Files new or modified since LastSync
	Removed     []string  // Tracked documents no longer in the folder
}

// Lag returns the number of files the next sync would act on.
func (s *IndexStatus) Lag() int { return len(s.Pending) + len(s.Removed) }

// Status reads the index status. The hash record is read without taking the
// state lock, so it is safe while a sync runs in another process. Empty
// stateDir or watchDir skips the parts that need them.
func Status(ctx context.Context, store StatusStore, watchDir, stateDir string, accept func(name string) bool) (*IndexStatus, error) {
	docs, err := store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	chunks, err := store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	status := &IndexStatus{
		Documents:   docs,
		TotalChunks: chunks,
		Pending:     []string{},
		Removed:     []string{},
	}
	if stateDir == "" {
		return status, nil
	}

	recordPath := filepath.Join(stateDir, state.HashRecordFile)
	record, err := state.LoadHashRecord(recordPath)
	if err != nil {
		return nil, err
	}
	status.TrackedDocs = record.Len()

	info, err := os.Stat(recordPath)
	switch {
	case err == nil:
		status.LastSync = info.ModTime()
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("stat hash record: %w", err)
	}

	if watchDir == "" {
		return status, nil
	}
	files, err := indexer.List(watchDir, accept)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Name] = true
		if _, tracked := record.Get(f.Name); !tracked || f.ModTime.After(status.LastSync) {
			status.Pending = append(status.Pending, f.Name)
		}
	}
	for _, id := range record.Identities() {
		if !present[id] {
			status.Removed = append(status.Removed, id)
		}
	}

	return status, nil
}
