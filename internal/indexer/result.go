package indexer

import (
	"fmt"
	"time"
)

// Outcome is what a sync cycle did with one document.
type Outcome int

const (
	Unchanged Outcome = iota
	New
	Modified
	Deleted
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case New:
		return "new"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// SyncResult contains statistics about one sync cycle.
type SyncResult struct {
	TotalDocs     int // Documents in the folder listing
	New           int
	Modified      int
	Unchanged     int
	Deleted       int
	ChunksWritten int
	ChunksRemoved int
	Skipped       []FailedDoc // Unsupported documents
	Failed        []FailedDoc // Documents left at their previous state
	Duration      time.Duration
}

// FailedDoc represents a document that could not be synced.
type FailedDoc struct {
	Path   string
	Reason string
	Retry  bool // Expected to clear without the file changing (model or store outage)
}

// Changed reports whether the cycle mutated the chunk store.
func (r *SyncResult) Changed() bool {
	return r.New+r.Modified+r.Deleted > 0
}

// NeedsRetry reports whether a failure in this cycle should be retried even
// if the folder does not change.
func (r *SyncResult) NeedsRetry() bool {
	for _, f := range r.Failed {
		if f.Retry {
			return true
		}
	}
	return false
}

func (r *SyncResult) count(o Outcome) {
	switch o {
	case Unchanged:
		r.Unchanged++
	case New:
		r.New++
	case Modified:
		r.Modified++
	case Deleted:
		r.Deleted++
	}
}
