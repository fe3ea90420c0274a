package storage

import "errors"

var (
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStore marks a failed chunk store operation. The sync engine treats
	// it as transient and retries the document on the next cycle.
	ErrStore = errors.New("chunk store operation failed")
)
