package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process chunk store. It backs tests and runs where no
// Qdrant server is configured; contents are lost when the process exits.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]*ChunkRecord // keyed by ID
}

// NewMemoryStore creates an empty store accepting embeddings of dimension.
// A dimension of 0 disables the dimension check.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		records:   make(map[string]*ChunkRecord),
	}
}

func (m *MemoryStore) Health(_ context.Context) error           { return nil }
func (m *MemoryStore) EnsureCollection(_ context.Context) error { return nil }
func (m *MemoryStore) Close() error                             { return nil }

// ClearCollection drops every record.
func (m *MemoryStore) ClearCollection(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*ChunkRecord)
	return nil
}

// Add stores copies of records, replacing any with the same ID.
// Nothing is stored if any record fails validation.
func (m *MemoryStore) Add(ctx context.Context, records []*ChunkRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, r := range records {
		if m.dimension > 0 && len(r.Embedding) != m.dimension {
			return fmt.Errorf("%w: chunk %d of %s has %d dimensions, expected %d",
				ErrDimensionMismatch, r.ChunkIndex, r.SourceFile, len(r.Embedding), m.dimension)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		c := *r
		if c.ID == "" {
			c.ID = ChunkID(c.SourceFile, c.ChunkIndex)
		}
		c.Embedding = append([]float32(nil), r.Embedding...)
		m.records[c.ID] = &c
	}
	return nil
}

// GetByDocument returns the chunks of sourceFile ordered by chunk index.
func (m *MemoryStore) GetByDocument(_ context.Context, sourceFile string) ([]*ChunkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ChunkRecord
	for _, r := range m.records {
		if r.SourceFile == sourceFile {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// DeleteByDocument removes every chunk of sourceFile.
func (m *MemoryStore) DeleteByDocument(ctx context.Context, sourceFile string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if r.SourceFile == sourceFile {
			delete(m.records, id)
		}
	}
	return nil
}

// DeleteByIDs removes the chunks with the given IDs.
func (m *MemoryStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

// Query ranks all chunks by cosine similarity to embedding and returns the top limit.
func (m *MemoryStore) Query(_ context.Context, embedding []float32, limit int) ([]*ScoredChunk, error) {
	if m.dimension > 0 && len(embedding) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), m.dimension)
	}

	m.mu.RLock()
	scored := make([]*ScoredChunk, 0, len(m.records))
	for _, r := range m.records {
		c := *r
		scored = append(scored, &ScoredChunk{ChunkRecord: &c, Score: cosine(embedding, r.Embedding)})
	}
	m.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].SourceFile != scored[j].SourceFile {
			return scored[i].SourceFile < scored[j].SourceFile
		}
		return scored[i].ChunkIndex < scored[j].ChunkIndex
	})

	if limit >= 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// ListDocuments returns the distinct source files, sorted.
func (m *MemoryStore) ListDocuments(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	files := []string{}
	for _, r := range m.records {
		if _, ok := seen[r.SourceFile]; ok {
			continue
		}
		seen[r.SourceFile] = struct{}{}
		files = append(files, r.SourceFile)
	}
	sort.Strings(files)
	return files, nil
}

// Count returns the number of stored chunks.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
