package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkID_Deterministic(t *testing.T) {
	assert.Equal(t, ChunkID("a.pdf", 0), ChunkID("a.pdf", 0))
	assert.NotEqual(t, ChunkID("a.pdf", 0), ChunkID("a.pdf", 1))
	assert.NotEqual(t, ChunkID("a.pdf", 0), ChunkID("b.pdf", 0))
}

func TestMemoryStore_AddAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	err := s.Add(ctx, []*ChunkRecord{
		NewChunkRecord("a.txt", 1, "second", []float32{0, 1}),
		NewChunkRecord("a.txt", 0, "first", []float32{1, 0}),
		NewChunkRecord("b.txt", 0, "other", []float32{1, 1}),
	})
	require.NoError(t, err)

	got, err := s.GetByDocument(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "second", got[1].Content)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, docs)
}

func TestMemoryStore_AddOverwritesSameIdentity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	require.NoError(t, s.Add(ctx, []*ChunkRecord{NewChunkRecord("a.txt", 0, "old", []float32{1, 0})}))
	require.NoError(t, s.Add(ctx, []*ChunkRecord{NewChunkRecord("a.txt", 0, "new", []float32{1, 0})}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetByDocument(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", got[0].Content)
}

func TestMemoryStore_DimensionMismatchStoresNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	err := s.Add(ctx, []*ChunkRecord{
		NewChunkRecord("a.txt", 0, "ok", []float32{1, 0}),
		NewChunkRecord("a.txt", 1, "bad", []float32{1, 0, 0}),
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	n, _ := s.Count(ctx)
	assert.Zero(t, n)

	_, err = s.Query(ctx, []float32{1}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStore_Deletes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	require.NoError(t, s.Add(ctx, []*ChunkRecord{
		NewChunkRecord("a.txt", 0, "a0", []float32{1}),
		NewChunkRecord("a.txt", 1, "a1", []float32{1}),
		NewChunkRecord("b.txt", 0, "b0", []float32{1}),
	}))

	require.NoError(t, s.DeleteByIDs(ctx, []string{ChunkID("a.txt", 1), "missing"}))
	got, _ := s.GetByDocument(ctx, "a.txt")
	require.Len(t, got, 1)
	assert.Equal(t, "a0", got[0].Content)

	require.NoError(t, s.DeleteByDocument(ctx, "a.txt"))
	docs, _ := s.ListDocuments(ctx)
	assert.Equal(t, []string{"b.txt"}, docs)
}

func TestMemoryStore_QueryRanksByCosine(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	require.NoError(t, s.Add(ctx, []*ChunkRecord{
		NewChunkRecord("x.txt", 0, "east", []float32{1, 0}),
		NewChunkRecord("x.txt", 1, "north", []float32{0, 1}),
		NewChunkRecord("x.txt", 2, "northeast", []float32{1, 1}),
	}))

	results, err := s.Query(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "east", results[0].Content)
	assert.Equal(t, "northeast", results[1].Content)
	assert.InDelta(t, 0.995, results[0].Score, 0.01)
}

func TestMemoryStore_ClearCollection(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(1)

	require.NoError(t, s.Add(ctx, []*ChunkRecord{NewChunkRecord("a.txt", 0, "a", []float32{1})}))
	require.NoError(t, s.ClearCollection(ctx))

	n, _ := s.Count(ctx)
	assert.Zero(t, n)
}
