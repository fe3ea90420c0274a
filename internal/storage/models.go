package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChunkRecord is one chunk of a source document stored with its embedding.
// Its identity is (SourceFile, ChunkIndex); ID is derived from that pair.
type ChunkRecord struct {
	ID          string    // Deterministic UUID, see ChunkID
	SourceFile  string    // Document identity (file name within the watched folder)
	ChunkIndex  int       // Position in document (0, 1, 2...)
	Content     string    // Chunk text
	ContentHash string    // Hash of the document version this chunk came from
	Title       string    // Document title when the format carries one
	IndexedAt   time.Time // When this chunk was written
	Embedding   []float32 // Vector of the configured dimension
}

// ScoredChunk pairs a chunk with its similarity score from a query.
type ScoredChunk struct {
	*ChunkRecord
	Score float64
}

// DefaultCollectionName is the Qdrant collection used when none is configured.
const DefaultCollectionName = "document_chunks"

// DefaultVectorDimension is the embedding size for text-embedding-3-small.
const DefaultVectorDimension = 1536

// chunkNamespace scopes the name-based UUIDs of chunk records.
var chunkNamespace = uuid.MustParse("6f1d9c3e-2b7a-4e58-9c41-0d8e5a7b3f12")

// ChunkID returns the point ID for the chunk at index of sourceFile.
// The same pair always maps to the same ID, so re-adding a chunk overwrites it.
func ChunkID(sourceFile string, index int) string {
	name := fmt.Sprintf("%s_chunk_%d", sourceFile, index)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// NewChunkRecord builds a record with its ID derived from sourceFile and index.
func NewChunkRecord(sourceFile string, index int, content string, embedding []float32) *ChunkRecord {
	return &ChunkRecord{
		ID:         ChunkID(sourceFile, index),
		SourceFile: sourceFile,
		ChunkIndex: index,
		Content:    content,
		Embedding:  embedding,
	}
}
