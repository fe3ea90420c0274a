package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bull/docsync/internal/storage"
)

// ErrEmptyQuestion is returned when a search has no text.
var ErrEmptyQuestion = errors.New("question must not be empty")

// QueryStore is the read side of the chunk store used for searches.
type QueryStore interface {
	Query(ctx context.Context, embedding []float32, limit int) ([]*storage.ScoredChunk, error)
}

// QueryEmbedder embeds search questions.
type QueryEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher answers questions with the most similar stored passages.
type Searcher struct {
	Embedder QueryEmbedder
	Store    QueryStore
}

// Search embeds question and returns up to limit chunks ordered by similarity.
func (s *Searcher) Search(ctx context.Context, question string, limit int) ([]*storage.ScoredChunk, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if limit <= 0 {
		limit = 3
	}

	vectors, err := s.Embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("failed to embed query: got %d vectors", len(vectors))
	}

	chunks, err := s.Store.Query(ctx, vectors[0], limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return chunks, nil
}
