package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// LocalOptions configures a LocalEmbedder.
type LocalOptions struct {
	BaseURL   string // OpenAI-compatible endpoint, e.g. http://localhost:11434/v1
	Model     string
	Dimension int
	BatchSize int
	Logger    *slog.Logger
}

// LocalEmbedder generates embeddings from a self-hosted OpenAI-compatible
// service such as Ollama, LM Studio or text-embeddings-inference.
type LocalEmbedder struct {
	embedder  embeddings.Embedder
	dimension int
	logger    *slog.Logger
}

// NewLocalEmbedder connects to the endpoint described by opts.
func NewLocalEmbedder(opts LocalOptions) (*LocalEmbedder, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("%w: local embedder requires a base URL", ErrEmbedding)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: local embedder requires a model", ErrEmbedding)
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("%w: local embedder requires a dimension", ErrEmbedding)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	// Local services don't check the token, but the client requires one.
	client, err := lcopenai.New(
		lcopenai.WithBaseURL(opts.BaseURL),
		lcopenai.WithToken("none"),
		lcopenai.WithEmbeddingModel(opts.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create local embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(opts.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create local embedder: %w", err)
	}

	return &LocalEmbedder{
		embedder:  embedder,
		dimension: opts.Dimension,
		logger:    opts.Logger.With("component", "local-embedder"),
	}, nil
}

// Dimension returns the configured vector length.
func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

// Embed returns one vector per text, in input order.
func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Error("failed to generate embeddings", "count", len(texts), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	if err := checkVectors(vectors, len(texts), e.dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}
