package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector dimension for text-embedding-3-small.
	// This matches storage.DefaultVectorDimension (1536).
	DefaultDimension = 1536

	// DefaultBatchSize is the number of texts per request. The API accepts
	// 2048; 500 keeps a request well inside the tokens-per-minute limit.
	DefaultBatchSize = 500
)

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API,
// BatchSize texts per request.
type OpenAIEmbedder struct {
	client    *Client
	model     string
	dimension int
	batchSize int
	logger    *slog.Logger
}

// OpenAIOptions configures an OpenAIEmbedder. Zero values select the defaults.
type OpenAIOptions struct {
	Model     string
	Dimension int
	BatchSize int
	Logger    *slog.Logger
}

// NewOpenAIEmbedder creates an embedder on top of client.
func NewOpenAIEmbedder(client *Client, opts OpenAIOptions) *OpenAIEmbedder {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &OpenAIEmbedder{
		client:    client,
		model:     opts.Model,
		dimension: opts.Dimension,
		batchSize: opts.BatchSize,
		logger:    opts.Logger.With("component", "openai-embedder"),
	}
}

// Dimension returns the length of every vector this embedder produces.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Embed returns one vector per text, in input order.
// Empty input returns nil without calling the API.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: texts %d-%d: %v", ErrEmbedding, start, end, err)
		}
		vectors = append(vectors, batch...)
	}

	if err := checkVectors(vectors, len(texts), e.dimension); err != nil {
		return nil, err
	}

	e.logger.Debug("Generated embeddings", "count", len(vectors), "model", e.model)
	return vectors, nil
}

// embedBatch sends one embeddings request. HTTP 429 responses are retried
// with exponential backoff; any other error fails the batch at once.
func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	request := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
			Model: openai.EmbeddingModel(e.model),
		})
		switch {
		case isRateLimited(err):
			e.logger.Warn("Rate limited, backing off", "batch", len(texts))
			return err
		case err != nil:
			return backoff.Permanent(err)
		}

		// The API does not promise response order; Index does.
		data := resp.Data
		sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

		vectors = make([][]float32, len(data))
		for i, d := range data {
			vectors[i] = toFloat32(d.Embedding)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(request, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return vectors, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// toFloat32 narrows the API's float64 components to the stored precision.
func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

// checkVectors verifies a model response has one vector of length dim per input.
func checkVectors(vectors [][]float32, n, dim int) error {
	if len(vectors) != n {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vectors), n)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrEmbedding, i, len(v), dim)
		}
	}
	return nil
}
