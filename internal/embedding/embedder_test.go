package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingsServer answers OpenAI-style embedding requests with vectors of
// length dim whose first component is the input index.
func fakeEmbeddingsServer(t *testing.T, dim int, status func(call int32) int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		if status != nil {
			if code := status(n); code != http.StatusOK {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(code)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test","code":"test"}}`))
				return
			}
		}

		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		// Reverse order to exercise index-based reordering
		for i := range req.Input {
			vec := make([]float64, dim)
			vec[0] = float64(i)
			data[len(req.Input)-1-i] = item{Object: "embedding", Index: i, Embedding: vec}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-model",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestEmbedder(t *testing.T, url string, dim, batch int) *OpenAIEmbedder {
	t.Helper()
	client, err := NewClient("test-key", url+"/v1/")
	require.NoError(t, err)
	return NewOpenAIEmbedder(client, OpenAIOptions{Model: "test-model", Dimension: dim, BatchSize: batch})
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient("", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestOpenAIEmbedder_EmptyInputSkipsAPI(t *testing.T) {
	srv, calls := fakeEmbeddingsServer(t, 4, nil)
	e := newTestEmbedder(t, srv.URL, 4, 10)

	vectors, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, calls.Load())
}

func TestOpenAIEmbedder_BatchesPreserveOrder(t *testing.T) {
	srv, calls := fakeEmbeddingsServer(t, 4, nil)
	e := newTestEmbedder(t, srv.URL, 4, 2)

	vectors, err := e.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	assert.Equal(t, int32(3), calls.Load())

	// First component is the index within its batch
	want := []float32{0, 1, 0, 1, 0}
	for i, v := range vectors {
		assert.Len(t, v, 4)
		assert.Equal(t, want[i], v[0])
	}
}

func TestOpenAIEmbedder_WrongDimension(t *testing.T) {
	srv, _ := fakeEmbeddingsServer(t, 3, nil)
	e := newTestEmbedder(t, srv.URL, 4, 10)

	_, err := e.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestOpenAIEmbedder_RetriesRateLimit(t *testing.T) {
	srv, calls := fakeEmbeddingsServer(t, 4, func(call int32) int {
		if call == 1 {
			return http.StatusTooManyRequests
		}
		return http.StatusOK
	})
	e := newTestEmbedder(t, srv.URL, 4, 10)

	vectors, err := e.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIEmbedder_PermanentErrorNotRetried(t *testing.T) {
	srv, calls := fakeEmbeddingsServer(t, 4, func(int32) int { return http.StatusBadRequest })
	e := newTestEmbedder(t, srv.URL, 4, 10)

	_, err := e.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLocalEmbedder_RequiresSettings(t *testing.T) {
	_, err := NewLocalEmbedder(LocalOptions{Model: "m", Dimension: 4})
	assert.ErrorIs(t, err, ErrEmbedding)

	_, err = NewLocalEmbedder(LocalOptions{BaseURL: "http://localhost", Dimension: 4})
	assert.ErrorIs(t, err, ErrEmbedding)

	_, err = NewLocalEmbedder(LocalOptions{BaseURL: "http://localhost", Model: "m"})
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestLocalEmbedder_FailureLogsError(t *testing.T) {
	srv, _ := fakeEmbeddingsServer(t, 4, func(int32) int { return http.StatusBadRequest })

	var buf bytes.Buffer
	e, err := NewLocalEmbedder(LocalOptions{
		BaseURL:   srv.URL + "/v1",
		Model:     "m",
		Dimension: 4,
		Logger:    slog.New(slog.NewJSONHandler(&buf, nil)),
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrEmbedding)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "failed to generate embeddings", entry["msg"])
	assert.Contains(t, entry, "error")
	assert.NotContains(t, entry, "err")
}

func TestCheckVectors(t *testing.T) {
	assert.NoError(t, checkVectors([][]float32{{1, 2}, {3, 4}}, 2, 2))
	assert.ErrorIs(t, checkVectors([][]float32{{1, 2}}, 2, 2), ErrEmbedding)
	assert.ErrorIs(t, checkVectors([][]float32{{1, 2}, {3}}, 2, 2), ErrEmbedding)
}
