package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// vectorName is the named vector holding chunk embeddings.
const vectorName = "content"

// scrollBatch is the page size used when scrolling through points.
const scrollBatch = uint32(100)

// upsertBatch is the number of points sent per upsert request.
const upsertBatch = 100

// QdrantConfig holds connection and collection settings for QdrantStore.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string // Defaults to DefaultCollectionName
	Dimension  int    // Defaults to DefaultVectorDimension
}

// QdrantStore is the chunk store backed by a Qdrant collection.
// Every chunk is a point whose payload carries its source file and chunk index.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStore creates a Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollectionName
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultVectorDimension
	}

	// Create Qdrant client using gRPC
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	store := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}

	if err := store.retry(ctx, func() error { return store.Health(ctx) }); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return store, nil
}

// newBackoff returns the retry policy shared by all store operations.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func newBackoff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

// retry runs operation with exponential backoff until it succeeds, the policy
// gives up, or ctx is done.
func (s *QdrantStore) retry(ctx context.Context, operation func() error) error {
	return backoff.Retry(operation, newBackoff(ctx))
}

// Collection returns the collection name.
func (s *QdrantStore) Collection() string {
	return s.collection
}

// Health performs a single health check against Qdrant.
// Returns nil if Qdrant is healthy, error otherwise.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// EnsureCollection creates the chunk collection with cosine distance and a
// keyword index on source_file if it does not exist yet.
// Idempotent - safe to call multiple times.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Without these indexes, filtered deletes scan the whole collection.
	for _, field := range []string{"source_file", "content_hash"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	return nil
}

// ClearCollection deletes the collection and recreates it empty.
func (s *QdrantStore) ClearCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return s.EnsureCollection(ctx)
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Add upserts chunk records in batches of 100. Records are keyed by their
// deterministic ID, so re-adding a chunk replaces it. A failure in any batch
// fails the whole call.
func (s *QdrantStore) Add(ctx context.Context, records []*ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	for i, r := range records {
		if len(r.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %d of %s has %d dimensions, expected %d",
				ErrDimensionMismatch, r.ChunkIndex, r.SourceFile, len(r.Embedding), s.dimension)
		}
		if r.ID == "" {
			records[i].ID = ChunkID(r.SourceFile, r.ChunkIndex)
		}
	}

	for i := 0; i < len(records); i += upsertBatch {
		end := min(i+upsertBatch, len(records))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for _, r := range records[i:end] {
			points = append(points, &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(r.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					vectorName: qdrant.NewVector(r.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"source_file":  r.SourceFile,
					"chunk_index":  r.ChunkIndex,
					"content":      r.Content,
					"content_hash": r.ContentHash,
					"title":        r.Title,
					"indexed_at":   r.IndexedAt.UTC().Format(time.RFC3339Nano),
				}),
			})
		}

		err := s.retry(ctx, func() error {
			_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: s.collection,
				Wait:           qdrant.PtrOf(true),
				Points:         points,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: upsert batch %d-%d: %v", ErrStore, i, end, err)
		}
	}

	return nil
}

// GetByDocument returns every chunk stored for sourceFile ordered by chunk index.
// Embeddings are not loaded.
func (s *QdrantStore) GetByDocument(ctx context.Context, sourceFile string) ([]*ChunkRecord, error) {
	points, err := s.scrollAll(ctx, sourceFilter(sourceFile), qdrant.NewWithPayload(true))
	if err != nil {
		return nil, fmt.Errorf("%w: scroll chunks of %s: %v", ErrStore, sourceFile, err)
	}

	records := make([]*ChunkRecord, 0, len(points))
	for _, p := range points {
		records = append(records, recordFromPayload(p.Id.GetUuid(), p.Payload))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ChunkIndex < records[j].ChunkIndex
	})
	return records, nil
}

// DeleteByDocument removes every chunk whose source_file equals sourceFile.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, sourceFile string) error {
	err := s.retry(ctx, func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelectorFilter(sourceFilter(sourceFile)),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: delete chunks of %s: %v", ErrStore, sourceFile, err)
	}
	return nil
}

// DeleteByIDs removes the chunks with the given IDs. Unknown IDs are ignored.
func (s *QdrantStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	err := s.retry(ctx, func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelector(pointIDs...),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: delete %d chunks: %v", ErrStore, len(ids), err)
	}
	return nil
}

// Query performs vector similarity search over all chunks.
// Returns top N chunks ordered by score descending.
func (s *QdrantStore) Query(ctx context.Context, embedding []float32, limit int) ([]*ScoredChunk, error) {
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), s.dimension)
	}

	using := vectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Using:          &using,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query chunks: %v", ErrStore, err)
	}

	scored := make([]*ScoredChunk, 0, len(results))
	for _, result := range results {
		scored = append(scored, &ScoredChunk{
			ChunkRecord: recordFromPayload(result.Id.GetUuid(), result.Payload),
			Score:       float64(result.Score),
		})
	}
	return scored, nil
}

// ListDocuments returns the distinct source files present in the collection, sorted.
func (s *QdrantStore) ListDocuments(ctx context.Context) ([]string, error) {
	points, err := s.scrollAll(ctx, nil, qdrant.NewWithPayloadInclude("source_file"))
	if err != nil {
		return nil, fmt.Errorf("%w: scroll documents: %v", ErrStore, err)
	}

	seen := make(map[string]struct{})
	var files []string
	for _, p := range points {
		file := p.Payload["source_file"].GetStringValue()
		if _, ok := seen[file]; ok || file == "" {
			continue
		}
		seen[file] = struct{}{}
		files = append(files, file)
	}
	sort.Strings(files)
	return files, nil
}

// Count returns the exact number of chunks in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count chunks: %v", ErrStore, err)
	}
	return int(n), nil
}

// scrollAll pages through every point matching filter. Qdrant's scroll offset
// is inclusive, so one extra point is requested per page to find the next offset.
func (s *QdrantStore) scrollAll(ctx context.Context, filter *qdrant.Filter, payload *qdrant.WithPayloadSelector) ([]*qdrant.RetrievedPoint, error) {
	var points []*qdrant.RetrievedPoint
	var offset *qdrant.PointId

	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(scrollBatch + 1),
			Offset:         offset,
			WithPayload:    payload,
		})
		if err != nil {
			return nil, err
		}

		if uint32(len(results)) <= scrollBatch {
			points = append(points, results...)
			return points, nil
		}

		points = append(points, results[:scrollBatch]...)
		offset = results[scrollBatch].Id
	}
}

func sourceFilter(sourceFile string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("source_file", sourceFile),
		},
	}
}

func recordFromPayload(id string, payload map[string]*qdrant.Value) *ChunkRecord {
	indexedAt, err := time.Parse(time.RFC3339Nano, payload["indexed_at"].GetStringValue())
	if err != nil {
		indexedAt = time.Time{} // Use zero time if parse fails
	}

	return &ChunkRecord{
		ID:          id,
		SourceFile:  payload["source_file"].GetStringValue(),
		ChunkIndex:  int(payload["chunk_index"].GetIntegerValue()),
		Content:     payload["content"].GetStringValue(),
		ContentHash: payload["content_hash"].GetStringValue(),
		Title:       payload["title"].GetStringValue(),
		IndexedAt:   indexedAt,
	}
}
