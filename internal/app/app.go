// Package app assembles docsync components from a validated configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bull/docsync/internal/chunker"
	"github.com/bull/docsync/internal/config"
	"github.com/bull/docsync/internal/embedding"
	"github.com/bull/docsync/internal/extract"
	"github.com/bull/docsync/internal/indexer"
	"github.com/bull/docsync/internal/state"
	"github.com/bull/docsync/internal/storage"
)

// Store is the full chunk store surface used by the commands.
type Store interface {
	indexer.ChunkStore
	Health(ctx context.Context) error
	EnsureCollection(ctx context.Context) error
	ClearCollection(ctx context.Context) error
	Query(ctx context.Context, embedding []float32, limit int) ([]*storage.ScoredChunk, error)
	ListDocuments(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Embedder is an embedding provider with a fixed output dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// NewLogger returns a text slog logger writing to w at the configured level.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// OpenStore connects to the configured store and ensures its collection exists.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case config.StoreMemory:
		return storage.NewMemoryStore(cfg.Embedding.Dimension), nil
	case config.StoreQdrant:
		store, err := storage.NewQdrantStore(ctx, storage.QdrantConfig{
			Host:       cfg.Store.Host,
			Port:       cfg.Store.Port,
			APIKey:     cfg.Store.APIKey,
			UseTLS:     cfg.Store.UseTLS,
			Collection: cfg.Store.Collection,
			Dimension:  cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		if err := store.EnsureCollection(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to ensure collection: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown store %q", config.ErrConfiguration, cfg.Store.Backend)
	}
}

// NewEmbedder creates the configured embedding provider.
func NewEmbedder(cfg *config.Config, logger *slog.Logger) (Embedder, error) {
	switch strings.ToLower(cfg.Embedding.Provider) {
	case config.ProviderOpenAI:
		client, err := embedding.NewClient(cfg.Embedding.APIKey, cfg.Embedding.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		return embedding.NewOpenAIEmbedder(client, embedding.OpenAIOptions{
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
			BatchSize: cfg.Embedding.BatchSize,
			Logger:    logger,
		}), nil
	case config.ProviderLocal:
		return embedding.NewLocalEmbedder(embedding.LocalOptions{
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
			BatchSize: cfg.Embedding.BatchSize,
			Logger:    logger,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrConfiguration, cfg.Embedding.Provider)
	}
}

// NewExtractor returns the format registry, restricted to the configured extensions.
func NewExtractor(cfg *config.Config) (*extract.Registry, error) {
	registry := extract.NewRegistry(extract.DefaultFormats()...)
	if len(cfg.Extensions) == 0 {
		return registry, nil
	}
	restricted, err := registry.Restrict(cfg.Extensions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	return restricted, nil
}

// Syncer owns everything a sync run holds open.
type Syncer struct {
	Engine   *indexer.Engine
	Store    Store
	Embedder Embedder
	State    *state.Store
}

// OpenSyncer locks the state directory, connects the store and embedder, and
// builds the sync engine. With reset, the collection and hash record are
// cleared first so every document is ingested again.
func OpenSyncer(ctx context.Context, cfg *config.Config, reset bool, logger *slog.Logger) (*Syncer, error) {
	extractor, err := NewExtractor(cfg)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(cfg.Chunk.Size, cfg.Chunk.Overlap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	embedder, err := NewEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}

	st, err := state.Open(cfg.ResolvedStateDir())
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	// An in-memory store starts empty, so recorded hashes would hide every document.
	if strings.EqualFold(cfg.Store.Backend, config.StoreMemory) {
		reset = true
	}
	if reset {
		if err := store.ClearCollection(ctx); err != nil {
			store.Close()
			st.Close()
			return nil, fmt.Errorf("failed to clear collection: %w", err)
		}
		if err := st.Reset(); err != nil {
			store.Close()
			st.Close()
			return nil, fmt.Errorf("failed to reset state: %w", err)
		}
	}

	engine, err := indexer.NewEngine(indexer.Config{
		Dir:       cfg.WatchDir,
		Extractor: extractor,
		Chunker:   ch,
		Embedder:  embedder,
		Store:     store,
		Hashes:    st.Hashes,
		Processed: st.Processed,
		Logger:    logger,
	})
	if err != nil {
		store.Close()
		st.Close()
		return nil, err
	}

	return &Syncer{Engine: engine, Store: store, Embedder: embedder, State: st}, nil
}

// Close disconnects the store and releases the state lock.
func (s *Syncer) Close() error {
	storeErr := s.Store.Close()
	stateErr := s.State.Close()
	if storeErr != nil {
		return storeErr
	}
	return stateErr
}
