// Package indexer keeps a vector store in step with a folder of documents.
//
// Each sync cycle lists the folder, compares every document's content hash
// with the hash it was last synced at, and issues the store mutations needed
// for the stored chunks to match the document's current text exactly.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/docsync/internal/chunker"
	"github.com/bull/docsync/internal/embedding"
	"github.com/bull/docsync/internal/extract"
	"github.com/bull/docsync/internal/fingerprint"
	"github.com/bull/docsync/internal/storage"
)

// Extractor reads the text of supported documents.
type Extractor interface {
	fingerprint.Extractor
	Supports(path string) bool
}

// Embedder maps chunk texts to vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore is the subset of the vector store the engine mutates.
type ChunkStore interface {
	Add(ctx context.Context, records []*storage.ChunkRecord) error
	GetByDocument(ctx context.Context, sourceFile string) ([]*storage.ChunkRecord, error)
	DeleteByDocument(ctx context.Context, sourceFile string) error
	DeleteByIDs(ctx context.Context, ids []string) error
}

// HashRecord is the persisted identity -> content hash mapping.
type HashRecord interface {
	Get(identity string) (string, bool)
	Set(identity, hash string)
	Delete(identity string)
	Identities() []string
	Save() error
}

// ProcessedLog records identities that have been ingested at least once.
type ProcessedLog interface {
	Contains(identity string) bool
	Add(identity string) error
}

// Config holds the collaborators of an Engine. Processed and Logger are optional.
type Config struct {
	Dir       string
	Extractor Extractor
	Chunker   *chunker.Chunker
	Embedder  Embedder
	Store     ChunkStore
	Hashes    HashRecord
	Processed ProcessedLog
	Logger    *slog.Logger
}

// racyWindow covers the coarsest mtime granularity in common use (FAT).
// A file modified this close to its hash confirmation may have been edited
// again within the same mtime tick.
const racyWindow = 2 * time.Second

// fileStat is what a document looked like on disk when its hash was last confirmed.
type fileStat struct {
	size      int64
	modTime   time.Time
	hash      string
	confirmed time.Time
}

// unchanged reports whether f can be trusted to still have st's hash
// without reading it.
func (st fileStat) unchanged(f File) bool {
	return st.size == f.Size && st.modTime.Equal(f.ModTime) &&
		f.ModTime.Before(st.confirmed.Add(-racyWindow))
}

// Engine runs sync cycles over one folder. It is not safe for concurrent use.
type Engine struct {
	dir           string
	extractor     Extractor
	fingerprinter *fingerprint.Fingerprinter
	chunker       *chunker.Chunker
	embedder      Embedder
	store         ChunkStore
	hashes        HashRecord
	processed     ProcessedLog
	stats         map[string]fileStat
	logger        *slog.Logger
}

// NewEngine creates a sync engine from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	switch {
	case cfg.Dir == "":
		return nil, errors.New("indexer: folder not set")
	case cfg.Extractor == nil:
		return nil, errors.New("indexer: extractor not set")
	case cfg.Chunker == nil:
		return nil, errors.New("indexer: chunker not set")
	case cfg.Embedder == nil:
		return nil, errors.New("indexer: embedder not set")
	case cfg.Store == nil:
		return nil, errors.New("indexer: chunk store not set")
	case cfg.Hashes == nil:
		return nil, errors.New("indexer: hash record not set")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		dir:           cfg.Dir,
		extractor:     cfg.Extractor,
		fingerprinter: fingerprint.New(cfg.Extractor),
		chunker:       cfg.Chunker,
		embedder:      cfg.Embedder,
		store:         cfg.Store,
		hashes:        cfg.Hashes,
		processed:     cfg.Processed,
		stats:         make(map[string]fileStat),
		logger:        logger.With("component", "sync"),
	}, nil
}

// Dir returns the watched folder.
func (e *Engine) Dir() string { return e.dir }

// Accept reports whether a file name is a document this engine syncs.
func (e *Engine) Accept(name string) bool {
	return e.extractor.Supports(name)
}

// Run performs one sync cycle. Per-document failures are collected in the
// result and never abort the cycle. An error is returned only when the folder
// cannot be listed or ctx is cancelled; in the latter case the partial result
// is returned too.
func (e *Engine) Run(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{}

	files, err := List(e.dir, e.Accept)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	result.TotalDocs = len(files)

	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f.Name] = struct{}{}

		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		outcome, err := e.syncDocument(ctx, f, result)
		if err != nil {
			if isCancellation(ctx, err) {
				result.Duration = time.Since(start)
				return result, ctx.Err()
			}
			failure := FailedDoc{
				Path:   f.Name,
				Reason: err.Error(),
				Retry:  !errors.Is(err, extract.ErrExtraction) && !errors.Is(err, extract.ErrUnsupportedFormat),
			}
			if errors.Is(err, extract.ErrUnsupportedFormat) {
				e.logger.Info("Skipping unsupported document", "path", f.Name)
				result.Skipped = append(result.Skipped, failure)
			} else {
				e.logger.Warn("Failed to sync document", "path", f.Name, "error", err)
				result.Failed = append(result.Failed, failure)
			}
			continue // Leave the document at its previous state, retry next cycle
		}
		result.count(outcome)
	}

	// Anything recorded but no longer listed was deleted from the folder.
	for _, id := range e.hashes.Identities() {
		if _, ok := present[id]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		if err := e.deleteDocument(ctx, id, result); err != nil {
			if isCancellation(ctx, err) {
				result.Duration = time.Since(start)
				return result, ctx.Err()
			}
			e.logger.Warn("Failed to remove deleted document", "path", id, "error", err)
			result.Failed = append(result.Failed, FailedDoc{Path: id, Reason: err.Error(), Retry: true})
			continue
		}
		result.count(Deleted)
	}

	result.Duration = time.Since(start)
	if result.Changed() || len(result.Failed) > 0 {
		e.logger.Info("Sync complete",
			"new", result.New,
			"modified", result.Modified,
			"deleted", result.Deleted,
			"unchanged", result.Unchanged,
			"failed", len(result.Failed),
			"chunks", result.ChunksWritten,
			"duration", result.Duration,
		)
	} else {
		e.logger.Debug("Sync complete, nothing changed", "documents", result.TotalDocs)
	}

	return result, nil
}

// syncDocument brings one listed document up to date.
func (e *Engine) syncDocument(ctx context.Context, f File, result *SyncResult) (Outcome, error) {
	prevHash, known := e.hashes.Get(f.Name)

	// Same size and mtime as when the hash was last confirmed: skip extraction.
	if st, ok := e.stats[f.Name]; ok && known && st.hash == prevHash && st.unchanged(f) {
		return Unchanged, nil
	}

	fp, err := e.fingerprinter.Fingerprint(ctx, f.Path)
	if err != nil {
		return Unchanged, err
	}

	if known && fp.Hash == prevHash {
		e.rememberStat(f, fp.Hash)
		return Unchanged, nil
	}

	// Embed before touching the store so a model failure leaves it intact.
	chunks := e.chunker.Split(fp.Content.Text)
	texts := chunker.Texts(chunks)

	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return Unchanged, fmt.Errorf("embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return Unchanged, fmt.Errorf("embeddings: %w: got %d vectors for %d chunks",
			embedding.ErrEmbedding, len(vectors), len(texts))
	}

	// Once embedded, the document is applied in full even if ctx is
	// cancelled: an interrupt between delete and add would leave it with
	// no chunks.
	ctx = context.WithoutCancel(ctx)

	existing, err := e.store.GetByDocument(ctx, f.Name)
	if err != nil {
		return Unchanged, fmt.Errorf("load stored chunks: %w", err)
	}

	outcome := New
	if known {
		outcome = Modified
		e.logChunkDiff(f.Name, existing, texts)
		if err := e.store.DeleteByDocument(ctx, f.Name); err != nil {
			return Unchanged, fmt.Errorf("remove old chunks: %w", err)
		}
	} else if len(existing) > 0 {
		// Left behind by an interrupted cycle or a lost hash record.
		e.logger.Warn("Removing orphaned chunks", "path", f.Name, "chunks", len(existing))
		ids := make([]string, len(existing))
		for i, r := range existing {
			ids[i] = r.ID
		}
		if err := e.store.DeleteByIDs(ctx, ids); err != nil {
			return Unchanged, fmt.Errorf("remove orphaned chunks: %w", err)
		}
	}
	result.ChunksRemoved += len(existing)

	now := time.Now().UTC()
	records := make([]*storage.ChunkRecord, len(chunks))
	for i, c := range chunks {
		r := storage.NewChunkRecord(f.Name, c.Index, c.Content, vectors[i])
		r.ContentHash = fp.Hash
		r.Title = fp.Content.Title
		r.IndexedAt = now
		records[i] = r
	}

	if err := e.store.Add(ctx, records); err != nil {
		return Unchanged, fmt.Errorf("store chunks: %w", err)
	}
	result.ChunksWritten += len(records)

	e.hashes.Set(f.Name, fp.Hash)
	if err := e.hashes.Save(); err != nil {
		e.restoreHash(f.Name, prevHash, known)
		return Unchanged, fmt.Errorf("save hash record: %w", err)
	}
	e.rememberStat(f, fp.Hash)

	if e.processed != nil && !e.processed.Contains(f.Name) {
		e.logger.Info("Ingested document for the first time", "path", f.Name, "chunks", len(records))
		if err := e.processed.Add(f.Name); err != nil {
			e.logger.Warn("Failed to update processed log", "path", f.Name, "error", err)
		}
	} else {
		e.logger.Info("Synced document", "path", f.Name, "outcome", outcome, "chunks", len(records))
	}

	return outcome, nil
}

// deleteDocument removes every chunk of a document that left the folder.
func (e *Engine) deleteDocument(ctx context.Context, id string, result *SyncResult) error {
	ctx = context.WithoutCancel(ctx)

	existing, err := e.store.GetByDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("load stored chunks: %w", err)
	}
	if err := e.store.DeleteByDocument(ctx, id); err != nil {
		return fmt.Errorf("remove chunks: %w", err)
	}
	result.ChunksRemoved += len(existing)

	prevHash, _ := e.hashes.Get(id)
	e.hashes.Delete(id)
	if err := e.hashes.Save(); err != nil {
		e.restoreHash(id, prevHash, true)
		return fmt.Errorf("save hash record: %w", err)
	}
	delete(e.stats, id)

	e.logger.Info("Removed deleted document", "path", id, "chunks", len(existing))
	return nil
}

func (e *Engine) rememberStat(f File, hash string) {
	e.stats[f.Name] = fileStat{size: f.Size, modTime: f.ModTime, hash: hash, confirmed: time.Now()}
}

// restoreHash undoes an in-memory hash change whose save failed, so the
// document is retried next cycle.
func (e *Engine) restoreHash(id, hash string, known bool) {
	if known {
		e.hashes.Set(id, hash)
	} else {
		e.hashes.Delete(id)
	}
	delete(e.stats, id)
}

// logChunkDiff reports how a modified document's chunk texts changed.
func (e *Engine) logChunkDiff(path string, old []*storage.ChunkRecord, texts []string) {
	oldSet := make(map[string]struct{}, len(old))
	for _, r := range old {
		oldSet[r.Content] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(texts))
	for _, t := range texts {
		newSet[t] = struct{}{}
	}

	added, removed := 0, 0
	for t := range newSet {
		if _, ok := oldSet[t]; !ok {
			added++
		}
	}
	for t := range oldSet {
		if _, ok := newSet[t]; !ok {
			removed++
		}
	}

	e.logger.Info("Replacing modified document",
		"path", path,
		"chunks_added", added,
		"chunks_removed", removed,
		"chunks_kept", len(newSet)-added,
	)
}

// isCancellation reports whether err ended a document because ctx was done.
// Stores and embedders do not always wrap the context error, so ctx decides.
func isCancellation(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil
}
