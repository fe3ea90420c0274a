package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docsync/internal/chunker"
	"github.com/bull/docsync/internal/extract"
	"github.com/bull/docsync/internal/state"
	"github.com/bull/docsync/internal/storage"
)

const testDim = 3

// countingStore wraps MemoryStore, counting mutations and injecting failures.
type countingStore struct {
	*storage.MemoryStore
	adds, deletes int
	failAdd       error
	failDelete    error
}

func (s *countingStore) Add(ctx context.Context, records []*storage.ChunkRecord) error {
	if s.failAdd != nil {
		return s.failAdd
	}
	s.adds++
	return s.MemoryStore.Add(ctx, records)
}

func (s *countingStore) DeleteByDocument(ctx context.Context, sourceFile string) error {
	if s.failDelete != nil {
		return s.failDelete
	}
	s.deletes++
	return s.MemoryStore.DeleteByDocument(ctx, sourceFile)
}

func (s *countingStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if s.failDelete != nil {
		return s.failDelete
	}
	s.deletes++
	return s.MemoryStore.DeleteByIDs(ctx, ids)
}

func (s *countingStore) mutations() int { return s.adds + s.deletes }

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

type countingExtractor struct {
	*extract.Registry
	extracts int
}

func (c *countingExtractor) Extract(ctx context.Context, path string) (extract.Content, error) {
	c.extracts++
	return c.Registry.Extract(ctx, path)
}

type fixture struct {
	dir       string
	stateDir  string
	engine    *Engine
	store     *countingStore
	embedder  *fakeEmbedder
	extractor *countingExtractor
	chunker   *chunker.Chunker
	processed *state.ProcessedLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:       t.TempDir(),
		stateDir:  t.TempDir(),
		store:     &countingStore{MemoryStore: storage.NewMemoryStore(testDim)},
		embedder:  &fakeEmbedder{},
		extractor: &countingExtractor{Registry: extract.NewRegistry(extract.DefaultFormats()...)},
	}

	var err error
	f.chunker, err = chunker.New(10, 2)
	require.NoError(t, err)

	f.processed, err = state.LoadProcessedLog(filepath.Join(f.stateDir, state.ProcessedLogFile))
	require.NoError(t, err)

	f.engine = f.newEngine(t)
	return f
}

// newEngine builds an engine over the fixture's folder, store and state files,
// the way a restarted process would.
func (f *fixture) newEngine(t *testing.T) *Engine {
	t.Helper()
	hashes, err := state.LoadHashRecord(filepath.Join(f.stateDir, state.HashRecordFile))
	require.NoError(t, err)

	e, err := NewEngine(Config{
		Dir:       f.dir,
		Extractor: f.extractor,
		Chunker:   f.chunker,
		Embedder:  f.embedder,
		Store:     f.store,
		Hashes:    hashes,
		Processed: f.processed,
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644))
}

// setModTime sets a document's mtime.
func (f *fixture) setModTime(t *testing.T, name string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(filepath.Join(f.dir, name), mtime, mtime))
}

func (f *fixture) run(t *testing.T) *SyncResult {
	t.Helper()
	result, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	return result
}

func (f *fixture) chunkTexts(t *testing.T, name string) []string {
	t.Helper()
	records, err := f.store.GetByDocument(context.Background(), name)
	require.NoError(t, err)
	texts := make([]string, len(records))
	for i, r := range records {
		assert.Equal(t, i, r.ChunkIndex, "chunk indexes must have no gaps")
		texts[i] = r.Content
	}
	return texts
}

func (f *fixture) recordedHash(t *testing.T, name string) (string, bool) {
	t.Helper()
	hashes, err := state.LoadHashRecord(filepath.Join(f.stateDir, state.HashRecordFile))
	require.NoError(t, err)
	return hashes.Get(name)
}

func TestRun_IngestsNewDocuments(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello world, this is a test")
	f.write(t, "b.txt", "short")

	result := f.run(t)

	assert.Equal(t, 2, result.TotalDocs)
	assert.Equal(t, 2, result.New)
	assert.Empty(t, result.Failed)
	assert.True(t, result.Changed())

	want := chunker.Texts(f.chunker.Split("hello world, this is a test"))
	assert.Equal(t, want, f.chunkTexts(t, "a.txt"))
	assert.Equal(t, []string{"short"}, f.chunkTexts(t, "b.txt"))
	assert.Equal(t, len(want)+1, result.ChunksWritten)

	_, ok := f.recordedHash(t, "a.txt")
	assert.True(t, ok)
	assert.True(t, f.processed.Contains("a.txt"))

	records, err := f.store.GetByDocument(context.Background(), "a.txt")
	require.NoError(t, err)
	hash, _ := f.recordedHash(t, "a.txt")
	assert.Equal(t, hash, records[0].ContentHash)
	assert.Equal(t, storage.ChunkID("a.txt", 0), records[0].ID)
}

func TestRun_SecondSyncIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello world, this is a test")
	f.write(t, "b.txt", "short")
	hourAgo := time.Now().Add(-time.Hour)
	f.setModTime(t, "a.txt", hourAgo)
	f.setModTime(t, "b.txt", hourAgo)
	f.run(t)

	mutations := f.store.mutations()
	embeds := f.embedder.calls
	extracts := f.extractor.extracts

	result := f.run(t)

	assert.Equal(t, 2, result.Unchanged)
	assert.False(t, result.Changed())
	assert.Equal(t, mutations, f.store.mutations(), "no store mutations expected")
	assert.Equal(t, embeds, f.embedder.calls)
	assert.Equal(t, extracts, f.extractor.extracts, "stat cache should skip extraction")
}

func TestRun_SameSizeEditWithinMtimeTickIsDetected(t *testing.T) {
	f := newFixture(t)
	tick := time.Now().Truncate(time.Second)
	f.write(t, "a.txt", "hello world, this is a test")
	f.setModTime(t, "a.txt", tick)
	f.run(t)

	// Same length, same mtime: only the content tells the edit apart.
	f.write(t, "a.txt", "HELLO WORLD, THIS IS A TEST")
	f.setModTime(t, "a.txt", tick)

	result := f.run(t)
	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, chunker.Texts(f.chunker.Split("HELLO WORLD, THIS IS A TEST")), f.chunkTexts(t, "a.txt"))

	// Once the file is older than its confirmation, the cache applies again.
	f.setModTime(t, "a.txt", tick.Add(-time.Hour))
	f.run(t)
	extracts := f.extractor.extracts
	result = f.run(t)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, extracts, f.extractor.extracts)
}

func TestRun_RestartSeesPersistedHashes(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello world, this is a test")
	f.run(t)
	mutations := f.store.mutations()

	f.engine = f.newEngine(t)
	result := f.run(t)

	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, mutations, f.store.mutations())
}

func TestRun_TouchWithoutTextChangeIsUnchanged(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello world, this is a test")
	f.run(t)
	mutations := f.store.mutations()

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(f.dir, "a.txt"), later, later))

	result := f.run(t)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, mutations, f.store.mutations())
}

func TestRun_ModifiedDocumentReplacesChunks(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello world, this is a test")
	f.run(t)
	oldHash, _ := f.recordedHash(t, "a.txt")

	f.write(t, "a.txt", "brand new text")
	result := f.run(t)

	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, chunker.Texts(f.chunker.Split("brand new text")), f.chunkTexts(t, "a.txt"))

	newHash, _ := f.recordedHash(t, "a.txt")
	assert.NotEqual(t, oldHash, newHash)
}

func TestRun_DeletedDocumentRemovesChunks(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello world, this is a test")
	f.write(t, "b.txt", "short")
	f.run(t)

	require.NoError(t, os.Remove(filepath.Join(f.dir, "b.txt")))
	result := f.run(t)

	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.ChunksRemoved)
	assert.Empty(t, f.chunkTexts(t, "b.txt"))
	_, ok := f.recordedHash(t, "b.txt")
	assert.False(t, ok)

	docs, err := f.store.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, docs)
}

func TestRun_ExtractionFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello world, this is a test")
	f.run(t)
	oldHash, _ := f.recordedHash(t, "a.txt")
	oldChunks := f.chunkTexts(t, "a.txt")
	mutations := f.store.mutations()

	f.write(t, "a.txt", "\xff\xfe\xfd")
	f.write(t, "bad.txt", "\xff\xfe")
	result := f.run(t)

	require.Len(t, result.Failed, 2)
	assert.Equal(t, mutations, f.store.mutations())

	hash, _ := f.recordedHash(t, "a.txt")
	assert.Equal(t, oldHash, hash)
	assert.Equal(t, oldChunks, f.chunkTexts(t, "a.txt"))

	_, ok := f.recordedHash(t, "bad.txt")
	assert.False(t, ok)
}

func TestRun_EmbeddingFailureLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello world, this is a test")
	f.run(t)
	oldHash, _ := f.recordedHash(t, "a.txt")
	oldChunks := f.chunkTexts(t, "a.txt")
	mutations := f.store.mutations()

	f.embedder.err = errors.New("model offline")
	f.write(t, "a.txt", "brand new text")
	f.write(t, "c.txt", "another one")
	result := f.run(t)

	assert.Len(t, result.Failed, 2)
	assert.Equal(t, mutations, f.store.mutations())
	assert.Equal(t, oldChunks, f.chunkTexts(t, "a.txt"))
	hash, _ := f.recordedHash(t, "a.txt")
	assert.Equal(t, oldHash, hash)

	// Recovers on the next cycle once the model is back
	f.embedder.err = nil
	result = f.run(t)
	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, 1, result.New)
}

func TestRun_StoreFailureLeavesHashUnadvanced(t *testing.T) {
	f := newFixture(t)
	f.store.failAdd = errors.New("qdrant down")
	f.write(t, "a.txt", "hello world, this is a test")

	result := f.run(t)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "a.txt", result.Failed[0].Path)
	_, ok := f.recordedHash(t, "a.txt")
	assert.False(t, ok)

	f.store.failAdd = nil
	result = f.run(t)
	assert.Equal(t, 1, result.New)
	_, ok = f.recordedHash(t, "a.txt")
	assert.True(t, ok)
}

func TestRun_DeleteFailureKeepsDocumentRecorded(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello")
	f.run(t)

	require.NoError(t, os.Remove(filepath.Join(f.dir, "a.txt")))
	f.store.failDelete = errors.New("qdrant down")
	result := f.run(t)

	require.Len(t, result.Failed, 1)
	_, ok := f.recordedHash(t, "a.txt")
	assert.True(t, ok)

	f.store.failDelete = nil
	result = f.run(t)
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, f.chunkTexts(t, "a.txt"))
}

func TestRun_NewDocumentRemovesOrphans(t *testing.T) {
	f := newFixture(t)

	// Chunks left by an earlier run whose hash record was lost
	var stale []*storage.ChunkRecord
	for i := 0; i < 6; i++ {
		stale = append(stale, storage.NewChunkRecord("a.txt", i, "stale", []float32{1, 1, 1}))
	}
	require.NoError(t, f.store.MemoryStore.Add(context.Background(), stale))

	f.write(t, "a.txt", "brand new text")
	result := f.run(t)

	assert.Equal(t, 1, result.New)
	assert.Equal(t, 6, result.ChunksRemoved)
	assert.Equal(t, chunker.Texts(f.chunker.Split("brand new text")), f.chunkTexts(t, "a.txt"))
}

func TestRun_EmptyDocumentHasNoChunks(t *testing.T) {
	f := newFixture(t)
	f.write(t, "empty.txt", "")

	result := f.run(t)

	assert.Equal(t, 1, result.New)
	assert.Empty(t, f.chunkTexts(t, "empty.txt"))
	_, ok := f.recordedHash(t, "empty.txt")
	assert.True(t, ok)
}

func TestRun_IgnoresHiddenLockAndUnsupportedFiles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello")
	f.write(t, ".hidden.txt", "secret")
	f.write(t, "~$draft.docx", "lock")
	f.write(t, "image.png", "png")
	require.NoError(t, os.Mkdir(filepath.Join(f.dir, "sub.txt"), 0o755))

	result := f.run(t)

	assert.Equal(t, 1, result.TotalDocs)
	docs, err := f.store.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, docs)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.store.mutations())
	_, ok := f.recordedHash(t, "a.txt")
	assert.False(t, ok)
}

// cancelOnDeleteStore cancels the sync right after a document's old chunks
// are removed, before the new ones are added.
type cancelOnDeleteStore struct {
	*countingStore
	cancel context.CancelFunc
}

func (s *cancelOnDeleteStore) DeleteByDocument(ctx context.Context, sourceFile string) error {
	err := s.countingStore.DeleteByDocument(ctx, sourceFile)
	s.cancel()
	return err
}

func TestRun_InterruptMidDocumentStillWritesChunks(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello world, this is a test")
	f.run(t)
	oldHash, _ := f.recordedHash(t, "a.txt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancelOnDeleteStore{countingStore: f.store, cancel: cancel}

	hashes, err := state.LoadHashRecord(filepath.Join(f.stateDir, state.HashRecordFile))
	require.NoError(t, err)
	engine, err := NewEngine(Config{
		Dir:       f.dir,
		Extractor: f.extractor,
		Chunker:   f.chunker,
		Embedder:  f.embedder,
		Store:     store,
		Hashes:    hashes,
	})
	require.NoError(t, err)

	f.write(t, "a.txt", "brand new text")
	result, err := engine.Run(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Modified)

	assert.Equal(t, chunker.Texts(f.chunker.Split("brand new text")), f.chunkTexts(t, "a.txt"))
	newHash, ok := f.recordedHash(t, "a.txt")
	assert.True(t, ok)
	assert.NotEqual(t, oldHash, newHash)
}

func TestRun_InterruptDuringDeletionCompletesIt(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello world, this is a test")
	f.run(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancelOnDeleteStore{countingStore: f.store, cancel: cancel}

	hashes, err := state.LoadHashRecord(filepath.Join(f.stateDir, state.HashRecordFile))
	require.NoError(t, err)
	engine, err := NewEngine(Config{
		Dir:       f.dir,
		Extractor: f.extractor,
		Chunker:   f.chunker,
		Embedder:  f.embedder,
		Store:     store,
		Hashes:    hashes,
	})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(f.dir, "a.txt")))
	result, err := engine.Run(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, f.chunkTexts(t, "a.txt"))
	_, ok := f.recordedHash(t, "a.txt")
	assert.False(t, ok)
}

func TestRun_MissingFolder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.RemoveAll(f.dir))

	_, err := f.engine.Run(context.Background())
	assert.Error(t, err)
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	_, err := NewEngine(Config{})
	assert.Error(t, err)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "new", New.String())
	assert.Equal(t, "modified", Modified.String())
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "deleted", Deleted.String())
}

func TestRun_FailuresMarkedForRetry(t *testing.T) {
	f := newFixture(t)
	f.write(t, "bad.txt", "\xff")
	result := f.run(t)
	require.Len(t, result.Failed, 1)
	assert.False(t, result.NeedsRetry(), "extraction failures wait for the file to change")

	f.embedder.err = errors.New("model offline")
	f.write(t, "a.txt", "hello")
	result = f.run(t)
	assert.True(t, result.NeedsRetry())
}
