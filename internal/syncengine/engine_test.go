package syncengine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "mdvec-core/internal/errors"
	"mdvec-core/internal/chunking"
	"mdvec-core/internal/overlap"
	"mdvec-core/internal/syncstate"
	"mdvec-core/pkg/types"
)

type fakeVectorIndex struct {
	added   map[string]bool
	deleted []string
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{added: make(map[string]bool)}
}

func (f *fakeVectorIndex) AddDocuments(_ context.Context, ids []string, _ [][]float32, _ []map[string]interface{}) error {
	for _, id := range ids {
		f.added[id] = true
	}
	return nil
}

func (f *fakeVectorIndex) DeleteDocuments(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	for _, id := range ids {
		delete(f.added, id)
	}
	return nil
}

func (f *fakeVectorIndex) DeleteCollection(_ context.Context) error {
	f.added = make(map[string]bool)
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Generate(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbedder) GenerateBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (fakeEmbedder) Dimensions() int { return 2 }

// blockingEmbedder signals entered once GenerateBatch is called, then
// stalls until release is closed, wide enough to let two concurrent
// SyncCollection calls overlap.
type blockingEmbedder struct {
	entered chan struct{}
	release chan struct{}
}

func (b blockingEmbedder) Generate(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (b blockingEmbedder) GenerateBatch(_ context.Context, texts []string) ([][]float32, error) {
	select {
	case <-b.entered:
	default:
		close(b.entered)
	}
	<-b.release
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (b blockingEmbedder) Dimensions() int { return 2 }

// panickingVectorIndex panics on AddDocuments for chunks from a chosen
// file path, used to verify a single file's fault does not crash the
// whole sync batch.
type panickingVectorIndex struct {
	*fakeVectorIndex
	panicOnPath string
}

func (p *panickingVectorIndex) AddDocuments(ctx context.Context, ids []string, vectors [][]float32, metadatas []map[string]interface{}) error {
	for _, m := range metadatas {
		if path, _ := m["file_path"].(string); path == p.panicOnPath {
			panic("simulated fault processing file " + path)
		}
	}
	return p.fakeVectorIndex.AddDocuments(ctx, ids, vectors, metadatas)
}

func newTestEngine(t *testing.T) (*Engine, *syncstate.Store, *fakeVectorIndex) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync-state.db")
	store, err := syncstate.Open(path, 5000, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vectors := newFakeVectorIndex()
	engine, err := New(DefaultConfig(), store, vectors, fakeEmbedder{}, chunking.DefaultConfig(), overlap.DefaultConfig())
	require.NoError(t, err)
	return engine, store, vectors
}

func TestSyncCollectionWithNoFilesGoesInSync(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := store.CreateCollection(ctx, "docs", "")
	require.NoError(t, err)

	result, err := engine.SyncCollection(ctx, "docs", Options{})
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusInSync, result.Status)
}

func TestSyncCollectionRejectsAlreadySyncing(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := store.CreateCollection(ctx, "docs", "")
	require.NoError(t, err)

	status, err := store.GetSyncStatus(ctx, "docs")
	require.NoError(t, err)
	status.Status = types.SyncStatusSyncing
	require.NoError(t, store.SaveSyncStatus(ctx, status))

	_, err = engine.SyncCollection(ctx, "docs", Options{})
	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.KindAlreadySyncing))
}

func TestSyncCollectionRejectsConcurrentCallsForSameCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync-state.db")
	store, err := syncstate.Open(path, 5000, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	embedder := blockingEmbedder{entered: make(chan struct{}), release: make(chan struct{})}
	engine, err := New(DefaultConfig(), store, newFakeVectorIndex(), embedder, chunking.DefaultConfig(), overlap.DefaultConfig())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.CreateCollection(ctx, "docs", "")
	require.NoError(t, err)
	require.NoError(t, store.SaveFile(ctx, &types.File{
		ID: "f1", Collection: "docs", Filename: "ai.md",
		Content: "# AI\n\nNeural networks are computational models.", ContentHash: "irrelevant", Size: 10,
	}))

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = engine.SyncCollection(ctx, "docs", Options{})
	}()
	<-embedder.entered

	_, errs[1] = engine.SyncCollection(ctx, "docs", Options{})
	close(embedder.release)
	wg.Wait()

	require.Error(t, errs[1])
	assert.True(t, coreerrors.Is(errs[1], coreerrors.KindAlreadySyncing))
	assert.NoError(t, errs[0])
}

func TestSyncCollectionIsolatesPanicToFailingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync-state.db")
	store, err := syncstate.Open(path, 5000, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vectors := &panickingVectorIndex{fakeVectorIndex: newFakeVectorIndex(), panicOnPath: "bad.md"}
	engine, err := New(DefaultConfig(), store, vectors, fakeEmbedder{}, chunking.DefaultConfig(), overlap.DefaultConfig())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.CreateCollection(ctx, "docs", "")
	require.NoError(t, err)
	require.NoError(t, store.SaveFile(ctx, &types.File{
		ID: "good1", Collection: "docs", Filename: "good1.md",
		Content: "# Good One\n\nThis file processes cleanly.", ContentHash: "irrelevant", Size: 10,
	}))
	require.NoError(t, store.SaveFile(ctx, &types.File{
		ID: "good2", Collection: "docs", Filename: "good2.md",
		Content: "# Good Two\n\nThis file also processes cleanly.", ContentHash: "irrelevant", Size: 10,
	}))
	require.NoError(t, store.SaveFile(ctx, &types.File{
		ID: "bad", Collection: "docs", Filename: "bad.md",
		Content: "# Bad\n\nThis file triggers a simulated panic.", ContentHash: "irrelevant", Size: 10,
	}))

	result, err := engine.SyncCollection(ctx, "docs", Options{})
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusPartialSync, result.Status)
	assert.Equal(t, 2, result.FilesProcessed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "bad.md")

	_, err = store.GetFileVectorMapping(ctx, "docs", "good1")
	require.NoError(t, err)
	_, err = store.GetFileVectorMapping(ctx, "docs", "good2")
	require.NoError(t, err)
}

func TestSyncCollectionProcessesChangedFiles(t *testing.T) {
	engine, store, vectors := newTestEngine(t)
	ctx := context.Background()

	_, err := store.CreateCollection(ctx, "docs", "")
	require.NoError(t, err)
	require.NoError(t, store.SaveFile(ctx, &types.File{
		ID: "f1", Collection: "docs", Filename: "ai.md",
		Content: "# AI\n\nNeural networks are computational models.", ContentHash: "irrelevant", Size: 10,
	}))

	result, err := engine.SyncCollection(ctx, "docs", Options{})
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusInSync, result.Status)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.NotEmpty(t, vectors.added)

	mapping, err := store.GetFileVectorMapping(ctx, "docs", "f1")
	require.NoError(t, err)
	assert.NotEmpty(t, mapping.ChunkIDs)
}

func TestSyncCollectionSkipsUnchangedFilesOnSecondRun(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := store.CreateCollection(ctx, "docs", "")
	require.NoError(t, err)
	require.NoError(t, store.SaveFile(ctx, &types.File{
		ID: "f1", Collection: "docs", Filename: "ai.md",
		Content: "# AI\n\nStable content.", ContentHash: "irrelevant", Size: 10,
	}))

	_, err = engine.SyncCollection(ctx, "docs", Options{})
	require.NoError(t, err)

	result, err := engine.SyncCollection(ctx, "docs", Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.FilesProcessed)
	assert.Equal(t, types.SyncStatusInSync, result.Status)
}

func TestCheckLiveStatusDowngradesOnDrift(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := store.CreateCollection(ctx, "docs", "")
	require.NoError(t, err)
	require.NoError(t, store.SaveFile(ctx, &types.File{
		ID: "f1", Collection: "docs", Filename: "ai.md",
		Content: "# AI\n\nOriginal content.", ContentHash: "irrelevant", Size: 10,
	}))
	_, err = engine.SyncCollection(ctx, "docs", Options{})
	require.NoError(t, err)

	require.NoError(t, store.SaveFile(ctx, &types.File{
		ID: "f1", Collection: "docs", Filename: "ai.md",
		Content: "# AI\n\nChanged content drifts from the indexed version.", ContentHash: "irrelevant", Size: 20,
	}))

	status, err := engine.CheckLiveStatus(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusOutOfSync, status.Status)
}

func TestDeleteCollectionVectorsRemovesMappingsAndResetsStatus(t *testing.T) {
	engine, store, vectors := newTestEngine(t)
	ctx := context.Background()

	_, err := store.CreateCollection(ctx, "docs", "")
	require.NoError(t, err)
	require.NoError(t, store.SaveFile(ctx, &types.File{
		ID: "f1", Collection: "docs", Filename: "ai.md",
		Content: "# AI\n\nNeural networks are computational models.", ContentHash: "irrelevant", Size: 10,
	}))
	_, err = engine.SyncCollection(ctx, "docs", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, vectors.added)

	deleted, err := engine.DeleteCollectionVectors(ctx, "docs")
	require.NoError(t, err)
	assert.Positive(t, deleted)
	assert.Empty(t, vectors.added)

	_, err = store.GetFileVectorMapping(ctx, "docs", "f1")
	require.Error(t, err)

	status, err := store.GetSyncStatus(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusNeverSynced, status.Status)
}
