// Package syncengine implements the §4.F incremental sync algorithm:
// change detection by content hash, bounded-concurrency per-file
// reprocessing, and atomic per-file vector-index replacement. The
// worker pool is built on golang.org/x/sync's errgroup+semaphore pair,
// replacing the teacher's hand-rolled chan-struct{} semaphore
// (internal/bulk/bulk_manager.go) with the pack's preferred idiom.
package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"mdvec-core/internal/chunking"
	"mdvec-core/internal/embeddings"
	"mdvec-core/internal/errors"
	"mdvec-core/internal/hashing"
	"mdvec-core/internal/logging"
	"mdvec-core/internal/overlap"
	"mdvec-core/internal/relationships"
	"mdvec-core/internal/syncstate"
	"mdvec-core/pkg/types"
)

// VectorIndex is the subset of vectorindex.Adapter the sync engine needs,
// narrowed for testability the way the teacher's internal/storage/
// interface.go VectorStore interface decouples storage implementations
// from their callers.
type VectorIndex interface {
	AddDocuments(ctx context.Context, ids []string, vectors [][]float32, metadatas []map[string]interface{}) error
	DeleteDocuments(ctx context.Context, ids []string) error
	DeleteCollection(ctx context.Context) error
}

// Options controls a single sync_collection call.
type Options struct {
	ForceReprocess     bool
	ForceDeleteVectors bool
	ChunkingStrategy   types.ChunkingStrategy
}

// Config bounds the engine's batching, concurrency, and caching.
type Config struct {
	BatchSize          int
	MaxConcurrentFiles int
	PerFileTimeout     time.Duration
	StateCacheCapacity int
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:          50,
		MaxConcurrentFiles: 5,
		PerFileTimeout:     5 * time.Minute,
		StateCacheCapacity: 50,
	}
}

// Engine coordinates the sync-state store, the chunking pipeline, and the
// vector index adapter to keep a collection's vectors in step with its
// files.
type Engine struct {
	cfg        Config
	state      *syncstate.Store
	vectors    VectorIndex
	embedder   embeddings.Service
	splitCfg   chunking.Config
	overlapCfg overlap.Config
	inFlight   *lru.Cache[string, *types.CollectionSyncStatus]

	syncMu    sync.Mutex
	syncingAt map[string]bool
}

// New constructs an Engine. state and vectors are shared, long-lived
// handles that the caller constructs once and passes in (SPEC_FULL.md
// open question iii).
func New(cfg Config, state *syncstate.Store, vectors VectorIndex, embedder embeddings.Service, splitCfg chunking.Config, overlapCfg overlap.Config) (*Engine, error) {
	cache, err := lru.New[string, *types.CollectionSyncStatus](cfg.StateCacheCapacity)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to create sync-state cache", err)
	}
	return &Engine{
		cfg:        cfg,
		state:      state,
		vectors:    vectors,
		embedder:   embedder,
		splitCfg:   splitCfg,
		overlapCfg: overlapCfg,
		inFlight:   cache,
		syncingAt:  make(map[string]bool),
	}, nil
}

// tryBeginSync atomically claims the right to sync collection, returning
// false if another call already holds it. Guards the check-then-set on
// status.Status that a bare GetSyncStatus/SaveSyncStatus pair around it
// cannot make atomic.
func (e *Engine) tryBeginSync(collection string) bool {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	if e.syncingAt[collection] {
		return false
	}
	e.syncingAt[collection] = true
	return true
}

func (e *Engine) endSync(collection string) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	delete(e.syncingAt, collection)
}

// SyncCollection runs the §4.F algorithm for a single collection.
func (e *Engine) SyncCollection(ctx context.Context, collection string, opts Options) (result *types.SyncResult, err error) {
	start := time.Now()

	if !e.tryBeginSync(collection) {
		return nil, errors.AlreadySyncing(collection)
	}
	defer e.endSync(collection)

	status, err := e.state.GetSyncStatus(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !status.SyncEnabled {
		return nil, errors.InvalidInput("sync is disabled for collection %q", collection)
	}
	if status.Status == types.SyncStatusSyncing {
		return nil, errors.AlreadySyncing(collection)
	}

	now := time.Now().UTC()
	status.Status = types.SyncStatusSyncing
	status.LastSyncAttempt = &now
	status.Errors = nil
	status.Warnings = nil
	if err := e.state.SaveSyncStatus(ctx, status); err != nil {
		return nil, err
	}
	e.inFlight.Add(collection, status)

	success := false
	defer func() {
		// Finally clause: an unexpected exit leaves status mid-transition.
		if status.Status == types.SyncStatusSyncing {
			if success {
				status.Status = types.SyncStatusInSync
			} else {
				status.Status = types.SyncStatusSyncError
			}
			_ = e.state.SaveSyncStatus(ctx, status)
		}
		e.inFlight.Remove(collection)
	}()

	if opts.ForceDeleteVectors {
		if delErr := e.vectors.DeleteCollection(ctx); delErr != nil {
			status.AppendWarning(fmt.Sprintf("force delete vectors failed: %v", delErr))
		}
	}

	files, err := e.state.ListFiles(ctx, collection)
	if err != nil {
		status.Status = types.SyncStatusSyncError
		status.AppendError(err.Error())
		_ = e.state.SaveSyncStatus(ctx, status)
		return nil, err
	}

	changed, err := e.detectChanged(ctx, collection, files, opts.ForceReprocess)
	if err != nil {
		status.Status = types.SyncStatusSyncError
		status.AppendError(err.Error())
		_ = e.state.SaveSyncStatus(ctx, status)
		return nil, err
	}

	if len(changed) == 0 {
		status.Status = types.SyncStatusInSync
		status.LastSync = &now
		status.LastSyncDuration = 0
		success = true
		if err := e.state.SaveSyncStatus(ctx, status); err != nil {
			return nil, err
		}
		return &types.SyncResult{Collection: collection, Status: status.Status, Duration: 0}, nil
	}

	strategy := opts.ChunkingStrategy
	if strategy == "" {
		strategy = e.splitCfg.Strategy
	}

	result = &types.SyncResult{Collection: collection}
	failedCount := e.processBatches(ctx, collection, changed, strategy, status, result)

	status.TotalFiles = len(files)
	status.SyncedFiles = len(changed) - failedCount
	status.ChangedFilesCount = len(changed)

	switch {
	case failedCount == 0:
		status.Status = types.SyncStatusInSync
		success = true
	case float64(failedCount) < float64(len(changed))*0.5:
		status.Status = types.SyncStatusPartialSync
		success = true
	default:
		status.Status = types.SyncStatusSyncError
	}

	status.LastSync = &now
	status.LastSyncDuration = time.Since(start)
	if status.AvgSyncDuration == 0 {
		status.AvgSyncDuration = status.LastSyncDuration
	} else {
		status.AvgSyncDuration = (status.AvgSyncDuration + status.LastSyncDuration) / 2
	}

	if err := e.state.SaveSyncStatus(ctx, status); err != nil {
		return nil, err
	}

	result.Status = status.Status
	result.Duration = status.LastSyncDuration
	result.Errors = status.Errors
	return result, nil
}

type changedFile struct {
	file        types.File
	currentHash string
}

func (e *Engine) detectChanged(ctx context.Context, collection string, files []types.File, forceReprocess bool) ([]changedFile, error) {
	changed := make([]changedFile, 0, len(files))
	for _, f := range files {
		currentHash := hashing.FileHash(f.Content)
		if !forceReprocess {
			mapping, err := e.state.GetFileVectorMapping(ctx, collection, f.ID)
			if err == nil && mapping.FileHash == currentHash {
				continue
			}
		}
		changed = append(changed, changedFile{file: f, currentHash: currentHash})
	}
	return changed, nil
}

// processBatches processes changed in batches of BatchSize, up to
// MaxConcurrentFiles files in parallel per batch, and returns the number
// of files that failed.
func (e *Engine) processBatches(ctx context.Context, collection string, changed []changedFile, strategy types.ChunkingStrategy, status *types.CollectionSyncStatus, result *types.SyncResult) int {
	failedCount := 0

	for start := 0; start < len(changed); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(changed) {
			end = len(changed)
		}
		batch := changed[start:end]

		sem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrentFiles))
		g, gctx := errgroup.WithContext(ctx)

		type outcome struct {
			chunks int
			err    error
			path   string
		}
		outcomes := make([]outcome, len(batch))

		for i := range batch {
			i := i
			cf := batch[i]
			if err := sem.Acquire(gctx, 1); err != nil {
				outcomes[i] = outcome{err: err, path: cf.file.Path()}
				continue
			}
			g.Go(func() error {
				defer sem.Release(1)
				defer func() {
					if r := recover(); r != nil {
						outcomes[i] = outcome{err: fmt.Errorf("panic: %v", r), path: cf.file.Path()}
					}
				}()
				fileCtx, cancel := context.WithTimeout(gctx, e.cfg.PerFileTimeout)
				defer cancel()

				n, err := e.processFile(fileCtx, collection, cf, strategy)
				outcomes[i] = outcome{chunks: n, err: err, path: cf.file.Path()}
				return nil
			})
		}
		_ = g.Wait()

		for _, o := range outcomes {
			if o.err != nil {
				failedCount++
				status.AppendError(fmt.Sprintf("file %s: %v", o.path, o.err))
				logging.SyncLogger.WithError(o.err)
				continue
			}
			result.FilesProcessed++
			result.ChunksCreated += o.chunks
		}
	}

	return failedCount
}

// processFile runs 4.B -> 4.C -> 4.D for a single file and atomically
// replaces its vectors and mapping row.
func (e *Engine) processFile(ctx context.Context, collection string, cf changedFile, strategy types.ChunkingStrategy) (int, error) {
	splitCfg := e.splitCfg
	splitCfg.Strategy = strategy
	splitter := chunking.NewSplitter(splitCfg)
	chunks := splitter.Split(collection, cf.file.Path(), cf.file.Content)

	overlapProc, err := overlap.NewProcessor(e.overlapCfg)
	if err != nil {
		return 0, err
	}
	chunks = overlapProc.Apply(chunks)
	chunks = relationships.NewLinker().Link(chunks)

	for i := range chunks {
		chunks[i].FileID = cf.file.ID
		chunks[i].TotalChunks = len(chunks)
	}

	oldMapping, mappingErr := e.state.GetFileVectorMapping(ctx, collection, cf.file.ID)

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		vectors, err := e.embedder.GenerateBatch(ctx, texts)
		if err != nil {
			return 0, errors.Wrap(errors.KindVectorIndexFailure, "failed to generate embeddings", err)
		}

		ids := make([]string, len(chunks))
		metadatas := make([]map[string]interface{}, len(chunks))
		for i, c := range chunks {
			ids[i] = hashing.VectorPointID(collection, c.ChunkID)
			metadatas[i] = chunkMetadata(c)
		}

		// Stale vectors are deleted only once the new ones are ready to
		// replace them, so an embedder failure above leaves the index intact.
		if mappingErr == nil && len(oldMapping.ChunkIDs) > 0 {
			if err := e.vectors.DeleteDocuments(ctx, vectorPointIDs(collection, oldMapping.ChunkIDs)); err != nil {
				return 0, errors.Wrap(errors.KindVectorIndexFailure, "failed to delete stale vectors", err)
			}
		}

		if err := e.vectors.AddDocuments(ctx, ids, vectors, metadatas); err != nil {
			return 0, err
		}
	} else if mappingErr == nil && len(oldMapping.ChunkIDs) > 0 {
		if err := e.vectors.DeleteDocuments(ctx, vectorPointIDs(collection, oldMapping.ChunkIDs)); err != nil {
			return 0, errors.Wrap(errors.KindVectorIndexFailure, "failed to delete stale vectors", err)
		}
	}

	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ChunkID
	}

	mapping := &types.FileVectorMapping{
		ID:               hashing.OperationID(collection, "mapping"),
		Collection:       collection,
		FileID:           cf.file.ID,
		FilePath:         cf.file.Path(),
		FileHash:         cf.currentHash,
		ChunkIDs:         chunkIDs,
		ChunkCount:       len(chunkIDs),
		LastSynced:       time.Now().UTC(),
		SyncStatus:       types.PerFileStatusSynced,
		ChunkingStrategy: strategy,
	}
	if mappingErr == nil {
		mapping.ID = oldMapping.ID
	}
	if err := e.state.SaveFileVectorMapping(ctx, mapping); err != nil {
		return 0, err
	}

	return len(chunks), nil
}

// vectorPointIDs maps a mapping's chunk ids to the collection-prefixed ids
// under which AddDocuments stored them in the vector index.
func vectorPointIDs(collection string, chunkIDs []string) []string {
	ids := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = hashing.VectorPointID(collection, id)
	}
	return ids
}

func chunkMetadata(c types.Chunk) map[string]interface{} {
	return map[string]interface{}{
		"content":               c.Content,
		"collection":            c.Collection,
		"file_path":             c.FilePath,
		"chunk_index":           c.ChunkIndex,
		"chunk_type":            string(c.ChunkType),
		"header_hierarchy":      c.HeaderHierarchy,
		"contains_code":         c.ContainsCode,
		"programming_language":  c.ProgrammingLanguage,
		"previous_chunk_id":     c.PreviousChunkID,
		"next_chunk_id":         c.NextChunkID,
		"section_siblings":      c.SectionSiblings,
		"overlap_sources":       c.OverlapSources,
		"context_expansion_eligible": c.ContextExpansionEligible,
	}
}

// CheckLiveStatus downgrades a cached in-sync status to out-of-sync if
// any file's current hash no longer matches its mapping, short-circuiting
// on the first difference. Used by status reads, not by sync itself.
func (e *Engine) CheckLiveStatus(ctx context.Context, collection string) (*types.CollectionSyncStatus, error) {
	status, err := e.state.GetSyncStatus(ctx, collection)
	if err != nil {
		return nil, err
	}
	if status.Status != types.SyncStatusInSync {
		return status, nil
	}

	files, err := e.state.ListFiles(ctx, collection)
	if err != nil {
		return status, nil
	}
	for _, f := range files {
		mapping, err := e.state.GetFileVectorMapping(ctx, collection, f.ID)
		if err != nil {
			continue
		}
		if mapping.FileHash != hashing.FileHash(f.Content) {
			status.Status = types.SyncStatusOutOfSync
			_ = e.state.SaveSyncStatus(ctx, status)
			break
		}
	}
	return status, nil
}

// DeleteCollectionVectors removes every indexed vector for a collection
// without deleting the collection, its files, or its sync-status row,
// backing the delete_collection_vectors operation. The collection is left
// never-synced so a subsequent sync_collection reprocesses every file.
func (e *Engine) DeleteCollectionVectors(ctx context.Context, collection string) (int, error) {
	files, err := e.state.ListFiles(ctx, collection)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, f := range files {
		mapping, err := e.state.GetFileVectorMapping(ctx, collection, f.ID)
		if err != nil {
			continue
		}
		if err := e.vectors.DeleteDocuments(ctx, vectorPointIDs(collection, mapping.ChunkIDs)); err != nil {
			return deleted, errors.Wrap(errors.KindVectorIndexFailure, "failed to delete vectors", err)
		}
		deleted += len(mapping.ChunkIDs)
		_ = e.state.DeleteFileVectorMapping(ctx, collection, f.ID)
	}

	status, err := e.state.GetSyncStatus(ctx, collection)
	if err == nil {
		status.Status = types.SyncStatusNeverSynced
		status.SyncedFiles = 0
		status.TotalChunks = 0
		_ = e.state.SaveSyncStatus(ctx, status)
	}

	return deleted, nil
}
