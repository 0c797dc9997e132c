// Package syncstate persists collections, files, and sync status in a
// local SQLite database, adapting the teacher's PostgreSQL
// BeginTx/Rollback/Commit transactional-write pattern
// (internal/storage/content_store_impl.go) to a single-file store per
// §6.4's framing of the sync-state path as a config parameter rather
// than a network address.
package syncstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"mdvec-core/internal/errors"
	"mdvec-core/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	description TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS collection_files (
	id TEXT PRIMARY KEY,
	collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
	filename TEXT NOT NULL,
	folder TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	size INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE(collection, filename, folder)
);

CREATE TABLE IF NOT EXISTS collection_sync_status (
	collection TEXT PRIMARY KEY REFERENCES collections(name) ON DELETE CASCADE,
	status TEXT NOT NULL,
	sync_enabled INTEGER NOT NULL DEFAULT 1,
	last_sync TIMESTAMP,
	last_sync_attempt TIMESTAMP,
	total_files INTEGER NOT NULL DEFAULT 0,
	synced_files INTEGER NOT NULL DEFAULT 0,
	changed_files_count INTEGER NOT NULL DEFAULT 0,
	total_chunks INTEGER NOT NULL DEFAULT 0,
	sync_progress REAL,
	last_sync_duration_ns INTEGER NOT NULL DEFAULT 0,
	avg_sync_duration_ns INTEGER NOT NULL DEFAULT 0,
	errors TEXT NOT NULL DEFAULT '[]',
	warnings TEXT NOT NULL DEFAULT '[]',
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS file_vector_mappings (
	id TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	file_id TEXT NOT NULL REFERENCES collection_files(id) ON DELETE CASCADE,
	file_path TEXT NOT NULL,
	file_hash TEXT NOT NULL,
	chunk_ids TEXT NOT NULL DEFAULT '[]',
	chunk_count INTEGER NOT NULL DEFAULT 0,
	last_synced TIMESTAMP,
	sync_status TEXT NOT NULL,
	sync_error TEXT,
	processing_time_ns INTEGER NOT NULL DEFAULT 0,
	chunking_strategy TEXT,
	UNIQUE(collection, file_id)
);
`

// Store is the SQLite-backed sync-state store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema.
func Open(path string, busyTimeoutMs, maxOpenConns int) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to open sync-state database", err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.KindInternal, "failed to apply sync-state schema", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateCollection inserts a new collection and its default never-synced
// status row in one transaction.
func (s *Store) CreateCollection(ctx context.Context, name, description string) (*types.Collection, error) {
	now := time.Now().UTC()
	col := &types.Collection{Name: name, Description: description, CreatedAt: now, UpdatedAt: now}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collections (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		col.Name, col.Description, col.CreatedAt, col.UpdatedAt,
	); err != nil {
		return nil, errors.AlreadyExists("collection %q already exists", name)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collection_sync_status (collection, status, sync_enabled, updated_at) VALUES (?, ?, 1, ?)`,
		name, string(types.SyncStatusNeverSynced), now,
	); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to initialize sync status", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to commit transaction", err)
	}
	return col, nil
}

// DeleteCollection removes a collection; cascades remove its files, sync
// status, and vector mappings.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to delete collection", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.NotFound("collection %q not found", name)
	}
	return nil
}

// GetCollection fetches a collection by name.
func (s *Store) GetCollection(ctx context.Context, name string) (*types.Collection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, description, created_at, updated_at FROM collections WHERE name = ?`, name)
	var col types.Collection
	if err := row.Scan(&col.Name, &col.Description, &col.CreatedAt, &col.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("collection %q not found", name)
		}
		return nil, errors.Wrap(errors.KindInternal, "failed to get collection", err)
	}
	return &col, nil
}

// ListCollections returns every collection, ordered by name.
func (s *Store) ListCollections(ctx context.Context) ([]types.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, description, created_at, updated_at FROM collections ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to list collections", err)
	}
	defer func() { _ = rows.Close() }()

	var cols []types.Collection
	for rows.Next() {
		var col types.Collection
		if err := rows.Scan(&col.Name, &col.Description, &col.CreatedAt, &col.UpdatedAt); err != nil {
			return nil, errors.Wrap(errors.KindInternal, "failed to scan collection row", err)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// SaveFile upserts a file's content under (collection, folder, filename)
// and refreshes its content hash. Rejects a disallowed extension or an
// unknown collection before writing.
func (s *Store) SaveFile(ctx context.Context, f *types.File) error {
	if !hasAllowedExtension(f.Filename) {
		return errors.InvalidInput("filename %q has a disallowed extension", f.Filename)
	}
	if _, err := s.GetCollection(ctx, f.Collection); err != nil {
		return err
	}

	now := time.Now().UTC()
	f.UpdatedAt = now
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collection_files (id, collection, filename, folder, content, content_hash, size, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, filename, folder) DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			size = excluded.size,
			updated_at = excluded.updated_at
	`, f.ID, f.Collection, f.Filename, f.Folder, f.Content, f.ContentHash, f.Size, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to save file", err)
	}
	return nil
}

func hasAllowedExtension(filename string) bool {
	for _, ext := range types.AllowedExtensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

// ReadFile fetches a single file by collection, folder, and filename.
func (s *Store) ReadFile(ctx context.Context, collection, folder, filename string) (*types.File, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection, filename, folder, content, content_hash, size, created_at, updated_at
		FROM collection_files WHERE collection = ? AND filename = ? AND folder = ?
	`, collection, filename, folder)

	var f types.File
	if err := row.Scan(&f.ID, &f.Collection, &f.Filename, &f.Folder, &f.Content, &f.ContentHash, &f.Size, &f.CreatedAt, &f.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("file %q not found in collection %q", filename, collection)
		}
		return nil, errors.Wrap(errors.KindInternal, "failed to read file", err)
	}
	return &f, nil
}

// ListFiles returns every file stored for a collection.
func (s *Store) ListFiles(ctx context.Context, collection string) ([]types.File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection, filename, folder, content, content_hash, size, created_at, updated_at
		FROM collection_files WHERE collection = ? ORDER BY folder, filename
	`, collection)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to list files", err)
	}
	defer func() { _ = rows.Close() }()

	var files []types.File
	for rows.Next() {
		var f types.File
		if err := rows.Scan(&f.ID, &f.Collection, &f.Filename, &f.Folder, &f.Content, &f.ContentHash, &f.Size, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, errors.Wrap(errors.KindInternal, "failed to scan file row", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetSyncStatus fetches a collection's sync status row.
func (s *Store) GetSyncStatus(ctx context.Context, collection string) (*types.CollectionSyncStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT collection, status, sync_enabled, last_sync, last_sync_attempt,
		       total_files, synced_files, changed_files_count, total_chunks,
		       sync_progress, last_sync_duration_ns, avg_sync_duration_ns, errors, warnings
		FROM collection_sync_status WHERE collection = ?
	`, collection)

	var (
		st                  types.CollectionSyncStatus
		status              string
		lastSync            sql.NullTime
		lastSyncAttempt     sql.NullTime
		syncProgress        sql.NullFloat64
		lastDur, avgDur     int64
		errorsJSON, warnsJS string
	)
	if err := row.Scan(&st.Collection, &status, &st.SyncEnabled, &lastSync, &lastSyncAttempt,
		&st.TotalFiles, &st.SyncedFiles, &st.ChangedFilesCount, &st.TotalChunks,
		&syncProgress, &lastDur, &avgDur, &errorsJSON, &warnsJS); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("sync status for collection %q not found", collection)
		}
		return nil, errors.Wrap(errors.KindInternal, "failed to get sync status", err)
	}

	st.Status = types.SyncStatus(status)
	if lastSync.Valid {
		st.LastSync = &lastSync.Time
	}
	if lastSyncAttempt.Valid {
		st.LastSyncAttempt = &lastSyncAttempt.Time
	}
	if syncProgress.Valid {
		st.SyncProgress = &syncProgress.Float64
	}
	st.LastSyncDuration = time.Duration(lastDur)
	st.AvgSyncDuration = time.Duration(avgDur)
	_ = json.Unmarshal([]byte(errorsJSON), &st.Errors)
	_ = json.Unmarshal([]byte(warnsJS), &st.Warnings)

	return &st, nil
}

// ListSyncStatuses returns the sync status of every collection.
func (s *Store) ListSyncStatuses(ctx context.Context) ([]types.CollectionSyncStatus, error) {
	cols, err := s.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]types.CollectionSyncStatus, 0, len(cols))
	for _, col := range cols {
		st, err := s.GetSyncStatus(ctx, col.Name)
		if err != nil {
			continue
		}
		statuses = append(statuses, *st)
	}
	return statuses, nil
}

// SaveSyncStatus replaces a collection's sync status row transactionally.
func (s *Store) SaveSyncStatus(ctx context.Context, st *types.CollectionSyncStatus) error {
	errorsJSON, err := json.Marshal(st.Errors)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to marshal errors", err)
	}
	warningsJSON, err := json.Marshal(st.Warnings)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to marshal warnings", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE collection_sync_status SET
			status = ?, sync_enabled = ?, last_sync = ?, last_sync_attempt = ?,
			total_files = ?, synced_files = ?, changed_files_count = ?, total_chunks = ?,
			sync_progress = ?, last_sync_duration_ns = ?, avg_sync_duration_ns = ?,
			errors = ?, warnings = ?, updated_at = ?
		WHERE collection = ?
	`, string(st.Status), st.SyncEnabled, st.LastSync, st.LastSyncAttempt,
		st.TotalFiles, st.SyncedFiles, st.ChangedFilesCount, st.TotalChunks,
		st.SyncProgress, int64(st.LastSyncDuration), int64(st.AvgSyncDuration),
		string(errorsJSON), string(warningsJSON), time.Now().UTC(), st.Collection)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to update sync status", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.KindInternal, "failed to commit transaction", err)
	}
	return nil
}

// SetSyncEnabled flips a collection's sync_enabled flag, backing the
// enable_sync/disable_sync operations.
func (s *Store) SetSyncEnabled(ctx context.Context, collection string, enabled bool) error {
	st, err := s.GetSyncStatus(ctx, collection)
	if err != nil {
		return err
	}
	st.SyncEnabled = enabled
	return s.SaveSyncStatus(ctx, st)
}

// SaveFileVectorMapping upserts a file's vector mapping row.
func (s *Store) SaveFileVectorMapping(ctx context.Context, m *types.FileVectorMapping) error {
	chunkIDsJSON, err := json.Marshal(m.ChunkIDs)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to marshal chunk ids", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO file_vector_mappings (id, collection, file_id, file_path, file_hash, chunk_ids,
			chunk_count, last_synced, sync_status, sync_error, processing_time_ns, chunking_strategy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, file_id) DO UPDATE SET
			file_path = excluded.file_path,
			file_hash = excluded.file_hash,
			chunk_ids = excluded.chunk_ids,
			chunk_count = excluded.chunk_count,
			last_synced = excluded.last_synced,
			sync_status = excluded.sync_status,
			sync_error = excluded.sync_error,
			processing_time_ns = excluded.processing_time_ns,
			chunking_strategy = excluded.chunking_strategy
	`, m.ID, m.Collection, m.FileID, m.FilePath, m.FileHash, string(chunkIDsJSON),
		m.ChunkCount, m.LastSynced, string(m.SyncStatus), m.SyncError, int64(m.ProcessingTime), string(m.ChunkingStrategy))
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to save file vector mapping", err)
	}
	return nil
}

// GetFileVectorMapping fetches a file's vector mapping, if any.
func (s *Store) GetFileVectorMapping(ctx context.Context, collection, fileID string) (*types.FileVectorMapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection, file_id, file_path, file_hash, chunk_ids, chunk_count,
		       last_synced, sync_status, sync_error, processing_time_ns, chunking_strategy
		FROM file_vector_mappings WHERE collection = ? AND file_id = ?
	`, collection, fileID)

	var (
		m                 types.FileVectorMapping
		chunkIDsJSON      string
		lastSynced        sql.NullTime
		syncError         sql.NullString
		processingTimeNs  int64
		chunkingStrategy  sql.NullString
	)
	if err := row.Scan(&m.ID, &m.Collection, &m.FileID, &m.FilePath, &m.FileHash, &chunkIDsJSON,
		&m.ChunkCount, &lastSynced, &m.SyncStatus, &syncError, &processingTimeNs, &chunkingStrategy); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("vector mapping for file %q not found", fileID)
		}
		return nil, errors.Wrap(errors.KindInternal, "failed to get file vector mapping", err)
	}

	_ = json.Unmarshal([]byte(chunkIDsJSON), &m.ChunkIDs)
	if lastSynced.Valid {
		m.LastSynced = lastSynced.Time
	}
	m.SyncError = syncError.String
	m.ProcessingTime = time.Duration(processingTimeNs)
	m.ChunkingStrategy = types.ChunkingStrategy(chunkingStrategy.String)
	return &m, nil
}

// DeleteFileVectorMapping removes a file's vector mapping row.
func (s *Store) DeleteFileVectorMapping(ctx context.Context, collection, fileID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_vector_mappings WHERE collection = ? AND file_id = ?`, collection, fileID)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to delete file vector mapping", err)
	}
	return nil
}
