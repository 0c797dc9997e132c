// Package types provides the core data structures shared across the
// chunking, sync, and search packages: collections, files, chunks, and
// the mappings and statuses that bind them together.
package types

import (
	"time"
)

// ChunkType classifies a chunk by its dominant content, as determined by
// the markdown splitter.
type ChunkType string

const (
	// ChunkTypeHeaderSection is a segment led by an ATX header.
	ChunkTypeHeaderSection ChunkType = "header-section"
	// ChunkTypeCodeBlock is an atomic fenced code block.
	ChunkTypeCodeBlock ChunkType = "code-block"
	// ChunkTypeTable is an atomic GFM table.
	ChunkTypeTable ChunkType = "table"
	// ChunkTypeList is an unordered list.
	ChunkTypeList ChunkType = "list"
	// ChunkTypeOrderedList is a numbered list.
	ChunkTypeOrderedList ChunkType = "ordered-list"
	// ChunkTypeBlockquote is a blockquoted passage.
	ChunkTypeBlockquote ChunkType = "blockquote"
	// ChunkTypeParagraph is plain prose, the default classification.
	ChunkTypeParagraph ChunkType = "paragraph"
)

// Valid reports whether ct is one of the recognized chunk types.
func (ct ChunkType) Valid() bool {
	switch ct {
	case ChunkTypeHeaderSection, ChunkTypeCodeBlock, ChunkTypeTable, ChunkTypeList,
		ChunkTypeOrderedList, ChunkTypeBlockquote, ChunkTypeParagraph:
		return true
	}
	return false
}

// SyncStatus is the canonical status of a collection's sync state. The
// core only assigns these six values; Valid reports membership, and the
// sync-state store reads and writes the string without checking it. See
// SPEC_FULL.md open question (ii).
type SyncStatus string

const (
	SyncStatusNeverSynced SyncStatus = "never-synced"
	SyncStatusInSync      SyncStatus = "in-sync"
	SyncStatusOutOfSync   SyncStatus = "out-of-sync"
	SyncStatusSyncing     SyncStatus = "syncing"
	SyncStatusSyncError   SyncStatus = "sync-error"
	SyncStatusPartialSync SyncStatus = "partial-sync"
)

// Valid reports whether s is one of the canonical sync statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusNeverSynced, SyncStatusInSync, SyncStatusOutOfSync,
		SyncStatusSyncing, SyncStatusSyncError, SyncStatusPartialSync:
		return true
	}
	return false
}

// HealthScore returns the sync_health_score supplemented from
// original_source's VectorSyncStatus — a coarse numeric proxy for the
// status enum, useful for ranking collections without branching on the
// string value.
func (s SyncStatus) HealthScore() float64 {
	switch s {
	case SyncStatusInSync:
		return 1.0
	case SyncStatusPartialSync:
		return 0.7
	case SyncStatusOutOfSync:
		return 0.3
	case SyncStatusSyncError:
		return 0.1
	default: // never-synced, syncing
		return 0.5
	}
}

// SyncOperation names the kinds of per-file action a sync can perform.
// The sync engine does not currently attach it to log lines or
// error-buffer entries.
type SyncOperation string

const (
	SyncOperationAdd    SyncOperation = "add"
	SyncOperationUpdate SyncOperation = "update"
	SyncOperationDelete SyncOperation = "delete"
	SyncOperationVerify SyncOperation = "verify"
)

// PerFileSyncStatus is the per-mapping counterpart of SyncStatus.
type PerFileSyncStatus string

const (
	PerFileStatusSynced PerFileSyncStatus = "synced"
	PerFileStatusError  PerFileSyncStatus = "error"
	PerFileStatusPending PerFileSyncStatus = "pending"
)

// ChunkingStrategy selects the markdown splitter's dispatch mode, per
// DESIGN NOTES' "Dynamic dispatch over chunking strategy".
type ChunkingStrategy string

const (
	ChunkingStrategyBaseline           ChunkingStrategy = "baseline"
	ChunkingStrategyMarkdownIntelligent ChunkingStrategy = "markdown-intelligent"
	ChunkingStrategyAuto               ChunkingStrategy = "auto"
)

// Collection is a named namespace for documents.
type Collection struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// File is a Markdown (or .txt/.json) document stored within a collection.
type File struct {
	ID          string    `json:"id"`
	Collection  string    `json:"collection"`
	Filename    string    `json:"filename"`
	Folder      string    `json:"folder,omitempty"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Path returns the logical folder/filename path used for uniqueness and
// display.
func (f *File) Path() string {
	if f.Folder == "" {
		return f.Filename
	}
	return f.Folder + "/" + f.Filename
}

// AllowedExtensions are the only file suffixes save_file accepts.
var AllowedExtensions = []string{".md", ".txt", ".json"}

// OverlapRegion is a half-open [Start,End) character range within a
// chunk's content occupied by text borrowed from a neighbor.
type OverlapRegion struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Chunk is a substring of a file carrying structural, overlap, and
// relationship metadata, ready for embedding and upsert into the vector
// index.
type Chunk struct {
	ChunkID      string `json:"chunk_id"`
	Collection   string `json:"collection"`
	FileID       string `json:"file_id"`
	FilePath     string `json:"file_path"`
	Content      string `json:"content"`
	ChunkIndex   int    `json:"chunk_index"`
	TotalChunks  int    `json:"total_chunks"`
	ChunkType    ChunkType `json:"chunk_type"`

	HeaderHierarchy     []string `json:"header_hierarchy,omitempty"`
	ContainsCode        bool     `json:"contains_code"`
	ProgrammingLanguage string   `json:"programming_language,omitempty"`
	WordCount           int      `json:"word_count"`
	CharacterCount      int      `json:"character_count"`
	ContentHash         string   `json:"content_hash"`

	OverlapSources    []string        `json:"overlap_sources,omitempty"`
	OverlapRegions    []OverlapRegion `json:"overlap_regions,omitempty"`
	OverlapPercentage float64         `json:"overlap_percentage"`

	PreviousChunkID string   `json:"previous_chunk_id,omitempty"`
	NextChunkID     string   `json:"next_chunk_id,omitempty"`
	SectionSiblings []string `json:"section_siblings,omitempty"`

	ContextExpansionEligible bool    `json:"context_expansion_eligible"`
	ExpansionThreshold       float64 `json:"expansion_threshold"`
}

// FileVectorMapping binds a file version (by hash) to the chunk IDs
// currently present in the vector index for it.
type FileVectorMapping struct {
	ID               string            `json:"id"`
	Collection       string            `json:"collection"`
	FileID           string            `json:"file_id"`
	FilePath         string            `json:"file_path"`
	FileHash         string            `json:"file_hash"`
	ChunkIDs         []string          `json:"chunk_ids"`
	ChunkCount       int               `json:"chunk_count"`
	LastSynced       time.Time         `json:"last_synced"`
	SyncStatus       PerFileSyncStatus `json:"sync_status"`
	SyncError        string            `json:"sync_error,omitempty"`
	ProcessingTime   time.Duration     `json:"processing_time"`
	ChunkingStrategy ChunkingStrategy  `json:"chunking_strategy"`
}

// CollectionSyncStatus is one row per collection describing its
// reconciliation state against the vector index.
type CollectionSyncStatus struct {
	Collection        string     `json:"collection"`
	SyncEnabled       bool       `json:"sync_enabled"`
	Status            SyncStatus `json:"status"`
	LastSync          *time.Time `json:"last_sync,omitempty"`
	LastSyncAttempt   *time.Time `json:"last_sync_attempt,omitempty"`
	TotalFiles        int        `json:"total_files"`
	SyncedFiles       int        `json:"synced_files"`
	ChangedFilesCount int        `json:"changed_files_count"`
	TotalChunks       int        `json:"total_chunks"`
	SyncProgress      *float64   `json:"sync_progress,omitempty"`
	Errors            []string   `json:"errors,omitempty"`
	Warnings          []string   `json:"warnings,omitempty"`
	LastSyncDuration  time.Duration `json:"last_sync_duration"`
	AvgSyncDuration   time.Duration `json:"avg_sync_duration"`
}

// HealthScore is a convenience wrapper over Status.HealthScore.
func (s *CollectionSyncStatus) HealthScore() float64 {
	return s.Status.HealthScore()
}

// MaxErrorBufferSize bounds the errors/warnings lists per §4.F.
const MaxErrorBufferSize = 10

// AppendError appends to the bounded error buffer, dropping the oldest
// entry once the buffer is full.
func (s *CollectionSyncStatus) AppendError(msg string) {
	s.Errors = append(s.Errors, msg)
	if len(s.Errors) > MaxErrorBufferSize {
		s.Errors = s.Errors[len(s.Errors)-MaxErrorBufferSize:]
	}
}

// AppendWarning appends to the bounded warning buffer.
func (s *CollectionSyncStatus) AppendWarning(msg string) {
	s.Warnings = append(s.Warnings, msg)
	if len(s.Warnings) > MaxErrorBufferSize {
		s.Warnings = s.Warnings[len(s.Warnings)-MaxErrorBufferSize:]
	}
}

// SearchResult is a single ranked item returned by the search
// coordinator, optionally annotated by the context expander.
type SearchResult struct {
	ChunkID  string                 `json:"chunk_id"`
	Content  string                 `json:"content"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`

	ExpansionSource       string  `json:"expansion_source,omitempty"`
	ExpansionType         string  `json:"expansion_type,omitempty"`
	ExpansionRelationship string  `json:"expansion_relationship,omitempty"`
	ExpansionScore        float64 `json:"expansion_score,omitempty"`
}

// SyncResult is returned by sync_collection.
type SyncResult struct {
	Collection     string        `json:"collection"`
	Status         SyncStatus    `json:"status"`
	FilesProcessed int           `json:"files_processed"`
	ChunksCreated  int           `json:"chunks_created"`
	ChunksUpdated  int           `json:"chunks_updated"`
	ChunksDeleted  int           `json:"chunks_deleted"`
	Errors         []string      `json:"errors,omitempty"`
	Duration       time.Duration `json:"duration"`
}
