// Package hashing provides the content and identifier hashing primitives
// shared by the splitter, sync engine, and vector index adapter.
package hashing

import (
	"crypto/md5" //nolint:gosec // content fingerprinting, not a security boundary
	"encoding/hex"
	"fmt"
	"time"
)

// FileHash returns the 32-char lowercase hex MD5 digest of content, used
// for change detection only. MD5 is kept (over a non-cryptographic
// alternative) for cross-compatibility of stored hashes.
func FileHash(content string) string {
	sum := md5.Sum([]byte(content)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// ChunkID returns a deterministic 32-char hex id for a chunk, computed
// over collection:filePath:chunkIndex:contentHash. Two calls with the
// same inputs always produce the same id.
func ChunkID(collection, filePath string, chunkIndex int, contentHash string) string {
	seed := fmt.Sprintf("%s:%s:%d:%s", collection, filePath, chunkIndex, contentHash)
	sum := md5.Sum([]byte(seed)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// VectorPointID returns the id stored in the external vector index,
// namespaced by collection to prevent cross-collection collisions.
func VectorPointID(collection, chunkID string) string {
	return collection + "_" + chunkID
}

// OperationID returns a 16-char hex id for a sync or bulk operation,
// incorporating opType and the current time so operations are easy to
// order and distinguish in logs.
func OperationID(collection, opType string) string {
	seed := fmt.Sprintf("%s:%s:%d", collection, opType, time.Now().UnixNano())
	sum := md5.Sum([]byte(seed)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:16]
}
