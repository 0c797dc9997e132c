// Package relationships derives deterministic structural links between a
// file's chunks, adapted from the teacher's relationship Manager but
// replacing its auto-detected semantic relationships with the spec's
// single-pass, same-file-only neighbor and sibling linking.
package relationships

import "mdvec-core/pkg/types"

// Linker links the chunks produced for a single file.
type Linker struct{}

// NewLinker constructs a Linker.
func NewLinker() *Linker {
	return &Linker{}
}

// Link sets PreviousChunkID/NextChunkID to same-file neighbors (empty at
// the boundaries) and groups chunks sharing an identical HeaderHierarchy
// into each other's SectionSiblings. chunks must all belong to the same
// file; relationships never cross file boundaries.
func (l *Linker) Link(chunks []types.Chunk) []types.Chunk {
	for i := range chunks {
		if i > 0 {
			chunks[i].PreviousChunkID = chunks[i-1].ChunkID
		} else {
			chunks[i].PreviousChunkID = ""
		}
		if i < len(chunks)-1 {
			chunks[i].NextChunkID = chunks[i+1].ChunkID
		} else {
			chunks[i].NextChunkID = ""
		}
	}

	groups := make(map[string][]int)
	for i, c := range chunks {
		key := hierarchyKey(c.HeaderHierarchy)
		groups[key] = append(groups[key], i)
	}

	for _, indices := range groups {
		if len(indices) < 2 {
			continue
		}
		for _, i := range indices {
			siblings := make([]string, 0, len(indices)-1)
			for _, j := range indices {
				if j == i {
					continue
				}
				siblings = append(siblings, chunks[j].ChunkID)
			}
			chunks[i].SectionSiblings = siblings
		}
	}

	return chunks
}

func hierarchyKey(hierarchy []string) string {
	key := ""
	for _, h := range hierarchy {
		key += "/" + h
	}
	return key
}
