package expansion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdvec-core/pkg/types"
)

func chunkStore(chunks ...types.Chunk) ChunkResolver {
	byID := make(map[string]types.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}
	return func(_ context.Context, id string) (*types.Chunk, bool) {
		c, ok := byID[id]
		if !ok {
			return nil, false
		}
		return &c, true
	}
}

func TestExpandSkipsNonMarginalResults(t *testing.T) {
	e := New(DefaultConfig(), StrategyMultiStrategy)
	results := []types.SearchResult{{ChunkID: "a", Score: 0.95}}
	resolver := chunkStore(types.Chunk{ChunkID: "a", ContextExpansionEligible: true, NextChunkID: "b"})

	out := e.Expand(context.Background(), results, resolver)
	assert.False(t, out.Applied)
	assert.Equal(t, results, out.Expanded)
}

func TestExpandAddsSequentialNeighbors(t *testing.T) {
	e := New(DefaultConfig(), StrategySequential)
	results := []types.SearchResult{{ChunkID: "a", Score: 0.5}}
	resolver := chunkStore(
		types.Chunk{ChunkID: "a", ContextExpansionEligible: true, PreviousChunkID: "p", NextChunkID: "n"},
		types.Chunk{ChunkID: "p", Content: "prev"},
		types.Chunk{ChunkID: "n", Content: "next"},
	)

	out := e.Expand(context.Background(), results, resolver)
	require.True(t, out.Applied)
	assert.Equal(t, 2, out.NeighborsAdded)
	assert.Len(t, out.Expanded, 3)
}

func TestExpandSkipsIneligibleChunks(t *testing.T) {
	e := New(DefaultConfig(), StrategySequential)
	results := []types.SearchResult{{ChunkID: "a", Score: 0.5}}
	resolver := chunkStore(types.Chunk{ChunkID: "a", ContextExpansionEligible: false, NextChunkID: "n"})

	out := e.Expand(context.Background(), results, resolver)
	assert.False(t, out.Applied)
}

func TestExpandDeduplicatesAcrossMarginalChunks(t *testing.T) {
	e := New(DefaultConfig(), StrategyOverlapAware)
	results := []types.SearchResult{
		{ChunkID: "a", Score: 0.5},
		{ChunkID: "b", Score: 0.5},
	}
	resolver := chunkStore(
		types.Chunk{ChunkID: "a", ContextExpansionEligible: true, OverlapSources: []string{"shared"}},
		types.Chunk{ChunkID: "b", ContextExpansionEligible: true, OverlapSources: []string{"shared"}},
		types.Chunk{ChunkID: "shared", Content: "borrowed"},
	)

	out := e.Expand(context.Background(), results, resolver)
	assert.Equal(t, 1, out.NeighborsAdded)
}

func TestExpandRespectsMaxNeighbors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNeighbors = 1
	e := New(cfg, StrategyHierarchical)
	results := []types.SearchResult{{ChunkID: "a", Score: 0.5}}
	resolver := chunkStore(
		types.Chunk{ChunkID: "a", ContextExpansionEligible: true, SectionSiblings: []string{"s1", "s2", "s3"}},
		types.Chunk{ChunkID: "s1"}, types.Chunk{ChunkID: "s2"}, types.Chunk{ChunkID: "s3"},
	)

	out := e.Expand(context.Background(), results, resolver)
	assert.Equal(t, 1, out.NeighborsAdded)
}

func TestExpandNeverFailsOnUnresolvedNeighbor(t *testing.T) {
	e := New(DefaultConfig(), StrategySequential)
	results := []types.SearchResult{{ChunkID: "a", Score: 0.5}}
	resolver := chunkStore(types.Chunk{ChunkID: "a", ContextExpansionEligible: true, NextChunkID: "missing"})

	out := e.Expand(context.Background(), results, resolver)
	assert.False(t, out.Applied)
	assert.Len(t, out.Expanded, 1)
}
