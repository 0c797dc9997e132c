package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "mdvec-core/internal/errors"
	"mdvec-core/internal/expansion"
	"mdvec-core/internal/vectorindex"
	"mdvec-core/pkg/types"
)

type fakeVectorIndex struct {
	matches []vectorindex.Match
	err     error
	gotK    int
}

func (f *fakeVectorIndex) SimilaritySearch(_ context.Context, _ []float32, k int, _ float64, _ vectorindex.Filter) ([]vectorindex.Match, error) {
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Generate(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

func noResolver(_ context.Context, _ string) (*types.Chunk, bool) {
	return nil, false
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	c := New(&fakeVectorIndex{}, fakeEmbedder{}, nil)
	_, err := c.Search(context.Background(), Request{}, noResolver)
	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.KindInvalidInput))
}

func TestSearchReturnsThresholdFilteredResults(t *testing.T) {
	vectors := &fakeVectorIndex{matches: []vectorindex.Match{
		{ID: "a", Content: "strong match", Score: 0.9},
		{ID: "b", Content: "weak match", Score: 0.1},
	}}
	c := New(vectors, fakeEmbedder{}, nil)

	results, err := c.Search(context.Background(), Request{Query: "hello", Threshold: 0.5}, noResolver)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestSearchDefaultsLimitToTen(t *testing.T) {
	vectors := &fakeVectorIndex{}
	c := New(vectors, fakeEmbedder{}, nil)

	_, err := c.Search(context.Background(), Request{Query: "hello"}, noResolver)
	require.NoError(t, err)
	assert.Equal(t, 10, vectors.gotK)
}

func TestSearchDegradesToEmptyOnEmbedderError(t *testing.T) {
	c := New(&fakeVectorIndex{}, fakeEmbedder{err: assert.AnError}, nil)

	results, err := c.Search(context.Background(), Request{Query: "hello"}, noResolver)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchDegradesToEmptyOnVectorIndexError(t *testing.T) {
	c := New(&fakeVectorIndex{err: assert.AnError}, fakeEmbedder{}, nil)

	results, err := c.Search(context.Background(), Request{Query: "hello"}, noResolver)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchDoesNotExpandWhenDisabled(t *testing.T) {
	vectors := &fakeVectorIndex{matches: []vectorindex.Match{{ID: "a", Score: 0.1}}}
	expander := expansion.New(expansion.DefaultConfig(), expansion.StrategySequential)
	c := New(vectors, fakeEmbedder{}, expander)

	results, err := c.Search(context.Background(), Request{Query: "hello", Threshold: 0.5}, noResolver)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchExpandsMarginalResults(t *testing.T) {
	vectors := &fakeVectorIndex{matches: []vectorindex.Match{{ID: "a", Content: "thin", Score: 0.6}}}
	expander := expansion.New(expansion.DefaultConfig(), expansion.StrategySequential)
	c := New(vectors, fakeEmbedder{}, expander)

	resolver := func(_ context.Context, id string) (*types.Chunk, bool) {
		if id != "a" {
			return nil, false
		}
		return &types.Chunk{ChunkID: "a", ContextExpansionEligible: true, NextChunkID: "n"}, true
	}
	allResolver := func(ctx context.Context, id string) (*types.Chunk, bool) {
		if id == "n" {
			return &types.Chunk{ChunkID: "n", Content: "next chunk"}, true
		}
		return resolver(ctx, id)
	}

	results, err := c.Search(context.Background(), Request{Query: "hello", Threshold: 0.5, EnableContextExpansion: true}, allResolver)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "sequential", results[1].ExpansionRelationship)
}

func TestSearchAppliesCollectionAndRelationshipFilter(t *testing.T) {
	vectors := &fakeVectorIndex{}
	c := New(vectors, fakeEmbedder{}, nil)

	_, err := c.Search(context.Background(), Request{
		Query: "hello", Collection: "docs", RelationshipFilter: "sibling",
	}, noResolver)
	require.NoError(t, err)
}
