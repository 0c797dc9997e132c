// Package search coordinates a vector-index similarity search with the
// §4.G context expander, implementing the §4.I search(query, ...)
// operation.
package search

import (
	"context"

	"mdvec-core/internal/errors"
	"mdvec-core/internal/expansion"
	"mdvec-core/internal/logging"
	"mdvec-core/internal/vectorindex"
	"mdvec-core/pkg/types"
)

// VectorIndex is the subset of vectorindex.Adapter the search coordinator
// needs, narrowed for testability.
type VectorIndex interface {
	SimilaritySearch(ctx context.Context, queryVector []float32, k int, threshold float64, filter vectorindex.Filter) ([]vectorindex.Match, error)
}

// Embedder generates a query embedding.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Request is a single search(...) call's parameters.
type Request struct {
	Query                  string
	Collection             string
	Limit                  int
	Threshold              float64
	EnableContextExpansion bool
	RelationshipFilter     string
}

// Coordinator wires a vector index and embedder to the context expander.
type Coordinator struct {
	vectors  VectorIndex
	embedder Embedder
	expander *expansion.Expander
}

// New constructs a Coordinator.
func New(vectors VectorIndex, embedder Embedder, expander *expansion.Expander) *Coordinator {
	return &Coordinator{vectors: vectors, embedder: embedder, expander: expander}
}

// Search runs the §4.I algorithm: similarity search, threshold
// application, and conditional context expansion.
func (c *Coordinator) Search(ctx context.Context, req Request, resolver expansion.ChunkResolver) ([]types.SearchResult, error) {
	if req.Query == "" {
		return nil, errors.InvalidInput("query must not be empty")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	queryVector, err := c.embedder.Generate(ctx, req.Query)
	if err != nil {
		logging.SearchLogger.WithError(err)
		return []types.SearchResult{}, nil
	}

	var filter vectorindex.Filter
	if req.Collection != "" {
		filter = vectorindex.Filter{"collection": req.Collection}
	}
	if req.RelationshipFilter != "" {
		if filter == nil {
			filter = vectorindex.Filter{}
		}
		filter["relationship"] = req.RelationshipFilter
	}

	matches, err := c.vectors.SimilaritySearch(ctx, queryVector, limit, req.Threshold, filter)
	if err != nil {
		logging.SearchLogger.WithError(err)
		return []types.SearchResult{}, nil
	}

	results := make([]types.SearchResult, 0, len(matches))
	for _, m := range matches {
		if m.Score < req.Threshold {
			continue
		}
		results = append(results, types.SearchResult{
			ChunkID:  m.ID,
			Content:  m.Content,
			Score:    m.Score,
			Metadata: m.Metadata,
		})
	}

	if !req.EnableContextExpansion || c.expander == nil {
		return results, nil
	}

	// The expander judges marginality against its own similarity
	// threshold and returns the results unchanged when none is marginal.
	expanded := c.expander.Expand(ctx, results, resolver)
	return expanded.Expanded, nil
}
