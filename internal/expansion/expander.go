// Package expansion implements the §4.G context expander: when a search
// result's score is marginal, it pulls in structurally related neighbor
// chunks (sequential, hierarchical, overlap-aware) so the caller sees
// more than a single thin match.
package expansion

import (
	"context"
	"time"

	"mdvec-core/pkg/types"
)

// Strategy selects which neighbor relationships are considered.
type Strategy string

const (
	StrategySequential    Strategy = "sequential"
	StrategyHierarchical  Strategy = "hierarchical"
	StrategyOverlapAware  Strategy = "overlap-aware"
	StrategyMultiStrategy Strategy = "multi-strategy"
)

// Default per-relationship scores used when no embedding-based score is
// available — which, in this adapter, is always: chunk embeddings live
// only in the vector index, not in the in-memory Chunk record, so the
// cosine-similarity path described in §4.G never has a candidate vector
// to compare against (see DESIGN.md).
const (
	scoreOverlap    = 0.90
	scoreSequential = 0.80
	scoreSibling    = 0.76
)

const (
	priorityOverlap    = 0
	prioritySequential = 1
	prioritySibling    = 2
)

// Config controls marginal-result identification and expansion bounds.
type Config struct {
	SimilarityThreshold float64
	MaxNeighbors        int
	MaxExpansionDepth   int
	PerformanceBudgetMs int
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{SimilarityThreshold: 0.75, MaxNeighbors: 5, MaxExpansionDepth: 2, PerformanceBudgetMs: 50}
}

// ChunkResolver fetches a chunk record by id, for neighbor lookup.
type ChunkResolver func(ctx context.Context, chunkID string) (*types.Chunk, bool)

// Result is the expander's output: the original results, the expanded
// set, and metrics describing what happened.
type Result struct {
	Original       []types.SearchResult
	Expanded       []types.SearchResult
	Applied        bool
	BudgetExceeded bool
	NeighborsAdded int
	ProcessingTime time.Duration
}

// Expander applies one strategy's worth of neighbor discovery to marginal
// results from a search.
type Expander struct {
	cfg      Config
	strategy Strategy
}

// New constructs an Expander using strategy (StrategyMultiStrategy is the
// spec's documented default).
func New(cfg Config, strategy Strategy) *Expander {
	if strategy == "" {
		strategy = StrategyMultiStrategy
	}
	return &Expander{cfg: cfg, strategy: strategy}
}

type candidate struct {
	id           string
	priority     int
	relationship string
	sourceID     string
}

// Expand identifies marginal results among results and appends
// boundary-discovered neighbor chunks, annotated with their expansion
// provenance. It never fails the query: resolver errors are treated as
// "no such neighbor" and the original result set is always a prefix of
// the returned one.
func (e *Expander) Expand(ctx context.Context, results []types.SearchResult, resolver ChunkResolver) *Result {
	start := time.Now()
	deadline := start.Add(time.Duration(e.cfg.PerformanceBudgetMs) * time.Millisecond)

	out := &Result{Original: results, Expanded: append([]types.SearchResult{}, results...)}

	seen := make(map[string]bool, len(results))
	for _, r := range results {
		seen[r.ChunkID] = true
	}

	for _, r := range results {
		if time.Now().After(deadline) {
			out.BudgetExceeded = true
			break
		}
		if !e.isMarginal(r) {
			continue
		}

		chunk, ok := resolver(ctx, r.ChunkID)
		if !ok || !chunk.ContextExpansionEligible {
			continue
		}

		candidates := e.candidatesFor(chunk)
		candidates = rankAndTrim(candidates, e.cfg.MaxNeighbors)

		for _, c := range candidates {
			if time.Now().After(deadline) {
				out.BudgetExceeded = true
				break
			}
			if seen[c.id] {
				continue
			}
			neighbor, ok := resolver(ctx, c.id)
			if !ok {
				continue
			}
			score := scoreForRelationship(c.relationship)
			if score < e.cfg.SimilarityThreshold {
				continue
			}
			seen[c.id] = true
			out.Expanded = append(out.Expanded, types.SearchResult{
				ChunkID:               neighbor.ChunkID,
				Content:               neighbor.Content,
				Score:                 score,
				ExpansionSource:       c.sourceID,
				ExpansionType:         string(e.strategy),
				ExpansionRelationship: c.relationship,
				ExpansionScore:        score,
			})
			out.NeighborsAdded++
			out.Applied = true
		}
	}

	out.ProcessingTime = time.Since(start)
	return out
}

func (e *Expander) isMarginal(r types.SearchResult) bool {
	return r.Score < e.cfg.SimilarityThreshold
}

func (e *Expander) candidatesFor(chunk *types.Chunk) []candidate {
	var candidates []candidate

	addSequential := func() {
		if chunk.PreviousChunkID != "" {
			candidates = append(candidates, candidate{id: chunk.PreviousChunkID, priority: prioritySequential, relationship: "sequential", sourceID: chunk.ChunkID})
		}
		if chunk.NextChunkID != "" {
			candidates = append(candidates, candidate{id: chunk.NextChunkID, priority: prioritySequential, relationship: "sequential", sourceID: chunk.ChunkID})
		}
	}
	addHierarchical := func() {
		for _, sib := range chunk.SectionSiblings {
			candidates = append(candidates, candidate{id: sib, priority: prioritySibling, relationship: "sibling", sourceID: chunk.ChunkID})
		}
	}
	addOverlap := func() {
		for _, src := range chunk.OverlapSources {
			candidates = append(candidates, candidate{id: src, priority: priorityOverlap, relationship: "overlap", sourceID: chunk.ChunkID})
		}
	}

	switch e.strategy {
	case StrategySequential:
		addSequential()
	case StrategyHierarchical:
		addHierarchical()
	case StrategyOverlapAware:
		addOverlap()
	default: // multi-strategy
		addOverlap()
		addSequential()
		addHierarchical()
	}
	return candidates
}

func scoreForRelationship(relationship string) float64 {
	switch relationship {
	case "overlap":
		return scoreOverlap
	case "sequential":
		return scoreSequential
	default:
		return scoreSibling
	}
}

// rankAndTrim sorts candidates by (priority ascending, score descending)
// and keeps at most maxNeighbors.
func rankAndTrim(candidates []candidate, maxNeighbors int) []candidate {
	scored := make([]struct {
		candidate
		score float64
	}, len(candidates))
	for i, c := range candidates {
		scored[i].candidate = c
		scored[i].score = scoreForRelationship(c.relationship)
	}
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0; j-- {
			a, b := scored[j-1], scored[j]
			if a.priority > b.priority || (a.priority == b.priority && a.score < b.score) {
				scored[j-1], scored[j] = scored[j], scored[j-1]
			} else {
				break
			}
		}
	}
	if len(scored) > maxNeighbors {
		scored = scored[:maxNeighbors]
	}
	out := make([]candidate, len(scored))
	for i, s := range scored {
		out[i] = s.candidate
	}
	return out
}
