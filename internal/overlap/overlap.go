// Package overlap applies the conservative, predecessor-only overlap
// algorithm described in §4.C, porting the Python knowledge-base
// processor's _create_conservative_overlap routine into the splitter's
// chunk pipeline.
package overlap

import (
	"regexp"
	"strings"

	"mdvec-core/internal/errors"
	"mdvec-core/pkg/types"
)

// Config controls the overlap percentage contract.
type Config struct {
	// ChunkOverlap is the configured target character count before
	// clamping, typically the chunking config's chunk_overlap value.
	ChunkOverlap int
	// OverlapPercentage must fall within [0.20, 0.30]; it documents the
	// contract but the actual slice length is derived per-chunk from
	// ChunkOverlap, matching the original's conservative algorithm.
	OverlapPercentage float64
}

// DefaultConfig matches the spec's documented default.
func DefaultConfig() Config {
	return Config{ChunkOverlap: 200, OverlapPercentage: 0.25}
}

// Processor applies overlap to a single file's chunk list.
type Processor struct {
	cfg Config
}

// NewProcessor validates cfg and returns a Processor.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.OverlapPercentage < 0.20 || cfg.OverlapPercentage > 0.30 {
		return nil, errors.InvalidInput("overlap_percentage (%.2f) must be within [0.20, 0.30]", cfg.OverlapPercentage)
	}
	return &Processor{cfg: cfg}, nil
}

const (
	minOverlapChars = 50
	maxOverlapChars = 200
	minActualChars  = 30
	minOverlapWords = 2
)

var (
	paragraphBreakRE = regexp.MustCompile(`\n\s*\n`)
	sentenceEndRE    = regexp.MustCompile(`[.!?]\s`)
)

// Apply walks chunks in file order and, for every chunk after the first,
// borrows a boundary-snapped slice from the tail of its predecessor's
// content, recording overlap metadata on the current chunk.
func (p *Processor) Apply(chunks []types.Chunk) []types.Chunk {
	for i := 1; i < len(chunks); i++ {
		p.applyOverlapFromPrevious(&chunks[i-1], &chunks[i])
		chunks[i].ContextExpansionEligible = isExpansionEligible(chunks[i])
	}
	if len(chunks) > 0 {
		chunks[0].ContextExpansionEligible = isExpansionEligible(chunks[0])
	}
	return chunks
}

func isExpansionEligible(c types.Chunk) bool {
	if c.ContainsCode || c.ChunkType == types.ChunkTypeCodeBlock {
		return false
	}
	return c.WordCount < 300
}

// applyOverlapFromPrevious borrows a boundary-snapped tail slice of prev's
// content and prepends it to current's content, updating current's
// overlap metadata. current is left unmodified if no slice clears the
// minimum-length and minimum-word-count bars.
func (p *Processor) applyOverlapFromPrevious(prev, current *types.Chunk) {
	baseLength := len(current.Content)
	if baseLength == 0 || len(prev.Content) == 0 {
		return
	}

	target := p.cfg.ChunkOverlap
	if third := baseLength / 3; third < target {
		target = third
	}
	actualOverlap := target
	if actualOverlap > maxOverlapChars {
		actualOverlap = maxOverlapChars
	}
	if actualOverlap < minOverlapChars {
		actualOverlap = minOverlapChars
	}
	if actualOverlap > len(prev.Content)/2 {
		actualOverlap = len(prev.Content) / 2
	}
	if actualOverlap < minActualChars {
		return
	}
	if len(prev.Content) <= actualOverlap {
		return
	}

	candidate := snapOverlapBoundary(prev.Content, actualOverlap)
	candidate = strings.TrimSpace(candidate)
	if len(strings.Fields(candidate)) < minOverlapWords {
		return
	}

	newContent := candidate + "\n\n" + current.Content
	newLength := len(newContent)

	current.Content = newContent
	current.CharacterCount = newLength
	current.WordCount = len(strings.Fields(newContent))
	current.OverlapSources = append(current.OverlapSources, prev.ChunkID)
	current.OverlapRegions = append(current.OverlapRegions, types.OverlapRegion{Start: 0, End: len(candidate)})
	if newLength > 0 {
		current.OverlapPercentage = float64(newLength-baseLength) / float64(newLength)
	}
}

// snapOverlapBoundary takes the tail maxChars of content and moves its
// leading edge forward to just past the first delimiter found inside that
// window, trying in order: paragraph break, sentence end, newline, word
// break. The result is never longer than maxChars.
func snapOverlapBoundary(content string, maxChars int) string {
	if maxChars >= len(content) {
		return content
	}
	tailStart := len(content) - maxChars
	window := content[tailStart:]

	if loc := paragraphBreakRE.FindStringIndex(window); loc != nil {
		return window[loc[1]:]
	}
	if loc := sentenceEndRE.FindStringIndex(window); loc != nil {
		return window[loc[1]:]
	}
	if idx := strings.IndexByte(window, '\n'); idx >= 0 {
		return window[idx+1:]
	}
	if idx := strings.IndexByte(window, ' '); idx >= 0 {
		return window[idx+1:]
	}
	return window
}
