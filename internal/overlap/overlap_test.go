package overlap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdvec-core/pkg/types"
)

func makeChunk(id, content string) types.Chunk {
	return types.Chunk{
		ChunkID:        id,
		Content:        content,
		CharacterCount: len(content),
		WordCount:      len(strings.Fields(content)),
	}
}

func TestNewProcessorRejectsOutOfRangePercentage(t *testing.T) {
	_, err := NewProcessor(Config{ChunkOverlap: 200, OverlapPercentage: 0.5})
	require.Error(t, err)
}

func TestApplyBorrowsFromPreviousOnly(t *testing.T) {
	p, err := NewProcessor(DefaultConfig())
	require.NoError(t, err)

	prev := makeChunk("c1", strings.Repeat("alpha beta gamma delta. ", 20))
	next := makeChunk("c2", strings.Repeat("epsilon zeta eta theta. ", 20))
	chunks := []types.Chunk{prev, next}

	result := p.Apply(chunks)
	require.Len(t, result, 2)

	assert.Empty(t, result[0].OverlapSources, "first chunk has no predecessor to borrow from")
	assert.NotEmpty(t, result[1].OverlapSources)
	assert.Equal(t, "c1", result[1].OverlapSources[0])
	assert.Greater(t, result[1].OverlapPercentage, 0.0)
	assert.LessOrEqual(t, result[1].OverlapPercentage, 0.5)
}

func TestApplySkipsWhenPredecessorTooShort(t *testing.T) {
	p, err := NewProcessor(DefaultConfig())
	require.NoError(t, err)

	prev := makeChunk("c1", "short")
	next := makeChunk("c2", strings.Repeat("word ", 50))
	chunks := []types.Chunk{prev, next}

	result := p.Apply(chunks)
	assert.Empty(t, result[1].OverlapSources)
	assert.Equal(t, 0.0, result[1].OverlapPercentage)
}

func TestExpansionEligibilityExcludesCode(t *testing.T) {
	p, err := NewProcessor(DefaultConfig())
	require.NoError(t, err)

	codeChunk := makeChunk("c1", "fn main() {}")
	codeChunk.ContainsCode = true
	prose := makeChunk("c2", "a short prose chunk")
	chunks := []types.Chunk{codeChunk, prose}

	result := p.Apply(chunks)
	assert.False(t, result[0].ContextExpansionEligible)
	assert.True(t, result[1].ContextExpansionEligible)
}

func TestExpansionEligibilityExcludesLongChunks(t *testing.T) {
	p, err := NewProcessor(DefaultConfig())
	require.NoError(t, err)

	long := makeChunk("c1", strings.Repeat("word ", 400))
	chunks := []types.Chunk{long}

	result := p.Apply(chunks)
	assert.False(t, result[0].ContextExpansionEligible)
}

func TestSnapOverlapBoundaryPrefersParagraphBreak(t *testing.T) {
	content := "First paragraph here with enough words to matter.\n\nSecond paragraph starts here and continues on."
	snapped := snapOverlapBoundary(content, 60)
	assert.True(t, strings.HasPrefix(snapped, "Second") || len(snapped) <= 40)
}
