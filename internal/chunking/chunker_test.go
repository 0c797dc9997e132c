package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdvec-core/pkg/types"
)

func TestSplitEmptyContentYieldsNoChunks(t *testing.T) {
	s := NewSplitter(DefaultConfig())
	assert.Empty(t, s.Split("kb", "empty.md", "   \n\t  "))
}

func TestSplitSimpleHeaderSection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = types.ChunkingStrategyMarkdownIntelligent
	s := NewSplitter(cfg)
	chunks := s.Split("kb", "ai.md", "# AI\n\nNeural networks are computational models.")
	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkTypeHeaderSection, chunks[0].ChunkType)
	assert.Equal(t, []string{"AI"}, chunks[0].HeaderHierarchy)
	assert.Contains(t, chunks[0].Content, "Neural networks")
}

func TestSplitPreservesCodeBlockAtomically(t *testing.T) {
	body := "```python\n" + strings.Repeat("x = 1\n", 400) + "```\n"
	content := "# Example\n\n" + body
	cfg := DefaultConfig()
	cfg.ChunkSize = 400
	s := NewSplitter(cfg)

	chunks := s.Split("kb", "code.md", content)
	require.NotEmpty(t, chunks)

	var codeChunks int
	for _, c := range chunks {
		if c.ChunkType == types.ChunkTypeCodeBlock {
			codeChunks++
			assert.Equal(t, 2, strings.Count(c.Content, "```"))
			assert.Equal(t, "python", c.ProgrammingLanguage)
		}
	}
	assert.Equal(t, 1, codeChunks)
}

func TestChunkIDIsDeterministic(t *testing.T) {
	s := NewSplitter(DefaultConfig())
	a := s.Split("kb", "ai.md", "# AI\n\nSame content every time.")
	b := s.Split("kb", "ai.md", "# AI\n\nSame content every time.")
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].ChunkID, b[0].ChunkID)
}

func TestHeaderHierarchyNestsByLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = types.ChunkingStrategyMarkdownIntelligent
	s := NewSplitter(cfg)
	chunks := s.Split("kb", "doc.md", "# Top\n\nIntro.\n\n## Child\n\nDetail.\n")
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"Top"}, chunks[0].HeaderHierarchy)
	assert.Equal(t, []string{"Top", "Child"}, chunks[1].HeaderHierarchy)
}

func TestBaselineStrategyIgnoresHeaders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = types.ChunkingStrategyBaseline
	s := NewSplitter(cfg)
	chunks := s.Split("kb", "doc.md", "# Top\n\nSome prose without enough structure.")
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Empty(t, c.HeaderHierarchy)
	}
}
