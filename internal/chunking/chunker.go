// Package chunking implements the two-stage Markdown splitter: header-aware
// segmentation followed by size-controlled splitting, with fenced code
// blocks and GFM tables preserved as atomic units.
package chunking

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"mdvec-core/internal/hashing"
	"mdvec-core/pkg/types"
)

// Config controls the splitter's size and strategy behavior.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	Strategy     types.ChunkingStrategy
}

// DefaultConfig mirrors §4.B's stated defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Strategy:     types.ChunkingStrategyAuto,
	}
}

// Splitter segments Markdown content into chunks carrying structural
// metadata, ready to be handed to the overlap processor.
type Splitter struct {
	cfg      Config
	mdParser goldmark.Markdown
}

// NewSplitter constructs a Splitter bound to cfg.
func NewSplitter(cfg Config) *Splitter {
	return &Splitter{
		cfg:      cfg,
		mdParser: goldmark.New(),
	}
}

var (
	atomicBlockPattern = regexp.MustCompile("(?s:```.*?```)|(?m:(?:^\\|[^\n]*\\|[ \t]*$\n?)+)")
	containsFenceRE     = regexp.MustCompile("```")
	tableRowRE          = regexp.MustCompile(`(?m)^\|.*\|\s*$`)
	atxHeaderRE         = regexp.MustCompile(`(?m)^#{1,6}\s`)
	listItemRE          = regexp.MustCompile(`(?m)^\s*[-*+]\s`)
	orderedListItemRE   = regexp.MustCompile(`(?m)^\s*\d+\.\s`)
	blockquoteRE        = regexp.MustCompile(`(?m)^\s*>\s`)

	pythonHeuristicRE = regexp.MustCompile(`def\s+\w+\s*\(.*\)\s*:`)
	jsHeuristicRE     = regexp.MustCompile(`function\s+\w*\s*\([^)]*\)\s*\{`)
	cHeuristicRE      = regexp.MustCompile(`#include\s*<.*>`)
	javaHeuristicRE   = regexp.MustCompile(`public\s+class\s+\w+`)

	separatorPriority = []string{"\n\n", "\n", ". ", ", ", " ", ""}
)

// Split produces the ordered chunk list for a single file's content.
// Overlap, relationship, and expansion-eligibility fields are left at
// their zero values — the overlap processor and relationship linker fill
// them in on the next pipeline stage.
func (s *Splitter) Split(collection, filePath, content string) []types.Chunk {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}

	strategy := s.cfg.Strategy
	if strategy == types.ChunkingStrategyAuto {
		strategy = s.pickAutoStrategy(content)
	}

	var raw []string
	var hierarchies [][]string

	if strategy == types.ChunkingStrategyBaseline {
		raw = s.recursiveSplit(content)
		hierarchies = make([][]string, len(raw))
	} else {
		for _, seg := range s.segmentByHeaders([]byte(content)) {
			for _, p := range s.splitSegment(seg.content) {
				raw = append(raw, p)
				hierarchies = append(hierarchies, seg.hierarchy)
			}
		}
	}

	chunks := make([]types.Chunk, 0, len(raw))
	total := len(raw)
	for idx, piece := range raw {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		contentHash := hashing.FileHash(piece)
		chunks = append(chunks, types.Chunk{
			ChunkID:             hashing.ChunkID(collection, filePath, idx, contentHash),
			Collection:          collection,
			FilePath:            filePath,
			Content:             piece,
			ChunkIndex:          idx,
			TotalChunks:         total,
			ChunkType:           classifyChunk(piece),
			HeaderHierarchy:     hierarchies[idx],
			ContainsCode:        containsFenceRE.MatchString(piece) || strings.Contains(piece, "`"),
			ProgrammingLanguage: detectLanguage(piece),
			WordCount:           len(strings.Fields(piece)),
			CharacterCount:      len(piece),
			ContentHash:         contentHash,
			ExpansionThreshold:  0.75,
		})
	}
	return chunks
}

// pickAutoStrategy implements the DESIGN NOTES heuristic: prefer
// markdown-intelligent when the input looks structured.
func (s *Splitter) pickAutoStrategy(content string) types.ChunkingStrategy {
	if len(atxHeaderRE.FindAllString(content, -1)) >= 3 {
		return types.ChunkingStrategyMarkdownIntelligent
	}
	if containsFenceRE.MatchString(content) {
		return types.ChunkingStrategyMarkdownIntelligent
	}
	if strings.Count(content, "|") >= 6 && tableRowRE.MatchString(content) {
		return types.ChunkingStrategyMarkdownIntelligent
	}
	return types.ChunkingStrategyBaseline
}

type headerSegment struct {
	hierarchy []string
	content   string
}

// segmentByHeaders walks the goldmark AST to find heading offsets in the
// raw source, then slices the untouched source between them — this keeps
// exact formatting (code fences, table pipes, whitespace) that a
// text-node-only reconstruction would lose.
func (s *Splitter) segmentByHeaders(source []byte) []headerSegment {
	reader := text.NewReader(source)
	doc := s.mdParser.Parser().Parse(reader)

	type mark struct {
		offset int
		level  int
		title  string
	}
	var marks []mark
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := heading.Lines()
		if lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		var title bytes.Buffer
		for child := heading.FirstChild(); child != nil; child = child.NextSibling() {
			if t, ok := child.(*ast.Text); ok {
				title.Write(t.Segment.Value(source))
			}
		}
		// Lines() starts at the heading text; back up to the start of the
		// source line so the "#" marker stays inside the segment.
		offset := lines.At(0).Start
		for offset > 0 && source[offset-1] != '\n' {
			offset--
		}
		marks = append(marks, mark{
			offset: offset,
			level:  heading.Level,
			title:  strings.TrimSpace(title.String()),
		})
		return ast.WalkContinue, nil
	})

	if len(marks) == 0 {
		return []headerSegment{{content: string(source)}}
	}

	var segments []headerSegment
	if marks[0].offset > 0 {
		if pre := strings.TrimSpace(string(source[:marks[0].offset])); pre != "" {
			segments = append(segments, headerSegment{content: pre})
		}
	}

	var stack []string
	for i, m := range marks {
		end := len(source)
		if i+1 < len(marks) {
			end = marks[i+1].offset
		}
		if m.level-1 < len(stack) {
			stack = stack[:m.level-1]
		}
		for len(stack) < m.level-1 {
			stack = append(stack, "")
		}
		stack = append(stack, m.title)
		hierarchy := append([]string(nil), stack...)
		segments = append(segments, headerSegment{
			hierarchy: hierarchy,
			content:   strings.TrimRight(string(source[m.offset:end]), "\n"),
		})
	}
	return segments
}

// splitSegment applies size-controlled splitting to a single header
// segment, keeping fenced code blocks and GFM tables intact.
func (s *Splitter) splitSegment(content string) []string {
	if len(content) <= s.cfg.ChunkSize {
		return []string{content}
	}
	return s.splitPreservingAtomicBlocks(content)
}

func (s *Splitter) splitPreservingAtomicBlocks(content string) []string {
	matches := atomicBlockPattern.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		return s.recursiveSplit(content)
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}
	appendText := func(part string) {
		if current.Len()+len(part) <= s.cfg.ChunkSize {
			current.WriteString(part)
			return
		}
		for i, piece := range s.recursiveSplit(part) {
			if i == 0 && current.Len()+len(piece) <= s.cfg.ChunkSize {
				current.WriteString(piece)
				continue
			}
			flush()
			current.WriteString(piece)
		}
	}

	pos := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > pos {
			appendText(content[pos:start])
		}
		block := content[start:end]
		if current.Len() > 0 && current.Len()+len(block) > s.cfg.ChunkSize {
			flush()
		}
		current.WriteString(block)
		pos = end
	}
	if pos < len(content) {
		appendText(content[pos:])
	}
	flush()
	return chunks
}

// recursiveSplit implements the separator-priority fallback: blank line,
// newline, sentence end, comma, space, character — with target overlap
// between consecutive size-split pieces.
func (s *Splitter) recursiveSplit(content string) []string {
	pieces := splitBySeparators(content, separatorPriority, s.cfg.ChunkSize)
	return mergeWithOverlap(pieces, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
}

func splitBySeparators(content string, seps []string, size int) []string {
	if len(content) <= size {
		if content == "" {
			return nil
		}
		return []string{content}
	}
	if len(seps) == 0 || seps[0] == "" {
		return splitByLength(content, size)
	}

	sep, rest := seps[0], seps[1:]
	raw := strings.SplitAfter(content, sep)

	var out []string
	for _, piece := range raw {
		if piece == "" {
			continue
		}
		if len(piece) > size {
			out = append(out, splitBySeparators(piece, rest, size)...)
		} else {
			out = append(out, piece)
		}
	}
	return out
}

func splitByLength(content string, size int) []string {
	var out []string
	for len(content) > size {
		out = append(out, content[:size])
		content = content[size:]
	}
	if content != "" {
		out = append(out, content)
	}
	return out
}

func mergeWithOverlap(pieces []string, size, overlap int) []string {
	var merged []string
	var current strings.Builder
	for _, p := range pieces {
		if current.Len() > 0 && current.Len()+len(p) > size {
			merged = append(merged, current.String())
			tail := tailOverlap(merged[len(merged)-1], overlap)
			current.Reset()
			current.WriteString(tail)
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		merged = append(merged, current.String())
	}
	return merged
}

func tailOverlap(s string, n int) string {
	if n <= 0 || n >= len(s) {
		return ""
	}
	return s[len(s)-n:]
}

// classifyChunk derives chunk_type from the chunk's dominant content.
func classifyChunk(content string) types.ChunkType {
	trimmed := strings.TrimSpace(content)
	switch {
	case strings.HasPrefix(trimmed, "```") && strings.HasSuffix(trimmed, "```") && strings.Count(trimmed, "```") == 2:
		return types.ChunkTypeCodeBlock
	case tableRowRE.MatchString(content):
		return types.ChunkTypeTable
	case strings.HasPrefix(trimmed, "#"):
		return types.ChunkTypeHeaderSection
	case listItemRE.MatchString(content):
		return types.ChunkTypeList
	case orderedListItemRE.MatchString(content):
		return types.ChunkTypeOrderedList
	case blockquoteRE.MatchString(content):
		return types.ChunkTypeBlockquote
	default:
		return types.ChunkTypeParagraph
	}
}

// detectLanguage returns the fenced code block's language tag, falling
// back to a small set of content heuristics. Returns "" when unknown.
func detectLanguage(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		firstLine := trimmed[3:]
		if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
			firstLine = firstLine[:idx]
		}
		if lang := strings.TrimSpace(firstLine); lang != "" {
			return strings.ToLower(lang)
		}
	}
	switch {
	case pythonHeuristicRE.MatchString(content):
		return "python"
	case jsHeuristicRE.MatchString(content):
		return "javascript"
	case cHeuristicRE.MatchString(content):
		return "c"
	case javaHeuristicRE.MatchString(content):
		return "java"
	default:
		return ""
	}
}
