package doc

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ElementNamer reports the unique code element names defined in a
// chunk. Satisfied by the extractor; decoupled here so the chunker
// does not depend on the extraction package.
type ElementNamer interface {
	ElementNames(c *Chunk) []string
}

var (
	headerPattern    = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	codeBlockPattern = regexp.MustCompile("(?s)```(\\w+)?\\n(.*?)```")

	// Keyword declarations that promote a fence-less chunk to MIXED.
	codeKeywordPatterns = []*regexp.Regexp{
		regexp.MustCompile(`func\s+\w+\s*\(`),
		regexp.MustCompile(`class\s+\w+`),
		regexp.MustCompile(`struct\s+\w+`),
		regexp.MustCompile(`interface\s+\w+`),
		regexp.MustCompile(`enum\s+\w+`),
	}
)

// ChunkerConfig configures chunk sizing. Sizes are in bytes of content.
type ChunkerConfig struct {
	// MaxChunkSize is the size above which a section is split. Default: 1000
	MaxChunkSize int
	// MinChunkSize is the size below which a chunk is discarded. Default: 100
	MinChunkSize int
	// OverlapSize controls word overlap between consecutive size-split
	// pieces. Default: 50
	OverlapSize int
	// Language tag stamped on produced chunks. Default: DefaultLanguage
	Language string
}

// Chunker splits markdown documents into bounded, structurally aligned
// chunks: first along header boundaries, then by size with word overlap.
type Chunker struct {
	config ChunkerConfig
	namer  ElementNamer
}

// NewChunker creates a chunker with defaults applied.
func NewChunker(namer ElementNamer, config ChunkerConfig) *Chunker {
	if config.MaxChunkSize <= 0 {
		config.MaxChunkSize = 1000
	}
	if config.MinChunkSize <= 0 {
		config.MinChunkSize = 100
	}
	if config.OverlapSize <= 0 {
		config.OverlapSize = 50
	}
	if config.Language == "" {
		config.Language = DefaultLanguage
	}
	return &Chunker{config: config, namer: namer}
}

// ChunkFile reads and chunks a single markdown file.
func (c *Chunker) ChunkFile(path string) ([]*Chunk, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return c.ChunkContent(string(content), path), nil
}

// ChunkContent splits content into chunks. Sections larger than
// MaxChunkSize are re-split by size; chunks smaller than MinChunkSize
// (after trimming) are dropped. Code element names are populated on
// every surviving chunk when an ElementNamer is configured.
func (c *Chunker) ChunkContent(content, filePath string) []*Chunk {
	var chunks []*Chunk
	for _, section := range c.splitByHeaders(content, filePath) {
		if len(section.Content) > c.config.MaxChunkSize {
			chunks = append(chunks, c.splitBySize(section)...)
		} else {
			chunks = append(chunks, section)
		}
	}

	kept := chunks[:0]
	for _, chunk := range chunks {
		if len(strings.TrimSpace(chunk.Content)) >= c.config.MinChunkSize {
			kept = append(kept, chunk)
		}
	}
	chunks = kept

	if c.namer != nil {
		for i := range chunks {
			chunks[i].Metadata.CodeElements = c.namer.ElementNames(chunks[i])
		}
	}
	return chunks
}

// splitByHeaders splits content along markdown headers, keeping the
// header line inside its section and the header text as the section
// title. Without headers the whole document is one section.
func (c *Chunker) splitByHeaders(content, filePath string) []*Chunk {
	lines := strings.Split(content, "\n")

	var chunks []*Chunk
	var section []string
	title := ""
	startLine := 1

	flush := func(endLine int) {
		text := strings.Join(section, "\n")
		if strings.TrimSpace(text) == "" {
			return
		}
		chunks = append(chunks, c.newChunk(text, filePath, startLine, endLine, title))
	}

	for i, line := range lines {
		if m := headerPattern.FindStringSubmatch(line); m != nil {
			flush(i)
			section = []string{line}
			title = strings.TrimSpace(m[2])
			startLine = i + 1
			continue
		}
		section = append(section, line)
	}
	flush(len(lines))

	if len(chunks) == 0 {
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []*Chunk{c.newChunk(content, filePath, 1, len(lines), "")}
	}
	return chunks
}

// splitBySize splits an oversized section into word-bounded pieces of
// roughly MaxChunkSize bytes, with a small word overlap carried into
// each following piece. Piece boundaries do not track line numbers, so
// sub-chunks inherit the section's line range and title.
func (c *Chunker) splitBySize(section *Chunk) []*Chunk {
	words := strings.Fields(section.Content)
	if len(words) <= c.config.MaxChunkSize/10 {
		return []*Chunk{section}
	}

	var chunks []*Chunk
	var current []string
	size := 0

	emit := func(text string) {
		chunks = append(chunks, c.newChunk(text, section.FilePath,
			section.StartLine, section.EndLine, section.Metadata.SectionTitle))
	}

	for _, word := range words {
		current = append(current, word)
		size += len(word) + 1

		if size >= c.config.MaxChunkSize {
			emit(strings.Join(current, " "))

			overlap := c.config.OverlapSize / 10
			if quarter := len(current) / 4; overlap > quarter {
				overlap = quarter
			}
			current = append([]string(nil), current[len(current)-overlap:]...)
			size = 0
			for _, w := range current {
				size += len(w) + 1
			}
		}
	}

	if len(current) > 0 {
		text := strings.Join(current, " ")
		if len(strings.TrimSpace(text)) >= c.config.MinChunkSize {
			emit(text)
		}
	}

	if len(chunks) == 0 {
		return []*Chunk{section}
	}
	return chunks
}

func (c *Chunker) newChunk(content, filePath string, startLine, endLine int, title string) *Chunk {
	content = strings.TrimSpace(content)
	return &Chunk{
		ID:        uuid.NewString(),
		Content:   content,
		FilePath:  filePath,
		StartLine: startLine,
		EndLine:   endLine,
		Kind:      ClassifyKind(content),
		Metadata: Metadata{
			CodeElements: []string{},
			Language:     c.config.Language,
			SectionTitle: title,
		},
	}
}

// ClassifyKind determines whether content is TEXT, CODE, or MIXED from
// the ratio of fenced-code length to total length. Content without
// fences is MIXED when declaration keywords appear, TEXT otherwise.
func ClassifyKind(content string) ChunkKind {
	blocks := codeBlockPattern.FindAllStringSubmatch(content, -1)
	if len(blocks) == 0 {
		for _, pattern := range codeKeywordPatterns {
			if pattern.MatchString(content) {
				return KindMixed
			}
		}
		return KindText
	}

	codeLen := 0
	for _, block := range blocks {
		codeLen += len(block[2])
	}
	if len(content) == 0 {
		return KindText
	}
	ratio := float64(codeLen) / float64(len(content))
	switch {
	case ratio > 0.7:
		return KindCode
	case ratio > 0.3:
		return KindMixed
	default:
		return KindText
	}
}
