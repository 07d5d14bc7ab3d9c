package doc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fixedNamer struct {
	names []string
}

func (f fixedNamer) ElementNames(c *Chunk) []string {
	return f.names
}

func TestChunkContentSplitsOnHeaders(t *testing.T) {
	c := NewChunker(nil, ChunkerConfig{MinChunkSize: 10})
	content := "# Intro\n\nSome introduction text here.\n\n## Usage\n\nUsage details across lines of text."

	chunks := c.ChunkContent(content, "docs/guide.md")
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0].Metadata.SectionTitle != "Intro" {
		t.Errorf("first title = %q", chunks[0].Metadata.SectionTitle)
	}
	if chunks[1].Metadata.SectionTitle != "Usage" {
		t.Errorf("second title = %q", chunks[1].Metadata.SectionTitle)
	}
	if !strings.HasPrefix(chunks[0].Content, "# Intro") {
		t.Error("header line missing from section content")
	}
	if chunks[0].StartLine != 1 || chunks[1].StartLine != 5 {
		t.Errorf("start lines = %d, %d", chunks[0].StartLine, chunks[1].StartLine)
	}
	for _, chunk := range chunks {
		if chunk.FilePath != "docs/guide.md" {
			t.Errorf("file path = %q", chunk.FilePath)
		}
		if chunk.ID == "" {
			t.Error("chunk missing id")
		}
	}
}

func TestChunkContentNoHeaders(t *testing.T) {
	c := NewChunker(nil, ChunkerConfig{MinChunkSize: 10})

	chunks := c.ChunkContent("plain document without any headers in it", "a.md")
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if chunks[0].Metadata.SectionTitle != "" {
		t.Errorf("title = %q, want empty", chunks[0].Metadata.SectionTitle)
	}
}

func TestChunkContentDropsSmallAndSplitsLarge(t *testing.T) {
	c := NewChunker(nil, ChunkerConfig{MaxChunkSize: 1000, MinChunkSize: 100})

	small := strings.Repeat("tiny ", 8)                     // ~40 bytes, dropped
	large := strings.Repeat("lorem ipsum dolor sit ", 55)   // ~1210 bytes, split
	medium := strings.Repeat("medium sized line ", 4) + "!" // ~73 bytes, dropped

	content := "# A\n" + small + "\n# B\n" + large + "\n# C\n" + medium
	chunks := c.ChunkContent(content, "a.md")

	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want the large section split in two or more", len(chunks))
	}
	for _, chunk := range chunks {
		if chunk.Metadata.SectionTitle != "B" {
			t.Errorf("chunk from section %q survived, want only B", chunk.Metadata.SectionTitle)
		}
		if len(chunk.Content) < 100 {
			t.Errorf("chunk below minimum size: %d bytes", len(chunk.Content))
		}
	}
}

func TestSplitBySizeOverlap(t *testing.T) {
	c := NewChunker(nil, ChunkerConfig{MaxChunkSize: 200, MinChunkSize: 20, OverlapSize: 50})

	var words []string
	for i := 0; i < 100; i++ {
		words = append(words, "word")
	}
	chunks := c.ChunkContent("# T\n"+strings.Join(words, " "), "a.md")
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want several", len(chunks))
	}

	// Consecutive chunks share trailing/leading words.
	first := strings.Fields(chunks[0].Content)
	second := strings.Fields(chunks[1].Content)
	if first[len(first)-1] != second[0] {
		t.Error("no overlap between consecutive size-split chunks")
	}
}

func TestChunkerPopulatesElements(t *testing.T) {
	c := NewChunker(fixedNamer{names: []string{"parse"}}, ChunkerConfig{MinChunkSize: 5})

	chunks := c.ChunkContent("# A\nsome content", "a.md")
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if len(chunks[0].Metadata.CodeElements) != 1 || chunks[0].Metadata.CodeElements[0] != "parse" {
		t.Errorf("elements = %v", chunks[0].Metadata.CodeElements)
	}
}

func TestChunkFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	if err := os.WriteFile(path, []byte("# Title\n\nfile content goes here"), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewChunker(nil, ChunkerConfig{MinChunkSize: 5})
	chunks, err := c.ChunkFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].FilePath != path {
		t.Errorf("chunks = %v", chunks)
	}

	if _, err := c.ChunkFile(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestClassifyKind(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    ChunkKind
	}{
		{"prose", "just a paragraph of text", KindText},
		{"mostly code", "```cangjie\nfunc a() {}\nfunc b() {}\nfunc c() {}\n```", KindCode},
		{"mixed fence", "Intro text.\n```cangjie\nfunc a() {}\nfunc b() {}\n```\nmore prose here", KindMixed},
		{"keyword no fence", "the declaration func foo(x: Int64) does things", KindMixed},
	}
	for _, tc := range cases {
		if got := ClassifyKind(tc.content); got != tc.want {
			t.Errorf("%s: kind = %q, want %q", tc.name, got, tc.want)
		}
	}
}
