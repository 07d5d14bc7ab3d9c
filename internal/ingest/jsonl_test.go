package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"docrag/internal/doc"
	"docrag/internal/extract"
)

func writeJSONL(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docs.jsonl")
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newJSONLSource(t *testing.T) *JSONLSource {
	t.Helper()
	s, err := NewJSONLSource(extract.NewExtractor(), "")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLoadValidatesLines(t *testing.T) {
	path := writeJSONL(t,
		`{"id": "d1", "text": "hello", "parent_ids": [], "source": "a.md", "short": "Hello", "url": "http://x"}`,
		`not json at all`,
		`{"id": "", "text": "missing id", "parent_ids": [], "source": "a.md", "short": "", "url": ""}`,
		`{"text": "no id field", "parent_ids": [], "source": "a.md", "short": "", "url": ""}`,
		`{"id": "d2", "text": "world", "parent_ids": ["d1"], "source": "b.md", "short": "World", "url": "http://y"}`,
	)

	docs, err := newJSONLSource(t).Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("loaded %d documents, want 2", len(docs))
	}
	if docs[0].ID != "d1" || docs[1].ID != "d2" {
		t.Errorf("docs = %v", docs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := newJSONLSource(t).Load("/nonexistent/docs.jsonl"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestToChunks(t *testing.T) {
	s := newJSONLSource(t)
	documents := []Document{{
		ID:          "d1",
		Text:        "The parser entry point.",
		Source:      "parser.md",
		Short:       "Parser overview",
		ExampleCode: "func parseConfig(path: String): Unit {\n}",
		URL:         "http://x",
	}}

	chunks := s.ToChunks(documents)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	chunk := chunks[0]
	if chunk.ID != "d1" {
		t.Errorf("id = %q", chunk.ID)
	}
	if chunk.Metadata.SectionTitle != "Parser overview" {
		t.Errorf("section title = %q", chunk.Metadata.SectionTitle)
	}
	if chunk.Kind != doc.KindCode {
		t.Errorf("kind = %q, want CODE (example code, no code in text)", chunk.Kind)
	}
	if len(chunk.Metadata.CodeElements) != 1 || chunk.Metadata.CodeElements[0] != "parseConfig" {
		t.Errorf("elements = %v, want [parseConfig]", chunk.Metadata.CodeElements)
	}
	if chunk.FilePath != "parser.md" {
		t.Errorf("file path = %q", chunk.FilePath)
	}
}

func TestDocumentKind(t *testing.T) {
	cases := []struct {
		name     string
		document Document
		want     doc.ChunkKind
	}{
		{"plain text", Document{Text: "just prose"}, doc.KindText},
		{"example only", Document{Text: "prose", ExampleCode: "let x = 1"}, doc.KindCode},
		{"code in text", Document{Text: "func foo() {\n}"}, doc.KindCode},
		{"both", Document{Text: "struct Bar {\n}", ExampleCode: "let x = 1"}, doc.KindMixed},
	}
	for _, tc := range cases {
		if got := documentKind(&tc.document); got != tc.want {
			t.Errorf("%s: kind = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestParentRelationships(t *testing.T) {
	s := newJSONLSource(t)
	documents := []Document{
		{ID: "root", Text: "root"},
		{ID: "child", Text: "child", ParentIDs: []string{"root", "ghost"}},
		{ID: "orphan", Text: "orphan", ParentIDs: []string{"ghost"}},
	}

	rels := s.ParentRelationships(documents)
	if len(rels) != 1 {
		t.Fatalf("rels = %v, want only child", rels)
	}
	parents := rels["child"]
	if len(parents) != 1 || parents[0] != "root" {
		t.Errorf("child parents = %v, want [root] (unknown parents dropped)", parents)
	}
}
