package graph

import (
	"context"
	"path/filepath"
	"testing"

	"docrag/internal/doc"
	"docrag/internal/extract"
)

func docChunk(id, filePath, content string, startLine int, elements ...string) *doc.Chunk {
	return &doc.Chunk{
		ID:        id,
		Content:   content,
		FilePath:  filePath,
		StartLine: startLine,
		EndLine:   startLine + 10,
		Kind:      doc.KindMixed,
		Metadata: doc.Metadata{
			CodeElements: elements,
			Language:     doc.DefaultLanguage,
		},
	}
}

func TestBuildLinksReferencesToDefiners(t *testing.T) {
	chunks := []*doc.Chunk{
		docChunk("def", "docs/parser.md", "func parseConfig(path: String): Unit {\n}", 1, "parseConfig"),
		docChunk("use", "docs/usage.md", "Call parseConfig(path) to load settings.", 1),
	}

	b := NewBuilder(extract.NewExtractor(), WithWorkers(2))
	g, err := b.Build(context.Background(), chunks, nil)
	if err != nil {
		t.Fatal(err)
	}

	if g.NodeCount() != 2 {
		t.Fatalf("nodes = %d, want 2", g.NodeCount())
	}
	edge := g.out["use"]["def"]
	if edge == nil {
		t.Fatal("expected edge from use to def")
	}
	if edge.Element != "parseConfig" {
		t.Errorf("edge element = %q", edge.Element)
	}
	if g.Centrality("def") <= 0 {
		t.Error("expected centrality computed for definer")
	}
}

func TestBuildSkipsMalformedChunks(t *testing.T) {
	chunks := []*doc.Chunk{
		docChunk("ok", "docs/a.md", "some text", 1),
		{ID: "", Content: "no id"},
		{ID: "no-content", Content: ""},
		nil,
	}

	b := NewBuilder(extract.NewExtractor())
	g, err := b.Build(context.Background(), chunks, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g.NodeCount() != 1 {
		t.Errorf("nodes = %d, want 1", g.NodeCount())
	}
}

func TestBuildAddsParentEdges(t *testing.T) {
	chunks := []*doc.Chunk{
		docChunk("parent", "docs/a.md", "overview", 1),
		docChunk("child", "docs/a.md", "details", 20),
	}
	parents := map[string][]string{"child": {"parent"}}

	b := NewBuilder(extract.NewExtractor())
	g, err := b.Build(context.Background(), chunks, parents)
	if err != nil {
		t.Fatal(err)
	}
	if g.out["child"]["parent"] == nil || g.out["parent"]["child"] == nil {
		t.Error("expected symmetric parent edges")
	}
}

func TestBuildCancelled(t *testing.T) {
	var chunks []*doc.Chunk
	for i := 0; i < 100; i++ {
		chunks = append(chunks, docChunk(
			string(rune('a'+i%26))+string(rune('0'+i/26)), "docs/a.md", "text", i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBuilder(extract.NewExtractor(), WithWorkers(1))
	if _, err := b.Build(ctx, chunks, nil); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestUpdateReplacesFileChunks(t *testing.T) {
	b := NewBuilder(extract.NewExtractor())
	g, err := b.Build(context.Background(), []*doc.Chunk{
		docChunk("old", "docs/a.md", "func oldThing(): Unit {\n}", 1, "oldThing"),
		docChunk("other", "docs/b.md", "Call newThing() here.", 1),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	err = b.Update(context.Background(), g, "docs/a.md", []*doc.Chunk{
		docChunk("new", "docs/a.md", "func newThing(): Unit {\nnewThing uses oldRef()\n}", 1, "newThing"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if g.Node("old") != nil {
		t.Error("stale chunk still present after update")
	}
	if g.Node("new") == nil {
		t.Error("updated chunk missing")
	}
	if len(g.Definers("oldThing")) != 0 {
		t.Error("stale element still indexed")
	}
	if len(g.Definers("newThing")) != 1 {
		t.Error("new element not indexed")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	chunks := []*doc.Chunk{
		docChunk("def", "docs/parser.md", "func parseConfig(path: String): Unit {\n}", 1, "parseConfig"),
		docChunk("use", "docs/usage.md", "Call parseConfig(path) to load settings.", 1),
	}
	b := NewBuilder(extract.NewExtractor())
	g, err := b.Build(context.Background(), chunks, nil)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := g.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.NodeCount() != g.NodeCount() || loaded.EdgeCount() != g.EdgeCount() {
		t.Errorf("loaded %d nodes/%d edges, want %d/%d",
			loaded.NodeCount(), loaded.EdgeCount(), g.NodeCount(), g.EdgeCount())
	}
	if loaded.Centrality("def") != g.Centrality("def") {
		t.Error("centrality not preserved")
	}
	if len(loaded.Definers("parseConfig")) != 1 {
		t.Error("element index not rebuilt on load")
	}

	got := loaded.Neighbors("use", 1, 0)
	if len(got) != 1 || got[0].ID != "def" {
		t.Errorf("neighbors after load = %v", got)
	}
}

func TestBuildExtractsDefinitionsFromRawChunks(t *testing.T) {
	// Chunks that never went through the chunker carry no element
	// metadata; the builder extracts definitions itself.
	chunks := []*doc.Chunk{
		docChunk("def", "docs/parser.md", "func parseConfig(path: String): Unit {\n}", 1),
		docChunk("use", "docs/usage.md", "Call parseConfig(path) to load settings.", 1),
	}

	b := NewBuilder(extract.NewExtractor())
	g, err := b.Build(context.Background(), chunks, nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := g.Definers("parseConfig"); len(got) != 1 || got[0] != "def" {
		t.Fatalf("Definers(parseConfig) = %v, want [def]", got)
	}
	if g.out["use"]["def"] == nil {
		t.Fatal("expected edge from use to def")
	}
	if g.Stats().Elements == 0 {
		t.Error("element index empty after build")
	}
}

func TestUpdateExtractsDefinitionsFromRawChunks(t *testing.T) {
	b := NewBuilder(extract.NewExtractor())
	g, err := b.Build(context.Background(), []*doc.Chunk{
		docChunk("use", "docs/usage.md", "Call parseConfig(path) to load settings.", 1),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	raw := docChunk("def", "docs/parser.md", "func parseConfig(path: String): Unit {\n}", 1)
	if err := b.Update(context.Background(), g, "docs/parser.md", []*doc.Chunk{raw}); err != nil {
		t.Fatal(err)
	}

	if got := g.Definers("parseConfig"); len(got) != 1 || got[0] != "def" {
		t.Fatalf("Definers(parseConfig) = %v, want [def]", got)
	}
}

func TestSnapshotPreservesDefinerOrder(t *testing.T) {
	g := New()
	// Insertion order deliberately disagrees with sorted node order.
	g.AddChunk(docChunk("zeta", "docs/b.md", "func shared(): Unit {\n}", 1, "shared"))
	g.AddChunk(docChunk("alpha", "docs/a.md", "func shared(): Unit {\n}", 1, "shared"))

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := g.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	want := g.Definers("shared")
	got := loaded.Definers("shared")
	if len(got) != len(want) {
		t.Fatalf("Definers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Definers order = %v, want %v", got, want)
		}
	}
}
