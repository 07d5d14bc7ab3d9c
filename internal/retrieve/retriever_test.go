package retrieve

import (
	"context"
	"testing"

	"docrag/internal/doc"
	"docrag/internal/extract"
	"docrag/internal/graph"
)

// fakeIndex serves canned semantic results and chunk lookups.
type fakeIndex struct {
	results []doc.Result
	byID    map[string]doc.Result
	fetched []string
}

func (f *fakeIndex) Search(ctx context.Context, query string, k int) ([]doc.Result, error) {
	if k > len(f.results) {
		k = len(f.results)
	}
	return f.results[:k], nil
}

func (f *fakeIndex) GetByID(ctx context.Context, id string) (*doc.Result, error) {
	f.fetched = append(f.fetched, id)
	if res, ok := f.byID[id]; ok {
		return &res, nil
	}
	return nil, nil
}

func retrievalGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	g.AddChunk(namedChunk("seed", "parseConfig"))
	g.AddChunk(namedChunk("linked"))
	g.AddChunk(namedChunk("far"))
	if err := g.AddEdge("linked", "seed", extract.RefCalls, "parseConfig", 0.8); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("far", "linked", extract.RefCalls, "helper", 0.2); err != nil {
		t.Fatal(err)
	}
	g.ComputeCentrality(graph.NewPageRank())
	return g
}

func TestRetrieveExpandsNeighbors(t *testing.T) {
	g := retrievalGraph(t)
	index := &fakeIndex{
		results: []doc.Result{resultFor(namedChunk("seed", "parseConfig"), 0.9)},
		byID: map[string]doc.Result{
			"linked": resultFor(namedChunk("linked"), 0),
			"far":    resultFor(namedChunk("far"), 0),
		},
	}
	r := NewRetriever(index, g)

	results, err := r.Retrieve(context.Background(), "tell me about settings", DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	ids := make(map[string]bool)
	for _, res := range results {
		ids[res.ID] = true
	}
	if !ids["seed"] || !ids["linked"] {
		t.Errorf("results = %v, want seed and linked", ids)
	}
	// The far chunk is only reachable over a 0.2 edge, below the
	// expansion weight floor.
	if ids["far"] {
		t.Error("low-weight neighbor included")
	}
}

func TestRetrieveEmptySeedsShortCircuits(t *testing.T) {
	g := retrievalGraph(t)
	r := NewRetriever(&fakeIndex{}, g)

	results, err := r.Retrieve(context.Background(), "parseConfig()", DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("results = %v, want none", results)
	}
}

func TestRetrieveLowScoreSeedNotExpanded(t *testing.T) {
	g := retrievalGraph(t)
	index := &fakeIndex{
		results: []doc.Result{resultFor(namedChunk("seed", "parseConfig"), 0.1)},
		byID: map[string]doc.Result{
			"linked": resultFor(namedChunk("linked"), 0),
		},
	}
	r := NewRetriever(index, g)

	results, err := r.Retrieve(context.Background(), "tell me about settings", DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "seed" {
		t.Errorf("results = %v, want only the seed", results)
	}
}

func TestRetrieveSeedsNotRefetched(t *testing.T) {
	g := retrievalGraph(t)
	index := &fakeIndex{
		results: []doc.Result{resultFor(namedChunk("seed", "parseConfig"), 0.9)},
		byID: map[string]doc.Result{
			"linked": resultFor(namedChunk("linked"), 0),
		},
	}
	r := NewRetriever(index, g)

	if _, err := r.Retrieve(context.Background(), "anything", DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	for _, id := range index.fetched {
		if id == "seed" {
			t.Error("seed chunk refetched during hydration")
		}
	}
}

func TestRetrieveElementExpansion(t *testing.T) {
	// Query names parseConfig; its definer should be pulled in even
	// though semantic search missed it, as long as it is central
	// enough.
	g := graph.New()
	g.AddChunk(namedChunk("definer", "parseConfig"))
	g.AddChunk(namedChunk("unrelated"))
	for i := 0; i < 3; i++ {
		id := "caller" + string(rune('0'+i))
		g.AddChunk(namedChunk(id))
		if err := g.AddEdge(id, "definer", extract.RefCalls, "parseConfig", 0.8); err != nil {
			t.Fatal(err)
		}
	}
	g.ComputeCentrality(graph.NewPageRank())

	if g.Centrality("definer") <= 0.1 {
		t.Fatalf("test graph too weak: definer centrality = %v", g.Centrality("definer"))
	}

	index := &fakeIndex{
		results: []doc.Result{resultFor(namedChunk("unrelated"), 0.2)},
		byID: map[string]doc.Result{
			"definer": resultFor(namedChunk("definer", "parseConfig"), 0),
		},
	}
	r := NewRetriever(index, g)

	results, err := r.Retrieve(context.Background(), "where is parseConfig() defined", DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, res := range results {
		if res.ID == "definer" {
			found = true
		}
	}
	if !found {
		t.Errorf("results missing element-expanded definer: %v", results)
	}
}

func TestRetrieveMissingHydrationSkipped(t *testing.T) {
	g := retrievalGraph(t)
	index := &fakeIndex{
		results: []doc.Result{resultFor(namedChunk("seed", "parseConfig"), 0.9)},
		byID:    map[string]doc.Result{}, // linked is in the graph but not the store
	}
	r := NewRetriever(index, g)

	results, err := r.Retrieve(context.Background(), "tell me about settings", DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range results {
		if res.ID == "linked" {
			t.Error("unhydratable chunk returned")
		}
	}
	if len(results) == 0 {
		t.Error("seed lost")
	}
}

func TestSetGraphSwapsAtomically(t *testing.T) {
	g1 := retrievalGraph(t)
	r := NewRetriever(&fakeIndex{}, g1)

	g2 := graph.New()
	r.SetGraph(g2)
	if r.Graph() != g2 {
		t.Error("graph not swapped")
	}
}
