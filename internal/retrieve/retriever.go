package retrieve

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"docrag/internal/doc"
	"docrag/internal/graph"
)

// Config controls the retrieval pipeline.
type Config struct {
	// InitialK is the seed size of the semantic search stage.
	InitialK int
	// MaxGraphDistance bounds neighbor expansion hops.
	MaxGraphDistance int
	// RelevanceThreshold gates which seeds are expanded.
	RelevanceThreshold float64
	// MaxTotalChunks caps the final result count.
	MaxTotalChunks int
	// RerankByGraph enables graph features in scoring.
	RerankByGraph bool
}

// DefaultConfig returns the standard retrieval parameters.
func DefaultConfig() Config {
	return Config{
		InitialK:           5,
		MaxGraphDistance:   2,
		RelevanceThreshold: 0.3,
		MaxTotalChunks:     20,
		RerankByGraph:      true,
	}
}

// Expansion edge weight floor, the centrality bar for element-based
// expansion, and the hop bound for multi-element subgraph expansion.
const (
	expandMinWeight     = 0.3
	expandMinCentrality = 0.1
	subgraphDepth       = 1
)

// VectorIndex is the semantic search surface the retriever consumes.
type VectorIndex interface {
	// Search returns the k most similar chunks with scores in [0, 1].
	Search(ctx context.Context, query string, k int) ([]doc.Result, error)
	// GetByID returns a chunk by ID with a zero score, or nil when absent.
	GetByID(ctx context.Context, id string) (*doc.Result, error)
}

// Retriever runs two-stage retrieval: semantic seeding, graph
// expansion, then fused ranking. The graph can be swapped atomically
// while queries are in flight; each query uses one consistent graph.
type Retriever struct {
	index    VectorIndex
	graph    atomic.Pointer[graph.Graph]
	analyzer *Analyzer
}

// NewRetriever creates a retriever over the given index and graph.
func NewRetriever(index VectorIndex, g *graph.Graph) *Retriever {
	r := &Retriever{
		index:    index,
		analyzer: NewAnalyzer(),
	}
	r.graph.Store(g)
	return r
}

// SetGraph replaces the graph used by subsequent queries.
func (r *Retriever) SetGraph(g *graph.Graph) {
	r.graph.Store(g)
}

// Graph returns the graph currently serving queries.
func (r *Retriever) Graph() *graph.Graph {
	return r.graph.Load()
}

// Retrieve answers a query. An empty semantic stage short-circuits to
// an empty result; graph expansion never resurrects a dead query.
func (r *Retriever) Retrieve(ctx context.Context, query string, config Config) ([]doc.Result, error) {
	g := r.graph.Load()
	analysis := r.analyzer.Analyze(query)
	log.Printf("🔍 Query intent=%s elements=%v", analysis.Intent, analysis.CodeElements)

	seeds, err := r.index.Search(ctx, query, config.InitialK)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	expanded := r.expand(g, seeds, analysis, config)

	candidates, err := r.hydrate(ctx, expanded, seeds)
	if err != nil {
		return nil, err
	}

	results := NewRanker(g).Rank(candidates, analysis, config)
	log.Printf("✅ Retrieved %d chunks (%d seeds, %d candidates)", len(results), len(seeds), len(candidates))
	return results, nil
}

// expand grows the seed set along three strategies: weighted neighbor
// traversal from relevant seeds, chunks related to query elements, and
// a one-hop subgraph when the query names multiple elements.
func (r *Retriever) expand(g *graph.Graph, seeds []doc.Result, analysis QueryAnalysis, config Config) map[string]bool {
	expanded := make(map[string]bool, len(seeds))
	for _, seed := range seeds {
		expanded[seed.ID] = true
	}

	for _, seed := range seeds {
		if seed.Score < config.RelevanceThreshold {
			continue
		}
		for _, nb := range g.Neighbors(seed.ID, config.MaxGraphDistance, expandMinWeight) {
			expanded[nb.ID] = true
		}
	}

	for _, element := range analysis.CodeElements {
		for _, id := range g.RelatedByElement(element) {
			if g.Centrality(id) > expandMinCentrality {
				expanded[id] = true
			}
		}
	}

	if len(analysis.CodeElements) > 1 {
		for _, id := range g.SubgraphForElements(analysis.CodeElements, subgraphDepth, expandMinWeight) {
			expanded[id] = true
		}
	}

	return expanded
}

// hydrate fetches chunk data for expansion-only IDs; seeds already
// carry their content and score and are never refetched.
func (r *Retriever) hydrate(ctx context.Context, ids map[string]bool, seeds []doc.Result) ([]doc.Result, error) {
	results := make([]doc.Result, 0, len(ids))
	have := make(map[string]bool, len(seeds))
	for _, seed := range seeds {
		results = append(results, seed)
		have[seed.ID] = true
	}

	for id := range ids {
		if have[id] {
			continue
		}
		chunk, err := r.index.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to hydrate chunk %s: %w", id, err)
		}
		if chunk == nil {
			log.Printf("⚠️ Graph references chunk %s missing from the store", id)
			continue
		}
		results = append(results, *chunk)
	}
	return results, nil
}

// Statistics summarizes the retrieval system's graph for diagnostics.
func (r *Retriever) Statistics() graph.Stats {
	return r.graph.Load().Stats()
}
