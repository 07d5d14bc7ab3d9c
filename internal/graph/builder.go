package graph

import (
	"context"
	"log"
	"runtime"
	"sync"

	"docrag/internal/doc"
	"docrag/internal/extract"
)

// Builder constructs a reference graph from chunked documentation.
// Extraction is fanned out across workers; all graph mutation happens
// on the calling goroutine after the extraction barrier.
type Builder struct {
	extractor *extract.Extractor
	scorer    CentralityScorer
	workers   int
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithWorkers overrides the extraction worker count.
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithScorer overrides the centrality scorer.
func WithScorer(s CentralityScorer) BuilderOption {
	return func(b *Builder) {
		if s != nil {
			b.scorer = s
		}
	}
}

// NewBuilder creates a graph builder with PageRank centrality and one
// extraction worker per CPU.
func NewBuilder(extractor *extract.Extractor, opts ...BuilderOption) *Builder {
	b := &Builder{
		extractor: extractor,
		scorer:    NewPageRank(),
		workers:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// candidateEdge pairs a reference with a resolved defining chunk.
// Candidates are computed read-only in the workers; the graph is
// mutated only on the building goroutine.
type candidateEdge struct {
	ref    extract.Reference
	target string
}

type extraction struct {
	chunk      *doc.Chunk
	candidates []candidateEdge
}

// Build constructs the full graph: register every chunk, extract
// references in parallel, resolve them to defining chunks, link
// parent/child pairs, then compute centrality. Chunks arriving without
// element metadata get their definitions extracted here, so raw chunks
// index the same as chunker output. Malformed chunks are skipped with
// a warning rather than failing the build. parentIDs
// maps a chunk ID to the IDs of its parent chunks and may be nil.
func (b *Builder) Build(ctx context.Context, chunks []*doc.Chunk, parentIDs map[string][]string) (*Graph, error) {
	g := New()

	valid := make([]*doc.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk == nil || chunk.ID == "" || chunk.Content == "" {
			log.Printf("⚠️ Skipping malformed chunk (missing id or content)")
			continue
		}
		valid = append(valid, chunk)
	}

	log.Printf("🔄 Graph build phase 1/3: registering %d chunks", len(valid))
	for _, chunk := range valid {
		if len(chunk.Metadata.CodeElements) == 0 {
			chunk.Metadata.CodeElements = b.extractor.ElementNames(chunk)
		}
		g.AddChunk(chunk)
	}

	log.Printf("🔄 Graph build phase 2/3: resolving references")
	extractions, err := b.extractAll(ctx, g, valid)
	if err != nil {
		return nil, err
	}

	edges := 0
	for _, ex := range extractions {
		for _, cand := range ex.candidates {
			if err := g.AddReferenceEdge(cand.ref, cand.target); err == nil {
				edges++
			}
		}
	}
	for childID, parents := range parentIDs {
		if _, ok := g.nodes[childID]; !ok {
			continue
		}
		g.AddParentEdges(childID, parents)
	}

	log.Printf("🔄 Graph build phase 3/3: computing centrality")
	g.ComputeCentrality(b.scorer)

	stats := g.Stats()
	log.Printf("✅ Graph built: %d nodes, %d edges, %d elements, %d components",
		stats.Nodes, stats.Edges, stats.Elements, stats.Components)
	return g, nil
}

// extractAll runs reference extraction and candidate resolution across
// the worker pool and waits for every chunk to finish before returning.
// The graph must not be mutated while extractAll runs: workers read the
// element index to resolve targets.
func (b *Builder) extractAll(ctx context.Context, g *Graph, chunks []*doc.Chunk) ([]extraction, error) {
	jobs := make(chan int)
	results := make([]extraction, len(chunks))

	var wg sync.WaitGroup
	for w := 0; w < b.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				chunk := chunks[i]
				ex := extraction{chunk: chunk}
				for _, ref := range b.extractor.References(chunk) {
					for _, target := range g.Definers(ref.TargetElement) {
						if target == ref.SourceChunk {
							continue
						}
						ex.candidates = append(ex.candidates, candidateEdge{ref: ref, target: target})
					}
				}
				results[i] = ex
			}
		}()
	}

	var err error
feed:
	for i := range chunks {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, err
	}
	return results, nil
}

// Update re-chunks a single file into the graph: its old nodes are
// removed, the new chunks added, references from the new chunks
// resolved, and centrality recomputed. Existing chunks in other files
// are not re-extracted, so references they make to elements the new
// chunks define will only appear after a full rebuild.
func (b *Builder) Update(ctx context.Context, g *Graph, filePath string, chunks []*doc.Chunk) error {
	removed := g.RemoveFile(filePath)
	log.Printf("🔄 Updating graph for %s: removed %d stale chunks, adding %d", filePath, removed, len(chunks))

	valid := make([]*doc.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk == nil || chunk.ID == "" || chunk.Content == "" {
			log.Printf("⚠️ Skipping malformed chunk (missing id or content)")
			continue
		}
		if len(chunk.Metadata.CodeElements) == 0 {
			chunk.Metadata.CodeElements = b.extractor.ElementNames(chunk)
		}
		valid = append(valid, chunk)
		g.AddChunk(chunk)
	}

	extractions, err := b.extractAll(ctx, g, valid)
	if err != nil {
		return err
	}
	for _, ex := range extractions {
		for _, cand := range ex.candidates {
			_ = g.AddReferenceEdge(cand.ref, cand.target)
		}
	}

	g.ComputeCentrality(b.scorer)
	return nil
}
