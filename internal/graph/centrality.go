package graph

import (
	"errors"
	"log"
	"math"
)

// ErrNotConverged reports that power iteration hit the iteration cap
// before the score vector stabilized.
var ErrNotConverged = errors.New("pagerank did not converge")

// CentralityScorer assigns an importance score to every node.
type CentralityScorer interface {
	Score(g *Graph) map[string]float64
}

// PageRank scores nodes by weighted PageRank. When power iteration
// fails to converge it logs a warning and falls back to degree
// centrality, so callers always get usable scores.
type PageRank struct {
	Damping   float64
	MaxIter   int
	Tolerance float64
}

// NewPageRank creates a scorer with the standard parameters.
func NewPageRank() *PageRank {
	return &PageRank{
		Damping:   0.85,
		MaxIter:   100,
		Tolerance: 1e-6,
	}
}

// Score runs weighted PageRank over the graph.
func (p *PageRank) Score(g *Graph) map[string]float64 {
	scores, err := p.run(g)
	if err != nil {
		log.Printf("⚠️ %v after %d iterations, falling back to degree centrality", err, p.MaxIter)
		return DegreeCentrality{}.Score(g)
	}
	return scores
}

func (p *PageRank) run(g *Graph) (map[string]float64, error) {
	n := len(g.nodes)
	if n == 0 {
		return map[string]float64{}, nil
	}

	// Per-node outgoing weight sums, reused every iteration.
	outWeight := make(map[string]float64, n)
	for source, targets := range g.out {
		for _, edge := range targets {
			outWeight[source] += edge.Weight
		}
	}

	scores := make(map[string]float64, n)
	for id := range g.nodes {
		scores[id] = 1.0 / float64(n)
	}

	base := (1.0 - p.Damping) / float64(n)
	for iter := 0; iter < p.MaxIter; iter++ {
		// Mass held by sinks is redistributed uniformly so the
		// vector stays a probability distribution.
		sinkMass := 0.0
		for id, score := range scores {
			if outWeight[id] == 0 {
				sinkMass += score
			}
		}
		sinkShare := p.Damping * sinkMass / float64(n)

		next := make(map[string]float64, n)
		for id := range g.nodes {
			rank := 0.0
			for source, edge := range g.in[id] {
				if outWeight[source] > 0 {
					rank += scores[source] * edge.Weight / outWeight[source]
				}
			}
			next[id] = base + sinkShare + p.Damping*rank
		}

		delta := 0.0
		for id := range g.nodes {
			delta += math.Abs(next[id] - scores[id])
		}
		scores = next
		if delta < p.Tolerance {
			return scores, nil
		}
	}
	return nil, ErrNotConverged
}

// DegreeCentrality scores each node by its total degree normalized by
// the maximum possible degree. Used as the PageRank fallback.
type DegreeCentrality struct{}

// Score computes degree / (n - 1) for every node.
func (DegreeCentrality) Score(g *Graph) map[string]float64 {
	n := len(g.nodes)
	scores := make(map[string]float64, n)
	if n <= 1 {
		for id := range g.nodes {
			scores[id] = 0
		}
		return scores
	}
	for id := range g.nodes {
		degree := len(g.out[id]) + len(g.in[id])
		scores[id] = float64(degree) / float64(n-1)
	}
	return scores
}
