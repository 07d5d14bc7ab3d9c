package retrieve

import (
	"sort"
	"strings"

	"docrag/internal/doc"
	"docrag/internal/graph"
)

// Score fusion weights. Semantic similarity dominates; the graph
// contribution blends centrality, query element overlap, and intent.
const (
	semanticWeight = 0.7
	graphWeight    = 0.3

	centralityWeight = 0.3
	overlapWeight    = 0.4
	intentWeight     = 0.3

	diversityOverlapLimit = 0.7
)

// intentIndicators are content phrases that suggest a chunk answers a
// given intent.
var intentIndicators = map[Intent][]string{
	IntentDefinition:      {"definition", "is a", "represents", "type of"},
	IntentUsage:           {"example", "use", "usage", "implement", "call"},
	IntentTroubleshooting: {"error", "problem", "issue", "solution", "fix"},
	IntentComparison:      {"vs", "versus", "compare", "difference", "unlike"},
}

// Ranker orders candidate chunks by fused semantic and graph scores
// and enforces result diversity.
type Ranker struct {
	graph *graph.Graph
}

// NewRanker creates a ranker over the given graph.
func NewRanker(g *graph.Graph) *Ranker {
	return &Ranker{graph: g}
}

// Rank scores the candidates, sorts them, applies the diversity
// filter over a doubled window, and truncates to the configured cap.
func (r *Ranker) Rank(candidates []doc.Result, analysis QueryAnalysis, config Config) []doc.Result {
	if len(candidates) == 0 {
		return nil
	}

	scored := make([]doc.Result, len(candidates))
	copy(scored, candidates)
	for i := range scored {
		scored[i].Score = r.combinedScore(&scored[i], analysis, config)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if config.MaxTotalChunks < len(scored) {
		window := config.MaxTotalChunks * 2
		if window > len(scored) {
			window = len(scored)
		}
		scored = r.diversityFilter(scored[:window], config.MaxTotalChunks)
	}
	if len(scored) > config.MaxTotalChunks {
		scored = scored[:config.MaxTotalChunks]
	}
	return scored
}

func (r *Ranker) combinedScore(chunk *doc.Result, analysis QueryAnalysis, config Config) float64 {
	semantic := chunk.Score

	graphScore := 0.0
	if config.RerankByGraph && r.graph.Node(chunk.ID) != nil {
		graphScore += r.graph.Centrality(chunk.ID) * centralityWeight

		// Overlap contributes nothing when the query names no elements.
		if len(analysis.CodeElements) > 0 {
			overlap := 0
			chunkElements := toSet(chunk.Metadata.CodeElements)
			for _, elem := range analysis.CodeElements {
				if chunkElements[elem] {
					overlap++
				}
			}
			graphScore += float64(overlap) / float64(len(analysis.CodeElements)) * overlapWeight
		}

		graphScore += intentScore(chunk, analysis.Intent) * intentWeight
	}

	return semanticWeight*semantic + graphWeight*graphScore
}

// intentScore measures how many indicator phrases for the intent the
// chunk contains, normalized to [0, 1]. Intents without indicators
// score a neutral 0.5.
func intentScore(chunk *doc.Result, intent Intent) float64 {
	indicators := intentIndicators[intent]
	if len(indicators) == 0 {
		return 0.5
	}

	lower := strings.ToLower(chunk.Content)
	hits := 0
	for _, indicator := range indicators {
		if strings.Contains(lower, indicator) {
			hits++
		}
	}
	score := float64(hits) / float64(len(indicators))
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// diversityFilter greedily keeps chunks whose element sets are not too
// similar to already selected ones, then backfills remaining slots
// from the rejects in score order.
func (r *Ranker) diversityFilter(ranked []doc.Result, target int) []doc.Result {
	if len(ranked) <= target {
		return ranked
	}

	selected := []doc.Result{ranked[0]}
	taken := map[string]bool{ranked[0].ID: true}

	for _, candidate := range ranked[1:] {
		if len(selected) >= target {
			break
		}
		if r.diverseEnough(&candidate, selected) {
			selected = append(selected, candidate)
			taken[candidate.ID] = true
		}
	}

	for _, candidate := range ranked {
		if len(selected) >= target {
			break
		}
		if !taken[candidate.ID] {
			selected = append(selected, candidate)
			taken[candidate.ID] = true
		}
	}
	return selected
}

// diverseEnough rejects a candidate whose element-set Jaccard
// similarity with any selected chunk exceeds the overlap limit.
func (r *Ranker) diverseEnough(candidate *doc.Result, selected []doc.Result) bool {
	candidateElements := toSet(candidate.Metadata.CodeElements)
	if len(candidateElements) == 0 {
		return true
	}
	if r.graph.Node(candidate.ID) == nil {
		return true
	}

	for i := range selected {
		if r.graph.Node(selected[i].ID) == nil {
			continue
		}
		selectedElements := toSet(selected[i].Metadata.CodeElements)
		if len(selectedElements) == 0 {
			continue
		}
		if jaccard(candidateElements, selectedElements) > diversityOverlapLimit {
			return false
		}
	}
	return true
}

func jaccard(a, b map[string]bool) float64 {
	intersection := 0
	for elem := range a {
		if b[elem] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(elements []string) map[string]bool {
	set := make(map[string]bool, len(elements))
	for _, elem := range elements {
		set[elem] = true
	}
	return set
}
