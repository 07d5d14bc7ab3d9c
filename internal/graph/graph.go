// Package graph maintains a weighted directed graph over documentation
// chunks, where edges record that one chunk references an element
// defined in another.
package graph

import (
	"fmt"
	"sort"

	"docrag/internal/doc"
	"docrag/internal/extract"
)

// Edge weight bases by reference kind. A call is stronger evidence of
// a relationship than a type position, which in turn is stronger than
// a plain mention.
const (
	callsBaseWeight   = 0.9
	typeRefBaseWeight = 0.8
	mentionBaseWeight = 0.6

	sameFileBonus  = 0.2
	proximityBonus = 0.1
	proximityLines = 50

	parentChildWeight = 0.85
)

// Node is a chunk's entry in the graph, carrying the metadata needed
// to score and hydrate it without consulting the chunk store.
type Node struct {
	ID           string   `json:"id"`
	FilePath     string   `json:"file_path"`
	StartLine    int      `json:"start_line"`
	EndLine      int      `json:"end_line"`
	Kind         string   `json:"kind"`
	SectionTitle string   `json:"section_title"`
	CodeElements []string `json:"code_elements"`
}

// Edge is a weighted, typed link between two chunks.
type Edge struct {
	Source  string                `json:"source"`
	Target  string                `json:"target"`
	Kind    extract.ReferenceKind `json:"kind"`
	Element string                `json:"element"`
	Weight  float64               `json:"weight"`
}

// Neighbor pairs a reachable chunk with the weight of the edge that
// reached it.
type Neighbor struct {
	ID     string
	Weight float64
}

// Graph is the in-memory reference graph. It is not safe for
// concurrent mutation; build it fully, then share it read-only.
type Graph struct {
	nodes map[string]*Node
	// out[source][target] and in[target][source] hold the same edge;
	// at most one edge exists per ordered pair, last write wins.
	out map[string]map[string]*Edge
	in  map[string]map[string]*Edge
	// elements maps an element name to the chunk IDs that define it.
	elements map[string][]string

	centrality map[string]float64
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[string]*Node),
		out:        make(map[string]map[string]*Edge),
		in:         make(map[string]map[string]*Edge),
		elements:   make(map[string][]string),
		centrality: make(map[string]float64),
	}
}

// Clone returns a deep copy of the graph. Callers that share a graph
// read-only can clone it, mutate the copy, and publish the copy.
func (g *Graph) Clone() *Graph {
	c := New()
	for id, node := range g.nodes {
		n := *node
		n.CodeElements = append([]string(nil), node.CodeElements...)
		c.nodes[id] = &n
	}
	for source, targets := range g.out {
		c.out[source] = make(map[string]*Edge, len(targets))
		for target, edge := range targets {
			e := *edge
			c.out[source][target] = &e
			if c.in[target] == nil {
				c.in[target] = make(map[string]*Edge)
			}
			c.in[target][source] = &e
		}
	}
	for elem, ids := range g.elements {
		c.elements[elem] = append([]string(nil), ids...)
	}
	for id, score := range g.centrality {
		c.centrality[id] = score
	}
	return c
}

// AddChunk registers a chunk as a node and indexes the elements it
// defines. Re-adding a chunk replaces its node but appends its
// elements again, so callers rebuilding a chunk should rebuild the
// graph instead.
func (g *Graph) AddChunk(chunk *doc.Chunk) {
	g.nodes[chunk.ID] = &Node{
		ID:           chunk.ID,
		FilePath:     chunk.FilePath,
		StartLine:    chunk.StartLine,
		EndLine:      chunk.EndLine,
		Kind:         string(chunk.Kind),
		SectionTitle: chunk.Metadata.SectionTitle,
		CodeElements: chunk.Metadata.CodeElements,
	}
	for _, elem := range chunk.Metadata.CodeElements {
		g.elements[elem] = append(g.elements[elem], chunk.ID)
	}
}

// AddEdge inserts a weighted edge between two known chunks.
// Self-loops are rejected; a repeated (source, target) pair replaces
// the previous edge.
func (g *Graph) AddEdge(source, target string, kind extract.ReferenceKind, element string, weight float64) error {
	if source == target {
		return fmt.Errorf("self-loop edge on chunk %s", source)
	}
	if _, ok := g.nodes[source]; !ok {
		return fmt.Errorf("unknown source chunk %s", source)
	}
	if _, ok := g.nodes[target]; !ok {
		return fmt.Errorf("unknown target chunk %s", target)
	}

	edge := &Edge{Source: source, Target: target, Kind: kind, Element: element, Weight: weight}
	if g.out[source] == nil {
		g.out[source] = make(map[string]*Edge)
	}
	if g.in[target] == nil {
		g.in[target] = make(map[string]*Edge)
	}
	g.out[source][target] = edge
	g.in[target][source] = edge
	return nil
}

// AddReferenceEdge links a referencing chunk to a defining chunk,
// deriving the weight from the reference kind, the reference
// confidence, and source/target locality. The result is clamped to 1.
func (g *Graph) AddReferenceEdge(ref extract.Reference, targetChunk string) error {
	source := g.nodes[ref.SourceChunk]
	target := g.nodes[targetChunk]
	if source == nil {
		return fmt.Errorf("unknown source chunk %s", ref.SourceChunk)
	}
	if target == nil {
		return fmt.Errorf("unknown target chunk %s", targetChunk)
	}

	base := mentionBaseWeight
	switch ref.Kind {
	case extract.RefCalls:
		base = callsBaseWeight
	case extract.RefTypeReference:
		base = typeRefBaseWeight
	}

	weight := base
	if source.FilePath == target.FilePath {
		weight += sameFileBonus
		if lineDistance(source, target) < proximityLines {
			weight += proximityBonus
		}
	}
	weight *= ref.Confidence
	if weight > 1.0 {
		weight = 1.0
	}

	return g.AddEdge(ref.SourceChunk, targetChunk, ref.Kind, ref.TargetElement, weight)
}

// AddParentEdges links a child chunk to its parents with symmetric
// mention edges. Unknown parents are skipped.
func (g *Graph) AddParentEdges(childID string, parentIDs []string) {
	for _, parentID := range parentIDs {
		if _, ok := g.nodes[parentID]; !ok {
			continue
		}
		_ = g.AddEdge(childID, parentID, extract.RefMentions, "", parentChildWeight)
		_ = g.AddEdge(parentID, childID, extract.RefMentions, "", parentChildWeight)
	}
}

func lineDistance(a, b *Node) int {
	d := a.StartLine - b.StartLine
	if d < 0 {
		d = -d
	}
	return d
}

// Node returns the node for a chunk ID, or nil.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// NodeCount reports the number of chunks in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount reports the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, targets := range g.out {
		n += len(targets)
	}
	return n
}

// Definers returns the chunk IDs that define the named element.
func (g *Graph) Definers(element string) []string {
	return g.elements[element]
}

// Centrality returns the importance score of a chunk, 0 if unknown.
func (g *Graph) Centrality(id string) float64 {
	return g.centrality[id]
}

// ComputeCentrality scores every node with the given scorer and caches
// the result. Centrality of an empty graph is empty.
func (g *Graph) ComputeCentrality(scorer CentralityScorer) {
	g.centrality = scorer.Score(g)
}

// Neighbors walks outward from a chunk over BOTH edge directions up to
// maxDistance hops, skipping edges lighter than minWeight. The start
// chunk is excluded. Distance 0 or an unknown start yields nothing.
// Each reached chunk carries the weight of the edge that first
// reached it.
func (g *Graph) Neighbors(id string, maxDistance int, minWeight float64) []Neighbor {
	if maxDistance <= 0 {
		return nil
	}
	if _, ok := g.nodes[id]; !ok {
		return nil
	}

	visited := map[string]bool{id: true}
	frontier := []string{id}
	var result []Neighbor

	for depth := 0; depth < maxDistance && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			for target, edge := range g.out[cur] {
				if visited[target] || edge.Weight < minWeight {
					continue
				}
				visited[target] = true
				result = append(result, Neighbor{ID: target, Weight: edge.Weight})
				next = append(next, target)
			}
			for source, edge := range g.in[cur] {
				if visited[source] || edge.Weight < minWeight {
					continue
				}
				visited[source] = true
				result = append(result, Neighbor{ID: source, Weight: edge.Weight})
				next = append(next, source)
			}
		}
		frontier = next
	}
	return result
}

// RelatedByElement returns chunks connected to the named element:
// the chunks that define it plus the chunks whose edges reference it.
func (g *Graph) RelatedByElement(element string) []string {
	seen := make(map[string]bool)
	var result []string

	for _, id := range g.elements[element] {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	for _, definer := range g.elements[element] {
		for source, edge := range g.in[definer] {
			if edge.Element != element || seen[source] {
				continue
			}
			seen[source] = true
			result = append(result, source)
		}
	}
	return result
}

// SubgraphForElements gathers the chunks relevant to a set of
// elements: every chunk defining one of them, expanded by up to
// maxDepth hops.
func (g *Graph) SubgraphForElements(elements []string, maxDepth int, minWeight float64) []string {
	seen := make(map[string]bool)
	var result []string

	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}

	for _, elem := range elements {
		for _, id := range g.elements[elem] {
			add(id)
		}
	}
	for _, id := range append([]string(nil), result...) {
		for _, nb := range g.Neighbors(id, maxDepth, minWeight) {
			add(nb.ID)
		}
	}
	return result
}

// ShortestPath finds a minimum-hop path between two chunks over both
// edge directions, ignoring weights. A chunk's path to itself is the
// single-element path. Returns nil when no path exists.
func (g *Graph) ShortestPath(from, to string) []string {
	if _, ok := g.nodes[from]; !ok {
		return nil
	}
	if _, ok := g.nodes[to]; !ok {
		return nil
	}
	if from == to {
		return []string{from}
	}

	prev := map[string]string{from: ""}
	frontier := []string{from}

	for len(frontier) > 0 {
		var next []string
		for _, cur := range frontier {
			for _, adj := range []map[string]*Edge{g.out[cur], g.in[cur]} {
				for other := range adj {
					if _, ok := prev[other]; ok {
						continue
					}
					prev[other] = cur
					if other == to {
						return buildPath(prev, from, to)
					}
					next = append(next, other)
				}
			}
		}
		frontier = next
	}
	return nil
}

func buildPath(prev map[string]string, from, to string) []string {
	var reversed []string
	for cur := to; cur != ""; cur = prev[cur] {
		reversed = append(reversed, cur)
		if cur == from {
			break
		}
	}
	path := make([]string, len(reversed))
	for i, id := range reversed {
		path[len(reversed)-1-i] = id
	}
	return path
}

// RemoveFile drops every node belonging to the given file, along with
// its edges and element index entries.
func (g *Graph) RemoveFile(filePath string) int {
	var removed []string
	for id, node := range g.nodes {
		if node.FilePath == filePath {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		g.removeNode(id)
	}
	return len(removed)
}

func (g *Graph) removeNode(id string) {
	node := g.nodes[id]
	if node == nil {
		return
	}
	for _, elem := range node.CodeElements {
		ids := g.elements[elem]
		kept := ids[:0]
		for _, cid := range ids {
			if cid != id {
				kept = append(kept, cid)
			}
		}
		if len(kept) == 0 {
			delete(g.elements, elem)
		} else {
			g.elements[elem] = kept
		}
	}
	for target := range g.out[id] {
		delete(g.in[target], id)
	}
	for source := range g.in[id] {
		delete(g.out[source], id)
	}
	delete(g.out, id)
	delete(g.in, id)
	delete(g.nodes, id)
	delete(g.centrality, id)
}

// Stats summarizes the graph for logging and diagnostics.
type Stats struct {
	Nodes          int            `json:"nodes"`
	Edges          int            `json:"edges"`
	Elements       int            `json:"elements"`
	Components     int            `json:"components"`
	EdgeKindCounts map[string]int `json:"edge_kind_counts"`
	TopCentral     []string       `json:"top_central"`
}

// Stats computes summary statistics, including weakly connected
// component count and the ten most central chunks.
func (g *Graph) Stats() Stats {
	stats := Stats{
		Nodes:          len(g.nodes),
		Edges:          g.EdgeCount(),
		Elements:       len(g.elements),
		EdgeKindCounts: make(map[string]int),
	}
	for _, targets := range g.out {
		for _, edge := range targets {
			stats.EdgeKindCounts[string(edge.Kind)]++
		}
	}

	visited := make(map[string]bool)
	for id := range g.nodes {
		if visited[id] {
			continue
		}
		stats.Components++
		stack := []string{id}
		visited[id] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, adj := range []map[string]*Edge{g.out[cur], g.in[cur]} {
				for other := range adj {
					if !visited[other] {
						visited[other] = true
						stack = append(stack, other)
					}
				}
			}
		}
	}

	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(g.centrality))
	for id, score := range g.centrality {
		ranked = append(ranked, scored{id, score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	for i := 0; i < len(ranked) && i < 10; i++ {
		stats.TopCentral = append(stats.TopCentral, ranked[i].id)
	}
	return stats
}
