package graph

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/docker/go-units"
)

const snapshotVersion = 1

// snapshot is the on-disk form of a graph. Nodes and edges are sorted
// so repeated saves of the same graph produce identical files.
type snapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Nodes   []*Node   `json:"nodes"`
	Edges   []*Edge   `json:"edges"`
	// Elements carries the element index as-is so Definers answers
	// in the original insertion order after a round trip.
	Elements   map[string][]string `json:"elements"`
	Centrality map[string]float64  `json:"centrality"`
	Stats      Stats               `json:"stats"`
}

// Save writes the graph to path as JSON. The write goes to a temp
// file in the same directory and is renamed into place, so readers
// never observe a partial snapshot.
func (g *Graph) Save(path string) error {
	snap := snapshot{
		Version:    snapshotVersion,
		SavedAt:    time.Now().UTC(),
		Elements:   g.elements,
		Centrality: g.centrality,
		Stats:      g.Stats(),
	}

	snap.Nodes = make([]*Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		snap.Nodes = append(snap.Nodes, node)
	}
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].ID < snap.Nodes[j].ID })

	for _, targets := range g.out {
		for _, edge := range targets {
			snap.Edges = append(snap.Edges, edge)
		}
	}
	sort.Slice(snap.Edges, func(i, j int) bool {
		if snap.Edges[i].Source != snap.Edges[j].Source {
			return snap.Edges[i].Source < snap.Edges[j].Source
		}
		return snap.Edges[i].Target < snap.Edges[j].Target
	})

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".graph-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	log.Printf("✅ Saved graph snapshot: %d nodes, %d edges (%s)",
		len(snap.Nodes), len(snap.Edges), units.HumanSize(float64(len(data))))
	return nil
}

// Load reads a snapshot from path and reconstructs the graph,
// including the element index and cached centrality.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse graph snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	g := New()
	for _, node := range snap.Nodes {
		g.nodes[node.ID] = node
	}
	if snap.Elements != nil {
		g.elements = snap.Elements
	} else {
		// Older snapshots carry no element index; rebuild it from
		// node metadata.
		for _, node := range snap.Nodes {
			for _, elem := range node.CodeElements {
				g.elements[elem] = append(g.elements[elem], node.ID)
			}
		}
	}
	for _, edge := range snap.Edges {
		if err := g.AddEdge(edge.Source, edge.Target, edge.Kind, edge.Element, edge.Weight); err != nil {
			return nil, fmt.Errorf("invalid snapshot edge: %w", err)
		}
	}
	if snap.Centrality != nil {
		g.centrality = snap.Centrality
	}

	log.Printf("📦 Loaded graph snapshot: %d nodes, %d edges", len(snap.Nodes), len(snap.Edges))
	return g, nil
}

// ExportMetadata writes a human-readable summary of the graph next to
// the snapshot, for inspection without parsing the full artifact.
func (g *Graph) ExportMetadata(path string) error {
	summary := struct {
		GeneratedAt time.Time          `json:"generated_at"`
		Stats       Stats              `json:"stats"`
		Centrality  map[string]float64 `json:"top_centrality"`
	}{
		GeneratedAt: time.Now().UTC(),
		Stats:       g.Stats(),
		Centrality:  make(map[string]float64),
	}
	for _, id := range summary.Stats.TopCentral {
		summary.Centrality[id] = g.centrality[id]
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write graph metadata: %w", err)
	}
	return nil
}
