// Package rag wires the ingestion, storage, graph, and retrieval
// layers into one managed pipeline with optional live re-indexing.
package rag

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"docrag/internal/config"
	"docrag/internal/doc"
	"docrag/internal/embed"
	"docrag/internal/extract"
	"docrag/internal/graph"
	"docrag/internal/ingest"
	"docrag/internal/retrieve"
	"docrag/internal/store"
)

// Manager orchestrates the retrieval engine:
// - Markdown and JSONL ingestion
// - Chunk storage with embeddings
// - Reference graph construction and snapshots
// - File watching for live updates
// - Scheduled full rebuilds
type Manager struct {
	// Core components
	store     *store.Store
	builder   *graph.Builder
	retriever *retrieve.Retriever
	chunker   *doc.Chunker
	watcher   *ingest.Watcher

	config ManagerConfig

	// Indexed content, keyed by file path. corpus holds the JSONL
	// chunks, which the watcher never touches.
	files   map[string][]*doc.Chunk
	corpus  []*doc.Chunk
	parents map[string][]string
	graph   *graph.Graph

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	started bool
}

// ManagerConfig configures the manager behavior.
type ManagerConfig struct {
	// DocsDir is the markdown documentation root. Optional when
	// CorpusPath is set.
	DocsDir string

	// CorpusPath is a JSONL documentation corpus. Optional when
	// DocsDir is set.
	CorpusPath string

	// DataDir holds the chunk database and graph snapshot.
	DataDir string

	// Language tag stamped on chunks (default: doc.DefaultLanguage).
	Language string

	// Embedder to use (default: from environment, hash fallback).
	Embedder embed.Embedder

	// Chunker sizing.
	Chunker doc.ChunkerConfig

	// EnableWatcher re-indexes markdown files as they change.
	EnableWatcher bool

	// RebuildInterval schedules periodic full graph rebuilds, which
	// pick up cross-file references that incremental updates miss.
	// Negative disables the schedule (default: 15m).
	RebuildInterval time.Duration

	// Retrieval parameters (default: retrieve.DefaultConfig).
	Retrieval retrieve.Config
}

// FromConfig maps a persistent configuration onto a ManagerConfig.
func FromConfig(cfg *config.Config) ManagerConfig {
	mc := ManagerConfig{
		DocsDir:       cfg.DocsDir,
		DataDir:       cfg.DataDir,
		Language:      cfg.Language,
		EnableWatcher: cfg.Watch,
		Chunker: doc.ChunkerConfig{
			MaxChunkSize: cfg.MaxChunkSize,
			MinChunkSize: cfg.MinChunkSize,
			Language:     cfg.Language,
		},
		Retrieval: retrieve.Config{
			InitialK:           cfg.InitialK,
			MaxTotalChunks:     cfg.MaxTotalChunks,
			MaxGraphDistance:   cfg.GraphDistance,
			RelevanceThreshold: cfg.Threshold,
			RerankByGraph:      true,
		},
	}
	if cfg.EmbeddingKey != "" {
		mc.Embedder = embed.NewOpenAIEmbedder(cfg.EmbeddingKey, cfg.EmbeddingModel, cfg.BaseURL, 0)
	}
	return mc
}

// NewManager creates a manager and opens its chunk store. A graph
// snapshot left by a previous run is loaded so queries work before the
// first indexing pass.
func NewManager(ctx context.Context, cfg ManagerConfig) (*Manager, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("DataDir is required")
	}
	if cfg.DocsDir == "" && cfg.CorpusPath == "" {
		return nil, fmt.Errorf("at least one of DocsDir or CorpusPath is required")
	}

	if cfg.DocsDir != "" {
		// Watcher callbacks report absolute paths; keep chunk file
		// paths consistent with them.
		abs, err := filepath.Abs(cfg.DocsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve docs dir: %w", err)
		}
		cfg.DocsDir = abs
	}
	if cfg.Language == "" {
		cfg.Language = doc.DefaultLanguage
	}
	if cfg.Embedder == nil {
		cfg.Embedder = embed.NewEmbedderFromEnv()
	}
	if cfg.RebuildInterval == 0 {
		cfg.RebuildInterval = 15 * time.Minute
	}
	if cfg.Retrieval.InitialK == 0 {
		cfg.Retrieval = retrieve.DefaultConfig()
	}
	cfg.Chunker.Language = cfg.Language

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	extractor := extract.NewExtractor()
	chunker := doc.NewChunker(extractor, cfg.Chunker)

	st, err := store.New(ctx, filepath.Join(cfg.DataDir, "docrag.db"), cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk store: %w", err)
	}

	g := graph.New()
	snapshotPath := filepath.Join(cfg.DataDir, "graph.json")
	if _, statErr := os.Stat(snapshotPath); statErr == nil {
		loaded, loadErr := graph.Load(snapshotPath)
		if loadErr != nil {
			log.Printf("⚠️ Failed to load graph snapshot, starting empty: %v", loadErr)
		} else {
			g = loaded
		}
	}

	mgrCtx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		store:     st,
		builder:   graph.NewBuilder(extractor),
		retriever: retrieve.NewRetriever(st, g),
		chunker:   chunker,
		config:    cfg,
		files:     make(map[string][]*doc.Chunk),
		parents:   make(map[string][]string),
		graph:     g,
		ctx:       mgrCtx,
		cancel:    cancel,
	}

	if cfg.EnableWatcher && cfg.DocsDir != "" {
		watcher, err := ingest.NewWatcher(cfg.DocsDir)
		if err != nil {
			log.Printf("⚠️ Failed to create file watcher: %v", err)
		} else {
			m.watcher = watcher
			watcher.OnChange(m.handleFileChanges)
		}
	}

	return m, nil
}

// InitialIndex ingests every configured source, stores the chunks with
// embeddings, and builds the reference graph from scratch.
func (m *Manager) InitialIndex(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.Println("🔨 Starting initial indexing")

	if err := m.loadSources(); err != nil {
		return err
	}

	chunks := m.allChunks()
	if err := m.store.StoreChunks(ctx, chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	g, err := m.builder.Build(ctx, chunks, m.parents)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}
	m.publish(g)

	log.Printf("✅ Initial indexing complete: %d chunks", len(chunks))
	return nil
}

// Start begins the background processes: the file watcher (if enabled)
// and the scheduled rebuild loop.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("manager already started")
	}

	if m.watcher != nil {
		if err := m.watcher.Start(); err != nil {
			log.Printf("⚠️ Failed to start file watcher: %v", err)
		} else {
			log.Println("👀 File watcher started")
		}
	}

	if m.config.RebuildInterval > 0 {
		m.wg.Add(1)
		go m.rebuildLoop()
	}

	m.started = true
	log.Println("✅ Retrieval manager started")
	return nil
}

// Stop stops the background processes and closes the chunk store.
// The rebuild loop and watcher callbacks take m.mu, so the mutex is
// released before waiting them out.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	m.mu.Unlock()

	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			log.Printf("⚠️ Failed to stop file watcher: %v", err)
		}
	}

	m.cancel()
	m.wg.Wait()

	if err := m.store.Close(); err != nil {
		return fmt.Errorf("failed to close chunk store: %w", err)
	}

	log.Println("✅ Retrieval manager stopped")
	return nil
}

// Retrieve runs a query through the two-stage retriever.
func (m *Manager) Retrieve(ctx context.Context, query string) ([]doc.Result, error) {
	return m.retriever.Retrieve(ctx, query, m.config.Retrieval)
}

// Statistics reports on the graph currently serving queries.
func (m *Manager) Statistics() graph.Stats {
	return m.retriever.Statistics()
}

// Store returns the underlying chunk store for direct access.
func (m *Manager) Store() *store.Store {
	return m.store
}

// loadSources reads the configured markdown tree and JSONL corpus.
// Caller holds m.mu.
func (m *Manager) loadSources() error {
	m.files = make(map[string][]*doc.Chunk)
	m.corpus = nil
	m.parents = make(map[string][]string)

	if m.config.DocsDir != "" {
		source := ingest.NewDirectorySource(m.chunker)
		chunks, err := source.Load(m.config.DocsDir)
		if err != nil {
			return fmt.Errorf("failed to load docs dir: %w", err)
		}
		for _, chunk := range chunks {
			m.files[chunk.FilePath] = append(m.files[chunk.FilePath], chunk)
		}
	}

	if m.config.CorpusPath != "" {
		source, err := ingest.NewJSONLSource(extract.NewExtractor(), m.config.Language)
		if err != nil {
			return fmt.Errorf("failed to create corpus source: %w", err)
		}
		documents, err := source.Load(m.config.CorpusPath)
		if err != nil {
			return fmt.Errorf("failed to load corpus: %w", err)
		}
		m.corpus = source.ToChunks(documents)
		m.parents = source.ParentRelationships(documents)
	}

	return nil
}

// allChunks flattens the indexed content. Caller holds m.mu.
func (m *Manager) allChunks() []*doc.Chunk {
	chunks := make([]*doc.Chunk, 0, len(m.corpus))
	for _, fileChunks := range m.files {
		chunks = append(chunks, fileChunks...)
	}
	return append(chunks, m.corpus...)
}

// publish swaps the graph serving queries and writes the snapshot.
// Caller holds m.mu.
func (m *Manager) publish(g *graph.Graph) {
	m.graph = g
	m.retriever.SetGraph(g)
	if err := g.Save(filepath.Join(m.config.DataDir, "graph.json")); err != nil {
		log.Printf("⚠️ Failed to save graph snapshot: %v", err)
	}
}

// handleFileChanges is called by the file watcher when markdown files
// change. Queries keep hitting the old graph until the updated copy is
// swapped in.
func (m *Manager) handleFileChanges(paths []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.graph.Clone()
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Printf("🔄 Removing deleted file %s", path)
			if err := m.store.DeleteByFile(m.ctx, path); err != nil {
				log.Printf("⚠️ Failed to delete chunks for %s: %v", path, err)
			}
			delete(m.files, path)
			if err := m.builder.Update(m.ctx, g, path, nil); err != nil {
				log.Printf("⚠️ Failed to update graph for %s: %v", path, err)
			}
			continue
		}

		chunks, err := m.chunker.ChunkFile(path)
		if err != nil {
			log.Printf("⚠️ Failed to chunk %s: %v", path, err)
			continue
		}
		if err := m.store.DeleteByFile(m.ctx, path); err != nil {
			log.Printf("⚠️ Failed to delete stale chunks for %s: %v", path, err)
		}
		if err := m.store.StoreChunks(m.ctx, chunks); err != nil {
			log.Printf("⚠️ Failed to store chunks for %s: %v", path, err)
			continue
		}
		m.files[path] = chunks
		if err := m.builder.Update(m.ctx, g, path, chunks); err != nil {
			log.Printf("⚠️ Failed to update graph for %s: %v", path, err)
		}
	}
	m.publish(g)
}

// rebuildLoop periodically rebuilds the graph from every indexed chunk.
// Incremental updates only re-extract the changed file, so references
// other files make to its elements appear here.
func (m *Manager) rebuildLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.RebuildInterval)
	defer ticker.Stop()

	log.Printf("🔄 Rebuild loop started (interval: %v)", m.config.RebuildInterval)

	for {
		select {
		case <-m.ctx.Done():
			return

		case <-ticker.C:
			m.mu.Lock()
			g, err := m.builder.Build(m.ctx, m.allChunks(), m.parents)
			if err != nil {
				log.Printf("⚠️ Scheduled rebuild failed: %v", err)
			} else {
				m.publish(g)
			}
			m.mu.Unlock()
		}
	}
}
