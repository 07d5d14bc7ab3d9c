// Package store persists chunks and their embeddings in sqlite and
// serves semantic and keyword search over them.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"

	_ "modernc.org/sqlite"

	"docrag/internal/doc"
	"docrag/internal/embed"
)

// Store holds chunk content and embeddings in sqlite, with a bleve
// keyword index alongside for lexical search.
type Store struct {
	db       *sql.DB
	embedder embed.Embedder
	keyword  *KeywordIndex
}

// embedBatchSize bounds how many chunks go to the embedder per call.
const embedBatchSize = 64

// New opens (or creates) the store at dbPath and its keyword index at
// dbPath + ".bleve".
func New(ctx context.Context, dbPath string, embedder embed.Embedder) (*Store, error) {
	// WAL allows concurrent readers during writes.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, embedder: embedder}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	keyword, err := NewKeywordIndex(dbPath + ".bleve")
	if err != nil {
		return nil, err
	}
	s.keyword = keyword

	return s, nil
}

// Close releases the database and keyword index.
func (s *Store) Close() error {
	if err := s.keyword.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id      TEXT PRIMARY KEY,
		file_path     TEXT NOT NULL,
		start_line    INTEGER NOT NULL,
		end_line      INTEGER NOT NULL,
		kind          TEXT NOT NULL,
		language      TEXT NOT NULL,
		section_title TEXT NOT NULL DEFAULT '',
		code_elements TEXT NOT NULL DEFAULT '[]',
		content       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id TEXT PRIMARY KEY,
		dim      INTEGER NOT NULL,
		vector   BLOB NOT NULL,
		FOREIGN KEY (chunk_id) REFERENCES chunks(chunk_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_path);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// StoreChunks embeds and upserts a batch of chunks. Embeddings use
// the section title when it is a substantial summary, otherwise the
// full content.
func (s *Store) StoreChunks(ctx context.Context, chunks []*doc.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	log.Printf("🧠 Generating embeddings for %d chunks...", len(chunks))

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = embeddingText(chunk)
		}
		vectors, dim, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}

		for i, chunk := range batch {
			if err := s.upsertChunk(ctx, chunk, vectors[i], dim); err != nil {
				return err
			}
		}
		if err := s.keyword.IndexChunks(batch); err != nil {
			return err
		}
		if start+embedBatchSize < len(chunks) {
			log.Printf("  📊 Progress: %d/%d chunks stored", end, len(chunks))
		}
	}
	return nil
}

// embeddingText prefers the section title when it is long enough to
// act as a summary of the chunk.
func embeddingText(chunk *doc.Chunk) string {
	if len(chunk.Metadata.SectionTitle) > 30 {
		return chunk.Metadata.SectionTitle
	}
	return chunk.Content
}

func (s *Store) upsertChunk(ctx context.Context, chunk *doc.Chunk, vector []byte, dim int) error {
	elements, err := json.Marshal(chunk.Metadata.CodeElements)
	if err != nil {
		return fmt.Errorf("failed to marshal code elements: %w", err)
	}

	query := `
		INSERT INTO chunks (chunk_id, file_path, start_line, end_line, kind, language, section_title, code_elements, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			file_path = excluded.file_path,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			kind = excluded.kind,
			language = excluded.language,
			section_title = excluded.section_title,
			code_elements = excluded.code_elements,
			content = excluded.content
	`
	_, err = s.db.ExecContext(ctx, query,
		chunk.ID, chunk.FilePath, chunk.StartLine, chunk.EndLine,
		string(chunk.Kind), chunk.Metadata.Language, chunk.Metadata.SectionTitle,
		string(elements), chunk.Content)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}

	embQuery := `
		INSERT INTO embeddings (chunk_id, dim, vector)
		VALUES (?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			dim = excluded.dim,
			vector = excluded.vector
	`
	if _, err := s.db.ExecContext(ctx, embQuery, chunk.ID, dim, vector); err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

// DeleteByFile removes every chunk belonging to a file from both the
// database and the keyword index.
func (s *Store) DeleteByFile(ctx context.Context, filePath string) error {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM chunks WHERE file_path = ?`, filePath)
	if err != nil {
		return fmt.Errorf("failed to query chunks for deletion: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE chunk_id IN (SELECT chunk_id FROM chunks WHERE file_path = ?)`, filePath); err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return s.keyword.DeleteChunks(ids)
}

// GetByID returns a stored chunk with a zero score, or nil when the
// chunk does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*doc.Result, error) {
	query := `SELECT chunk_id, content, section_title, language, code_elements FROM chunks WHERE chunk_id = ?`

	var res doc.Result
	var elements string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&res.ID, &res.Content, &res.Metadata.SectionTitle, &res.Metadata.Language, &elements)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(elements), &res.Metadata.CodeElements); err != nil {
		return nil, fmt.Errorf("failed to parse code elements for %s: %w", id, err)
	}
	return &res, nil
}

// AllChunkIDs lists every stored chunk ID.
func (s *Store) AllChunkIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM chunks ORDER BY chunk_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Search embeds the query and ranks all stored chunks by cosine
// similarity, mapped to [0, 1]. When no chunk has positive similarity
// it falls back to keyword search so a misspelled or out-of-domain
// query can still surface exact-token matches.
func (s *Store) Search(ctx context.Context, query string, k int) ([]doc.Result, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVec, _, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	qv, err := embed.DecodeVector(queryVec)
	if err != nil {
		return nil, err
	}

	scored, err := s.scanSimilarity(ctx, qv)
	if err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	results := make([]doc.Result, 0, k)
	for _, sc := range scored {
		if len(results) >= k {
			break
		}
		if sc.score <= 0 {
			continue
		}
		res, err := s.GetByID(ctx, sc.id)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}
		res.Score = sc.score
		results = append(results, *res)
	}

	if len(results) == 0 {
		return s.keywordFallback(ctx, query, k)
	}
	return results, nil
}

type scoredID struct {
	id    string
	score float64
}

// scanSimilarity computes cosine similarity between the query vector
// and every stored embedding. scores are shifted from [-1, 1] to
// [0, 1].
func (s *Store) scanSimilarity(ctx context.Context, query []float32) ([]scoredID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, vector FROM embeddings`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan embeddings: %w", err)
	}
	defer rows.Close()

	var scored []scoredID
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		vec, err := embed.DecodeVector(blob)
		if err != nil {
			log.Printf("⚠️ Skipping chunk %s with corrupt embedding: %v", id, err)
			continue
		}
		if len(vec) != len(query) {
			continue
		}
		scored = append(scored, scoredID{id: id, score: (cosine(query, vec) + 1) / 2})
	}
	return scored, rows.Err()
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// keywordFallback serves lexical matches when semantic search comes
// up empty. Keyword scores are normalized by the top hit so they
// stay in [0, 1].
func (s *Store) keywordFallback(ctx context.Context, query string, k int) ([]doc.Result, error) {
	hits, err := s.keyword.Search(query, k)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	top := hits[0].Score
	results := make([]doc.Result, 0, len(hits))
	for _, hit := range hits {
		res, err := s.GetByID(ctx, hit.ChunkID)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}
		if top > 0 {
			res.Score = hit.Score / top
		}
		results = append(results, *res)
	}
	log.Printf("🔍 Semantic search empty, keyword fallback returned %d hits", len(results))
	return results, nil
}

// HybridSearch merges semantic and keyword rankings with reciprocal
// rank fusion. Scores are RRF scores, not similarities.
func (s *Store) HybridSearch(ctx context.Context, query string, k int) ([]doc.Result, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVec, _, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	qv, err := embed.DecodeVector(queryVec)
	if err != nil {
		return nil, err
	}
	semantic, err := s.scanSimilarity(ctx, qv)
	if err != nil {
		return nil, err
	}
	sort.Slice(semantic, func(i, j int) bool { return semantic[i].score > semantic[j].score })
	if len(semantic) > k*2 {
		semantic = semantic[:k*2]
	}

	lexical, err := s.keyword.Search(query, k*2)
	if err != nil {
		return nil, err
	}

	const kOffset = 60.0
	fused := make(map[string]float64)
	for i, sc := range semantic {
		fused[sc.id] += 1.0 / (kOffset + float64(i+1))
	}
	for i, hit := range lexical {
		fused[hit.ChunkID] += 1.0 / (kOffset + float64(i+1))
	}

	ranked := make([]scoredID, 0, len(fused))
	for id, score := range fused {
		ranked = append(ranked, scoredID{id: id, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	results := make([]doc.Result, 0, len(ranked))
	for _, sc := range ranked {
		res, err := s.GetByID(ctx, sc.id)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}
		res.Score = sc.score
		results = append(results, *res)
	}
	return results, nil
}
