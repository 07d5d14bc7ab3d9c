package store

import (
	"fmt"
	"log"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"docrag/internal/doc"
)

// KeywordHit is a lexical search result.
type KeywordHit struct {
	ChunkID string
	Score   float64
}

// KeywordIndex provides BM25 keyword search over chunk text.
type KeywordIndex struct {
	index bleve.Index
	path  string
}

// NewKeywordIndex opens the index at path, creating it when missing.
// A corrupted index is deleted and rebuilt rather than failing open.
func NewKeywordIndex(path string) (*KeywordIndex, error) {
	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create keyword index: %w", err)
		}
		log.Println("📚 Keyword index created")
	} else if err != nil {
		log.Printf("⚠️ Keyword index appears corrupted (error: %v), recreating...", err)
		if index != nil {
			index.Close()
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted keyword index: %w", err)
		}
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate keyword index: %w", err)
		}
		log.Println("✅ Keyword index recreated")
	}

	return &KeywordIndex{index: index, path: path}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	chunkMapping := bleve.NewDocumentMapping()

	filePathField := bleve.NewTextFieldMapping()
	filePathField.Analyzer = keyword.Name
	filePathField.Store = true
	filePathField.Index = true
	chunkMapping.AddFieldMappingsAt("file_path", filePathField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = false
	contentField.Index = true
	chunkMapping.AddFieldMappingsAt("content", contentField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = standard.Name
	titleField.Store = false
	titleField.Index = true
	chunkMapping.AddFieldMappingsAt("section_title", titleField)

	elementsField := bleve.NewTextFieldMapping()
	elementsField.Analyzer = standard.Name
	elementsField.Store = false
	elementsField.Index = true
	chunkMapping.AddFieldMappingsAt("code_elements", elementsField)

	indexMapping.DefaultMapping = chunkMapping
	return indexMapping
}

// IndexChunks adds a batch of chunks to the index.
func (ki *KeywordIndex) IndexChunks(chunks []*doc.Chunk) error {
	batch := ki.index.NewBatch()
	for _, chunk := range chunks {
		entry := map[string]interface{}{
			"file_path":     chunk.FilePath,
			"content":       chunk.Content,
			"section_title": chunk.Metadata.SectionTitle,
			"code_elements": chunk.Metadata.CodeElements,
		}
		if err := batch.Index(chunk.ID, entry); err != nil {
			return fmt.Errorf("failed to add chunk %s to batch: %w", chunk.ID, err)
		}
	}
	return ki.index.Batch(batch)
}

// DeleteChunks removes chunks from the index by ID.
func (ki *KeywordIndex) DeleteChunks(ids []string) error {
	batch := ki.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return ki.index.Batch(batch)
}

// Search returns the top k lexical matches for a query.
func (ki *KeywordIndex) Search(query string, k int) ([]KeywordHit, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = k

	result, err := ki.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	hits := make([]KeywordHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, KeywordHit{ChunkID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// Close closes the underlying index.
func (ki *KeywordIndex) Close() error {
	return ki.index.Close()
}
