// Package ingest turns documentation sources (markdown trees and
// JSONL corpora) into chunks ready for storage and graph building.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"docrag/internal/doc"
)

// Document is one record of a JSONL documentation corpus. Records
// carry explicit parent links that become graph edges.
type Document struct {
	ID                   string   `json:"id"`
	Text                 string   `json:"text"`
	ParentIDs            []string `json:"parent_ids"`
	Source               string   `json:"source"`
	Short                string   `json:"short"`
	ExampleCode          string   `json:"example_code,omitempty"`
	ExampleCodingProblem string   `json:"example_coding_problem,omitempty"`
	URL                  string   `json:"url"`
}

const documentSchema = `{
	"type": "object",
	"required": ["id", "text", "parent_ids", "source", "short", "url"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"text": {"type": "string"},
		"parent_ids": {"type": "array", "items": {"type": "string"}},
		"source": {"type": "string"},
		"short": {"type": "string"},
		"example_code": {"type": ["string", "null"]},
		"example_coding_problem": {"type": ["string", "null"]},
		"url": {"type": "string"}
	}
}`

var codeTextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`func\s+\w+\s*\(`),
	regexp.MustCompile(`(?m)class\s+\w+(?:\s+extends\s+\w+)?(?:\s*\{|\s*$|\s+)`),
	regexp.MustCompile(`(?m)struct\s+\w+(?:\s*\{|\s*$|\s+)`),
	regexp.MustCompile(`(?m)interface\s+\w+(?:\s*\{|\s*$|\s+)`),
	regexp.MustCompile(`(?m)enum\s+\w+(?:\s*\{|\s*$|\s+)`),
}

// JSONLSource loads and converts JSONL documentation corpora.
type JSONLSource struct {
	namer    doc.ElementNamer
	language string
	schema   *gojsonschema.Schema
}

// NewJSONLSource creates a JSONL source. The namer populates each
// chunk's code elements; language tags the chunk metadata.
func NewJSONLSource(namer doc.ElementNamer, language string) (*JSONLSource, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile document schema: %w", err)
	}
	if language == "" {
		language = doc.DefaultLanguage
	}
	return &JSONLSource{namer: namer, language: language, schema: schema}, nil
}

// Load reads a JSONL file, validating every line against the document
// schema. Invalid lines are skipped with a warning; an unreadable
// file is an error.
func (s *JSONLSource) Load(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open jsonl file: %w", err)
	}
	defer f.Close()

	log.Printf("📄 Loading JSONL file: %s", path)

	var documents []Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		result, err := s.schema.Validate(gojsonschema.NewStringLoader(line))
		if err != nil {
			log.Printf("⚠️ JSON decode error at line %d: %v", lineNum, err)
			continue
		}
		if !result.Valid() {
			log.Printf("⚠️ Validation error at line %d: %v", lineNum, result.Errors())
			continue
		}

		var document Document
		if err := json.Unmarshal([]byte(line), &document); err != nil {
			log.Printf("⚠️ JSON decode error at line %d: %v", lineNum, err)
			continue
		}
		documents = append(documents, document)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read jsonl file: %w", err)
	}

	log.Printf("✅ Loaded %d valid documents from %s", len(documents), path)
	return documents, nil
}

// ToChunks converts documents to chunks. The document ID becomes the
// chunk ID, the short summary becomes the section title, and example
// code is appended to the content under fenced sections.
func (s *JSONLSource) ToChunks(documents []Document) []*doc.Chunk {
	chunks := make([]*doc.Chunk, 0, len(documents))
	for _, document := range documents {
		parts := []string{document.Text}
		if document.ExampleCodingProblem != "" {
			parts = append(parts, "\n## Example Problem\n"+document.ExampleCodingProblem)
		}
		if document.ExampleCode != "" {
			parts = append(parts, "\n## Example Code\n```"+s.language+"\n"+document.ExampleCode+"\n```")
		}

		chunk := &doc.Chunk{
			ID:       document.ID,
			Content:  strings.Join(parts, "\n"),
			FilePath: document.Source,
			Kind:     documentKind(&document),
			Metadata: doc.Metadata{
				Language:     s.language,
				SectionTitle: document.Short,
			},
		}
		chunk.Metadata.CodeElements = s.namer.ElementNames(chunk)
		chunks = append(chunks, chunk)
	}
	log.Printf("📦 Converted %d documents to chunks", len(chunks))
	return chunks
}

// ParentRelationships maps each chunk to the chunks its document
// names as parents. Parent IDs that do not resolve to a loaded
// document are dropped.
func (s *JSONLSource) ParentRelationships(documents []Document) map[string][]string {
	known := make(map[string]bool, len(documents))
	for _, document := range documents {
		known[document.ID] = true
	}

	relationships := make(map[string][]string)
	total := 0
	for _, document := range documents {
		var parents []string
		for _, parentID := range document.ParentIDs {
			if known[parentID] {
				parents = append(parents, parentID)
				total++
			}
		}
		if len(parents) > 0 {
			relationships[document.ID] = parents
		}
	}
	log.Printf("🔗 Mapped %d parent relationships across %d chunks", total, len(relationships))
	return relationships
}

// documentKind classifies a document: example code plus code-shaped
// text is MIXED, either alone is CODE, neither is TEXT.
func documentKind(document *Document) doc.ChunkKind {
	hasExample := document.ExampleCode != ""

	hasCodeInText := false
	for _, pattern := range codeTextPatterns {
		if pattern.MatchString(document.Text) {
			hasCodeInText = true
			break
		}
	}

	switch {
	case hasExample && hasCodeInText:
		return doc.KindMixed
	case hasExample || hasCodeInText:
		return doc.KindCode
	default:
		return doc.KindText
	}
}
