package ingest

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"docrag/internal/doc"
)

// DirectorySource chunks every markdown file under a documentation
// root, honoring .gitignore patterns found at the root.
type DirectorySource struct {
	chunker *doc.Chunker
}

// NewDirectorySource creates a directory source using the given
// chunker.
func NewDirectorySource(chunker *doc.Chunker) *DirectorySource {
	return &DirectorySource{chunker: chunker}
}

// Load chunks all markdown files under root. Files that fail to chunk
// are skipped with a warning so one bad file cannot abort ingestion.
func (s *DirectorySource) Load(root string) ([]*doc.Chunk, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("documentation directory unavailable: %w", err)
	}

	matcher := loadIgnoreMatcher(root)

	var chunks []*doc.Chunk
	files := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if matcher != nil && relPath != "." && matcher.MatchesPath(relPath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".md") {
			return nil
		}

		fileChunks, err := s.chunker.ChunkFile(path)
		if err != nil {
			log.Printf("⚠️ Skipping %s: %v", path, err)
			return nil
		}
		chunks = append(chunks, fileChunks...)
		files++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk documentation directory: %w", err)
	}

	log.Printf("📚 Chunked %d markdown files into %d chunks", files, len(chunks))
	return chunks, nil
}

func loadIgnoreMatcher(root string) gitignore.IgnoreParser {
	path := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	matcher, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		log.Printf("⚠️ Failed to parse %s: %v", path, err)
		return nil
	}
	return matcher
}
