package doc

// ChunkKind classifies how much of a chunk is code versus prose.
type ChunkKind string

const (
	KindText  ChunkKind = "TEXT"
	KindCode  ChunkKind = "CODE"
	KindMixed ChunkKind = "MIXED"
)

// DefaultLanguage is the language tag applied to chunks when the
// source does not declare one.
const DefaultLanguage = "cangjie"

// Metadata carries per-chunk annotations that are filled in after the
// chunk text itself is fixed.
type Metadata struct {
	// CodeElements holds the names of code elements defined in the
	// chunk. Populated by the extractor after chunking.
	CodeElements []string `json:"code_elements"`
	Language     string   `json:"language"`
	// SectionTitle is the markdown header the chunk fell under, if any.
	SectionTitle string `json:"section_title,omitempty"`
}

// Chunk is a bounded unit of documentation with positional metadata.
// Immutable after creation except for Metadata.CodeElements.
type Chunk struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	FilePath  string    `json:"file_path"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	Kind      ChunkKind `json:"chunk_kind"`
	Metadata  Metadata  `json:"metadata"`
}

// Result is a scored chunk as returned by the vector index and by the
// ranker. Score orientation is always higher-is-better.
type Result struct {
	ID       string
	Content  string
	Score    float64
	Metadata Metadata
}
