package embed

import (
	"context"
	"fmt"
	"os"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

const (
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultDimension      = 1536
)

// OpenAIEmbedder generates embeddings via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder creates an OpenAI embedder. An empty baseURL uses
// the public API endpoint.
func NewOpenAIEmbedder(apiKey, model, baseURL string, dimension int) *OpenAIEmbedder {
	if model == "" {
		model = defaultEmbeddingModel
	}
	if dimension == 0 {
		dimension = defaultDimension
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(config),
		model:     model,
		dimension: dimension,
	}
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]byte, int, error) {
	vectors, dim, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, 0, err
	}
	if len(vectors) == 0 {
		return nil, 0, fmt.Errorf("no embeddings returned")
	}
	return vectors[0], dim, nil
}

// EmbedBatch generates embeddings for multiple texts in one API call.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]byte, int, error) {
	if len(texts) == 0 {
		return [][]byte{}, e.dimension, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, 0, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]byte, len(resp.Data))
	actualDim := 0
	for _, data := range resp.Data {
		if len(data.Embedding) > 0 {
			actualDim = len(data.Embedding)
		}
		vectors[data.Index] = EncodeVector(data.Embedding)
	}
	if actualDim > 0 {
		e.dimension = actualDim
	}

	return vectors, e.dimension, nil
}

// Dimension returns the embedding dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// NewEmbedderFromEnv picks an embedder from the environment: OpenAI
// when OPENAI_API_KEY is set, otherwise the deterministic local
// embedder so the system works offline.
func NewEmbedderFromEnv() Embedder {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		return NewOpenAIEmbedder(apiKey, os.Getenv("EMBEDDING_MODEL"), os.Getenv("OPENAI_BASE_URL"), 0)
	}
	return NewHashEmbedder(384)
}
