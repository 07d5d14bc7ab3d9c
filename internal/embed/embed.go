// Package embed produces vector embeddings for chunk content. Vectors
// travel as little-endian float32 bytes so they can be stored as
// sqlite blobs without conversion.
package embed

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
)

// Embedder turns text into embedding vectors.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]byte, int, error)
	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]byte, int, error)
	// Dimension returns the embedding dimension.
	Dimension() int
}

// EncodeVector encodes a float32 vector to little-endian bytes.
func EncodeVector(vector []float32) []byte {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		// Cannot fail for float32 slices.
		panic(fmt.Sprintf("failed to encode vector: %v", err))
	}
	return buf.Bytes()
}

// DecodeVector decodes little-endian bytes back to a float32 vector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data length: %d", len(data))
	}

	vector := make([]float32, len(data)/4)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &vector); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return vector, nil
}
