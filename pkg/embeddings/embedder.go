// Package embeddings defines the external embedding provider boundary.
package embeddings

import (
	"context"
	"errors"
)

// ErrEmbedding is returned when embedding generation fails.
var ErrEmbedding = errors.New("embedding failed")

// Embedder provides text embedding capabilities.
//
// Implementations must return vectors of a fixed dimension with only finite
// values; callers treat anything else as a failure and fall back per their
// own contract.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts a batch of texts into embeddings, one per input,
	// in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Close releases any resources held by the embedder.
	Close() error
}
