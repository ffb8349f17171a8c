// Package mock provides a deterministic embedder for tests and local
// development without an embedding service.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/papercomputeco/remem/pkg/embeddings"
)

// Embedder is a test embedder that returns predictable embeddings.
//
// Texts registered in Embeddings take priority; anything else gets a
// deterministic pseudo-embedding derived from an FNV hash of the text, so
// equal texts always embed equally and distinct texts almost always differ.
type Embedder struct {
	// Dimensions is the length of generated vectors. Defaults to 8.
	Dimensions int

	// Embeddings maps exact input text to a fixed vector.
	Embeddings map[string][]float64

	// FailOn causes Embed to return an error when the input matches.
	FailOn string
}

// NewEmbedder creates a mock embedder producing vectors of dim dimensions.
func NewEmbedder(dim int) *Embedder {
	return &Embedder{
		Dimensions: dim,
		Embeddings: make(map[string][]float64),
	}
}

// Embed returns the registered vector for text, or a hash-derived one.
func (m *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("%w: mock failure for %q", embeddings.ErrEmbedding, text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	return m.derive(text), nil
}

// EmbedBatch embeds each text independently.
func (m *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Close is a no-op.
func (m *Embedder) Close() error {
	return nil
}

func (m *Embedder) derive(text string) []float64 {
	dim := m.Dimensions
	if dim <= 0 {
		dim = 8
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	// xorshift over the hash gives a stable, text-dependent unit vector.
	v := make([]float64, dim)
	var norm float64
	state := seed
	for i := range v {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v[i] = float64(int64(state)) / float64(math.MaxInt64)
		norm += v[i] * v[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		v[0] = 1
		return v
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}

var _ embeddings.Embedder = (*Embedder)(nil)
