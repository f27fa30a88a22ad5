package embedder

import (
	"context"
	"hash/fnv"
	"math"
)

// MockEmbedder is a deterministic embedder for tests. Each text maps to a
// unit vector derived from a hash of its bytes, so identical texts always
// produce identical embeddings and distinct texts are very unlikely to
// collide.
type MockEmbedder struct {
	dims int
}

// NewMockEmbedder creates a mock embedder with the given dimensionality.
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 8
	}
	return &MockEmbedder{dims: dims}
}

// Embed generates deterministic embeddings for the given texts.
func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vector(text)
	}
	return out, nil
}

// EmbedSingle generates a deterministic embedding for a single text.
func (m *MockEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return m.vector(text), nil
}

// Dimensions returns the embedding dimensionality.
func (m *MockEmbedder) Dimensions() int { return m.dims }

func (m *MockEmbedder) vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dims)
	var norm float64
	for i := range vec {
		// xorshift on the seeded state keeps the sequence deterministic
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v := float64(int64(seed))/math.MaxInt64 - 0.5
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}
