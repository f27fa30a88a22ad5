package index

import (
	"context"
	"fmt"

	"github.com/soundprediction/risposta/pkg/dataset"
	"github.com/soundprediction/risposta/pkg/embedder"
)

// Flat is an in-process dense index: every passage embedding is kept in
// memory and queries are scored by exact inner product. It is the default
// dense backend; Qdrant delegates the same contract to a remote collection.
type Flat struct {
	name       string
	weight     float64
	client     embedder.Client
	embeddings [][]float32
}

// NewFlat creates an empty flat dense index using client as its encoder.
func NewFlat(name string, client embedder.Client) *Flat {
	return &Flat{name: name, client: client}
}

// Build embeds every passage of the knowledge base in batches of batchSize.
func (f *Flat) Build(ctx context.Context, kb *dataset.KnowledgeBase, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 256
	}
	f.embeddings = make([][]float32, 0, kb.Len())
	for start := 0; start < kb.Len(); start += batchSize {
		end := start + batchSize
		if end > kb.Len() {
			end = kb.Len()
		}
		texts := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			texts = append(texts, kb.Passage(i).Text)
		}
		vecs, err := f.client.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed passages [%d, %d): %w", start, end, err)
		}
		f.embeddings = append(f.embeddings, vecs...)
	}
	return nil
}

// Name returns the index name.
func (f *Flat) Name() string { return f.name }

// InterpolationWeight returns the fusion weight of this index.
func (f *Flat) InterpolationWeight() float64 { return f.weight }

// SetInterpolationWeight sets the fusion weight of this index.
func (f *Flat) SetInterpolationWeight(w float64) { f.weight = w }

// Search embeds the queries and returns the k nearest passages by inner
// product.
func (f *Flat) Search(ctx context.Context, queries []string, k int) ([]Results, error) {
	if len(f.embeddings) == 0 {
		return nil, ErrNotBuilt
	}
	queryVecs, err := f.client.Embed(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("failed to embed queries: %w", err)
	}
	out := make([]Results, len(queries))
	for qi, qv := range queryVecs {
		scored := make([]Hit, len(f.embeddings))
		for pi, pv := range f.embeddings {
			if len(pv) != len(qv) {
				return nil, ErrDimensions
			}
			var dot float64
			for d := range pv {
				dot += float64(qv[d]) * float64(pv[d])
			}
			scored[pi] = Hit{ID: pi, Score: dot}
		}
		out[qi] = topK(scored, k)
	}
	return out, nil
}
