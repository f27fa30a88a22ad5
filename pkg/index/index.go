package index

import (
	"context"
	"errors"
	"sort"
)

// Search errors
var (
	ErrNotBuilt   = errors.New("index has not been built")
	ErrDimensions = errors.New("embedding dimension mismatch")
)

// Hit is one retrieved passage: its stable knowledge-base index and the
// retrieval score assigned by the index.
type Hit struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`
}

// Results is an ordered result list for one query, best hit first.
type Results []Hit

// IDs returns the passage ids of the results, in rank order.
func (r Results) IDs() []int {
	ids := make([]int, len(r))
	for i, h := range r {
		ids[i] = h.ID
	}
	return ids
}

// Index retrieves passages for text queries. One Index corresponds to one
// retrieval method over the knowledge base (dense or sparse); a Searcher
// combines several through score fusion, weighting each index by its
// interpolation weight.
type Index interface {
	Name() string
	// Search returns up to k hits per query, sorted by descending score.
	Search(ctx context.Context, queries []string, k int) ([]Results, error)
	InterpolationWeight() float64
	SetInterpolationWeight(w float64)
}

// SimilarityTuner is implemented by sparse (inverted-index) indexes whose
// similarity parameters can be retuned. The underlying engine does not
// allow live settings changes, so ApplySimilarity must close the index,
// apply the new settings and reopen it.
type SimilarityTuner interface {
	ApplySimilarity(ctx context.Context, b, k1 float64) error
}

// topK keeps the k best hits of scored, sorted by descending score with
// ascending id as the tie-break so that results are deterministic.
func topK(scored []Hit, k int) Results {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
