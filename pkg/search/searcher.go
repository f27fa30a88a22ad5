package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/soundprediction/risposta/pkg/index"
	"github.com/soundprediction/risposta/pkg/types"
)

// Fusion method names accepted by the searcher.
const (
	FusionInterpolation = "interpolation"

	// FusionRunName keys the fused results in question retrievals and runs.
	FusionRunName = "fusion"
)

// ErrNotImplemented is returned for fusion methods the searcher does not
// support.
var ErrNotImplemented = fmt.Errorf("not implemented")

// Searcher runs a batch of questions against one or more indexes, caches
// the per-index results on the questions themselves and optionally fuses
// them into a combined ranking. Cached results let fusion be re-run with
// different interpolation weights without touching the indexes again.
type Searcher struct {
	indexes []index.Index
	k       int
	fusion  string
	runs    map[string]*Run
	logger  *slog.Logger
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithK sets the number of hits requested per index. Defaults to 100.
func WithK(k int) SearcherOption {
	return func(s *Searcher) { s.k = k }
}

// WithFusion enables result fusion using the named method.
func WithFusion(method string) SearcherOption {
	return func(s *Searcher) { s.fusion = method }
}

// WithLogger sets the searcher logger.
func WithLogger(logger *slog.Logger) SearcherOption {
	return func(s *Searcher) { s.logger = logger }
}

// NewSearcher creates a searcher over the given indexes.
func NewSearcher(indexes []index.Index, opts ...SearcherOption) (*Searcher, error) {
	s := &Searcher{
		indexes: indexes,
		k:       100,
		runs:    make(map[string]*Run),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(indexes) == 0 {
		return nil, fmt.Errorf("searcher requires at least one index")
	}
	if s.fusion != "" && s.fusion != FusionInterpolation {
		return nil, fmt.Errorf("fusion method %q: %w", s.fusion, ErrNotImplemented)
	}
	for _, idx := range indexes {
		s.runs[idx.Name()] = NewRun(idx.Name())
	}
	if s.fused() {
		s.runs[FusionRunName] = NewRun(FusionRunName)
	}
	return s, nil
}

// Indexes returns the searcher's indexes.
func (s *Searcher) Indexes() []index.Index { return s.indexes }

// K returns the number of hits requested per index.
func (s *Searcher) K() int { return s.k }

// Run returns the accumulated run for the named index, or the fused run
// for FusionRunName. Nil when the name is unknown.
func (s *Searcher) Run(name string) *Run { return s.runs[name] }

// Runs returns every accumulated run, per-index runs first, the fused run
// last when fusion is enabled.
func (s *Searcher) Runs() []*Run {
	out := make([]*Run, 0, len(s.runs))
	for _, idx := range s.indexes {
		out = append(out, s.runs[idx.Name()])
	}
	if s.fused() {
		out = append(out, s.runs[FusionRunName])
	}
	return out
}

// ResetRuns clears every accumulated run, keeping cached per-question
// retrievals intact.
func (s *Searcher) ResetRuns() {
	for _, r := range s.runs {
		r.Reset()
	}
}

func (s *Searcher) fused() bool {
	return s.fusion != "" && len(s.indexes) > 1
}

// SearchBatch searches every index with the question inputs, stores each
// index's results in the question retrieval map keyed by index name and
// records them in the per-index runs. When fusion is enabled the fused
// ranking is stored under FusionRunName. The batch is mutated in place
// and returned.
func (s *Searcher) SearchBatch(ctx context.Context, batch []types.Question) ([]types.Question, error) {
	queries := make([]string, len(batch))
	for i, q := range batch {
		queries[i] = q.Input
	}
	for _, idx := range s.indexes {
		results, err := idx.Search(ctx, queries, s.k)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", idx.Name(), err)
		}
		if len(results) != len(batch) {
			return nil, fmt.Errorf("search %s: got %d result lists for %d queries", idx.Name(), len(results), len(batch))
		}
		run := s.runs[idx.Name()]
		for i := range batch {
			if batch[i].Search == nil {
				batch[i].Search = make(map[string]*types.Retrieval)
			}
			retrieval := toRetrieval(results[i])
			batch[i].Search[idx.Name()] = retrieval
			addToRun(run, batch[i].ID, retrieval)
		}
	}
	if s.fused() {
		if err := s.FuseBatch(batch); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// FuseBatch re-fuses the cached per-index results of a batch with the
// indexes' current interpolation weights and overwrites the fused run
// entries for those questions. Questions searched earlier keep their
// cached per-index results, so fusion trials never hit the indexes.
func (s *Searcher) FuseBatch(batch []types.Question) error {
	if !s.fused() {
		return fmt.Errorf("fusion disabled: %w", ErrNotImplemented)
	}
	run := s.runs[FusionRunName]
	for i := range batch {
		fused := s.fuseOne(&batch[i])
		batch[i].Search[FusionRunName] = fused
		run.Set(batch[i].ID, scoreMap(fused))
	}
	return nil
}

// fuseOne min-max normalizes each index's scores for the question and sums
// them weighted by the index interpolation weights, keeping the top k.
func (s *Searcher) fuseOne(q *types.Question) *types.Retrieval {
	combined := make(map[int]float64)
	for _, idx := range s.indexes {
		r := q.RetrievalFor(idx.Name())
		norm := minMaxNormalize(r.Scores)
		w := idx.InterpolationWeight()
		for j, docIdx := range r.Indices {
			combined[docIdx] += w * norm[j]
		}
	}
	order := make([]int, 0, len(combined))
	for docIdx := range combined {
		order = append(order, docIdx)
	}
	sort.Slice(order, func(a, b int) bool {
		if combined[order[a]] != combined[order[b]] {
			return combined[order[a]] > combined[order[b]]
		}
		return order[a] < order[b]
	})
	if len(order) > s.k {
		order = order[:s.k]
	}
	fused := &types.Retrieval{
		Indices: make([]int, len(order)),
		Scores:  make([]float64, len(order)),
	}
	for j, docIdx := range order {
		fused.Indices[j] = docIdx
		fused.Scores[j] = combined[docIdx]
	}
	return fused
}

// UnionCandidates returns, per question, the union of the cached candidate
// indices across every index, preserving first-seen order.
func (s *Searcher) UnionCandidates(batch []types.Question) [][]int {
	out := make([][]int, len(batch))
	for i := range batch {
		seen := make(map[int]bool)
		var union []int
		for _, idx := range s.indexes {
			r := batch[i].RetrievalFor(idx.Name())
			for _, docIdx := range r.Indices {
				if !seen[docIdx] {
					seen[docIdx] = true
					union = append(union, docIdx)
				}
			}
		}
		out[i] = union
	}
	return out
}

// minMaxNormalize scales scores into [0,1]. When all scores are equal they
// all map to 1 so degenerate result lists still contribute their rank.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	min, max := scores[0], scores[0]
	for _, v := range scores[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	norm := make([]float64, len(scores))
	if max == min {
		for i := range norm {
			norm[i] = 1
		}
		return norm
	}
	for i, v := range scores {
		norm[i] = (v - min) / (max - min)
	}
	return norm
}

func toRetrieval(results index.Results) *types.Retrieval {
	r := &types.Retrieval{
		Indices: make([]int, len(results)),
		Scores:  make([]float64, len(results)),
	}
	for i, hit := range results {
		r.Indices[i] = hit.ID
		r.Scores[i] = hit.Score
	}
	return r
}

func addToRun(run *Run, qid string, r *types.Retrieval) {
	run.Set(qid, scoreMap(r))
}

func scoreMap(r *types.Retrieval) map[string]float64 {
	docs := make(map[string]float64, len(r.Indices))
	for i, docIdx := range r.Indices {
		docs[strconv.Itoa(docIdx)] = r.Scores[i]
	}
	return docs
}
