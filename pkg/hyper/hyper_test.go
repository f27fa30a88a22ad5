package hyper

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/risposta/pkg/dataset"
	"github.com/soundprediction/risposta/pkg/index"
	"github.com/soundprediction/risposta/pkg/search"
	"github.com/soundprediction/risposta/pkg/study"
	"github.com/soundprediction/risposta/pkg/types"
)

// stubIndex returns canned results per query.
type stubIndex struct {
	name    string
	weight  float64
	results map[string]index.Results
}

func (s *stubIndex) Name() string { return s.name }

func (s *stubIndex) Search(_ context.Context, queries []string, k int) ([]index.Results, error) {
	out := make([]index.Results, len(queries))
	for i, q := range queries {
		hits := s.results[q]
		if len(hits) > k {
			hits = hits[:k]
		}
		out[i] = hits
	}
	return out, nil
}

func (s *stubIndex) InterpolationWeight() float64     { return s.weight }
func (s *stubIndex) SetInterpolationWeight(w float64) { s.weight = w }

// stubSparse ranks the relevant passage first only for b near 0.3, so a
// grid search has something to find.
type stubSparse struct {
	stubIndex
	b, k1 float64
}

func (s *stubSparse) ApplySimilarity(_ context.Context, b, k1 float64) error {
	s.b, s.k1 = b, k1
	return nil
}

func (s *stubSparse) Search(_ context.Context, queries []string, _ int) ([]index.Results, error) {
	out := make([]index.Results, len(queries))
	for i := range queries {
		if math.Abs(s.b-0.3) < 1e-9 {
			out[i] = index.Results{{ID: 0, Score: 2}, {ID: 1, Score: 1}}
		} else {
			out[i] = index.Results{{ID: 1, Score: 2}, {ID: 0, Score: 1}}
		}
	}
	return out, nil
}

func newFixture(t *testing.T, extra ...index.Index) (*dataset.Dataset, *search.Searcher, *search.Judge) {
	t.Helper()
	kb := dataset.NewKnowledgeBase([]types.Passage{
		{Text: "Wolfgang Amadeus Mozart was a composer."},
		{Text: "The quick brown fox jumps."},
		{Text: "Vienna is the capital of Austria."},
	})
	rows := []types.Question{
		{ID: "q1", Input: "who composed", Output: types.AnswerSet{OriginalAnswer: "Mozart"}},
		{ID: "q2", Input: "which capital", Output: types.AnswerSet{OriginalAnswer: "Vienna"}},
	}
	// Dense ranks the relevant passage first, sparse ranks it last.
	dense := &stubIndex{
		name: "dense",
		results: map[string]index.Results{
			"who composed":  {{ID: 0, Score: 9}, {ID: 1, Score: 4}},
			"which capital": {{ID: 2, Score: 8}, {ID: 1, Score: 3}},
		},
	}
	sparse := &stubIndex{
		name: "sparse",
		results: map[string]index.Results{
			"who composed":  {{ID: 1, Score: 5}, {ID: 0, Score: 2}},
			"which capital": {{ID: 1, Score: 6}, {ID: 2, Score: 1}},
		},
	}
	indexes := append([]index.Index{dense, sparse}, extra...)
	searcher, err := search.NewSearcher(indexes, search.WithK(10), search.WithFusion(search.FusionInterpolation))
	require.NoError(t, err)
	return dataset.New(rows, "fusion"), searcher, search.NewJudge(kb)
}

func TestFusionObjectivePrunesOffSimplex(t *testing.T) {
	ds, searcher, judge := newFixture(t)
	driver := NewDriver(ds, searcher, judge, WithBatchSize(2))
	require.NoError(t, driver.Prepare(context.Background()))

	objective := NewFusionObjective(searcher, ds, driver.Qrels(), "mrr@10", 2)
	trial := &study.Trial{Params: map[string]float64{
		"weight_dense":  0.5,
		"weight_sparse": 0.2,
	}}
	_, err := objective.Evaluate(context.Background(), trial)
	assert.ErrorIs(t, err, study.ErrTrialPruned)
}

func TestTuneFusionFindsDenseHeavyWeights(t *testing.T) {
	ds, searcher, judge := newFixture(t)
	driver := NewDriver(ds, searcher, judge,
		WithBatchSize(2),
		WithMetric("mrr@10"),
		WithTrials(121),
		WithStore(study.NewMemoryStore()),
	)
	ctx := context.Background()
	require.NoError(t, driver.Prepare(ctx))

	best, err := driver.TuneFusion(ctx, "fusion")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, best.Value, 1e-12)
	// Ranking the relevant passage first requires the dense weight to
	// dominate.
	assert.Greater(t, best.Params["weight_dense"], best.Params["weight_sparse"])

	// The dataset carries the fused results of the best weights.
	row, err := ds.Row(0)
	require.NoError(t, err)
	fused := row.RetrievalFor(search.FusionRunName)
	require.NotEmpty(t, fused.Indices)
	assert.Equal(t, 0, fused.Indices[0])
}

func TestTuneBM25(t *testing.T) {
	sparse := &stubSparse{stubIndex: stubIndex{name: "bm25"}}
	ds, searcher, judge := newFixture(t, sparse)
	driver := NewDriver(ds, searcher, judge,
		WithBatchSize(2),
		WithMetric("mrr@10"),
		WithTrials(300),
	)
	ctx := context.Background()
	require.NoError(t, driver.Prepare(ctx))

	best, err := driver.TuneBM25(ctx, "bm25")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, best.Params["b"], 1e-9)
	assert.InDelta(t, 0.3, sparse.b, 1e-9)
}

func TestBM25ObjectiveRequiresOneSparseIndex(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		ds, searcher, judge := newFixture(t)
		driver := NewDriver(ds, searcher, judge, WithBatchSize(2))
		require.NoError(t, driver.Prepare(context.Background()))
		_, err := driver.TuneBM25(context.Background(), "bm25")
		assert.ErrorIs(t, err, ErrNoSparseIndex)
	})

	t.Run("two", func(t *testing.T) {
		a := &stubSparse{stubIndex: stubIndex{name: "bm25a"}}
		b := &stubSparse{stubIndex: stubIndex{name: "bm25b"}}
		ds, searcher, _ := newFixture(t, a, b)
		_, err := NewBM25Objective(searcher, ds, search.NewQrels(), "mrr@10", 2)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoSparseIndex)
	})
}

func TestPrepareAddsPlaceholderForUnanswerable(t *testing.T) {
	kb := dataset.NewKnowledgeBase([]types.Passage{{Text: "nothing relevant here"}})
	rows := []types.Question{
		{ID: "q1", Input: "who", Output: types.AnswerSet{OriginalAnswer: "Mozart"}},
	}
	idx := &stubIndex{
		name:    "dense",
		weight:  1,
		results: map[string]index.Results{"who": {{ID: 0, Score: 1}}},
	}
	searcher, err := search.NewSearcher([]index.Index{idx})
	require.NoError(t, err)
	driver := NewDriver(dataset.New(rows, "dense"), searcher, search.NewJudge(kb), WithBatchSize(1))
	require.NoError(t, driver.Prepare(context.Background()))

	assert.Equal(t, map[string]int{"-1": 0}, driver.Qrels().Grades("q1"))
}

func TestEvaluateHeldOutResetsJudgments(t *testing.T) {
	ds, searcher, judge := newFixture(t)
	driver := NewDriver(ds, searcher, judge,
		WithBatchSize(2),
		WithMetric("mrr@10"),
		WithTrials(121),
	)
	ctx := context.Background()
	require.NoError(t, driver.Prepare(ctx))
	_, err := driver.TuneFusion(ctx, "fusion")
	require.NoError(t, err)

	heldout := dataset.New([]types.Question{
		{ID: "h1", Input: "who composed", Output: types.AnswerSet{OriginalAnswer: "Mozart"}},
	}, "fusion")
	report, err := driver.Evaluate(ctx, heldout)
	require.NoError(t, err)

	// Training qrels are discarded, only the held-out question remains.
	assert.Equal(t, 1, driver.Qrels().Len())
	assert.NotNil(t, driver.Qrels().Grades("h1"))
	assert.Nil(t, driver.Qrels().Grades("q1"))

	_, score := report.Best("mrr@10")
	assert.InDelta(t, 1.0, score, 1e-12)

	// The report covers every per-index run and the fused run.
	fused, err := search.Evaluate(driver.Qrels(), searcher.Run(search.FusionRunName), "mrr@10")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, fused, 1e-12)
}

func TestSaveArtifacts(t *testing.T) {
	ds, searcher, judge := newFixture(t)
	outDir := filepath.Join(t.TempDir(), "out")
	driver := NewDriver(ds, searcher, judge,
		WithBatchSize(2),
		WithMetric("mrr@10"),
		WithReportMetrics([]string{"mrr@10", "hit_rate@1"}),
		WithTrials(121),
		WithOutputDir(outDir),
	)
	ctx := context.Background()
	require.NoError(t, driver.Prepare(ctx))
	_, err := driver.TuneFusion(ctx, "fusion")
	require.NoError(t, err)
	require.NoError(t, driver.SaveArtifacts())

	for _, name := range []string{"qrels.trec", "dense.trec", "sparse.trec", "fusion.trec", "metrics.json", "metrics.tex"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
}
