package hyper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/soundprediction/risposta/pkg/dataset"
	"github.com/soundprediction/risposta/pkg/index"
	"github.com/soundprediction/risposta/pkg/search"
	"github.com/soundprediction/risposta/pkg/study"
	"github.com/soundprediction/risposta/pkg/types"
)

// ErrNoSparseIndex is returned when BM25 tuning is requested but the
// searcher holds no index with tunable similarity settings.
var ErrNoSparseIndex = errors.New("no sparse index to tune")

// weightTolerance bounds how far interpolation weights may drift from
// summing to one before a fusion trial is pruned.
const weightTolerance = 1e-6

// FusionObjective scores an assignment of interpolation weights by
// re-fusing the cached per-index results and evaluating the fused run.
// Assignments whose weights do not sum to one are pruned, which restricts
// the grid to the probability simplex without wasting evaluations.
type FusionObjective struct {
	searcher  *search.Searcher
	ds        *dataset.Dataset
	qrels     *search.Qrels
	metric    string
	batchSize int
}

// NewFusionObjective creates a fusion objective. The dataset must already
// carry cached per-index results for every question, qrels must hold the
// relevance judgments to score against.
func NewFusionObjective(searcher *search.Searcher, ds *dataset.Dataset, qrels *search.Qrels, metric string, batchSize int) *FusionObjective {
	return &FusionObjective{
		searcher:  searcher,
		ds:        ds,
		qrels:     qrels,
		metric:    metric,
		batchSize: batchSize,
	}
}

// Params returns one weight grid per index, each over [0, 1.1) at 0.1
// steps so a full weight of 1.0 stays reachable.
func (o *FusionObjective) Params() []study.Param {
	params := make([]study.Param, 0, len(o.searcher.Indexes()))
	for _, idx := range o.searcher.Indexes() {
		params = append(params, study.Param{
			Name: weightParam(idx.Name()),
			Low:  0,
			High: 1.1,
			Step: 0.1,
		})
	}
	return params
}

// Evaluate applies the trial weights, re-fuses the cached results and
// returns the fused run's metric.
func (o *FusionObjective) Evaluate(ctx context.Context, trial *study.Trial) (float64, error) {
	sum := 0.0
	for _, idx := range o.searcher.Indexes() {
		w, ok := trial.Params[weightParam(idx.Name())]
		if !ok {
			return 0, fmt.Errorf("trial %d: missing weight for index %s", trial.Number, idx.Name())
		}
		sum += w
	}
	if math.Abs(1-sum) > weightTolerance {
		return 0, study.ErrTrialPruned
	}
	for _, idx := range o.searcher.Indexes() {
		idx.SetInterpolationWeight(trial.Params[weightParam(idx.Name())])
	}
	run := o.searcher.Run(search.FusionRunName)
	run.Reset()
	err := o.ds.MapBatches(ctx, o.batchSize, func(_ context.Context, batch []types.Question) error {
		return o.searcher.FuseBatch(batch)
	})
	if err != nil {
		return 0, fmt.Errorf("fuse trial %d: %w", trial.Number, err)
	}
	return search.Evaluate(o.qrels, run, o.metric)
}

func weightParam(indexName string) string {
	return "weight_" + indexName
}

// ApplyBest sets the searcher's interpolation weights from a completed
// trial.
func (o *FusionObjective) ApplyBest(trial study.Trial) {
	for _, idx := range o.searcher.Indexes() {
		idx.SetInterpolationWeight(trial.Params[weightParam(idx.Name())])
	}
}

// BM25Objective scores a (b, k1) similarity assignment by retuning the
// sparse index and re-searching the dataset with it. The searcher must
// hold exactly one sparse index.
type BM25Objective struct {
	sparse    index.Index
	tuner     index.SimilarityTuner
	ds        *dataset.Dataset
	qrels     *search.Qrels
	metric    string
	k         int
	batchSize int
	run       *search.Run
}

// NewBM25Objective creates a BM25 objective over the searcher's single
// sparse index.
func NewBM25Objective(searcher *search.Searcher, ds *dataset.Dataset, qrels *search.Qrels, metric string, batchSize int) (*BM25Objective, error) {
	var sparse index.Index
	var tuner index.SimilarityTuner
	for _, idx := range searcher.Indexes() {
		t, ok := idx.(index.SimilarityTuner)
		if !ok {
			continue
		}
		if tuner != nil {
			return nil, fmt.Errorf("bm25 tuning needs exactly one sparse index, found %s and %s", sparse.Name(), idx.Name())
		}
		sparse, tuner = idx, t
	}
	if tuner == nil {
		return nil, ErrNoSparseIndex
	}
	return &BM25Objective{
		sparse:    sparse,
		tuner:     tuner,
		ds:        ds,
		qrels:     qrels,
		metric:    metric,
		k:         searcher.K(),
		batchSize: batchSize,
		run:       search.NewRun(sparse.Name()),
	}, nil
}

// Params returns the b and k1 grids, b over [0, 1) and k1 over [0, 3),
// both at 0.1 steps.
func (o *BM25Objective) Params() []study.Param {
	return []study.Param{
		{Name: "b", Low: 0, High: 1, Step: 0.1},
		{Name: "k1", Low: 0, High: 3, Step: 0.1},
	}
}

// Evaluate applies the trial's similarity settings to the sparse index,
// searches the dataset again and returns the run's metric.
func (o *BM25Objective) Evaluate(ctx context.Context, trial *study.Trial) (float64, error) {
	b, ok := trial.Params["b"]
	if !ok {
		return 0, fmt.Errorf("trial %d: missing parameter b", trial.Number)
	}
	k1, ok := trial.Params["k1"]
	if !ok {
		return 0, fmt.Errorf("trial %d: missing parameter k1", trial.Number)
	}
	if err := o.tuner.ApplySimilarity(ctx, b, k1); err != nil {
		return 0, fmt.Errorf("apply similarity b=%g k1=%g: %w", b, k1, err)
	}
	o.run.Reset()
	err := o.ds.MapBatches(ctx, o.batchSize, func(ctx context.Context, batch []types.Question) error {
		queries := make([]string, len(batch))
		for i, q := range batch {
			queries[i] = q.Input
		}
		results, err := o.sparse.Search(ctx, queries, o.k)
		if err != nil {
			return err
		}
		for i, hits := range results {
			docs := make(map[string]float64, len(hits))
			for _, hit := range hits {
				docs[strconv.Itoa(hit.ID)] = hit.Score
			}
			o.run.Set(batch[i].ID, docs)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("search trial %d: %w", trial.Number, err)
	}
	return search.Evaluate(o.qrels, o.run, o.metric)
}

// ApplyBest retunes the sparse index with the settings of a completed
// trial.
func (o *BM25Objective) ApplyBest(ctx context.Context, trial study.Trial) error {
	return o.tuner.ApplySimilarity(ctx, trial.Params["b"], trial.Params["k1"])
}

// Run returns the sparse run of the most recent evaluation.
func (o *BM25Objective) Run() *search.Run { return o.run }
