package hyper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/soundprediction/risposta/pkg/dataset"
	"github.com/soundprediction/risposta/pkg/search"
	"github.com/soundprediction/risposta/pkg/study"
	"github.com/soundprediction/risposta/pkg/types"
)

// Driver orchestrates one hyperparameter search: it searches the dataset
// once to cache per-index results, builds relevance judgments, runs the
// grid search and writes the tuned runs and metric reports to the output
// directory.
type Driver struct {
	ds        *dataset.Dataset
	searcher  *search.Searcher
	judge     *search.Judge
	store     study.Store
	qrels     *search.Qrels
	metric    string
	metrics   []string
	trials    int
	batchSize int
	outDir    string
	logger    *slog.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithStore persists studies across runs.
func WithStore(store study.Store) DriverOption {
	return func(d *Driver) { d.store = store }
}

// WithMetric sets the metric the search optimizes. Defaults to mrr@100.
func WithMetric(metric string) DriverOption {
	return func(d *Driver) { d.metric = metric }
}

// WithReportMetrics sets the metrics of the final comparison report.
func WithReportMetrics(metrics []string) DriverOption {
	return func(d *Driver) { d.metrics = metrics }
}

// WithTrials sets how many new trials each search runs. Defaults to 100.
func WithTrials(n int) DriverOption {
	return func(d *Driver) { d.trials = n }
}

// WithBatchSize sets the dataset batch size. Defaults to 64.
func WithBatchSize(n int) DriverOption {
	return func(d *Driver) { d.batchSize = n }
}

// WithOutputDir writes qrels, runs and reports under dir. Empty disables
// artifact output.
func WithOutputDir(dir string) DriverOption {
	return func(d *Driver) { d.outDir = dir }
}

// WithLogger sets the driver logger.
func WithLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) { d.logger = logger }
}

// NewDriver creates a driver over a dataset, a searcher and a relevance
// judge.
func NewDriver(ds *dataset.Dataset, searcher *search.Searcher, judge *search.Judge, opts ...DriverOption) *Driver {
	d := &Driver{
		ds:        ds,
		searcher:  searcher,
		judge:     judge,
		qrels:     search.NewQrels(),
		metric:    "mrr@100",
		metrics:   []string{"mrr@100", "precision@1", "hit_rate@1", "recall@100"},
		trials:    100,
		batchSize: 64,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Qrels returns the relevance judgments built by Prepare.
func (d *Driver) Qrels() *search.Qrels { return d.qrels }

// Prepare searches every index over the whole dataset, caching the
// results on the questions, and judges relevance over the unioned
// candidates. It must run before TuneFusion; TuneBM25 only needs the
// judgments.
func (d *Driver) Prepare(ctx context.Context) error {
	d.qrels.Reset()
	d.searcher.ResetRuns()
	err := d.ds.MapBatches(ctx, d.batchSize, func(ctx context.Context, batch []types.Question) error {
		if _, err := d.searcher.SearchBatch(ctx, batch); err != nil {
			return err
		}
		candidates := d.searcher.UnionCandidates(batch)
		relevant := d.judge.JudgeBatch(batch, candidates, d.ds.SearchKey())
		qids := make([]string, len(batch))
		for i, q := range batch {
			qids[i] = q.ID
		}
		docids, grades := search.FormatQrels(relevant)
		return d.qrels.AddMulti(qids, docids, grades)
	})
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	d.logger.Info("prepared relevance judgments", "questions", d.qrels.Len())
	return nil
}

// TuneFusion grid-searches the interpolation weights, applies the best
// assignment and re-fuses the dataset with it. Returns the best trial.
func (d *Driver) TuneFusion(ctx context.Context, studyName string) (study.Trial, error) {
	objective := NewFusionObjective(d.searcher, d.ds, d.qrels, d.metric, d.batchSize)
	best, err := d.optimize(ctx, studyName, objective.Params(), objective.Evaluate)
	if err != nil {
		return study.Trial{}, err
	}
	objective.ApplyBest(best)
	err = d.ds.MapBatches(ctx, d.batchSize, func(_ context.Context, batch []types.Question) error {
		return d.searcher.FuseBatch(batch)
	})
	if err != nil {
		return study.Trial{}, fmt.Errorf("apply best fusion: %w", err)
	}
	return best, nil
}

// TuneBM25 grid-searches the sparse index's b and k1 similarity
// parameters and leaves the index tuned with the best assignment.
// Returns the best trial.
func (d *Driver) TuneBM25(ctx context.Context, studyName string) (study.Trial, error) {
	objective, err := NewBM25Objective(d.searcher, d.ds, d.qrels, d.metric, d.batchSize)
	if err != nil {
		return study.Trial{}, err
	}
	best, err := d.optimize(ctx, studyName, objective.Params(), objective.Evaluate)
	if err != nil {
		return study.Trial{}, err
	}
	if err := objective.ApplyBest(ctx, best); err != nil {
		return study.Trial{}, fmt.Errorf("apply best similarity: %w", err)
	}
	return best, nil
}

func (d *Driver) optimize(ctx context.Context, name string, params []study.Param, objective study.Objective) (study.Trial, error) {
	sampler, err := study.NewGridSampler(params)
	if err != nil {
		return study.Trial{}, err
	}
	opts := []study.StudyOption{study.WithStudyLogger(d.logger)}
	if d.store != nil {
		opts = append(opts, study.WithStore(d.store))
	}
	st, err := study.New(ctx, name, sampler, opts...)
	if err != nil {
		return study.Trial{}, err
	}
	if err := st.Optimize(ctx, d.trials, objective); err != nil {
		return study.Trial{}, err
	}
	best, err := st.BestTrial()
	if err != nil {
		return study.Trial{}, fmt.Errorf("study %s: %w", name, err)
	}
	d.logger.Info("search finished", "study", name, "best", best.Value, "params", best.Params)
	return best, nil
}

// Evaluate discards the judgments and runs accumulated during the
// search, rebuilds both over the held-out dataset with the tuned
// parameters left in place and returns the comparison report across
// every per-index run and the fused run.
func (d *Driver) Evaluate(ctx context.Context, heldout *dataset.Dataset) (*search.Report, error) {
	prev := d.ds
	d.ds = heldout
	defer func() { d.ds = prev }()
	if err := d.Prepare(ctx); err != nil {
		return nil, err
	}
	return d.Report()
}

// Report compares every accumulated run against the judgments.
func (d *Driver) Report() (*search.Report, error) {
	return search.Compare(d.qrels, d.searcher.Runs(), d.metrics)
}

// SaveArtifacts writes the judgments, every run and the comparison report
// to the output directory: qrels.trec, <run>.trec, metrics.json and
// metrics.tex.
func (d *Driver) SaveArtifacts() error {
	if d.outDir == "" {
		return nil
	}
	if err := os.MkdirAll(d.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := d.qrels.Save(filepath.Join(d.outDir, "qrels.trec")); err != nil {
		return err
	}
	for _, run := range d.searcher.Runs() {
		if run.Len() == 0 {
			continue
		}
		if err := run.Save(filepath.Join(d.outDir, run.Name+".trec")); err != nil {
			return err
		}
	}
	report, err := d.Report()
	if err != nil {
		return err
	}
	data, err := report.JSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(d.outDir, "metrics.json"), data, 0o644); err != nil {
		return fmt.Errorf("write metrics.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.outDir, "metrics.tex"), []byte(report.LaTeX()), 0o644); err != nil {
		return fmt.Errorf("write metrics.tex: %w", err)
	}
	d.logger.Info("wrote artifacts", "dir", d.outDir)
	return nil
}
