package train

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/soundprediction/risposta/pkg/checkpoint"
	"github.com/soundprediction/risposta/pkg/dataset"
	"github.com/soundprediction/risposta/pkg/model"
)

// BatchSource produces batches until exhausted, then returns io.EOF.
type BatchSource interface {
	Next(ctx context.Context) (*Batch, error)
	Reset()
}

// DatasetSource draws consecutive batches from a dataset through a
// collator.
type DatasetSource struct {
	ds        *dataset.Dataset
	collator  *Collator
	batchSize int
	pos       int
}

// NewDatasetSource creates a source over the whole dataset.
func NewDatasetSource(ds *dataset.Dataset, collator *Collator, batchSize int) (*DatasetSource, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return &DatasetSource{ds: ds, collator: collator, batchSize: batchSize}, nil
}

func (s *DatasetSource) Next(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= s.ds.Len() {
		return nil, io.EOF
	}
	end := s.pos + s.batchSize
	if end > s.ds.Len() {
		end = s.ds.Len()
	}
	indices := make([]int, 0, end-s.pos)
	for i := s.pos; i < end; i++ {
		indices = append(indices, i)
	}
	rows, err := s.ds.Select(indices)
	if err != nil {
		return nil, err
	}
	s.pos = end
	return s.collator.Collate(rows)
}

func (s *DatasetSource) Reset() { s.pos = 0 }

// LossFn scores one model output against its batch.
type LossFn func(out *model.ReaderOutput, batch *Batch) (float64, error)

// Trainer drives a reader through batches with a pluggable loss. The
// surrounding optimization (gradient steps, scheduling) belongs to the
// model runtime; the trainer owns batch flow, loss accounting and step
// counters.
type Trainer struct {
	reader model.Reader
	lossFn LossFn
	source BatchSource
	state  checkpoint.TrainerState
	logger *slog.Logger
}

// NewTrainer composes a reader, a loss and a batch source.
func NewTrainer(reader model.Reader, lossFn LossFn, source BatchSource, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{reader: reader, lossFn: lossFn, source: source, logger: logger}
}

// State returns the current step counters.
func (t *Trainer) State() checkpoint.TrainerState { return t.state }

// Epoch runs one pass over the source and returns the mean batch loss.
func (t *Trainer) Epoch(ctx context.Context) (float64, error) {
	t.source.Reset()
	total := 0.0
	batches := 0
	for {
		batch, err := t.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		out, err := t.reader.Read(ctx, batch.Encodings)
		if err != nil {
			return 0, err
		}
		loss, err := t.lossFn(out, batch)
		if err != nil {
			return 0, err
		}
		total += loss
		batches++
		t.state.GlobalStep++
	}
	if batches == 0 {
		return 0, fmt.Errorf("batch source produced no batches")
	}
	t.state.Epoch++
	mean := total / float64(batches)
	t.state.LogHistory = append(t.state.LogHistory, map[string]float64{
		"epoch": t.state.Epoch,
		"loss":  mean,
	})
	t.logger.Info("epoch finished", "epoch", t.state.Epoch, "loss", mean, "step", t.state.GlobalStep)
	return mean, nil
}

// Evaluator runs a full evaluation pass and aggregates predictions.
type Evaluator struct {
	reader       model.Reader
	source       BatchSource
	m            int
	maxAnswerLen int
}

// NewEvaluator creates an evaluator over a batch source of M-passage
// batches.
func NewEvaluator(reader model.Reader, source BatchSource, m, maxAnswerLen int) *Evaluator {
	return &Evaluator{reader: reader, source: source, m: m, maxAnswerLen: maxAnswerLen}
}

// Run evaluates the whole source.
func (e *Evaluator) Run(ctx context.Context) (*EvalResult, error) {
	e.source.Reset()
	agg := NewAggregator(e.m, e.maxAnswerLen)
	for {
		batch, err := e.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		out, err := e.reader.Read(ctx, batch.Encodings)
		if err != nil {
			return nil, err
		}
		if err := agg.Add(batch, out); err != nil {
			return nil, err
		}
	}
	return agg.Finalize()
}

// Loadable is implemented by readers that can take checkpoint weights.
type Loadable interface {
	LoadStateDict(checkpoint.StateDict) error
}

// Sweeper evaluates a series of checkpoints. Checkpoints without a
// weights file are skipped with a diagnostic; a missing trainer-state
// sidecar only costs accurate step counters.
type Sweeper struct {
	reader    model.Reader
	evaluator *Evaluator
	oracle    bool
	logger    *slog.Logger
}

// NewSweeper creates a sweeper. oracle switches the artifact names to
// their oracle variants.
func NewSweeper(reader model.Reader, evaluator *Evaluator, oracle bool, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{reader: reader, evaluator: evaluator, oracle: oracle, logger: logger}
}

// Sweep evaluates every checkpoint directory matching glob and writes
// predictions and metrics files next to each checkpoint's weights.
func (s *Sweeper) Sweep(ctx context.Context, glob string) error {
	dirs, err := checkpoint.Sweep(glob)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		s.logger.Warn("no checkpoints match", "glob", glob)
		return nil
	}
	for _, dir := range dirs {
		if err := s.sweepOne(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sweeper) sweepOne(ctx context.Context, dir string) error {
	sd, err := checkpoint.LoadStateDict(filepath.Join(dir, checkpoint.WeightsFile))
	if os.IsNotExist(err) {
		s.logger.Warn("checkpoint has no weights, skipping", "dir", dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", dir, err)
	}
	if loadable, ok := s.reader.(Loadable); ok {
		if err := loadable.LoadStateDict(sd); err != nil {
			return fmt.Errorf("load weights %s: %w", dir, err)
		}
	}
	state, err := checkpoint.LoadTrainerState(dir, s.logger)
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", dir, err)
	}

	result, err := s.evaluator.Run(ctx)
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", dir, err)
	}
	result.Metrics["global_step"] = float64(state.GlobalStep)

	predName, metricsName := "predictions.json", "metrics.json"
	if s.oracle {
		predName, metricsName = "oracle_predictions.json", "oracle_metrics.json"
	}
	if err := writeJSON(filepath.Join(dir, predName), result.Predictions); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, metricsName), result.Metrics); err != nil {
		return err
	}
	s.logger.Info("checkpoint evaluated", "dir", dir, "step", state.GlobalStep,
		"exact_match", result.Metrics["exact_match"], "f1", result.Metrics["f1"])
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
