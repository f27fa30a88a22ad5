package train

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/soundprediction/risposta/pkg/gather"
)

// ErrNotImplemented signals a requested loss feature that is not
// supported.
var ErrNotImplemented = errors.New("not implemented")

// ContrastiveLoss trains a bi-encoder with in-batch negatives. Every
// worker of the group contributes its question and context
// representations; each question is scored against the contexts of the
// whole group and must pick out its single relevant passage.
type ContrastiveLoss struct {
	worker *gather.Worker
}

// NewContrastiveLoss creates the loss. worker may be nil for
// single-process training. A non-zero labelSmoothing is not supported.
func NewContrastiveLoss(worker *gather.Worker, labelSmoothing float64) (*ContrastiveLoss, error) {
	if labelSmoothing != 0 {
		return nil, fmt.Errorf("label smoothing: %w", ErrNotImplemented)
	}
	return &ContrastiveLoss{worker: worker}, nil
}

// Compute exchanges representations with the worker group and returns
// the mean cross-entropy of each question picking its relevant context
// out of all gathered contexts. questions is (N, d), contexts (N·M, d),
// labels (N,) with flat local context rows or IgnoreLabel. The local
// buffers keep gradient tracking through the exchange; remote buffers
// arrive detached. With a single worker the exchange is skipped and the
// result is identical to the purely local computation.
func (c *ContrastiveLoss) Compute(ctx context.Context, questions, contexts [][]float64, labels []int) (float64, error) {
	if len(labels) != len(questions) {
		return 0, fmt.Errorf("%d labels for %d questions", len(labels), len(questions))
	}

	allQuestions := questions
	allContexts := contexts
	allLabels := labels
	if c.worker != nil && c.worker.Size() > 1 {
		qBufs, err := c.worker.AllGather(ctx, gather.Buffer{Rows: questions, Tracked: true})
		if err != nil {
			return 0, err
		}
		cBufs, err := c.worker.AllGather(ctx, gather.Buffer{Rows: contexts, Tracked: true})
		if err != nil {
			return 0, err
		}
		labelVecs, err := c.worker.AllGatherInts(ctx, labels)
		if err != nil {
			return 0, err
		}
		allQuestions, _ = gather.Concat(qBufs, c.worker.Rank())
		allContexts, _ = gather.Concat(cBufs, c.worker.Rank())

		// Remote labels index remote context rows; shift each rank's
		// labels by the context rows contributed by the ranks before it.
		allLabels = make([]int, 0, len(allQuestions))
		shift := 0
		for rank, vec := range labelVecs {
			for _, label := range vec {
				if label == IgnoreLabel {
					allLabels = append(allLabels, IgnoreLabel)
					continue
				}
				allLabels = append(allLabels, label+shift)
			}
			shift += cBufs[rank].Len()
		}
	}

	return crossEntropy(allQuestions, allContexts, allLabels)
}

// crossEntropy scores every question against every context by inner
// product and averages the negative log-likelihood of the labeled
// context, skipping ignored rows.
func crossEntropy(questions, contexts [][]float64, labels []int) (float64, error) {
	total := 0.0
	counted := 0
	for i, q := range questions {
		label := labels[i]
		if label == IgnoreLabel {
			continue
		}
		if label < 0 || label >= len(contexts) {
			return 0, fmt.Errorf("label %d out of range for %d contexts", label, len(contexts))
		}
		sims := make([]float64, len(contexts))
		for j, c := range contexts {
			sims[j] = dot(q, c)
		}
		total += logSumExp(sims) - sims[label]
		counted++
	}
	if counted == 0 {
		return 0, nil
	}
	return total / float64(counted), nil
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// SwitchLoss is the relevance head's cross-entropy: relevance is (N, M)
// per-slot logits, labels the relevant slot per question or IgnoreLabel.
func SwitchLoss(relevance [][]float64, labels []int) (float64, error) {
	if len(relevance) != len(labels) {
		return 0, fmt.Errorf("%d relevance rows for %d labels", len(relevance), len(labels))
	}
	total := 0.0
	counted := 0
	for i, row := range relevance {
		label := labels[i]
		if label == IgnoreLabel {
			continue
		}
		if label < 0 || label >= len(row) {
			return 0, fmt.Errorf("switch label %d out of range for %d slots", label, len(row))
		}
		total += logSumExp(row) - row[label]
		counted++
	}
	if counted == 0 {
		return 0, nil
	}
	if math.IsNaN(total) {
		return 0, fmt.Errorf("switch loss is NaN")
	}
	return total / float64(counted), nil
}
