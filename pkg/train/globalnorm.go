package train

import (
	"fmt"
	"math"

	"github.com/soundprediction/risposta/pkg/model"
)

// GlobalNormLoss computes the multi-passage reader loss. Start and end
// logits of a question's M passages are normalized jointly, so span
// probabilities are comparable across the question's passages, then each
// passage is penalized by its best-localized answer occurrence and the
// per-passage losses are combined by marginal likelihood: a question is
// right when any one of its passages yields the correct span.
//
// The marginal combinator is sum-then-log, -log(Σ_m exp(-loss_m)) over
// live passages. With a single live passage it reduces to that passage's
// negative log-likelihood.
type GlobalNormLoss struct{}

// NewGlobalNormLoss creates the loss.
func NewGlobalNormLoss() *GlobalNormLoss { return &GlobalNormLoss{} }

// LogProbs holds globally normalized start/end log-probabilities, flat
// rows matching the batch layout.
type LogProbs struct {
	Start [][]float64
	End   [][]float64
}

// Normalize reshapes (N·M, L) logits to (N, M·L), applies a row
// log-softmax and reshapes back. Both heads are normalized independently.
func (g *GlobalNormLoss) Normalize(out *model.ReaderOutput, n, m int) (*LogProbs, error) {
	if len(out.StartLogits) != n*m || len(out.EndLogits) != n*m {
		return nil, fmt.Errorf("%w: %d rows for %d questions of %d passages",
			model.ErrShapeMismatch, len(out.StartLogits), n, m)
	}
	return &LogProbs{
		Start: globalLogSoftmax(out.StartLogits, n, m),
		End:   globalLogSoftmax(out.EndLogits, n, m),
	}, nil
}

// Compute returns the scalar loss for a batch with span targets.
func (g *GlobalNormLoss) Compute(out *model.ReaderOutput, batch *Batch) (float64, error) {
	if batch.Targets == nil {
		return 0, fmt.Errorf("batch has no span targets")
	}
	lp, err := g.Normalize(out, batch.N, batch.M)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for i := 0; i < batch.N; i++ {
		total += g.questionLoss(lp, batch, i)
	}
	return total / float64(batch.N), nil
}

// questionLoss is the marginal negative log-likelihood of question i.
func (g *GlobalNormLoss) questionLoss(lp *LogProbs, batch *Batch, i int) float64 {
	passageLosses := make([]float64, 0, batch.M)
	for m := 0; m < batch.M; m++ {
		if !batch.Live[batch.Row(i, m)] {
			continue
		}
		passageLosses = append(passageLosses, g.passageLoss(lp, batch, i, m))
	}
	// A question padded with empty passages only still contributes a
	// finite loss through its null-span targets.
	if len(passageLosses) == 0 {
		for m := 0; m < batch.M; m++ {
			passageLosses = append(passageLosses, g.passageLoss(lp, batch, i, m))
		}
	}
	// -log(Σ_m exp(-loss_m)), computed as -logsumexp(-loss).
	neg := make([]float64, len(passageLosses))
	for j, l := range passageLosses {
		neg[j] = -l
	}
	return -logSumExp(neg)
}

// passageLoss is the best-occurrence loss of passage slot m: per valid
// occurrence the start and end negative log-likelihoods are summed, and
// the maximum over occurrences is kept so only the best-localized
// occurrence penalizes the passage. Ignored occurrences contribute zero.
func (g *GlobalNormLoss) passageLoss(lp *LogProbs, batch *Batch, i, m int) float64 {
	row := batch.Row(i, m)
	seqLen := len(lp.Start[row])
	best := 0.0
	for occ := 0; occ < batch.Targets.MaxN; occ++ {
		if batch.Targets.Mask[i][m][occ] == 0 {
			continue
		}
		start := clamp(batch.Targets.Starts[i][m][occ], 0, seqLen)
		end := clamp(batch.Targets.Ends[i][m][occ], 0, seqLen)
		loss := 0.0
		if start < seqLen {
			loss -= lp.Start[row][start]
		}
		if end < seqLen {
			loss -= lp.End[row][end]
		}
		if loss > best {
			best = loss
		}
	}
	return best
}

// globalLogSoftmax normalizes each question's M rows jointly.
func globalLogSoftmax(logits [][]float64, n, m int) [][]float64 {
	out := make([][]float64, len(logits))
	for i := 0; i < n; i++ {
		rows := logits[i*m : i*m+m]
		flat := make([]float64, 0, m*len(rows[0]))
		for _, row := range rows {
			flat = append(flat, row...)
		}
		lse := logSumExp(flat)
		for j, row := range rows {
			norm := make([]float64, len(row))
			for t, v := range row {
				norm[t] = v - lse
			}
			out[i*m+j] = norm
		}
	}
	return out
}

func logSumExp(xs []float64) float64 {
	if len(xs) == 0 {
		return math.Inf(-1)
	}
	max := xs[0]
	for _, x := range xs[1:] {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	sum := 0.0
	for _, x := range xs {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
