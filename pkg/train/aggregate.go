package train

import (
	"fmt"
	"math"

	"github.com/soundprediction/risposta/pkg/model"
	"github.com/soundprediction/risposta/pkg/tokenizer"
)

// Prediction is one question's decoded answers.
type Prediction struct {
	ID             string `json:"id"`
	Answer         string `json:"prediction_text"`
	WeightedAnswer string `json:"weighted_prediction_text,omitempty"`
}

// EvalResult is the outcome of one evaluation pass.
type EvalResult struct {
	Predictions []Prediction       `json:"predictions"`
	Metrics     map[string]float64 `json:"metrics"`
}

// Aggregator accumulates reader outputs across an evaluation pass whose
// flat output is M times the dataset size, reshapes them back per
// question and scores decoded answers against the gold answer sets.
type Aggregator struct {
	m            int
	maxAnswerLen int
	loss         *GlobalNormLoss

	ids       []string
	answers   [][]string
	encodings []tokenizer.Encoding
	starts    [][]float64
	ends      [][]float64
	scores    []float64
	hasScores bool
	losses    []float64
}

// NewAggregator creates an aggregator for batches of M passages whose
// decoded answers span at most maxAnswerLen tokens.
func NewAggregator(m, maxAnswerLen int) *Aggregator {
	return &Aggregator{m: m, maxAnswerLen: maxAnswerLen, loss: NewGlobalNormLoss()}
}

// Add accumulates one batch. Outputs are normalized globally before
// storage so span probabilities stay comparable across a question's
// passages. When the batch carries span targets the batch loss is
// recorded too.
func (a *Aggregator) Add(batch *Batch, out *model.ReaderOutput) error {
	if batch.M != a.m {
		return fmt.Errorf("batch has %d passages per question, aggregator expects %d", batch.M, a.m)
	}
	lp, err := a.loss.Normalize(out, batch.N, batch.M)
	if err != nil {
		return err
	}
	a.ids = append(a.ids, batch.QuestionIDs...)
	a.answers = append(a.answers, batch.Answers...)
	a.encodings = append(a.encodings, batch.Encodings...)
	a.starts = append(a.starts, lp.Start...)
	a.ends = append(a.ends, lp.End...)
	if len(batch.Scores) > 0 {
		a.scores = append(a.scores, batch.Scores...)
		a.hasScores = true
	}
	if batch.Targets != nil {
		l, err := a.loss.Compute(out, batch)
		if err != nil {
			return err
		}
		a.losses = append(a.losses, l)
	}
	return nil
}

// Len returns the number of aggregated questions.
func (a *Aggregator) Len() int { return len(a.ids) }

// Finalize reshapes the accumulated flat rows to (questions, M, ...),
// decodes the best span per question (and its passage-score-weighted
// variant when scores were collected) and computes exact-match and
// token-F1 against the gold answers.
func (a *Aggregator) Finalize() (*EvalResult, error) {
	numQ := len(a.ids)
	if len(a.starts) != numQ*a.m {
		return nil, fmt.Errorf("%d prediction rows for %d questions of %d passages",
			len(a.starts), numQ, a.m)
	}
	if a.hasScores && len(a.scores) != numQ*a.m {
		return nil, fmt.Errorf("%d passage scores for %d rows", len(a.scores), numQ*a.m)
	}

	result := &EvalResult{
		Predictions: make([]Prediction, numQ),
		Metrics:     make(map[string]float64),
	}
	var em, f1, wem, wf1 float64
	for i := 0; i < numQ; i++ {
		raw, weighted := a.bestAnswers(i)
		result.Predictions[i] = Prediction{ID: a.ids[i], Answer: raw}
		em += ExactMatch(raw, a.answers[i])
		f1 += F1(raw, a.answers[i])
		if a.hasScores {
			result.Predictions[i].WeightedAnswer = weighted
			wem += ExactMatch(weighted, a.answers[i])
			wf1 += F1(weighted, a.answers[i])
		}
	}
	n := float64(numQ)
	result.Metrics["exact_match"] = 100 * em / n
	result.Metrics["f1"] = 100 * f1 / n
	if a.hasScores {
		result.Metrics["weighted_exact_match"] = 100 * wem / n
		result.Metrics["weighted_f1"] = 100 * wf1 / n
	}
	if len(a.losses) > 0 {
		sum := 0.0
		for _, l := range a.losses {
			sum += l
		}
		result.Metrics["eval_loss"] = sum / float64(len(a.losses))
	}
	return result, nil
}

// bestAnswers scans question i's M passages for the highest-probability
// span with start ≤ end inside the passage region, capped at
// maxAnswerLen tokens, and returns the raw best answer and the
// passage-score-weighted best answer.
func (a *Aggregator) bestAnswers(i int) (raw, weighted string) {
	bestScore := math.Inf(-1)
	weightedBest := math.Inf(-1)
	for m := 0; m < a.m; m++ {
		row := i*a.m + m
		enc := a.encodings[row]
		for start := enc.PassageStart; start < enc.PassageEnd; start++ {
			endCap := start + a.maxAnswerLen
			if endCap > enc.PassageEnd {
				endCap = enc.PassageEnd
			}
			for end := start; end < endCap; end++ {
				score := a.starts[row][start] + a.ends[row][end]
				if score > bestScore {
					bestScore = score
					raw = enc.DecodeSpan(start, end)
				}
				if a.hasScores {
					w := math.Exp(score) * a.scores[row]
					if w > weightedBest {
						weightedBest = w
						weighted = enc.DecodeSpan(start, end)
					}
				}
			}
		}
	}
	return raw, weighted
}

// ReshapeRelevance folds a flat (N·M,) relevance vector into (N, M) rows
// for the switch loss.
func ReshapeRelevance(flat []float64, n, m int) ([][]float64, error) {
	if len(flat) != n*m {
		return nil, fmt.Errorf("%d relevance logits for %d questions of %d passages", len(flat), n, m)
	}
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = flat[i*m : i*m+m]
	}
	return out, nil
}
