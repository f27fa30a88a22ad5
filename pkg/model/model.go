package model

import (
	"context"
	"errors"

	"github.com/soundprediction/risposta/pkg/tokenizer"
)

// ErrShapeMismatch is returned when a model output does not line up with
// its input batch.
var ErrShapeMismatch = errors.New("model output shape mismatch")

// ReaderOutput holds per-token span scores for a flat batch of encoded
// question-passage rows. StartLogits[i][t] scores token t of row i as a
// span start, EndLogits likewise for span ends. RelevanceLogits scores
// each whole row as containing an answer.
type ReaderOutput struct {
	StartLogits     [][]float64
	EndLogits       [][]float64
	RelevanceLogits []float64
}

// Validate checks the output covers rows sequences of length seqLen.
func (o *ReaderOutput) Validate(rows, seqLen int) error {
	if len(o.StartLogits) != rows || len(o.EndLogits) != rows || len(o.RelevanceLogits) != rows {
		return ErrShapeMismatch
	}
	for i := range o.StartLogits {
		if len(o.StartLogits[i]) != seqLen || len(o.EndLogits[i]) != seqLen {
			return ErrShapeMismatch
		}
	}
	return nil
}

// Reader scores answer spans over encoded question-passage rows.
type Reader interface {
	Read(ctx context.Context, encodings []tokenizer.Encoding) (*ReaderOutput, error)
}

// BiEncoder embeds questions and passages into one vector space where
// relevance is inner product.
type BiEncoder interface {
	EmbedQuestions(ctx context.Context, texts []string) ([][]float64, error)
	EmbedPassages(ctx context.Context, texts []string) ([][]float64, error)
}

// Ranker scores encoded question-passage rows for relevance only.
type Ranker interface {
	Rank(ctx context.Context, encodings []tokenizer.Encoding) ([]float64, error)
}

// ReaderRanker exposes a reader's relevance head as a Ranker.
type ReaderRanker struct {
	Reader Reader
}

func (r ReaderRanker) Rank(ctx context.Context, encodings []tokenizer.Encoding) ([]float64, error) {
	out, err := r.Reader.Read(ctx, encodings)
	if err != nil {
		return nil, err
	}
	if len(out.RelevanceLogits) != len(encodings) {
		return nil, ErrShapeMismatch
	}
	return out.RelevanceLogits, nil
}

// Answer is one extractive answer with its confidence.
type Answer struct {
	Text  string
	Score float64
}

// Answerer extracts answers to a question from a context text.
type Answerer interface {
	Answer(ctx context.Context, question, contextText string) ([]Answer, error)
}
