package model

import (
	"context"
	"fmt"

	"github.com/soundprediction/risposta/pkg/embedder"
)

// EmbedderBiEncoder backs a BiEncoder with embedding clients. Question
// and passage sides may share one client (shared encoder) or use two
// separately trained ones.
type EmbedderBiEncoder struct {
	questions embedder.Client
	passages  embedder.Client
}

// NewEmbedderBiEncoder creates a bi-encoder over two embedding clients.
// Passing the same client twice gives a shared encoder.
func NewEmbedderBiEncoder(questions, passages embedder.Client) (*EmbedderBiEncoder, error) {
	if questions == nil || passages == nil {
		return nil, fmt.Errorf("bi-encoder requires both encoders")
	}
	if questions.Dimensions() != passages.Dimensions() {
		return nil, fmt.Errorf("encoder dimensions differ: %d vs %d", questions.Dimensions(), passages.Dimensions())
	}
	return &EmbedderBiEncoder{questions: questions, passages: passages}, nil
}

func (b *EmbedderBiEncoder) EmbedQuestions(ctx context.Context, texts []string) ([][]float64, error) {
	return embedAll(ctx, b.questions, texts)
}

func (b *EmbedderBiEncoder) EmbedPassages(ctx context.Context, texts []string) ([][]float64, error) {
	return embedAll(ctx, b.passages, texts)
}

func embedAll(ctx context.Context, client embedder.Client, texts []string) ([][]float64, error) {
	vecs, err := client.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: %d vectors for %d texts", ErrShapeMismatch, len(vecs), len(texts))
	}
	out := make([][]float64, len(vecs))
	for i, vec := range vecs {
		out[i] = make([]float64, len(vec))
		for j, v := range vec {
			out[i][j] = float64(v)
		}
	}
	return out, nil
}
