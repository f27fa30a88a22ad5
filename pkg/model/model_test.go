package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/risposta/pkg/embedder"
	"github.com/soundprediction/risposta/pkg/tokenizer"
)

func TestHashReaderShapesAndDeterminism(t *testing.T) {
	w := tokenizer.NewWord(16)
	enc1, err := w.EncodePair("who composed it", "mozart composed it")
	require.NoError(t, err)
	enc2, err := w.EncodePair("which capital", "vienna is the capital")
	require.NoError(t, err)

	reader := NewHashReader(w.PadID())
	out, err := reader.Read(context.Background(), []tokenizer.Encoding{enc1, enc2})
	require.NoError(t, err)
	require.NoError(t, out.Validate(2, 16))

	again, err := reader.Read(context.Background(), []tokenizer.Encoding{enc1, enc2})
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestHashReaderPadPositionsAreDead(t *testing.T) {
	w := tokenizer.NewWord(16)
	enc, err := w.EncodePair("who", "short")
	require.NoError(t, err)

	reader := NewHashReader(w.PadID())
	out, err := reader.Read(context.Background(), []tokenizer.Encoding{enc})
	require.NoError(t, err)

	for t2 := range enc.IDs {
		if enc.Mask[t2] == 0 {
			assert.Equal(t, deadLogit, out.StartLogits[0][t2])
			assert.Equal(t, deadLogit, out.EndLogits[0][t2])
		}
	}
}

func TestHashReaderRewardsLexicalOverlap(t *testing.T) {
	w := tokenizer.NewWord(32)
	overlapping, err := w.EncodePair("who composed symphonies", "mozart composed symphonies")
	require.NoError(t, err)
	unrelated, err := w.EncodePair("who composed symphonies", "the quick brown fox")
	require.NoError(t, err)

	reader := NewHashReader(w.PadID())
	out, err := reader.Read(context.Background(), []tokenizer.Encoding{overlapping, unrelated})
	require.NoError(t, err)

	assert.Greater(t, out.RelevanceLogits[0], out.RelevanceLogits[1])
}

func TestEmbedderBiEncoder(t *testing.T) {
	mock := embedder.NewMockEmbedder(8)
	be, err := NewEmbedderBiEncoder(mock, mock)
	require.NoError(t, err)

	qs, err := be.EmbedQuestions(context.Background(), []string{"who", "what"})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Len(t, qs[0], 8)

	ps, err := be.EmbedPassages(context.Background(), []string{"who"})
	require.NoError(t, err)
	// Shared encoder embeds identical text identically.
	assert.Equal(t, qs[0], ps[0])
}

func TestEmbedderBiEncoderDimensionMismatch(t *testing.T) {
	_, err := NewEmbedderBiEncoder(embedder.NewMockEmbedder(8), embedder.NewMockEmbedder(16))
	assert.Error(t, err)
}
