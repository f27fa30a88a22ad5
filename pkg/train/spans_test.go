package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/risposta/pkg/tokenizer"
)

func encodePair(t *testing.T, tok tokenizer.Tokenizer, question, passage string) tokenizer.Encoding {
	t.Helper()
	enc, err := tok.EncodePair(question, passage)
	require.NoError(t, err)
	return enc
}

func TestLocateSingleOccurrence(t *testing.T) {
	tok := tokenizer.NewWord(32)
	l := NewSpanLocator(tok, 2)
	enc := encodePair(t, tok, "who composed", "mozart was a composer")

	starts, ends, mask := l.Locate(enc, []string{"mozart"})

	seqLen := len(enc.IDs)
	assert.Equal(t, []int{enc.PassageStart, seqLen}, starts)
	assert.Equal(t, []int{enc.PassageStart, seqLen}, ends)
	assert.Equal(t, []int{1, 0}, mask)
}

func TestLocateMultiWordAnswer(t *testing.T) {
	tok := tokenizer.NewWord(32)
	l := NewSpanLocator(tok, 2)
	enc := encodePair(t, tok, "where", "he lived in salzburg and vienna")

	starts, ends, mask := l.Locate(enc, []string{"salzburg and vienna"})

	assert.Equal(t, 1, mask[0])
	assert.Equal(t, enc.PassageStart+3, starts[0])
	assert.Equal(t, enc.PassageStart+5, ends[0])
	assert.Equal(t, 0, mask[1])
}

func TestLocateRepeatedAnswerInOrder(t *testing.T) {
	tok := tokenizer.NewWord(32)
	l := NewSpanLocator(tok, 3)
	enc := encodePair(t, tok, "who", "mozart met the young mozart admirer")

	starts, ends, mask := l.Locate(enc, []string{"mozart"})

	assert.Equal(t, []int{1, 1, 0}, mask)
	assert.Equal(t, enc.PassageStart, starts[0])
	assert.Equal(t, enc.PassageStart, ends[0])
	assert.Equal(t, enc.PassageStart+4, starts[1])
	assert.Equal(t, enc.PassageStart+4, ends[1])
}

func TestLocateCapsOccurrences(t *testing.T) {
	tok := tokenizer.NewWord(32)
	l := NewSpanLocator(tok, 1)
	enc := encodePair(t, tok, "who", "mozart met the young mozart admirer")

	_, _, mask := l.Locate(enc, []string{"mozart"})
	assert.Equal(t, []int{1}, mask)
}

func TestLocateFallbackWhenAbsent(t *testing.T) {
	tok := tokenizer.NewWord(32)
	l := NewSpanLocator(tok, 2)
	enc := encodePair(t, tok, "who", "the quick brown fox")

	starts, ends, mask := l.Locate(enc, []string{"vienna"})

	assert.Equal(t, 0, starts[0])
	assert.Equal(t, 0, ends[0])
	assert.Equal(t, []int{1, 0}, mask)
	assert.Equal(t, len(enc.IDs), starts[1])
}

func TestLocateStopsAfterFirstMatchingAnswer(t *testing.T) {
	tok := tokenizer.NewWord(32)
	l := NewSpanLocator(tok, 4)
	enc := encodePair(t, tok, "who", "mozart saw the fox near the fox den")

	starts, _, mask := l.Locate(enc, []string{"mozart", "fox"})

	// The original answer matched, so "fox" is never searched.
	assert.Equal(t, []int{1, 0, 0, 0}, mask)
	assert.Equal(t, enc.PassageStart, starts[0])
}

func TestLocateFallsThroughToAlternatives(t *testing.T) {
	tok := tokenizer.NewWord(32)
	l := NewSpanLocator(tok, 2)
	enc := encodePair(t, tok, "who", "the quick brown fox")

	starts, _, mask := l.Locate(enc, []string{"vienna", "fox"})

	assert.Equal(t, 1, mask[0])
	assert.Equal(t, enc.PassageStart+3, starts[0])
}

func TestLocateOriginalAnswerOnly(t *testing.T) {
	tok := tokenizer.NewWord(32)
	l := NewSpanLocator(tok, 2, WithOriginalAnswerOnly())
	enc := encodePair(t, tok, "who", "the quick brown fox")

	starts, ends, mask := l.Locate(enc, []string{"vienna", "fox"})

	// Alternatives are skipped, leaving the slot-0 fallback.
	assert.Equal(t, 0, starts[0])
	assert.Equal(t, 0, ends[0])
	assert.Equal(t, []int{1, 0}, mask)
}
