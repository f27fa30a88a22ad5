package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordEncodeDeterministic(t *testing.T) {
	w := NewWord(32)
	a, err := w.Encode("Wolfgang Amadeus Mozart")
	require.NoError(t, err)
	b, err := w.Encode("wolfgang amadeus mozart")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 3)
}

func TestWordEncodeEmpty(t *testing.T) {
	w := NewWord(32)
	_, err := w.Encode("   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestEncodePairLayout(t *testing.T) {
	w := NewWord(16)
	enc, err := w.EncodePair("who composed it", "mozart composed it")
	require.NoError(t, err)

	require.Len(t, enc.IDs, 16)
	require.Len(t, enc.Mask, 16)
	assert.Equal(t, wordClsID, enc.IDs[0])
	assert.Equal(t, wordSepID, enc.IDs[4])
	assert.Equal(t, 5, enc.PassageStart)
	assert.Equal(t, 8, enc.PassageEnd)

	// The passage region contains exactly the passage word ids.
	pIDs, err := w.Encode("mozart composed it")
	require.NoError(t, err)
	assert.Equal(t, pIDs, enc.PassageIDs())

	// Padding after the trailing separator.
	assert.Equal(t, wordSepID, enc.IDs[8])
	assert.Equal(t, wordPadID, enc.IDs[9])
	assert.Equal(t, 1, enc.Mask[8])
	assert.Equal(t, 0, enc.Mask[9])
}

func TestDecodeSpan(t *testing.T) {
	w := NewWord(16)
	enc, err := w.EncodePair("who composed it", "mozart composed the symphony")
	require.NoError(t, err)

	assert.Equal(t, "mozart", enc.DecodeSpan(enc.PassageStart, enc.PassageStart))
	assert.Equal(t, "composed the symphony", enc.DecodeSpan(enc.PassageStart+1, enc.PassageStart+3))
	assert.Equal(t, "", enc.DecodeSpan(0, 1), "question region does not decode")
	assert.Equal(t, "", enc.DecodeSpan(enc.PassageStart+2, enc.PassageStart+1))
}

func TestEncodePairEmptyPassage(t *testing.T) {
	w := NewWord(8)
	enc, err := w.EncodePair("who composed it", "")
	require.NoError(t, err)
	assert.Equal(t, enc.PassageStart, enc.PassageEnd)
	assert.Empty(t, enc.PassageIDs())
}

func TestEncodePairTruncatesPassage(t *testing.T) {
	w := NewWord(8)
	enc, err := w.EncodePair("who", "a b c d e f g h i j")
	require.NoError(t, err)
	require.Len(t, enc.IDs, 8)
	// [CLS] who [SEP] leaves room for 4 passage tokens and a separator.
	assert.Equal(t, 3, enc.PassageStart)
	assert.Equal(t, 7, enc.PassageEnd)
	assert.Equal(t, wordSepID, enc.IDs[7])
}

func TestEncodePairQuestionOverflow(t *testing.T) {
	w := NewWord(4)
	enc, err := w.EncodePair("a b c d e f", "passage")
	require.NoError(t, err)
	require.Len(t, enc.IDs, 4)
	assert.Equal(t, enc.PassageStart, enc.PassageEnd)
}
