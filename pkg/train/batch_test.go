package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/risposta/pkg/dataset"
	"github.com/soundprediction/risposta/pkg/tokenizer"
	"github.com/soundprediction/risposta/pkg/types"
)

const testSearchKey = "fusion"

func testKB(t *testing.T) *dataset.KnowledgeBase {
	t.Helper()
	return dataset.NewKnowledgeBase([]types.Passage{
		{Text: "wolfgang amadeus mozart was a composer"},
		{Text: "the quick brown fox jumps over the dog"},
		{Text: "vienna is the capital of austria"},
		{Text: "mozart lived in vienna and in salzburg"},
		{Text: "an unrelated passage about sailing"},
	})
}

func question(id, input, answer string, provenance, irrelevant, retrieved []int, scores []float64) types.Question {
	return types.Question{
		ID:     id,
		Input:  input,
		Output: types.AnswerSet{OriginalAnswer: answer},
		Search: map[string]*types.Retrieval{
			testSearchKey: {
				Indices:           retrieved,
				Scores:            scores,
				ProvenanceIndices: provenance,
				IrrelevantIndices: irrelevant,
			},
		},
	}
}

func newSampler(t *testing.T, m int, mode Mode) *PassageSampler {
	t.Helper()
	s, err := NewPassageSampler(testKB(t), testSearchKey, m, mode, 7, nil)
	require.NoError(t, err)
	return s
}

func TestSampleTrainExactlyMPassages(t *testing.T) {
	s := newSampler(t, 4, ModeTrain)
	q := question("q1", "who composed", "mozart", []int{0, 3}, []int{1, 2}, nil, nil)

	sampled, err := s.Sample(&q)
	require.NoError(t, err)
	require.Len(t, sampled.Passages, 4)
	assert.Equal(t, 2, sampled.NRelevant)

	// Relevant passages occupy the leading slots.
	lead := map[int]bool{0: true, 3: true}
	assert.True(t, lead[sampled.Passages[0].Index])
	assert.True(t, lead[sampled.Passages[1].Index])
	assert.NotEqual(t, sampled.Passages[0].Index, sampled.Passages[1].Index)
}

func TestSampleTrainPadsWithEmptyPassages(t *testing.T) {
	s := newSampler(t, 4, ModeTrain)
	q := question("q1", "who composed", "mozart", []int{0}, []int{1}, nil, nil)

	sampled, err := s.Sample(&q)
	require.NoError(t, err)
	require.Len(t, sampled.Passages, 4)
	assert.Equal(t, 0, sampled.Passages[0].Index)
	assert.Equal(t, 1, sampled.Passages[1].Index)
	assert.Equal(t, emptyPassageIndex, sampled.Passages[2].Index)
	assert.Equal(t, "", sampled.Passages[2].Text)
	assert.Equal(t, emptyPassageIndex, sampled.Passages[3].Index)
}

func TestSampleTrainNoRelevantIsNonFatal(t *testing.T) {
	s := newSampler(t, 2, ModeTrain)
	q := question("q1", "who composed", "mozart", nil, []int{1, 2, 4}, nil, nil)

	sampled, err := s.Sample(&q)
	require.NoError(t, err)
	require.Len(t, sampled.Passages, 2)
	assert.Equal(t, 0, sampled.NRelevant)
}

func TestSampleTrainDrawsWithoutReplacement(t *testing.T) {
	s := newSampler(t, 3, ModeTrain)
	q := question("q1", "who composed", "mozart", []int{0, 1, 2, 3, 4}, nil, nil, nil)

	for trial := 0; trial < 20; trial++ {
		sampled, err := s.Sample(&q)
		require.NoError(t, err)
		seen := make(map[int]bool)
		for _, p := range sampled.Passages {
			assert.False(t, seen[p.Index], "passage %d drawn twice", p.Index)
			seen[p.Index] = true
		}
	}
}

func TestSampleEvalTopMWithScores(t *testing.T) {
	s := newSampler(t, 3, ModeEval)
	q := question("q1", "who composed", "mozart",
		nil, nil, []int{3, 0, 1, 2}, []float64{0.9, 0.7, 0.2, 0.1})

	sampled, err := s.Sample(&q)
	require.NoError(t, err)
	require.Len(t, sampled.Passages, 3)
	assert.Equal(t, []int{3, 0, 1},
		[]int{sampled.Passages[0].Index, sampled.Passages[1].Index, sampled.Passages[2].Index})
	assert.Equal(t, []float64{0.9, 0.7, 0.2}, sampled.Scores)
}

func TestSampleEvalPadsScoresWithZeros(t *testing.T) {
	s := newSampler(t, 4, ModeEval)
	q := question("q1", "who composed", "mozart",
		nil, nil, []int{3}, []float64{0.9})

	sampled, err := s.Sample(&q)
	require.NoError(t, err)
	require.Len(t, sampled.Passages, 4)
	assert.Equal(t, []float64{0.9, 0, 0, 0}, sampled.Scores)
	assert.Equal(t, emptyPassageIndex, sampled.Passages[3].Index)
}

func TestSampleOracleUsesRelevantOnly(t *testing.T) {
	s := newSampler(t, 3, ModeOracle)
	q := question("q1", "who composed", "mozart", []int{0, 3}, []int{1, 2, 4}, nil, nil)

	sampled, err := s.Sample(&q)
	require.NoError(t, err)
	require.Len(t, sampled.Passages, 3)
	for _, p := range sampled.Passages[:2] {
		assert.Contains(t, []int{0, 3}, p.Index)
	}
	assert.Equal(t, emptyPassageIndex, sampled.Passages[2].Index)
}

func newCollator(t *testing.T, m, maxN int, mode Mode, withLocator bool) (*Collator, tokenizer.Tokenizer) {
	t.Helper()
	tok := tokenizer.NewWord(32)
	var locator *SpanLocator
	if withLocator {
		locator = NewSpanLocator(tok, maxN)
	}
	c, err := NewCollator(newSampler(t, m, mode), locator, tok, mode, nil)
	require.NoError(t, err)
	return c, tok
}

func TestCollateShapes(t *testing.T) {
	c, _ := newCollator(t, 3, 2, ModeTrain, true)
	questions := []types.Question{
		question("q1", "who composed symphonies", "mozart", []int{0}, []int{1, 2}, nil, nil),
		question("q2", "which capital", "vienna", []int{2}, []int{1}, nil, nil),
	}
	b, err := c.Collate(questions)
	require.NoError(t, err)

	assert.Equal(t, 2, b.N)
	assert.Equal(t, 3, b.M)
	assert.Len(t, b.Encodings, 6)
	assert.Len(t, b.Live, 6)
	require.NotNil(t, b.Targets)
	assert.Len(t, b.Targets.Starts, 2)
	assert.Len(t, b.Targets.Starts[0], 3)
	assert.Len(t, b.Targets.Starts[0][0], 2)
	assert.Equal(t, []int{1, 1}, b.NRelevant)
	assert.Equal(t, []int{0, 0}, b.SwitchLabels)
}

func TestCollateEvalCarriesScores(t *testing.T) {
	c, _ := newCollator(t, 2, 2, ModeEval, false)
	questions := []types.Question{
		question("q1", "who composed", "mozart",
			[]int{0}, nil, []int{1, 0}, []float64{0.8, 0.5}),
	}
	b, err := c.Collate(questions)
	require.NoError(t, err)

	assert.Nil(t, b.Targets)
	assert.Equal(t, []float64{0.8, 0.5}, b.Scores)
	// Retrieved slot 1 is the known-relevant passage 0.
	assert.Equal(t, []int{1}, b.SwitchLabels)
}

func TestCollateEvalSwitchLabelIgnoredWhenNoRelevantRetrieved(t *testing.T) {
	c, _ := newCollator(t, 2, 2, ModeEval, false)
	questions := []types.Question{
		question("q1", "who composed", "mozart",
			[]int{3}, nil, []int{1, 2}, []float64{0.8, 0.5}),
	}
	b, err := c.Collate(questions)
	require.NoError(t, err)
	assert.Equal(t, []int{IgnoreLabel}, b.SwitchLabels)
}

func TestContrastiveLabels(t *testing.T) {
	c, _ := newCollator(t, 2, 1, ModeTrain, true)

	t.Run("single relevant", func(t *testing.T) {
		b, err := c.Collate([]types.Question{
			question("q1", "who composed", "mozart", []int{0}, []int{1}, nil, nil),
			question("q2", "which capital", "vienna", []int{2}, []int{1}, nil, nil),
		})
		require.NoError(t, err)
		labels, err := b.ContrastiveLabels()
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2}, labels)
	})

	t.Run("none relevant is ignored", func(t *testing.T) {
		b, err := c.Collate([]types.Question{
			question("q1", "who composed", "mozart", nil, []int{1, 2}, nil, nil),
		})
		require.NoError(t, err)
		labels, err := b.ContrastiveLabels()
		require.NoError(t, err)
		assert.Equal(t, []int{IgnoreLabel}, labels)
	})

	t.Run("multiple relevant is an error", func(t *testing.T) {
		b, err := c.Collate([]types.Question{
			question("q1", "who composed", "mozart", []int{0, 3}, nil, nil, nil),
		})
		require.NoError(t, err)
		_, err = b.ContrastiveLabels()
		assert.Error(t, err)
	})
}
