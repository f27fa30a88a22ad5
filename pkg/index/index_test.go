package index

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/risposta/pkg/dataset"
	"github.com/soundprediction/risposta/pkg/embedder"
	"github.com/soundprediction/risposta/pkg/types"
)

func testKnowledgeBase() *dataset.KnowledgeBase {
	return dataset.NewKnowledgeBase([]types.Passage{
		{Text: "wolfgang amadeus mozart composed the requiem"},
		{Text: "the quick brown fox jumps over the lazy dog"},
		{Text: "vienna was the musical capital of europe"},
	})
}

func builtFlat(t *testing.T) *Flat {
	t.Helper()
	f := NewFlat("dense", embedder.NewMockEmbedder(16))
	require.NoError(t, f.Build(context.Background(), testKnowledgeBase(), 2))
	return f
}

func TestFlatSearchRanksExactMatchFirst(t *testing.T) {
	f := builtFlat(t)

	results, err := f.Search(context.Background(), []string{
		"wolfgang amadeus mozart composed the requiem",
		"vienna was the musical capital of europe",
	}, 3)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The mock embedder maps identical texts to identical unit vectors,
	// so the matching passage scores a perfect inner product of 1.
	assert.Equal(t, 0, results[0][0].ID)
	assert.InDelta(t, 1.0, results[0][0].Score, 1e-5)
	assert.Equal(t, 2, results[1][0].ID)
}

func TestFlatSearchTruncatesToK(t *testing.T) {
	f := builtFlat(t)

	results, err := f.Search(context.Background(), []string{"anything"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0], 2)
	assert.GreaterOrEqual(t, results[0][0].Score, results[0][1].Score)
}

func TestFlatSearchRequiresBuild(t *testing.T) {
	f := NewFlat("dense", embedder.NewMockEmbedder(16))
	_, err := f.Search(context.Background(), []string{"q"}, 5)
	assert.ErrorIs(t, err, ErrNotBuilt)
}

func TestFlatInterpolationWeight(t *testing.T) {
	f := NewFlat("dense", embedder.NewMockEmbedder(8))
	assert.Zero(t, f.InterpolationWeight())
	f.SetInterpolationWeight(0.7)
	assert.Equal(t, 0.7, f.InterpolationWeight())
}

func TestResultsIDs(t *testing.T) {
	r := Results{{ID: 4, Score: 0.9}, {ID: 1, Score: 0.3}}
	assert.Equal(t, []int{4, 1}, r.IDs())
}

func TestTopKBreaksTiesByID(t *testing.T) {
	scored := []Hit{{ID: 2, Score: 0.5}, {ID: 0, Score: 0.5}, {ID: 1, Score: 0.9}}
	got := topK(scored, 2)
	assert.Equal(t, Results{{ID: 1, Score: 0.9}, {ID: 0, Score: 0.5}}, got)
}

func TestBreakerDisabledReturnsNil(t *testing.T) {
	assert.Nil(t, NewBreaker("dense", BreakerConfig{}))
}

func TestBreakerTripsAfterRepeatedFailures(t *testing.T) {
	b := NewBreaker("bm25", BreakerConfig{
		Enabled:          true,
		Timeout:          60,
		ReadyToTripRatio: 0.6,
	})
	require.NotNil(t, b)

	boom := errors.New("backend down")
	for i := 0; i < 3; i++ {
		_, err := Execute(b, func() (int, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)
	}

	// the breaker is open, so the call is rejected before fn runs
	_, err := Execute(b, func() (int, error) { return 42, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
