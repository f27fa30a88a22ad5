package study

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamValues(t *testing.T) {
	t.Run("half open range", func(t *testing.T) {
		values := Param{Name: "w", Low: 0, High: 1.1, Step: 0.1}.Values()
		require.Len(t, values, 11)
		assert.InDelta(t, 0.0, values[0], 1e-12)
		assert.InDelta(t, 1.0, values[10], 1e-12)
	})

	t.Run("upper bound excluded", func(t *testing.T) {
		values := Param{Name: "b", Low: 0, High: 1, Step: 0.1}.Values()
		require.Len(t, values, 10)
		assert.InDelta(t, 0.9, values[9], 1e-12)
	})

	t.Run("no float drift", func(t *testing.T) {
		values := Param{Name: "k1", Low: 0, High: 3, Step: 0.1}.Values()
		require.Len(t, values, 30)
		for i, v := range values {
			assert.InDelta(t, float64(i)*0.1, v, 1e-12)
			_, frac := math.Modf(v * 10)
			assert.InDelta(t, 0, math.Min(frac, 1-frac), 1e-9)
		}
	})
}

func TestGridSamplerEnumeration(t *testing.T) {
	sampler, err := NewGridSampler([]Param{
		{Name: "a", Low: 0, High: 0.3, Step: 0.1},
		{Name: "b", Low: 0, High: 0.2, Step: 0.1},
	})
	require.NoError(t, err)
	assert.Equal(t, 6, sampler.Size())

	var trials []Trial
	var points []map[string]float64
	for {
		params, ok := sampler.Next(trials)
		if !ok {
			break
		}
		points = append(points, params)
		trials = append(trials, Trial{Params: params, State: TrialComplete})
	}
	require.Len(t, points, 6)
	// Last parameter varies fastest.
	assert.InDelta(t, 0.0, points[0]["a"], 1e-12)
	assert.InDelta(t, 0.0, points[0]["b"], 1e-12)
	assert.InDelta(t, 0.0, points[1]["a"], 1e-12)
	assert.InDelta(t, 0.1, points[1]["b"], 1e-12)
	assert.InDelta(t, 0.2, points[5]["a"], 1e-12)
	assert.InDelta(t, 0.1, points[5]["b"], 1e-12)
}

func TestGridSamplerValidation(t *testing.T) {
	_, err := NewGridSampler(nil)
	assert.Error(t, err)

	_, err = NewGridSampler([]Param{{Name: "a", Low: 0, High: 1, Step: 0}})
	assert.Error(t, err)

	_, err = NewGridSampler([]Param{
		{Name: "a", Low: 0, High: 1, Step: 0.5},
		{Name: "a", Low: 0, High: 1, Step: 0.5},
	})
	assert.Error(t, err)
}

func newWeightSampler(t *testing.T) *GridSampler {
	t.Helper()
	sampler, err := NewGridSampler([]Param{
		{Name: "w", Low: 0, High: 0.5, Step: 0.1},
	})
	require.NoError(t, err)
	return sampler
}

func TestOptimizeRunsExactlyN(t *testing.T) {
	s, err := New(context.Background(), "test", newWeightSampler(t))
	require.NoError(t, err)

	calls := 0
	objective := func(_ context.Context, trial *Trial) (float64, error) {
		calls++
		return trial.Params["w"], nil
	}
	require.NoError(t, s.Optimize(context.Background(), 3, objective))
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, s.Len())

	best, err := s.BestTrial()
	require.NoError(t, err)
	assert.InDelta(t, 0.2, best.Value, 1e-12)
}

func TestOptimizeResumesFromStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	objective := func(_ context.Context, trial *Trial) (float64, error) {
		return trial.Params["w"], nil
	}

	first, err := New(ctx, "resume", newWeightSampler(t), WithStore(store))
	require.NoError(t, err)
	require.NoError(t, first.Optimize(ctx, 2, objective))

	// A fresh study with the same name picks up the 2 stored trials and
	// runs exactly 2 more, never repeating a parameter assignment.
	second, err := New(ctx, "resume", newWeightSampler(t), WithStore(store))
	require.NoError(t, err)
	require.Equal(t, 2, second.Len())
	require.NoError(t, second.Optimize(ctx, 2, objective))
	require.Equal(t, 4, second.Len())

	seen := make(map[float64]int)
	for _, trial := range second.Trials() {
		seen[math.Round(trial.Params["w"]*10)]++
	}
	for w, count := range seen {
		assert.Equal(t, 1, count, "weight %v proposed more than once", w/10)
	}
}

func TestOptimizePrunedTrialsCountAndAreNotRetried(t *testing.T) {
	s, err := New(context.Background(), "pruned", newWeightSampler(t))
	require.NoError(t, err)

	objective := func(_ context.Context, trial *Trial) (float64, error) {
		if trial.Params["w"] < 0.15 {
			return 0, ErrTrialPruned
		}
		return trial.Params["w"], nil
	}
	require.NoError(t, s.Optimize(context.Background(), 5, objective))
	require.Equal(t, 5, s.Len())

	pruned := 0
	for _, trial := range s.Trials() {
		if trial.State == TrialPruned {
			pruned++
		}
	}
	assert.Equal(t, 2, pruned)

	best, err := s.BestTrial()
	require.NoError(t, err)
	assert.InDelta(t, 0.4, best.Value, 1e-12)
}

func TestOptimizeStopsOnExhaustedGrid(t *testing.T) {
	s, err := New(context.Background(), "exhausted", newWeightSampler(t))
	require.NoError(t, err)

	objective := func(_ context.Context, trial *Trial) (float64, error) {
		return trial.Params["w"], nil
	}
	require.NoError(t, s.Optimize(context.Background(), 100, objective))
	assert.Equal(t, 5, s.Len())
}

func TestOptimizeFailedObjectiveAborts(t *testing.T) {
	s, err := New(context.Background(), "failed", newWeightSampler(t))
	require.NoError(t, err)

	boom := errors.New("boom")
	objective := func(_ context.Context, _ *Trial) (float64, error) {
		return 0, boom
	}
	err = s.Optimize(context.Background(), 3, objective)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, TrialFailed, s.Trials()[0].State)
}

func TestBestTrialEmpty(t *testing.T) {
	s, err := New(context.Background(), "empty", newWeightSampler(t))
	require.NoError(t, err)
	_, err = s.BestTrial()
	assert.ErrorIs(t, err, ErrNoTrials)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	trials := []Trial{
		{Number: 0, Params: map[string]float64{"w": 0.3}, State: TrialComplete, Value: 0.81},
		{Number: 1, Params: map[string]float64{"w": 0.4}, State: TrialPruned},
	}
	require.NoError(t, store.Save(ctx, "trip", trials))

	loaded, err := store.Load(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, trials, loaded)

	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrStudyNotFound)
}

func TestNewStoreFactory(t *testing.T) {
	store, err := NewStore(StoreConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewStore(StoreConfig{Backend: "cassandra"})
	assert.Error(t, err)
}
