package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateDictRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, WeightsFile)

	sd := StateDict{
		"encoder.weight": {Shape: []int{2, 3}, Values: []float64{1, 2, 3, 4, 5, 6}},
		"encoder.bias":   {Shape: []int{3}, Values: []float64{0.1, 0.2, 0.3}},
	}
	require.NoError(t, SaveStateDict(path, sd))

	loaded, err := LoadStateDict(path)
	require.NoError(t, err)
	assert.Equal(t, sd, loaded)

	// No stray temporary file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadStateDictMissing(t *testing.T) {
	_, err := LoadStateDict(filepath.Join(t.TempDir(), WeightsFile))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveStateDictRejectsBadShape(t *testing.T) {
	sd := StateDict{"w": {Shape: []int{2, 2}, Values: []float64{1, 2, 3}}}
	err := SaveStateDict(filepath.Join(t.TempDir(), WeightsFile), sd)
	assert.Error(t, err)
}

func TestTrainerStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	state := TrainerState{
		GlobalStep: 1200,
		Epoch:      2.5,
		LogHistory: []map[string]float64{{"loss": 0.42}},
	}
	require.NoError(t, SaveTrainerState(dir, state))

	loaded, err := LoadTrainerState(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestLoadTrainerStateMissingYieldsZeroState(t *testing.T) {
	state, err := LoadTrainerState(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, TrainerState{}, state)
}

func TestSweep(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"checkpoint-300", "checkpoint-100", "checkpoint-200"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0o755))
	}
	// A plain file matching the glob is not a checkpoint.
	require.NoError(t, os.WriteFile(filepath.Join(root, "checkpoint-400"), nil, 0o644))

	dirs, err := Sweep(filepath.Join(root, "checkpoint-*"))
	require.NoError(t, err)
	require.Len(t, dirs, 3)
	assert.Equal(t, filepath.Join(root, "checkpoint-100"), dirs[0])
	assert.Equal(t, filepath.Join(root, "checkpoint-300"), dirs[2])
}
