package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/risposta/pkg/types"
)

func testRows(n int) []types.Question {
	rows := make([]types.Question, n)
	for i := range rows {
		rows[i] = types.Question{
			ID:     fmt.Sprintf("q%d", i),
			Input:  fmt.Sprintf("question %d", i),
			Output: types.AnswerSet{OriginalAnswer: "answer", Answers: []string{"answer"}},
			Search: map[string]*types.Retrieval{
				"search": {ProvenanceIndices: []int{i}},
			},
		}
	}
	return rows
}

func TestDatasetRowAccess(t *testing.T) {
	ds := New(testRows(3), "search")
	require.Equal(t, 3, ds.Len())

	row, err := ds.Row(1)
	require.NoError(t, err)
	assert.Equal(t, "q1", row.ID)

	_, err = ds.Row(3)
	assert.Error(t, err)

	selected, err := ds.Select([]int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, "q2", selected[0].ID)
	assert.Equal(t, "q0", selected[1].ID)

	_, err = ds.Select([]int{-1})
	assert.Error(t, err)
}

func TestDatasetColumns(t *testing.T) {
	ds := New(testRows(2), "search")

	cols, err := ds.Columns("id", "input")
	require.NoError(t, err)
	assert.Equal(t, []string{"q0", "q1"}, cols["id"])
	assert.Equal(t, []string{"question 0", "question 1"}, cols["input"])

	_, err = ds.Columns("provenance")
	assert.ErrorContains(t, err, "unknown column")
}

func TestMapBatchesMutatesInPlace(t *testing.T) {
	ds := New(testRows(5), "search")

	var sizes []int
	err := ds.MapBatches(context.Background(), 2, func(_ context.Context, batch []types.Question) error {
		sizes = append(sizes, len(batch))
		for i := range batch {
			batch[i].Search["search"].Indices = []int{42}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)

	row, err := ds.Row(4)
	require.NoError(t, err)
	assert.Equal(t, []int{42}, row.Search["search"].Indices)
}

func TestMapBatchesRejectsBadBatchSize(t *testing.T) {
	ds := New(testRows(1), "search")
	err := ds.MapBatches(context.Background(), 0, func(context.Context, []types.Question) error {
		return nil
	})
	assert.ErrorIs(t, err, types.ErrInvalidLimit)
}

func TestMapBatchesSnapshotsAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	ds := New(testRows(3), "search", WithCaching(dir))

	noop := func(context.Context, []types.Question) error { return nil }
	require.NoError(t, ds.MapBatches(context.Background(), 2, noop))
	require.NoError(t, ds.MapBatches(context.Background(), 2, noop))

	paths, err := filepath.Glob(filepath.Join(dir, "cache-*.parquet"))
	require.NoError(t, err)
	require.Len(t, paths, 2)

	require.NoError(t, ds.CleanupCacheFiles())
	paths, err = filepath.Glob(filepath.Join(dir, "cache-*.parquet"))
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(dir, "cache-1.parquet"), paths[0])
}

func TestDatasetParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.parquet")
	rows := testRows(2)
	rows[0].Search["search"].Indices = []int{3, 1}
	rows[0].Search["search"].Scores = []float64{0.9, 0.2}

	require.NoError(t, New(rows, "search").Save(path))

	loaded, err := Load(path, "fusion")
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())
	assert.Equal(t, "fusion", loaded.SearchKey())

	row, err := loaded.Row(0)
	require.NoError(t, err)
	assert.Equal(t, "q0", row.ID)
	assert.Equal(t, []string{"answer"}, row.Output.Answers)
	assert.Equal(t, []int{3, 1}, row.Search["fusion"].Indices)
	assert.Equal(t, []float64{0.9, 0.2}, row.Search["fusion"].Scores)
	assert.Equal(t, []int{0}, row.Search["fusion"].ProvenanceIndices)
}

func TestKnowledgeBaseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.parquet")
	kb := NewKnowledgeBase([]types.Passage{
		{Text: "first passage"},
		{Text: "second passage"},
	})

	require.NoError(t, SaveKnowledgeBase(path, kb))

	loaded, err := LoadKnowledgeBase(path)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())
	assert.Equal(t, 1, loaded.Passage(1).Index)
	assert.Equal(t, "second passage", loaded.Passage(1).Text)

	texts, err := loaded.Texts([]int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"second passage", "first passage"}, texts)

	_, err = loaded.Texts([]int{5})
	assert.Error(t, err)
}

func TestAttachImages(t *testing.T) {
	dir := t.TempDir()
	mapping := filepath.Join(dir, "images.json")
	require.NoError(t, os.WriteFile(mapping, []byte(`{"1": "vienna.jpg"}`), 0o644))

	kb := NewKnowledgeBase([]types.Passage{{Text: "a"}, {Text: "b"}})
	require.NoError(t, kb.AttachImages(mapping, "/images"))
	assert.Equal(t, filepath.Join("/images", "vienna.jpg"), kb.Passage(1).Image)
	assert.Empty(t, kb.Passage(0).Image)

	require.NoError(t, os.WriteFile(mapping, []byte(`{"9": "x.jpg"}`), 0o644))
	assert.Error(t, kb.AttachImages(mapping, "/images"))
}
