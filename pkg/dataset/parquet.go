package dataset

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/soundprediction/risposta/pkg/types"
)

// parquetQuestion is the Parquet row schema for a question. Retrieval
// columns are flattened under the dataset's search key the way the loaders
// expect them (<key>_indices, <key>_scores, ...); the key itself is stored
// per file, not per row.
type parquetQuestion struct {
	ID             string `parquet:"id"`
	Input          string `parquet:"input"`
	Image          string `parquet:"image,optional"`
	OriginalAnswer string `parquet:"original_answer"`
	Answers        []string `parquet:"answer"`

	SearchIndices      []int64   `parquet:"search_indices"`
	SearchScores       []float64 `parquet:"search_scores"`
	ProvenanceIndices  []int64   `parquet:"search_provenance_indices"`
	IrrelevantIndices  []int64   `parquet:"search_irrelevant_indices"`
	AlternativeIndices []int64   `parquet:"search_alternative_indices"`
}

// parquetPassage is the Parquet row schema for a knowledge-base passage.
// The stable passage index is the row position.
type parquetPassage struct {
	Passage string `parquet:"passage"`
	Image   string `parquet:"image,optional"`
}

func toInts(xs []int64) []int {
	if xs == nil {
		return nil
	}
	out := make([]int, len(xs))
	for i, x := range xs {
		out[i] = int(x)
	}
	return out
}

func toInt64s(xs []int) []int64 {
	if xs == nil {
		return nil
	}
	out := make([]int64, len(xs))
	for i, x := range xs {
		out[i] = int64(x)
	}
	return out
}

func fromParquetQuestion(row parquetQuestion, searchKey string) types.Question {
	return types.Question{
		ID:    row.ID,
		Input: row.Input,
		Image: row.Image,
		Output: types.AnswerSet{
			OriginalAnswer: row.OriginalAnswer,
			Answers:        row.Answers,
		},
		Search: map[string]*types.Retrieval{
			searchKey: {
				Indices:            toInts(row.SearchIndices),
				Scores:             row.SearchScores,
				ProvenanceIndices:  toInts(row.ProvenanceIndices),
				IrrelevantIndices:  toInts(row.IrrelevantIndices),
				AlternativeIndices: toInts(row.AlternativeIndices),
			},
		},
	}
}

func toParquetQuestion(q types.Question, searchKey string) parquetQuestion {
	r := q.RetrievalFor(searchKey)
	return parquetQuestion{
		ID:                 q.ID,
		Input:              q.Input,
		Image:              q.Image,
		OriginalAnswer:     q.Output.OriginalAnswer,
		Answers:            q.Output.Answers,
		SearchIndices:      toInt64s(r.Indices),
		SearchScores:       r.Scores,
		ProvenanceIndices:  toInt64s(r.ProvenanceIndices),
		IrrelevantIndices:  toInt64s(r.IrrelevantIndices),
		AlternativeIndices: toInt64s(r.AlternativeIndices),
	}
}

// Load reads a question dataset from a Parquet file. Retrieval columns are
// attached under searchKey.
func Load(path, searchKey string) (*Dataset, error) {
	rows, err := parquet.ReadFile[parquetQuestion](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	questions := make([]types.Question, len(rows))
	for i, row := range rows {
		questions[i] = fromParquetQuestion(row, searchKey)
	}
	return New(questions, searchKey), nil
}

// Save writes the dataset to a Parquet file, overwriting any existing file.
func (d *Dataset) Save(path string) error {
	rows := make([]parquetQuestion, len(d.rows))
	for i, q := range d.rows {
		rows[i] = toParquetQuestion(q, d.searchKey)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write dataset %s: %w", path, err)
	}
	return nil
}

// LoadKnowledgeBase reads an ordered passage collection from a Parquet file.
func LoadKnowledgeBase(path string) (*KnowledgeBase, error) {
	rows, err := parquet.ReadFile[parquetPassage](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base %s: %w", path, err)
	}
	passages := make([]types.Passage, len(rows))
	for i, row := range rows {
		passages[i] = types.Passage{Index: i, Text: row.Passage, Image: row.Image}
	}
	return NewKnowledgeBase(passages), nil
}

// SaveKnowledgeBase writes passages to a Parquet file in index order.
func SaveKnowledgeBase(path string, kb *KnowledgeBase) error {
	rows := make([]parquetPassage, kb.Len())
	for i := 0; i < kb.Len(); i++ {
		p := kb.Passage(i)
		rows[i] = parquetPassage{Passage: p.Text, Image: p.Image}
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write knowledge base %s: %w", path, err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
