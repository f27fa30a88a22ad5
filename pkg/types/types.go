package types

import (
	"errors"
)

// Validation errors
var (
	ErrEmptyID      = errors.New("id cannot be empty")
	ErrEmptyInput   = errors.New("input cannot be empty")
	ErrEmptyAnswer  = errors.New("answer set must contain the original answer")
	ErrInvalidLimit = errors.New("limit must be positive")
)

// AnswerSet is the gold output of a question: the canonical answer string
// plus the alternative surface forms accepted at evaluation time.
type AnswerSet struct {
	OriginalAnswer string   `json:"original_answer" mapstructure:"original_answer"`
	Answers        []string `json:"answer" mapstructure:"answer"`
}

// Validate checks that the answer set carries its original answer.
func (a *AnswerSet) Validate() error {
	if a.OriginalAnswer == "" {
		return ErrEmptyAnswer
	}
	return nil
}

// All returns every accepted answer string, the original one first and
// deduplicated against the alternatives.
func (a *AnswerSet) All() []string {
	all := []string{a.OriginalAnswer}
	for _, alt := range a.Answers {
		if alt != a.OriginalAnswer {
			all = append(all, alt)
		}
	}
	return all
}

// Retrieval holds the retrieval columns of a question for one search key.
//
// Indices/Scores are the ranked search output (descending score) used in
// evaluation mode. ProvenanceIndices are the known-relevant passage indices,
// IrrelevantIndices the search results judged irrelevant, and
// AlternativeIndices additional relevant passages found post-hoc; the three
// partitions drive training-mode passage sampling and relevance judgments.
type Retrieval struct {
	Indices            []int     `json:"indices" mapstructure:"indices"`
	Scores             []float64 `json:"scores" mapstructure:"scores"`
	ProvenanceIndices  []int     `json:"provenance_indices" mapstructure:"provenance_indices"`
	IrrelevantIndices  []int     `json:"irrelevant_indices" mapstructure:"irrelevant_indices"`
	AlternativeIndices []int     `json:"alternative_indices" mapstructure:"alternative_indices"`
}

// Question is one row of a QA dataset.
type Question struct {
	ID    string `json:"id" mapstructure:"id"`
	Input string `json:"input" mapstructure:"input"`

	// Image is the optional image reference for multi-modal variants.
	Image string `json:"image,omitempty" mapstructure:"image"`

	Output AnswerSet `json:"output" mapstructure:"output"`

	// Search holds retrieval results keyed by search key ("search" by
	// default; e.g. also "bm25" or "dpr" when several runs are kept).
	Search map[string]*Retrieval `json:"search,omitempty" mapstructure:"search"`
}

// Validate checks if the Question has all required fields set.
func (q *Question) Validate() error {
	if q.ID == "" {
		return ErrEmptyID
	}
	if q.Input == "" {
		return ErrEmptyInput
	}
	return q.Output.Validate()
}

// RetrievalFor returns the retrieval columns for the given search key,
// or an empty Retrieval when the question has none.
func (q *Question) RetrievalFor(key string) *Retrieval {
	if q.Search != nil {
		if r, ok := q.Search[key]; ok && r != nil {
			return r
		}
	}
	return &Retrieval{}
}

// Passage is one entry of a knowledge base: an ordered collection where
// Index is the stable position of the passage.
type Passage struct {
	Index int    `json:"index" mapstructure:"index"`
	Text  string `json:"passage" mapstructure:"passage"`

	// Image is the optional associated image path for multi-modal variants.
	Image string `json:"image,omitempty" mapstructure:"image"`
}
