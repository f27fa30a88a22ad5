package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/soundprediction/go-rust-bert/pkg/rustbert"
)

// RustBertAnswerer runs extractive question answering on a local
// rust-bert model. The model loads lazily on first use and is guarded by
// a mutex, the underlying runtime is not reentrant.
type RustBertAnswerer struct {
	mu    sync.Mutex
	model *rustbert.QAModel
}

// NewRustBertAnswerer creates an answerer. The model is not loaded until
// the first Answer call; use Load to front-load the cost.
func NewRustBertAnswerer() *RustBertAnswerer {
	return &RustBertAnswerer{}
}

// Load loads the QA model if it is not loaded yet.
func (a *RustBertAnswerer) Load() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadLocked()
}

func (a *RustBertAnswerer) loadLocked() error {
	if a.model != nil {
		return nil
	}
	m, err := rustbert.NewQAModel()
	if err != nil {
		return fmt.Errorf("load qa model: %w", err)
	}
	a.model = m
	return nil
}

// Answer extracts answers to question from contextText, best first.
func (a *RustBertAnswerer) Answer(ctx context.Context, question, contextText string) ([]Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.loadLocked(); err != nil {
		return nil, err
	}
	results, err := a.model.Predict(question, contextText)
	if err != nil {
		return nil, fmt.Errorf("qa prediction: %w", err)
	}
	answers := make([]Answer, len(results))
	for i, r := range results {
		answers[i] = Answer{Text: r.Answer, Score: r.Score}
	}
	return answers, nil
}

// Close releases the model.
func (a *RustBertAnswerer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.model != nil {
		a.model.Close()
		a.model = nil
	}
}
