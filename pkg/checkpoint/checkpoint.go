// Package checkpoint reads and writes model checkpoints: a weight state
// dict keyed by parameter name, a trainer-state sidecar with step
// counters, and a sweep helper enumerating checkpoint directories.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Well-known file names inside a checkpoint directory.
const (
	WeightsFile      = "weights.json"
	TrainerStateFile = "trainer_state.json"
)

// Tensor is one named parameter: flat values plus the shape they fold
// into.
type Tensor struct {
	Shape  []int     `json:"shape"`
	Values []float64 `json:"values"`
}

// Size returns the number of elements the shape implies.
func (t Tensor) Size() int {
	size := 1
	for _, d := range t.Shape {
		size *= d
	}
	return size
}

// Validate checks the flat values match the shape.
func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return fmt.Errorf("tensor has no shape")
	}
	if t.Size() != len(t.Values) {
		return fmt.Errorf("tensor shape %v implies %d values, got %d", t.Shape, t.Size(), len(t.Values))
	}
	return nil
}

// StateDict maps parameter names to tensors.
type StateDict map[string]Tensor

// SaveStateDict writes the state dict atomically: a temporary file is
// written first and renamed into place.
func SaveStateDict(path string, sd StateDict) error {
	for name, tensor := range sd {
		if err := tensor.Validate(); err != nil {
			return fmt.Errorf("parameter %s: %w", name, err)
		}
	}
	data, err := json.MarshalIndent(sd, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state dict: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state dict: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename state dict: %w", err)
	}
	return nil
}

// LoadStateDict reads a state dict. A missing file surfaces as an
// os.IsNotExist error so sweeps can skip the checkpoint.
func LoadStateDict(path string) (StateDict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sd StateDict
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("unmarshal state dict %s: %w", path, err)
	}
	for name, tensor := range sd {
		if err := tensor.Validate(); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
	}
	return sd, nil
}

// TrainerState is the step-counter sidecar next to the weights.
type TrainerState struct {
	GlobalStep int                  `json:"global_step"`
	Epoch      float64              `json:"epoch"`
	LogHistory []map[string]float64 `json:"log_history,omitempty"`
}

// SaveTrainerState writes the sidecar into dir.
func SaveTrainerState(dir string, state TrainerState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trainer state: %w", err)
	}
	path := filepath.Join(dir, TrainerStateFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write trainer state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename trainer state: %w", err)
	}
	return nil
}

// LoadTrainerState reads the sidecar from dir. A missing sidecar is not
// an error: a zero state is returned and a diagnostic logged, step
// counters just start from zero.
func LoadTrainerState(dir string, logger *slog.Logger) (TrainerState, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(filepath.Join(dir, TrainerStateFile))
	if os.IsNotExist(err) {
		logger.Warn("trainer state missing, continuing with zeroed counters", "dir", dir)
		return TrainerState{}, nil
	}
	if err != nil {
		return TrainerState{}, fmt.Errorf("read trainer state: %w", err)
	}
	var state TrainerState
	if err := json.Unmarshal(data, &state); err != nil {
		return TrainerState{}, fmt.Errorf("unmarshal trainer state: %w", err)
	}
	return state, nil
}

// Sweep returns the checkpoint directories matching the glob in lexical
// order. Matches that are not directories are dropped.
func Sweep(glob string) ([]string, error) {
	matches, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("bad checkpoint glob %q: %w", glob, err)
	}
	dirs := matches[:0]
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || !info.IsDir() {
			continue
		}
		dirs = append(dirs, match)
	}
	sort.Strings(dirs)
	return dirs, nil
}
