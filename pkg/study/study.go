package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Trial states.
type TrialState int

const (
	TrialRunning TrialState = iota
	TrialComplete
	TrialPruned
	TrialFailed
)

func (s TrialState) String() string {
	switch s {
	case TrialRunning:
		return "running"
	case TrialComplete:
		return "complete"
	case TrialPruned:
		return "pruned"
	case TrialFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrTrialPruned is returned by an objective to discard the current
// parameter assignment without counting it as a failure. Pruned trials
// are recorded so the sampler never proposes them again.
var ErrTrialPruned = errors.New("trial pruned")

// ErrNoTrials is returned by BestTrial when no trial has completed.
var ErrNoTrials = errors.New("study has no completed trial")

// Trial is one evaluated parameter assignment.
type Trial struct {
	Number int                `json:"number"`
	Params map[string]float64 `json:"params"`
	State  TrialState         `json:"state"`
	Value  float64            `json:"value"`
}

// Objective evaluates a trial's parameters and returns the value to
// maximize. Returning ErrTrialPruned (possibly wrapped) prunes the trial.
type Objective func(ctx context.Context, trial *Trial) (float64, error)

// Study is a resumable maximization over a parameter grid.
type Study struct {
	name    string
	sampler *GridSampler
	store   Store
	trials  []Trial
	logger  *slog.Logger
}

// StudyOption configures a Study.
type StudyOption func(*Study)

// WithStore persists the study through the given store.
func WithStore(store Store) StudyOption {
	return func(s *Study) { s.store = store }
}

// WithStudyLogger sets the study logger.
func WithStudyLogger(logger *slog.Logger) StudyOption {
	return func(s *Study) { s.logger = logger }
}

// New creates a study. When a store is configured and already holds a
// study with this name, its trials are loaded so optimization resumes
// after them.
func New(ctx context.Context, name string, sampler *GridSampler, opts ...StudyOption) (*Study, error) {
	if sampler == nil {
		return nil, fmt.Errorf("study %s: nil sampler", name)
	}
	s := &Study{
		name:    name,
		sampler: sampler,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store != nil {
		trials, err := s.store.Load(ctx, name)
		switch {
		case err == nil:
			s.trials = trials
			s.logger.Info("resuming study", "study", name, "trials", len(trials))
		case errors.Is(err, ErrStudyNotFound):
		default:
			return nil, fmt.Errorf("load study %s: %w", name, err)
		}
	}
	return s, nil
}

// Name returns the study name.
func (s *Study) Name() string { return s.name }

// Trials returns a copy of the recorded trials.
func (s *Study) Trials() []Trial {
	out := make([]Trial, len(s.trials))
	copy(out, s.trials)
	return out
}

// Len returns the number of recorded trials.
func (s *Study) Len() int { return len(s.trials) }

// BestTrial returns the completed trial with the highest value.
func (s *Study) BestTrial() (Trial, error) {
	best := -1
	for i, t := range s.trials {
		if t.State != TrialComplete {
			continue
		}
		if best < 0 || t.Value > s.trials[best].Value {
			best = i
		}
	}
	if best < 0 {
		return Trial{}, ErrNoTrials
	}
	return s.trials[best], nil
}

// Optimize runs exactly n new trials, on top of whatever the study
// already holds, unless the grid is exhausted first. Each trial is
// persisted as soon as it finishes. A pruned trial counts toward n, a
// failed objective aborts the run.
func (s *Study) Optimize(ctx context.Context, n int, objective Objective) error {
	for i := 0; i < n; i++ {
		params, ok := s.sampler.Next(s.trials)
		if !ok {
			s.logger.Info("grid exhausted", "study", s.name, "trials", len(s.trials))
			return nil
		}
		trial := Trial{
			Number: len(s.trials),
			Params: params,
			State:  TrialRunning,
		}
		value, err := objective(ctx, &trial)
		switch {
		case errors.Is(err, ErrTrialPruned):
			trial.State = TrialPruned
			s.logger.Debug("trial pruned", "study", s.name, "trial", trial.Number, "params", params)
		case err != nil:
			trial.State = TrialFailed
			s.trials = append(s.trials, trial)
			if s.store != nil {
				if serr := s.store.Save(ctx, s.name, s.trials); serr != nil {
					s.logger.Error("persist study", "study", s.name, "error", serr)
				}
			}
			return fmt.Errorf("trial %d: %w", trial.Number, err)
		default:
			trial.State = TrialComplete
			trial.Value = value
			s.logger.Info("trial complete", "study", s.name, "trial", trial.Number, "value", value, "params", params)
		}
		s.trials = append(s.trials, trial)
		if s.store != nil {
			if err := s.store.Save(ctx, s.name, s.trials); err != nil {
				return fmt.Errorf("persist study %s: %w", s.name, err)
			}
		}
	}
	return nil
}
