package index

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker guards remote index backends. Retrieval trials hammer the same
// endpoints thousands of times; a tripped breaker fails the trial loop fast
// instead of stalling it on a dead backend.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// NewBreaker creates a circuit breaker named after the index it guards.
// Returns nil when disabled, which callers treat as a pass-through.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if !cfg.Enabled {
		return nil
	}
	if cfg.ReadyToTripRatio <= 0 {
		cfg.ReadyToTripRatio = 0.6
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				slog.Warn("circuit breaker tripped", "index", name, "from", from.String(), "to", to.String())
			}
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker, preserving its result type.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}
