package study

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrStudyNotFound is returned when loading a study the store has never
// seen.
var ErrStudyNotFound = errors.New("study not found")

// Store persists study trials between runs.
type Store interface {
	Save(ctx context.Context, name string, trials []Trial) error
	Load(ctx context.Context, name string) ([]Trial, error)
	Close() error
}

// StoreConfig selects and configures a store backend.
type StoreConfig struct {
	// Backend is one of "badger", "redis" or "memory".
	Backend string `mapstructure:"backend"`
	// Path is the badger database directory.
	Path string `mapstructure:"path"`
	// Addr, Password and DB configure the redis backend.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NewStore creates a store for the configured backend.
func NewStore(cfg StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "badger":
		return NewBadgerStore(cfg.Path)
	case "redis":
		return NewRedisStore(cfg.Addr, cfg.Password, cfg.DB), nil
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported study store backend: %s", cfg.Backend)
	}
}

// MemoryStore keeps studies in process memory. Used in tests and when no
// persistence is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	studies map[string][]Trial
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{studies: make(map[string][]Trial)}
}

func (m *MemoryStore) Save(_ context.Context, name string, trials []Trial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]Trial, len(trials))
	copy(copied, trials)
	m.studies[name] = copied
	return nil
}

func (m *MemoryStore) Load(_ context.Context, name string) ([]Trial, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trials, ok := m.studies[name]
	if !ok {
		return nil, ErrStudyNotFound
	}
	copied := make([]Trial, len(trials))
	copy(copied, trials)
	return copied, nil
}

func (m *MemoryStore) Close() error { return nil }
