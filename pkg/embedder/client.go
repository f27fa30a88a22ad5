package embedder

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when Embed is called with no texts.
var ErrEmptyInput = errors.New("no texts to embed")

// Provider identifies an embedding backend.
type Provider string

const (
	ProviderOpenAI          Provider = "openai"
	ProviderEmbedEverything Provider = "embed_everything"
	ProviderMock            Provider = "mock"
)

// Client embeds texts into dense vector representations. Encoders are
// black boxes from the point of view of retrieval and training: a Client
// maps strings to pooled representations and nothing else.
type Client interface {
	// Embed generates embeddings for the given texts, one vector per text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the embedding dimensionality.
	Dimensions() int
}

// Config holds common embedder settings.
type Config struct {
	Provider   Provider `mapstructure:"provider"`
	Model      string   `mapstructure:"model"`
	APIKey     string   `mapstructure:"api_key"`
	BaseURL    string   `mapstructure:"base_url"`
	BatchSize  int      `mapstructure:"batch_size"`
	Dimensions int      `mapstructure:"dimensions"`
}

// NewClient creates an embedding client for the configured provider.
func NewClient(config Config) (Client, error) {
	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIEmbedder(config.APIKey, config), nil
	case ProviderEmbedEverything:
		return NewEmbedEverythingClient(&EmbedEverythingConfig{Config: &config})
	case ProviderMock:
		return NewMockEmbedder(config.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s (supported: openai, embed_everything, mock)", config.Provider)
	}
}
