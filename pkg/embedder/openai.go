package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder implements the Client interface using the OpenAI API.
type OpenAIEmbedder struct {
	client *openai.Client
	config Config
}

// NewOpenAIEmbedder creates a new OpenAI embedding client.
func NewOpenAIEmbedder(apiKey string, config Config) *OpenAIEmbedder {
	if config.Model == "" {
		config.Model = defaultOpenAIModel
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}
}

// Embed generates embeddings for the given texts, batching requests
// according to the configured batch size.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: openai.EmbeddingModel(e.config.Model),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}
		for _, item := range resp.Data {
			embeddings = append(embeddings, item.Embedding)
		}
	}
	return embeddings, nil
}

// EmbedSingle generates an embedding for a single text.
func (e *OpenAIEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Dimensions returns the configured embedding dimensionality.
func (e *OpenAIEmbedder) Dimensions() int {
	if e.config.Dimensions > 0 {
		return e.config.Dimensions
	}
	return 1536
}
