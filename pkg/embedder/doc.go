// Package embedder provides text embedding clients for vector representations.
//
// This package defines the Client interface and provides implementations for
// various embedding providers including OpenAI and local embedding models.
// From the point of view of the retrieval and training packages an embedder
// is a black box mapping texts to pooled dense representations.
//
// # Supported Providers
//
// The following embedding providers are supported:
//   - OpenAI: text-embedding-3-small, text-embedding-3-large, text-embedding-ada-002
//   - EmbedEverything: local embedding models via go-embedeverything
//   - Mock: deterministic hash-based embeddings for tests
//
// # Usage
//
//	// Create an OpenAI embedder
//	embedder := embedder.NewOpenAIEmbedder(apiKey, embedder.Config{
//	    Model:     "text-embedding-3-small",
//	    BatchSize: 100,
//	})
//
//	// Embed text
//	embeddings, err := embedder.Embed(ctx, []string{"hello world"})
//
// # Batch Processing
//
// The Client interface supports batch embedding for efficiency:
//   - Embed(): Embed multiple texts in a single request
//   - EmbedSingle(): Convenience method for single text
//
// Implementations handle batching internally based on provider limits.
package embedder
