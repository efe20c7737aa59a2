// Package embedding provides text embedders: a remote eino-backed embedder,
// an LRU-cached wrapper and a deterministic embedder for tests.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the vector size, or 0 when not yet known.
	Dimensions() int
	Close() error
}
