// Package vector provides the dense vector indexes behind the persisted document index.
package vector

import "context"

// VectorIndex stores normalised vectors by chunk ID and answers top-k inner-product queries.
// Indexes are built once and never updated in place.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	// Save writes the index under dir using the type's file names.
	Save(dir string) error
	Size() int
	Dimensions() int
	Close() error
	Type() string
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID    string
	Score float64 // inner product; cosine similarity for normalised vectors
}
