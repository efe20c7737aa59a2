// Package storage persists the chunk text and document record behind a vector index.
package storage

import (
	"context"

	"github.com/hyperjump/policyqa/internal/models"
)

// Storage defines document and chunk persistence for one index slot.
type Storage interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	ListDocuments(ctx context.Context) ([]*models.Document, error)

	BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error
	GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error)
	// GetChunks returns the chunks found for ids, keyed by ID. Unknown IDs are omitted.
	GetChunks(ctx context.Context, ids []string) (map[string]*models.DocumentChunk, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
