// Package models defines the data structures shared by ingestion, retrieval and sessions.
package models

import "time"

// Document describes the uploaded file an index was built from.
type Document struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	Pages      int       `json:"pages" yaml:"pages"`
	ChunkCount int       `json:"chunk_count" yaml:"chunk_count"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// DocumentChunk is a text fragment of a document with its provenance.
// Chunks are created by ingestion and only live until the index is built.
type DocumentChunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Content    string    `json:"content" db:"content"`
	Source     string    `json:"source" db:"source"`
	Page       int       `json:"page" db:"page"` // 1-based; 0 when the format has no pages
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Embedding  []float32 `json:"-" db:"-"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
