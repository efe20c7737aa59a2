// Package indexer turns uploaded documents into retrievable chunks.
package indexer

import (
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/policyqa/internal/extract"
	"github.com/hyperjump/policyqa/internal/models"
)

// Chunker splits text into overlapping word-based chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
// An overlap not smaller than the size is reduced so windows always advance.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize - 1
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits text into DocumentChunks with overlapping windows.
func (c *Chunker) Chunk(docID, text string) []*models.DocumentChunk {
	return c.ChunkPages(docID, "", []extract.Page{{Text: text}})
}

// ChunkPages splits each page separately so every chunk keeps its page number.
// ChunkIndex runs across the whole document.
func (c *Chunker) ChunkPages(docID, source string, pages []extract.Page) []*models.DocumentChunk {
	var chunks []*models.DocumentChunk
	now := time.Now().UTC()
	step := c.chunkSize - c.chunkOverlap
	for _, page := range pages {
		words := strings.Fields(page.Text)
		for i := 0; i < len(words); i += step {
			end := i + c.chunkSize
			if end > len(words) {
				end = len(words)
			}
			idx := len(chunks)
			chunks = append(chunks, &models.DocumentChunk{
				ID:         fmt.Sprintf("%s_%05d", docID, idx),
				DocumentID: docID,
				Content:    strings.Join(words[i:end], " "),
				Source:     source,
				Page:       page.Number,
				ChunkIndex: idx,
				CreatedAt:  now,
			})
			if end >= len(words) {
				break
			}
		}
	}
	return chunks
}
