// Package keyword provides the lexical leg of hybrid retrieval over document chunks.
package keyword

import (
	"context"

	"github.com/hyperjump/policyqa/internal/models"
)

// DirName is the keyword index directory inside an index slot.
const DirName = "keyword.bleve"

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// PhraseBoost multiplies the score of chunks containing the query as a phrase.
	// Values <= 1 disable the phrase clause.
	PhraseBoost float64
	// Fuzziness is the maximum edit distance per term (1 or 2); 0 disables fuzzy matching.
	Fuzziness int
}

// KeywordIndex defines keyword search over chunks.
type KeywordIndex interface {
	IndexChunks(ctx context.Context, chunks []*models.DocumentChunk) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit; ID is the chunk ID.
type KeywordResult struct {
	ID    string
	Score float64
}
