package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/policyqa/internal/models"
)

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// bleveChunk is the indexed form of a chunk.
type bleveChunk struct {
	Content string `json:"content"`
	Source  string `json:"source"`
	Page    int    `json:"page"`
}

func chunkMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer: lowercase and tokenize without stemming, so clause
	// numbers and medical terms match as written.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", text)
	docMapping.AddFieldMappingsAt("source", bleve.NewKeywordFieldMapping())
	page := bleve.NewNumericFieldMapping()
	page.Index = false
	docMapping.AddFieldMappingsAt("page", page)
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates a new, empty index at path. The path must not exist.
func NewBleveIndex(path string) (*BleveIndex, error) {
	index, err := bleve.New(path, chunkMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// OpenBleveIndex opens an existing index at path.
func OpenBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open Bleve index: %w", err)
	}
	index, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// OpenBleveIndexReadOnly opens an existing index without taking the writer
// lock, so several handles may read the same index at once.
func OpenBleveIndexReadOnly(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open Bleve index: %w", err)
	}
	index, err := bleve.OpenUsing(path, map[string]interface{}{"read_only": true})
	if err != nil {
		return nil, fmt.Errorf("failed to open Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexChunks indexes chunks in a single batch.
func (b *BleveIndex) IndexChunks(ctx context.Context, chunks []*models.DocumentChunk) error {
	batch := b.index.NewBatch()
	for _, c := range chunks {
		if err := batch.Index(c.ID, bleveChunk{Content: c.Content, Source: c.Source, Page: c.Page}); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Search runs a match query over chunk content and returns up to limit results.
// With a phrase boost, chunks containing the whole query as a phrase rank higher.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	var phraseBoost float64
	var fuzziness int
	if opts != nil {
		phraseBoost = opts.PhraseBoost
		fuzziness = opts.Fuzziness
	}

	var q blevequery.Query = b.termQuery(query, fuzziness)
	if phraseBoost > 1 && len(tokenizeQuery(query)) > 1 {
		pq := bleve.NewMatchPhraseQuery(query)
		pq.SetField("content")
		pq.SetBoost(phraseBoost)
		q = bleve.NewDisjunctionQuery(q, pq)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// termQuery matches any query term in content, fuzzily when fuzziness > 0.
func (b *BleveIndex) termQuery(query string, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(query)
	if fuzziness <= 0 || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		mq.SetField("content")
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField("content")
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// tokenizeQuery lower-cases and splits a query into terms the way the standard analyzer does.
func tokenizeQuery(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
