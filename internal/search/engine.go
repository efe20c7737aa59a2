package search

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/policyqa/internal/config"
	"github.com/hyperjump/policyqa/internal/embedding"
	"github.com/hyperjump/policyqa/internal/keyword"
	"github.com/hyperjump/policyqa/internal/models"
	"github.com/hyperjump/policyqa/internal/storage"
	"github.com/hyperjump/policyqa/internal/vector"
)

// candidateFactor widens each leg of a hybrid search before fusion.
const candidateFactor = 5

// Engine ranks chunks of one loaded index.
type Engine struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.VectorIndex
	keywordIndex keyword.KeywordIndex
	config       config.RetrievalConfig
}

// NewEngine creates a search engine. keywordIndex may be nil, in which case
// every query is answered semantically.
func NewEngine(
	storage storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	keywordIndex keyword.KeywordIndex,
	cfg config.RetrievalConfig,
) *Engine {
	return &Engine{
		storage:      storage,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		config:       cfg,
	}
}

// HasKeywordIndex reports whether hybrid queries can run.
func (e *Engine) HasKeywordIndex() bool {
	return e.keywordIndex != nil
}

// Search returns at most query.TopK chunks, best first.
func (e *Engine) Search(ctx context.Context, query *models.RetrievalQuery) ([]*models.RetrievedChunk, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if query.Hybrid && e.keywordIndex != nil {
		return e.hybrid(ctx, query)
	}
	return e.semantic(ctx, query)
}

func (e *Engine) semantic(ctx context.Context, query *models.RetrievalQuery) ([]*models.RetrievedChunk, error) {
	results, err := e.vectorSearch(ctx, query.Query, query.TopK)
	if err != nil {
		return nil, err
	}
	fused := make([]*FusedResult, 0, len(results))
	for _, r := range results {
		fused = append(fused, &FusedResult{ChunkID: r.ID, Score: r.Score, SemanticScore: r.Score})
	}
	return e.hydrate(ctx, fused, query.TopK)
}

func (e *Engine) hybrid(ctx context.Context, query *models.RetrievalQuery) ([]*models.RetrievedChunk, error) {
	candidates := query.TopK * candidateFactor

	var (
		keywordResults  []*keyword.KeywordResult
		semanticResults []*vector.VectorResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := e.keywordIndex.Search(gctx, query.Query, candidates, &keyword.SearchOptions{PhraseBoost: 2, Fuzziness: 1})
		if err != nil {
			return fmt.Errorf("keyword search failed: %w", err)
		}
		keywordResults = results
		return nil
	})
	g.Go(func() error {
		results, err := e.vectorSearch(gctx, query.Query, candidates)
		if err != nil {
			return err
		}
		semanticResults = results
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(
		NormalizeKeywordScores(keywordResults),
		NormalizeSemanticScores(semanticResults),
		e.config.KeywordWeight,
		e.config.SemanticWeight,
	)
	return e.hydrate(ctx, fused, query.TopK)
}

func (e *Engine) vectorSearch(ctx context.Context, text string, k int) ([]*vector.VectorResult, error) {
	queryEmbedding, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	results, err := e.vectorIndex.Search(ctx, queryEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}

// hydrate loads chunk text for the first topK fused results. IDs missing from
// storage are skipped.
func (e *Engine) hydrate(ctx context.Context, fused []*FusedResult, topK int) ([]*models.RetrievedChunk, error) {
	if len(fused) > topK {
		fused = fused[:topK]
	}
	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
	}
	chunks, err := e.storage.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	out := make([]*models.RetrievedChunk, 0, len(fused))
	for _, f := range fused {
		chunk, ok := chunks[f.ChunkID]
		if !ok {
			continue
		}
		out = append(out, &models.RetrievedChunk{
			Chunk:         chunk,
			Score:         f.Score,
			KeywordScore:  f.KeywordScore,
			SemanticScore: f.SemanticScore,
			Rank:          len(out) + 1,
		})
	}
	return out, nil
}
