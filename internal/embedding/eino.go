package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/pkg/utils"
)

const defaultBatchSize = 64

// EinoEmbedder adapts an eino embedder to Embedder. Vectors are converted to
// float32 and L2-normalised so inner product equals cosine similarity.
type EinoEmbedder struct {
	inner     einoembedding.Embedder
	batchSize int
	dims      atomic.Int64
}

// NewEinoEmbedder wraps inner. batchSize bounds the texts sent per request; <= 0 uses 64.
func NewEinoEmbedder(inner einoembedding.Embedder, batchSize int) *EinoEmbedder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &EinoEmbedder{inner: inner, batchSize: batchSize}
}

// Embed embeds a single text.
func (e *EinoEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in batches. Any provider failure is an external-call error.
func (e *EinoEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		v64, err := e.inner.EmbedStrings(ctx, texts[start:end])
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindExternalCall, "embedding request failed")
		}
		if len(v64) != end-start {
			return nil, apperr.Wrap(fmt.Errorf("got %d embeddings for %d texts", len(v64), end-start),
				apperr.KindExternalCall, "embedding request failed")
		}
		for _, vec := range v64 {
			f := utils.UnitFloat32(vec)
			e.dims.Store(int64(len(f)))
			out = append(out, f)
		}
	}
	return out, nil
}

// Dimensions returns the size of the last vector produced, or 0 before the first call.
func (e *EinoEmbedder) Dimensions() int {
	return int(e.dims.Load())
}

// Close is a no-op; the eino client holds no resources.
func (e *EinoEmbedder) Close() error {
	return nil
}
