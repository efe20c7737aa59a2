package vectorstore

import (
	"context"
	"errors"

	"github.com/hyperjump/policyqa/internal/config"
	"github.com/hyperjump/policyqa/internal/keyword"
	"github.com/hyperjump/policyqa/internal/models"
	"github.com/hyperjump/policyqa/internal/search"
	"github.com/hyperjump/policyqa/internal/storage"
	"github.com/hyperjump/policyqa/internal/vector"
)

// Handle is a loaded index bound to the embedder used for queries.
type Handle struct {
	manifest  *Manifest
	vectors   vector.VectorIndex
	docstore  storage.Storage
	keyword   keyword.KeywordIndex
	engine    *search.Engine
	retrieval config.RetrievalConfig
}

// Manifest describes the loaded slot.
func (h *Handle) Manifest() *Manifest {
	return h.manifest
}

// Size is the number of indexed chunks.
func (h *Handle) Size() int {
	return h.vectors.Size()
}

// Hybrid reports whether queries fuse keyword and semantic scores.
func (h *Handle) Hybrid() bool {
	return h.retrieval.Hybrid() && h.engine.HasKeywordIndex()
}

// TopK is the default number of chunks retrieved per question.
func (h *Handle) TopK() int {
	if h.retrieval.TopK <= 0 {
		return 4
	}
	return h.retrieval.TopK
}

// Search returns the k chunks most relevant to query. k <= 0 uses TopK.
func (h *Handle) Search(ctx context.Context, query string, k int) ([]*models.RetrievedChunk, error) {
	if k <= 0 {
		k = h.TopK()
	}
	results, err := h.engine.Search(ctx, &models.RetrievalQuery{Query: query, TopK: k, Hybrid: h.Hybrid()})
	if err != nil {
		return nil, asExternal(err, "retrieval failed")
	}
	return results, nil
}

// Documents lists the documents stored in the slot.
func (h *Handle) Documents(ctx context.Context) ([]*models.Document, error) {
	return h.docstore.ListDocuments(ctx)
}

// Close releases the index files. The bound embedder is not closed.
func (h *Handle) Close() error {
	var errs []error
	if h.keyword != nil {
		errs = append(errs, h.keyword.Close())
	}
	errs = append(errs, h.docstore.Close(), h.vectors.Close())
	return errors.Join(errs...)
}
