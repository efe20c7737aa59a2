package vectorstore

import (
	"context"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

// Metadata keys set on retrieved documents.
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaChunkIndex = "chunk_index"
	MetaDocumentID = "document_id"
)

// Retriever adapts a Handle to the eino retriever interface.
type Retriever struct {
	handle         *Handle
	topK           int
	scoreThreshold *float64
}

// Retriever returns an eino retriever over h. Options passed here become the
// defaults; options passed to Retrieve override them.
func (h *Handle) Retriever(opts ...retriever.Option) *Retriever {
	topK := h.TopK()
	o := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	r := &Retriever{handle: h, topK: topK, scoreThreshold: o.ScoreThreshold}
	if o.TopK != nil && *o.TopK > 0 {
		r.topK = *o.TopK
	}
	return r
}

// GetType names the retriever in eino callbacks.
func (r *Retriever) GetType() string {
	return "PolicyIndex"
}

// Retrieve returns the chunks relevant to query as eino documents, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := r.topK
	o := retriever.GetCommonOptions(&retriever.Options{TopK: &topK, ScoreThreshold: r.scoreThreshold}, opts...)
	k := r.topK
	if o.TopK != nil && *o.TopK > 0 {
		k = *o.TopK
	}

	results, err := r.handle.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	docs := make([]*schema.Document, 0, len(results))
	for _, res := range results {
		if o.ScoreThreshold != nil && res.Score < *o.ScoreThreshold {
			continue
		}
		c := res.Chunk
		doc := &schema.Document{
			ID:      c.ID,
			Content: c.Content,
			MetaData: map[string]any{
				MetaSource:     c.Source,
				MetaPage:       c.Page,
				MetaChunkIndex: c.ChunkIndex,
				MetaDocumentID: c.DocumentID,
			},
		}
		docs = append(docs, doc.WithScore(res.Score))
	}
	return docs, nil
}

var _ retriever.Retriever = (*Retriever)(nil)
