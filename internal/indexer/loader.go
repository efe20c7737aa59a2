package indexer

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/config"
	"github.com/hyperjump/policyqa/internal/extract"
	"github.com/hyperjump/policyqa/internal/fileid"
	"github.com/hyperjump/policyqa/internal/models"
	"go.uber.org/zap"
)

// Loader extracts and splits documents into chunks.
type Loader struct {
	extractor *extract.Extractor
	chunker   *Chunker
	logger    *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) { ld.logger = l }
}

// NewLoader creates a loader using the chunking settings in cfg.
func NewLoader(cfg config.ChunkingConfig, opts ...LoaderOption) *Loader {
	ld := &Loader{
		extractor: extract.NewExtractor(),
		chunker:   NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Load reads the document at path and returns its chunks.
// The document ID is derived from the path.
func (ld *Loader) Load(path string) ([]*models.DocumentChunk, error) {
	_, chunks, err := ld.LoadNamed(path, filepath.Base(path), fileid.FileDocID(path))
	return chunks, err
}

// LoadNamed is Load for a staged file: name is the original file name, used for
// format dispatch and provenance, and docID identifies the document.
// A document without any extractable text fails with apperr.ErrEmptyDocument.
func (ld *Loader) LoadNamed(path, name, docID string) (*models.Document, []*models.DocumentChunk, error) {
	ext := filepath.Ext(name)
	if _, err := extract.KindFor(ext); err != nil {
		return nil, nil, err
	}
	pages, err := ld.extractor.ExtractStaged(path, ext)
	if err != nil {
		return nil, nil, fmt.Errorf("extract %s: %w", name, err)
	}
	chunks := ld.chunker.ChunkPages(docID, name, pages)
	if len(chunks) == 0 {
		return nil, nil, apperr.Wrap(fmt.Errorf("%s", name), apperr.KindEmptyDocument, "document contains no text")
	}
	doc := &models.Document{
		ID:         docID,
		Name:       name,
		Pages:      len(pages),
		ChunkCount: len(chunks),
		CreatedAt:  time.Now().UTC(),
	}
	ld.logger.Debug("document loaded",
		zap.String("name", name),
		zap.String("doc_id", docID),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)))
	return doc, chunks, nil
}
