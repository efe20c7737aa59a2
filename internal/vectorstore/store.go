// Package vectorstore builds and loads the single persisted document index:
// dense vectors, the chunk docstore and an optional keyword index in one directory.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/config"
	"github.com/hyperjump/policyqa/internal/embedding"
	"github.com/hyperjump/policyqa/internal/keyword"
	"github.com/hyperjump/policyqa/internal/models"
	"github.com/hyperjump/policyqa/internal/search"
	"github.com/hyperjump/policyqa/internal/storage"
	"github.com/hyperjump/policyqa/internal/vector"
)

// DefaultDir is the slot directory used when none is configured.
const DefaultDir = "faiss_index"

// Store owns one index slot on disk. A build always replaces the whole slot.
// The slot is not locked; concurrent builders race and the last rename wins.
type Store struct {
	dir       string
	indexType string
	retrieval config.RetrievalConfig
	logger    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIndexType selects the vector index type to build ("memory" or "faiss").
func WithIndexType(t string) Option {
	return func(s *Store) { s.indexType = t }
}

// WithRetrieval sets the retrieval defaults of loaded handles.
// Hybrid mode also makes Build write a keyword index.
func WithRetrieval(r config.RetrievalConfig) Option {
	return func(s *Store) { s.retrieval = r }
}

// New returns a store over dir.
func New(dir string, opts ...Option) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	s := &Store{
		dir:       dir,
		indexType: string(vector.IndexTypeMemory),
		retrieval: config.RetrievalConfig{TopK: 4, Mode: config.RetrievalSemantic, KeywordWeight: 0.3, SemanticWeight: 0.7},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the slot directory.
func (s *Store) Dir() string {
	return s.dir
}

// Exists reports whether a complete index is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(filepath.Join(s.dir, ManifestFileName))
	return err == nil
}

// Clear removes the slot.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove index: %w", err)
	}
	return nil
}

// DiskUsage returns the size of the slot in bytes, 0 when absent.
func (s *Store) DiskUsage() (int64, error) {
	return storage.DiskUsageBytes(s.dir)
}

// Manifest reads the manifest of the current slot.
func (s *Store) Manifest() (*Manifest, error) {
	return readManifest(s.dir)
}

// Build embeds chunks with emb, writes a new slot and swaps it in place of the
// old one. doc may be nil. The returned handle is bound to emb.
func (s *Store) Build(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk, emb embedding.Embedder) (*Handle, error) {
	if len(chunks) == 0 {
		return nil, apperr.ErrEmptyDocument
	}
	start := time.Now()

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		ids[i] = c.ID
	}
	vectors, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, asExternal(err, "failed to embed document")
	}
	if len(vectors) != len(chunks) || len(vectors[0]) == 0 {
		return nil, apperr.Wrap(fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(chunks)),
			apperr.KindExternalCall, "embedding provider returned no vectors")
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	indexType := vector.ResolveType(s.indexType)
	if string(indexType) != s.indexType {
		s.logger.Warn("vector index type unavailable, falling back",
			zap.String("requested", s.indexType),
			zap.String("using", string(indexType)))
	}
	vecIndex, err := vector.NewVectorIndex(string(indexType), len(vectors[0]))
	if err != nil {
		return nil, err
	}
	defer vecIndex.Close()
	if err := vecIndex.Add(ctx, ids, vectors); err != nil {
		return nil, asExternal(err, "failed to index embeddings")
	}

	parent := filepath.Dir(s.dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index parent dir: %w", err)
	}
	buildID := uuid.NewString()
	tmp := filepath.Join(parent, "."+filepath.Base(s.dir)+"-"+buildID)
	defer os.RemoveAll(tmp)

	manifest := &Manifest{
		Version:    manifestVersion,
		BuildID:    buildID,
		IndexType:  vecIndex.Type(),
		Dimensions: vecIndex.Dimensions(),
		Chunks:     len(chunks),
		Keyword:    s.retrieval.Hybrid(),
		Document:   doc,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.writeSlot(ctx, tmp, vecIndex, doc, chunks, manifest); err != nil {
		return nil, err
	}
	if err := s.swap(tmp); err != nil {
		return nil, err
	}

	s.logger.Info("index built",
		zap.String("dir", s.dir),
		zap.String("type", manifest.IndexType),
		zap.Int("chunks", manifest.Chunks),
		zap.Int("dimensions", manifest.Dimensions),
		zap.Bool("keyword", manifest.Keyword),
		zap.Duration("elapsed", time.Since(start)))
	return s.Load(ctx, emb)
}

func (s *Store) writeSlot(ctx context.Context, dir string, vecIndex vector.VectorIndex, doc *models.Document, chunks []*models.DocumentChunk, m *Manifest) error {
	if err := vecIndex.Save(dir); err != nil {
		return fmt.Errorf("failed to save vector index: %w", err)
	}

	docstore, err := storage.NewSQLiteStorage(filepath.Join(dir, storage.DocstoreFileName))
	if err != nil {
		return err
	}
	defer docstore.Close()
	if doc != nil {
		if err := docstore.CreateDocument(ctx, doc); err != nil {
			return err
		}
	}
	if err := docstore.BatchCreateChunks(ctx, chunks); err != nil {
		return err
	}

	if m.Keyword {
		kw, err := keyword.NewBleveIndex(filepath.Join(dir, keyword.DirName))
		if err != nil {
			return err
		}
		if err := kw.IndexChunks(ctx, chunks); err != nil {
			_ = kw.Close()
			return err
		}
		if err := kw.Close(); err != nil {
			return fmt.Errorf("failed to close keyword index: %w", err)
		}
	}
	return writeManifest(dir, m)
}

// swap moves tmp into the slot. The old slot is renamed aside first, so a
// reader on the same filesystem sees either the old or the new slot.
func (s *Store) swap(tmp string) error {
	var old string
	if _, err := os.Stat(s.dir); err == nil {
		old = s.dir + ".old-" + uuid.NewString()
		if err := os.Rename(s.dir, old); err != nil {
			return fmt.Errorf("failed to move old index aside: %w", err)
		}
	}
	if err := os.Rename(tmp, s.dir); err != nil {
		if old != "" {
			_ = os.Rename(old, s.dir)
		}
		return fmt.Errorf("failed to move new index into place: %w", err)
	}
	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			s.logger.Warn("failed to remove old index", zap.String("path", old), zap.Error(err))
		}
	}
	return nil
}

// Load opens the slot and binds emb for query embedding. It returns
// ErrIndexNotFound when no complete index is present.
func (s *Store) Load(ctx context.Context, emb embedding.Embedder) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := readManifest(s.dir)
	if err != nil {
		return nil, err
	}

	vecIndex, err := vector.OpenVectorIndex(m.IndexType, s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.Wrap(err, apperr.KindIndexNotFound, "vector index not found")
		}
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	docstore, err := storage.OpenSQLiteStorage(filepath.Join(s.dir, storage.DocstoreFileName))
	if err != nil {
		_ = vecIndex.Close()
		return nil, fmt.Errorf("failed to open docstore: %w", err)
	}

	h := &Handle{
		manifest:  m,
		vectors:   vecIndex,
		docstore:  docstore,
		retrieval: s.retrieval,
	}
	var kw keyword.KeywordIndex
	if m.Keyword {
		bi, err := keyword.OpenBleveIndexReadOnly(filepath.Join(s.dir, keyword.DirName))
		if err != nil {
			s.logger.Warn("keyword index unavailable, using semantic retrieval", zap.Error(err))
		} else {
			h.keyword = bi
			kw = bi
		}
	}
	h.engine = search.NewEngine(docstore, emb, vecIndex, kw, s.retrieval)

	s.logger.Debug("index loaded",
		zap.String("dir", s.dir),
		zap.String("build_id", m.BuildID),
		zap.Int("size", vecIndex.Size()))
	return h, nil
}

// asExternal marks err as an external call failure unless it already has a kind.
func asExternal(err error, msg string) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Wrap(err, apperr.KindExternalCall, msg)
}
