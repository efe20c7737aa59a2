package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"go.uber.org/zap"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/embedding"
	"github.com/hyperjump/policyqa/internal/fileid"
	"github.com/hyperjump/policyqa/internal/metrics"
	"github.com/hyperjump/policyqa/internal/models"
	"github.com/hyperjump/policyqa/internal/provider"
	"github.com/hyperjump/policyqa/internal/vectorstore"
)

// Providers builds backend clients. *provider.Registry implements it.
type Providers interface {
	Embedder(ctx context.Context, b provider.Backend) (embedding.Embedder, error)
	ChatModel(ctx context.Context, b provider.Backend, opts provider.ChatOptions) (model.BaseChatModel, error)
	CheckCredentials(b provider.Backend) error
}

// IndexStore builds and loads the persisted index. *vectorstore.Store implements it.
type IndexStore interface {
	Build(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk, emb embedding.Embedder) (*vectorstore.Handle, error)
	Load(ctx context.Context, emb embedding.Embedder) (*vectorstore.Handle, error)
}

// DocumentLoader extracts and splits a staged upload. *indexer.Loader implements it.
type DocumentLoader interface {
	LoadNamed(path, name, docID string) (*models.Document, []*models.DocumentChunk, error)
}

// Answerer produces the answer text. *rag.Answerer implements it.
type Answerer interface {
	Answer(ctx context.Context, llm model.BaseChatModel, r retriever.Retriever, question string, history []models.ConversationTurn) (string, error)
}

// Upload is a document submitted for processing.
type Upload struct {
	// Name is the original file name; its extension selects the extractor.
	Name   string
	Reader io.Reader
}

// Reply is the outcome of one question.
type Reply struct {
	Answer string `json:"answer"`
	Failed bool   `json:"failed"`
}

// Controller runs session operations. It holds no per-session state.
type Controller struct {
	providers Providers
	store     IndexStore
	loader    DocumentLoader
	answerer  Answerer
	uploadDir string
	logger    *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithUploadDir sets where uploads are staged. Empty uses the system temp dir.
func WithUploadDir(dir string) Option {
	return func(c *Controller) { c.uploadDir = dir }
}

// NewController creates a controller.
func NewController(providers Providers, store IndexStore, loader DocumentLoader, answerer Answerer, opts ...Option) *Controller {
	c := &Controller{
		providers: providers,
		store:     store,
		loader:    loader,
		answerer:  answerer,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckBackend reports ErrProviderConfig when b has no usable credentials.
func (c *Controller) CheckBackend(b provider.Backend) error {
	return c.providers.CheckCredentials(b)
}

// SelectBackend switches the session's backend after checking its credentials.
func (c *Controller) SelectBackend(sess *Session, b provider.Backend) error {
	if err := c.CheckBackend(b); err != nil {
		return err
	}
	sess.setBackend(b)
	c.logger.Info("backend selected", zap.String("session", sess.ID), zap.String("backend", string(b)))
	return nil
}

// Reset clears the history and transcript. The index stays active.
func (c *Controller) Reset(sess *Session) {
	sess.reset()
}

// Process ingests an upload and replaces the persisted index with it. It fails
// with ErrProviderConfig before touching the upload when the session's backend
// has no credentials, and with ErrBusy while another operation of the session
// is in flight. On any other failure the previous state is restored.
func (c *Controller) Process(ctx context.Context, sess *Session, up *Upload) (doc *models.Document, err error) {
	if up == nil || up.Reader == nil || strings.TrimSpace(up.Name) == "" {
		return nil, apperr.ErrNoDocument
	}
	if err := c.CheckBackend(sess.Backend()); err != nil {
		return nil, err
	}
	if !sess.busy.TryAcquire(1) {
		return nil, apperr.ErrBusy
	}
	defer sess.busy.Release(1)

	backend := sess.Backend()
	start := time.Now()
	prev := sess.beginProcessing()
	chunks := 0
	defer func() {
		if err != nil {
			sess.setState(prev)
			c.logger.Warn("document processing failed",
				zap.String("session", sess.ID),
				zap.String("file", up.Name),
				zap.Error(err))
		}
		metrics.RecordDocument(string(backend), chunks, time.Since(start), err)
	}()

	path, docID, err := c.stage(up)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil {
			c.logger.Debug("failed to remove staged upload", zap.String("path", path), zap.Error(rmErr))
		}
	}()

	doc, parts, err := c.loader.LoadNamed(path, filepath.Base(up.Name), docID)
	if err != nil {
		return nil, err
	}
	chunks = len(parts)

	emb, err := c.embedder(ctx, sess, backend)
	if err != nil {
		return nil, err
	}
	h, err := c.store.Build(ctx, doc, parts, emb)
	if err != nil {
		return nil, err
	}
	if cerr := sess.activate(h, doc); cerr != nil {
		c.logger.Debug("failed to close previous index", zap.Error(cerr))
	}
	c.logger.Info("document processed",
		zap.String("session", sess.ID),
		zap.String("file", doc.Name),
		zap.Int("pages", doc.Pages),
		zap.Int("chunks", doc.ChunkCount),
		zap.Duration("elapsed", time.Since(start)))
	return doc, nil
}

// stage copies the upload to a temp file keeping its extension and returns the
// path with the content-derived document ID.
func (c *Controller) stage(up *Upload) (string, string, error) {
	if c.uploadDir != "" {
		if err := os.MkdirAll(c.uploadDir, 0755); err != nil {
			return "", "", fmt.Errorf("failed to create upload dir: %w", err)
		}
	}
	ext := strings.ToLower(filepath.Ext(up.Name))
	f, err := os.CreateTemp(c.uploadDir, "upload-*"+ext)
	if err != nil {
		return "", "", fmt.Errorf("failed to stage upload: %w", err)
	}
	hasher := fileid.NewHasher()
	_, copyErr := io.Copy(io.MultiWriter(f, hasher.Writer()), up.Reader)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(f.Name())
		return "", "", fmt.Errorf("failed to stage upload: %w", err)
	}
	return f.Name(), hasher.DocID(), nil
}

// Ask answers question against the persisted index. Missing credentials
// (ErrProviderConfig) or a missing index (ErrIndexNotFound) abort the turn
// and leave history and transcript untouched. Any
// other failure is reported in the Reply as FailureMessage and recorded like a
// normal turn.
func (c *Controller) Ask(ctx context.Context, sess *Session, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, apperr.ErrEmptyQuestion
	}
	if err := c.CheckBackend(sess.Backend()); err != nil {
		return Reply{Answer: apperr.UserMessage(err), Failed: true}, err
	}
	if !sess.busy.TryAcquire(1) {
		return Reply{}, apperr.ErrBusy
	}
	defer sess.busy.Release(1)

	backend := sess.Backend()
	start := time.Now()

	h, release, err := c.resolveIndex(ctx, sess, backend)
	if errors.Is(err, apperr.ErrIndexNotFound) {
		return Reply{Answer: apperr.UserMessage(err), Failed: true}, err
	}
	defer release()

	sess.appendMessage(models.RoleUser, question)
	var answer string
	if err == nil {
		answer, err = c.answer(ctx, sess, backend, h, question)
	}
	metrics.RecordAnswer(string(backend), time.Since(start), err)

	reply := Reply{Answer: answer}
	if err != nil {
		c.logger.Error("answering failed",
			zap.String("session", sess.ID),
			zap.String("backend", string(backend)),
			zap.Error(err))
		reply = Reply{Answer: FailureMessage, Failed: true}
	}
	sess.appendMessage(models.RoleAssistant, reply.Answer)
	sess.appendTurn(models.ConversationTurn{Question: question, Answer: reply.Answer})
	return reply, nil
}

func (c *Controller) answer(ctx context.Context, sess *Session, backend provider.Backend, h *vectorstore.Handle, question string) (string, error) {
	llm, err := c.providers.ChatModel(ctx, backend, provider.ChatOptions{})
	if err != nil {
		return "", err
	}
	return c.answerer.Answer(ctx, llm, h.Retriever(), question, sess.History())
}

// resolveIndex loads the persisted index for this turn. When loading fails for
// a reason other than a missing index, the session's own handle is used if it
// has one. release closes whatever was loaded here.
func (c *Controller) resolveIndex(ctx context.Context, sess *Session, backend provider.Backend) (*vectorstore.Handle, func(), error) {
	noop := func() {}
	emb, err := c.embedder(ctx, sess, backend)
	if err != nil {
		return nil, noop, err
	}
	h, err := c.store.Load(ctx, emb)
	if err == nil {
		return h, func() {
			if cerr := h.Close(); cerr != nil {
				c.logger.Debug("failed to close index", zap.Error(cerr))
			}
		}, nil
	}
	if errors.Is(err, apperr.ErrIndexNotFound) {
		return nil, noop, err
	}
	if active := sess.activeHandle(); active != nil {
		c.logger.Warn("failed to load index, using session index", zap.String("session", sess.ID), zap.Error(err))
		return active, noop, nil
	}
	return nil, noop, err
}

// embedder returns the session's embedder for backend, building it on first use.
func (c *Controller) embedder(ctx context.Context, sess *Session, backend provider.Backend) (embedding.Embedder, error) {
	if emb := sess.cachedEmbedder(backend); emb != nil {
		return emb, nil
	}
	emb, err := c.providers.Embedder(ctx, backend)
	if err != nil {
		return nil, err
	}
	sess.cacheEmbedder(backend, emb)
	return emb, nil
}
