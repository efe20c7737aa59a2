package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/policyqa/internal/config"
	"github.com/hyperjump/policyqa/internal/indexer"
	"github.com/hyperjump/policyqa/internal/models"
	"github.com/hyperjump/policyqa/internal/provider"
	"github.com/hyperjump/policyqa/internal/rag"
	"github.com/hyperjump/policyqa/internal/secrets"
	"github.com/hyperjump/policyqa/internal/session"
	"github.com/hyperjump/policyqa/internal/vectorstore"
)

// Components holds the wired application.
type Components struct {
	Secrets    *secrets.Resolver
	Registry   *provider.Registry
	Store      *vectorstore.Store
	Loader     *indexer.Loader
	Answerer   *rag.Answerer
	Controller *session.Controller
	Sessions   *session.Manager
}

// Close releases every session and its index handles.
func (c *Components) Close() error {
	if c.Sessions != nil {
		return c.Sessions.Close()
	}
	return nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if err := secrets.LoadDotenv(cfg.Storage.DotenvPath); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", cfg.Storage.DotenvPath, err)
	}
	resolver, err := secrets.NewResolver(cfg.Storage.SecretsPath, secrets.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}

	registry := provider.NewRegistry(resolver, cfg.LLM, cfg.Embedding, provider.WithLogger(logger))
	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider registry: %w", err)
	}

	store := vectorstore.New(cfg.Storage.IndexDir,
		vectorstore.WithLogger(logger),
		vectorstore.WithIndexType(cfg.Vector.IndexType),
		vectorstore.WithRetrieval(cfg.Retrieval),
	)
	loader := indexer.NewLoader(cfg.Chunking, indexer.WithLogger(logger))
	answerer := rag.NewAnswerer(rag.WithLogger(logger))
	controller := session.NewController(registry, store, loader, answerer,
		session.WithLogger(logger),
		session.WithUploadDir(cfg.Storage.UploadDir),
	)

	logger.Info("components initialized",
		zap.String("index_dir", store.Dir()),
		zap.String("index_type", cfg.Vector.IndexType),
		zap.String("retrieval", cfg.Retrieval.Mode),
		zap.Int("available_backends", len(registry.Available())),
	)

	return &Components{
		Secrets:    resolver,
		Registry:   registry,
		Store:      store,
		Loader:     loader,
		Answerer:   answerer,
		Controller: controller,
		Sessions:   session.NewManager(),
	}, nil
}

// sources returns the clauses the persisted index retrieves for question.
func (c *Components) sources(ctx context.Context, backend provider.Backend, question string) ([]*models.RetrievedChunk, error) {
	emb, err := c.Registry.Embedder(ctx, backend)
	if err != nil {
		return nil, err
	}
	defer emb.Close()
	h, err := c.Store.Load(ctx, emb)
	if err != nil {
		return nil, err
	}
	results, err := h.Search(ctx, question, 0)
	return results, errors.Join(err, h.Close())
}
