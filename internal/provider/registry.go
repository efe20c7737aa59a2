package provider

import (
	"context"
	"fmt"
	"strings"

	embopenai "github.com/cloudwego/eino-ext/components/embedding/openai"
	chatopenai "github.com/cloudwego/eino-ext/components/model/openai"
	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/config"
	"github.com/hyperjump/policyqa/internal/embedding"
	"github.com/hyperjump/policyqa/internal/secrets"
)

// SecretSource resolves named secrets. *secrets.Resolver implements it.
type SecretSource interface {
	Get(key, def string) string
}

// ChatOptions overrides per-call chat model settings. Zero values use the defaults.
type ChatOptions struct {
	Temperature *float32
	Model       string
}

type embedderFunc func(ctx context.Context, r *Registry) (einoembedding.Embedder, error)

type chatFunc func(ctx context.Context, r *Registry, name string, temperature float32) (model.BaseChatModel, error)

type entry struct {
	// credential is the secret that must be present for the backend to be usable.
	credential   string
	defaultModel func(r *Registry) string
	embedder     embedderFunc
	chat         chatFunc
}

// Registry builds embedding and chat clients for each backend from resolved secrets.
// Clients are built per call and hold no session state.
type Registry struct {
	secrets SecretSource
	llm     config.LLMConfig
	embed   config.EmbeddingConfig
	table   map[Backend]entry
	logger  *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry resolving credentials through src.
func NewRegistry(src SecretSource, llm config.LLMConfig, embed config.EmbeddingConfig, opts ...Option) *Registry {
	r := &Registry{
		secrets: src,
		llm:     llm,
		embed:   embed,
		logger:  zap.NewNop(),
		table: map[Backend]entry{
			BackendOpenAI: {
				credential:   KeyOpenAIAPIKey,
				defaultModel: func(r *Registry) string { return orDefault(r.llm.OpenAIModel, DefaultOpenAIModel) },
				embedder:     openAIEmbedder,
				chat:         openAIChat,
			},
			BackendAzure: {
				credential:   KeyAzureAPIKey,
				defaultModel: func(r *Registry) string { return r.secrets.Get(KeyAzureChatDeployment, DefaultOpenAIModel) },
				embedder:     azureEmbedder,
				chat:         azureChat,
			},
			BackendGemini: {
				credential:   KeyGoogleAPIKey,
				defaultModel: func(r *Registry) string { return orDefault(r.llm.GeminiModel, DefaultGeminiModel) },
				embedder:     geminiEmbedder,
				chat:         geminiChat,
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate fails when a backend in All has no table entry.
func (r *Registry) Validate() error {
	for _, b := range All() {
		e, ok := r.table[b]
		if !ok || e.embedder == nil || e.chat == nil || e.defaultModel == nil {
			return fmt.Errorf("backend %s has no provider entry", b)
		}
	}
	return nil
}

func (r *Registry) lookup(b Backend) (entry, error) {
	e, ok := r.table[b]
	if !ok {
		return entry{}, apperr.Wrap(fmt.Errorf("backend %q", b), apperr.KindProviderConfig, "unknown backend")
	}
	return e, nil
}

// CheckCredentials returns ErrProviderConfig when the backend's API key is
// missing or still a placeholder value.
func (r *Registry) CheckCredentials(b Backend) error {
	e, err := r.lookup(b)
	if err != nil {
		return err
	}
	if secrets.IsPlaceholder(r.secrets.Get(e.credential, "")) {
		return apperr.Wrap(fmt.Errorf("%s is not set", e.credential), apperr.KindProviderConfig,
			fmt.Sprintf("%s API key is not configured", b.Label()))
	}
	return nil
}

// Available lists the backends whose credentials pass CheckCredentials.
func (r *Registry) Available() []Backend {
	var out []Backend
	for _, b := range All() {
		if r.CheckCredentials(b) == nil {
			out = append(out, b)
		}
	}
	return out
}

// DefaultModel is the chat model or deployment used when ChatOptions names none.
func (r *Registry) DefaultModel(b Backend) string {
	e, err := r.lookup(b)
	if err != nil {
		return ""
	}
	return e.defaultModel(r)
}

// Embedder builds the embedder for b: the remote client, normalised and
// batched, behind an LRU cache.
func (r *Registry) Embedder(ctx context.Context, b Backend) (embedding.Embedder, error) {
	e, err := r.lookup(b)
	if err != nil {
		return nil, err
	}
	raw, err := e.embedder(ctx, r)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindProviderConfig, fmt.Sprintf("failed to create %s embedder", b.Label()))
	}
	cached, err := embedding.NewCachedEmbedder(embedding.NewEinoEmbedder(raw, r.embed.BatchSize), r.embed.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	r.logger.Debug("embedder created", zap.String("backend", string(b)))
	return cached, nil
}

// ChatModel builds the chat model for b.
func (r *Registry) ChatModel(ctx context.Context, b Backend, opts ChatOptions) (model.BaseChatModel, error) {
	e, err := r.lookup(b)
	if err != nil {
		return nil, err
	}
	name := opts.Model
	if name == "" {
		name = e.defaultModel(r)
	}
	temperature := r.llm.TemperatureOrDefault()
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	temperature = clampTemperature(temperature)

	m, err := e.chat(ctx, r, name, temperature)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindProviderConfig, fmt.Sprintf("failed to create %s chat model", b.Label()))
	}
	r.logger.Debug("chat model created",
		zap.String("backend", string(b)),
		zap.String("model", name),
		zap.Float32("temperature", temperature))
	return m, nil
}

func openAIEmbedder(ctx context.Context, r *Registry) (einoembedding.Embedder, error) {
	return embopenai.NewEmbedder(ctx, &embopenai.EmbeddingConfig{
		APIKey: r.secrets.Get(KeyOpenAIAPIKey, ""),
		Model:  OpenAIEmbeddingModel,
	})
}

func azureEmbedder(ctx context.Context, r *Registry) (einoembedding.Embedder, error) {
	version := r.secrets.Get(KeyAzureSearchAPIVersion, r.secrets.Get(KeyAzureAPIVersion, ""))
	return embopenai.NewEmbedder(ctx, &embopenai.EmbeddingConfig{
		APIKey:     r.secrets.Get(KeyAzureAPIKey, ""),
		ByAzure:    r.byAzure(),
		BaseURL:    r.secrets.Get(KeyAzureAPIBase, ""),
		APIVersion: version,
		Model:      r.secrets.Get(KeyAzureEmbeddingDeployment, ""),
	})
}

func geminiEmbedder(ctx context.Context, r *Registry) (einoembedding.Embedder, error) {
	return embopenai.NewEmbedder(ctx, &embopenai.EmbeddingConfig{
		APIKey:  r.secrets.Get(KeyGoogleAPIKey, ""),
		BaseURL: GeminiBaseURL,
		Model:   GeminiEmbeddingModel,
	})
}

func openAIChat(ctx context.Context, r *Registry, name string, temperature float32) (model.BaseChatModel, error) {
	return chatopenai.NewChatModel(ctx, &chatopenai.ChatModelConfig{
		APIKey:      r.secrets.Get(KeyOpenAIAPIKey, ""),
		Model:       name,
		Temperature: &temperature,
	})
}

func azureChat(ctx context.Context, r *Registry, name string, temperature float32) (model.BaseChatModel, error) {
	return chatopenai.NewChatModel(ctx, &chatopenai.ChatModelConfig{
		APIKey:      r.secrets.Get(KeyAzureAPIKey, ""),
		ByAzure:     r.byAzure(),
		BaseURL:     r.secrets.Get(KeyAzureAPIBase, ""),
		APIVersion:  r.secrets.Get(KeyAzureAPIVersion, ""),
		Model:       name,
		Temperature: &temperature,
	})
}

func geminiChat(ctx context.Context, r *Registry, name string, temperature float32) (model.BaseChatModel, error) {
	return chatopenai.NewChatModel(ctx, &chatopenai.ChatModelConfig{
		APIKey:      r.secrets.Get(KeyGoogleAPIKey, ""),
		BaseURL:     GeminiBaseURL,
		Model:       name,
		Temperature: &temperature,
	})
}

// byAzure reports whether API_TYPE selects Azure mode. An unset type means Azure.
func (r *Registry) byAzure() bool {
	t := strings.ToLower(r.secrets.Get(KeyAzureAPIType, "azure"))
	if !strings.HasPrefix(t, "azure") {
		r.logger.Debug("API_TYPE is not azure, using plain OpenAI mode", zap.String("api_type", t))
		return false
	}
	return true
}

func clampTemperature(t float32) float32 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
