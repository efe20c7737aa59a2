package config

import "time"

const (
	// DefaultTemperature is the sampling temperature used when none is configured.
	DefaultTemperature float32 = 0.2

	RetrievalSemantic = "semantic"
	RetrievalHybrid   = "hybrid"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8501
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 20 << 20
	}
	if cfg.Server.SessionIdleTimeout == 0 {
		cfg.Server.SessionIdleTimeout = 30 * time.Minute
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "faiss_index"
	}
	if cfg.Storage.SecretsPath == "" {
		cfg.Storage.SecretsPath = ".policyqa/secrets.toml"
	}
	if cfg.Storage.DotenvPath == "" {
		cfg.Storage.DotenvPath = ".env"
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 800
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 100
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Retrieval.Mode == "" {
		cfg.Retrieval.Mode = RetrievalSemantic
	}
	if cfg.Retrieval.KeywordWeight == 0 && cfg.Retrieval.SemanticWeight == 0 {
		cfg.Retrieval.KeywordWeight = 0.3
		cfg.Retrieval.SemanticWeight = 0.7
	}
	if cfg.LLM.DefaultBackend == "" {
		cfg.LLM.DefaultBackend = "openai"
	}
	if cfg.LLM.Temperature == nil {
		t := DefaultTemperature
		cfg.LLM.Temperature = &t
	}
	if cfg.LLM.OpenAIModel == "" {
		cfg.LLM.OpenAIModel = "gpt-4o"
	}
	if cfg.LLM.GeminiModel == "" {
		cfg.LLM.GeminiModel = "gemini-2.0-flash"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1024
	}
}
