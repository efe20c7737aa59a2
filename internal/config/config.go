// Package config provides configuration loading and structs for the policyqa app.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Vector    VectorConfig    `yaml:"vector"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	// SessionIdleTimeout evicts HTTP sessions unused for this long.
	// A negative value disables eviction.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
}

// StorageConfig holds on-disk locations.
type StorageConfig struct {
	// IndexDir is the single persisted index slot.
	IndexDir    string `yaml:"index_dir"`
	UploadDir   string `yaml:"upload_dir"`
	SecretsPath string `yaml:"secrets_path"`
	DotenvPath  string `yaml:"dotenv_path"`
}

// VectorConfig selects the vector index implementation ("memory" or "faiss").
type VectorConfig struct {
	IndexType string `yaml:"index_type"`
}

// ChunkingConfig holds splitter settings, measured in words.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig holds retriever settings.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	Mode           string  `yaml:"mode"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
}

// Hybrid reports whether the keyword leg is enabled.
func (r RetrievalConfig) Hybrid() bool {
	return strings.EqualFold(r.Mode, RetrievalHybrid)
}

// LLMConfig holds chat model defaults.
type LLMConfig struct {
	DefaultBackend string   `yaml:"default_backend"`
	Temperature    *float32 `yaml:"temperature"`
	OpenAIModel    string   `yaml:"openai_model"`
	GeminiModel    string   `yaml:"gemini_model"`
}

// TemperatureOrDefault returns the configured temperature, or DefaultTemperature when unset.
func (l *LLMConfig) TemperatureOrDefault() float32 {
	if l.Temperature != nil {
		return *l.Temperature
	}
	return DefaultTemperature
}

// EmbeddingConfig holds embedding call settings.
type EmbeddingConfig struct {
	BatchSize int `yaml:"batch_size"`
	CacheSize int `yaml:"cache_size"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.expandPaths(filepath.Dir(path))
	return &cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults
// with paths resolved against the working directory.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg = &Config{}
	ApplyDefaults(cfg)
	wd, werr := os.Getwd()
	if werr != nil {
		wd = "."
	}
	cfg.expandPaths(wd)
	return cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) expandPaths(configDir string) {
	c.Storage.IndexDir = expandPath(c.Storage.IndexDir, configDir)
	c.Storage.SecretsPath = expandPath(c.Storage.SecretsPath, configDir)
	c.Storage.DotenvPath = expandPath(c.Storage.DotenvPath, configDir)
	if c.Storage.UploadDir != "" {
		c.Storage.UploadDir = expandPath(c.Storage.UploadDir, configDir)
	}
}

// expandPath converts a path to absolute. "~/" paths are relative to the home
// directory; every other relative path is relative to configDir.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	return filepath.Join(configDir, path)
}
