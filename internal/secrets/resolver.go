// Package secrets resolves provider credentials from a managed secrets file,
// then the process environment, then a caller-supplied default.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Source tells where a resolved value came from.
type Source string

const (
	SourceNone  Source = ""
	SourceStore Source = "store"
	SourceEnv   Source = "env"
)

// Resolver looks up secrets by key. It is safe for concurrent use.
type Resolver struct {
	path   string
	mu     sync.RWMutex
	store  map[string]string
	lookup func(string) (string, bool)
	logger *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for reload messages.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithEnv replaces os.LookupEnv; tests use it to avoid touching the real environment.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(r *Resolver) { r.lookup = lookup }
}

// NewResolver creates a resolver over the TOML secrets file at path.
// A missing file or an empty path means no managed store; the environment is still consulted.
func NewResolver(path string, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		path:   path,
		store:  map[string]string{},
		lookup: os.LookupEnv,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the secrets file path.
func (r *Resolver) Path() string {
	return r.path
}

// Reload re-reads the secrets file.
func (r *Resolver) Reload() error {
	store, err := readStore(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.store = store
	r.mu.Unlock()
	return nil
}

// Lookup returns the value for key and where it was found. Empty values count as absent.
func (r *Resolver) Lookup(key string) (string, Source) {
	r.mu.RLock()
	v := r.store[strings.ToLower(key)]
	r.mu.RUnlock()
	if v != "" {
		return v, SourceStore
	}
	if v, ok := r.lookup(key); ok && v != "" {
		return v, SourceEnv
	}
	return "", SourceNone
}

// Get returns the value for key, or def when it is absent everywhere.
func (r *Resolver) Get(key, def string) string {
	if v, src := r.Lookup(key); src != SourceNone {
		return v
	}
	return def
}

// Has reports whether key resolves to a non-empty value.
func (r *Resolver) Has(key string) bool {
	_, src := r.Lookup(key)
	return src != SourceNone
}

func readStore(path string) (map[string]string, error) {
	store := map[string]string{}
	if path == "" {
		return store, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store, nil
		}
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	// Nested tables flatten to dotted keys; viper lower-cases them.
	for _, k := range v.AllKeys() {
		store[k] = v.GetString(k)
	}
	return store, nil
}
