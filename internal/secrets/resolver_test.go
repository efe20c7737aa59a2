package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) Option {
	return WithEnv(func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	})
}

func writeSecrets(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestResolver_storeWinsOverEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.toml")
	writeSecrets(t, path, `OPENAI_API_KEY = "from-store"`)
	r, err := NewResolver(path, envMap(map[string]string{"OPENAI_API_KEY": "from-env"}))
	if err != nil {
		t.Fatal(err)
	}
	v, src := r.Lookup("OPENAI_API_KEY")
	if v != "from-store" || src != SourceStore {
		t.Errorf("Lookup = %q (%s), want from-store (store)", v, src)
	}
}

func TestResolver_fallsBackToEnv(t *testing.T) {
	r, err := NewResolver(filepath.Join(t.TempDir(), "missing.toml"), envMap(map[string]string{"OPENAI_API_KEY": "from-env"}))
	if err != nil {
		t.Fatal(err)
	}
	v, src := r.Lookup("OPENAI_API_KEY")
	if v != "from-env" || src != SourceEnv {
		t.Errorf("Lookup = %q (%s), want from-env (env)", v, src)
	}
}

func TestResolver_emptyStoreValueFallsThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.toml")
	writeSecrets(t, path, `GOOGLE_API_KEY = ""`)
	r, err := NewResolver(path, envMap(map[string]string{"GOOGLE_API_KEY": "g"}))
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Get("GOOGLE_API_KEY", "def"); got != "g" {
		t.Errorf("Get = %q, want g", got)
	}
}

func TestResolver_default(t *testing.T) {
	r, err := NewResolver("", envMap(nil))
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Get("API_VERSION", "2024-02-01"); got != "2024-02-01" {
		t.Errorf("Get = %q", got)
	}
	if r.Has("API_VERSION") {
		t.Error("Has should be false")
	}
}

func TestResolver_nestedTableKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.toml")
	writeSecrets(t, path, "[azure]\napi_key = \"k\"\n")
	r, err := NewResolver(path, envMap(nil))
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Get("azure.api_key", ""); got != "k" {
		t.Errorf("Get = %q, want k", got)
	}
}

func TestResolver_invalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.toml")
	writeSecrets(t, path, "this is = = not toml")
	if _, err := NewResolver(path, envMap(nil)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolver_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.toml")
	writeSecrets(t, path, `API_KEY = "old"`)
	r, err := NewResolver(path, envMap(nil))
	if err != nil {
		t.Fatal(err)
	}
	writeSecrets(t, path, `API_KEY = "new"`)
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := r.Get("API_KEY", ""); got != "new" {
		t.Errorf("after reload Get = %q, want new", got)
	}
}

func TestResolver_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.toml")
	writeSecrets(t, path, `API_KEY = "old"`)
	r, err := NewResolver(path, envMap(nil))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Watch(ctx); err != nil {
		t.Fatal(err)
	}
	writeSecrets(t, path, `API_KEY = "new"`)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r.Get("API_KEY", "") == "new" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("watcher did not reload secrets file")
}

func TestIsPlaceholder(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"  ", true},
		{"your_openai_api_key_here", true},
		{"YOUR_SOMETHING_HERE", true},
		{"sk-live-abc", false},
	}
	for _, tt := range tests {
		if got := IsPlaceholder(tt.in); got != tt.want {
			t.Errorf("IsPlaceholder(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadDotenv(t *testing.T) {
	if err := LoadDotenv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should not be an error: %v", err)
	}
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("POLICYQA_TEST_DOTENV=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("POLICYQA_TEST_DOTENV", "preset")
	if err := LoadDotenv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("POLICYQA_TEST_DOTENV"); got != "preset" {
		t.Errorf("existing env var overridden: %q", got)
	}
}
