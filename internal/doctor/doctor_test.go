package doctor

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/config"
	"github.com/hyperjump/policyqa/internal/provider"
)

type fakeCreds map[provider.Backend]bool

func (f fakeCreds) CheckCredentials(b provider.Backend) error {
	if f[b] {
		return nil
	}
	return apperr.ErrProviderConfig
}

func testConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  default_backend: openai\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return path, cfg
}

func find(r Report, name string) Check {
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	return Check{}
}

func TestRun_Healthy(t *testing.T) {
	path, cfg := testConfig(t)
	r := Run(path, cfg, fakeCreds{provider.BackendOpenAI: true})
	if !r.Healthy() {
		var buf bytes.Buffer
		r.Write(&buf)
		t.Fatalf("expected healthy report:\n%s", buf.String())
	}
	if c := find(r, "secrets file"); c.Status != StatusWarn {
		t.Errorf("missing secrets file: got %s", c.Status)
	}
	if c := find(r, "index directory"); c.Status != StatusOK {
		t.Errorf("index directory: got %s %s", c.Status, c.Detail)
	}
	if c := find(r, "default backend"); c.Status != StatusOK || c.Detail != "OpenAI" {
		t.Errorf("default backend: got %+v", c)
	}
}

func TestRun_NoCredentials(t *testing.T) {
	path, cfg := testConfig(t)
	r := Run(path, cfg, fakeCreds{})
	if r.Healthy() {
		t.Fatal("report without any credentials must be unhealthy")
	}
	if c := find(r, "backends"); c.Status != StatusFail {
		t.Errorf("backends: got %+v", c)
	}
}

func TestRun_DefaultBackendWithoutCredentials(t *testing.T) {
	path, cfg := testConfig(t)
	r := Run(path, cfg, fakeCreds{provider.BackendAzure: true})
	if !r.Healthy() {
		t.Error("another usable backend keeps the report healthy")
	}
	if c := find(r, "default backend"); c.Status != StatusWarn {
		t.Errorf("default backend: got %+v", c)
	}
}

func TestRun_UnknownDefaultBackend(t *testing.T) {
	path, cfg := testConfig(t)
	cfg.LLM.DefaultBackend = "llama"
	r := Run(path, cfg, fakeCreds{provider.BackendOpenAI: true})
	if r.Healthy() {
		t.Error("unknown default backend must fail")
	}
}

func TestRun_BadConfigFile(t *testing.T) {
	path, cfg := testConfig(t)
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	r := Run(path, cfg, fakeCreds{provider.BackendOpenAI: true})
	if c := find(r, "config"); c.Status != StatusFail {
		t.Errorf("config: got %+v", c)
	}
}

func TestRun_DefaultsWithoutConfigFile(t *testing.T) {
	_, cfg := testConfig(t)
	r := Run("", cfg, fakeCreds{provider.BackendOpenAI: true})
	if c := find(r, "config"); c.Status != StatusInfo {
		t.Errorf("config: got %+v", c)
	}
}

func TestReport_Write(t *testing.T) {
	r := Report{Checks: []Check{
		{Name: "config", Status: StatusOK, Detail: "config.yaml"},
		{Name: "backends", Status: StatusFail, Detail: "no backend has credentials"},
	}}
	var buf bytes.Buffer
	r.Write(&buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d", len(lines))
	}
	if lines[0] != "✅ config: config.yaml" {
		t.Errorf("line 0: got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "❌ backends") {
		t.Errorf("line 1: got %q", lines[1])
	}
}
