// Package doctor runs the startup self-check: configuration, secrets, index
// directory and provider credentials.
package doctor

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hyperjump/policyqa/internal/config"
	"github.com/hyperjump/policyqa/internal/provider"
	"github.com/hyperjump/policyqa/internal/vector"
)

// Status of a single check.
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
	StatusInfo Status = "info"
)

// Check is one line of the report.
type Check struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report is the outcome of Run.
type Report struct {
	Checks []Check `json:"checks"`
}

// Healthy is false when any check failed. Warnings do not count.
func (r Report) Healthy() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return false
		}
	}
	return true
}

// Write prints one line per check.
func (r Report) Write(w io.Writer) {
	for _, c := range r.Checks {
		line := fmt.Sprintf("%s %s", symbol(c.Status), c.Name)
		if c.Detail != "" {
			line += ": " + c.Detail
		}
		fmt.Fprintln(w, line)
	}
}

func symbol(s Status) string {
	switch s {
	case StatusOK:
		return "✅"
	case StatusFail:
		return "❌"
	case StatusWarn:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// Credentials reports which backends are usable. *provider.Registry implements it.
type Credentials interface {
	CheckCredentials(b provider.Backend) error
}

// Run checks cfg loaded from configPath. An empty configPath means defaults were used.
func Run(configPath string, cfg *config.Config, creds Credentials) Report {
	var r Report
	r.Checks = append(r.Checks,
		checkConfig(configPath),
		checkSecrets(cfg.Storage.SecretsPath),
		checkIndexDir(cfg.Storage.IndexDir),
		checkVectorBackend(cfg.Vector.IndexType),
	)
	r.Checks = append(r.Checks, checkBackends(cfg.LLM.DefaultBackend, creds)...)
	return r
}

func checkConfig(path string) Check {
	c := Check{Name: "config"}
	if path == "" {
		c.Status, c.Detail = StatusInfo, "no config file, using defaults"
		return c
	}
	if _, err := config.Load(path); err != nil {
		c.Status, c.Detail = StatusFail, err.Error()
		return c
	}
	c.Status, c.Detail = StatusOK, path
	return c
}

func checkSecrets(path string) Check {
	c := Check{Name: "secrets file"}
	if path == "" {
		c.Status, c.Detail = StatusWarn, "not configured, using environment only"
		return c
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.Status, c.Detail = StatusWarn, fmt.Sprintf("%s not found, using environment only", path)
			return c
		}
		c.Status, c.Detail = StatusFail, err.Error()
		return c
	}
	c.Status, c.Detail = StatusOK, path
	return c
}

// checkIndexDir verifies that the slot's parent accepts the temp sibling a build writes.
func checkIndexDir(dir string) Check {
	c := Check{Name: "index directory"}
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		c.Status, c.Detail = StatusFail, err.Error()
		return c
	}
	probe := filepath.Join(parent, ".policyqa-probe-"+uuid.NewString())
	if err := os.WriteFile(probe, nil, 0600); err != nil {
		c.Status, c.Detail = StatusFail, fmt.Sprintf("%s is not writable: %v", parent, err)
		return c
	}
	_ = os.Remove(probe)
	c.Status, c.Detail = StatusOK, dir
	return c
}

func checkVectorBackend(requested string) Check {
	c := Check{Name: "vector index", Status: StatusInfo}
	resolved := vector.ResolveType(requested)
	switch {
	case vector.IsFAISSAvailable():
		c.Detail = fmt.Sprintf("FAISS available, using %s", resolved)
	case string(resolved) != requested:
		c.Detail = fmt.Sprintf("FAISS not built in, using %s instead of %s", resolved, requested)
	default:
		c.Detail = fmt.Sprintf("using %s", resolved)
	}
	return c
}

func checkBackends(defaultBackend string, creds Credentials) []Check {
	var checks []Check
	usable := 0
	for _, b := range provider.All() {
		c := Check{Name: "backend " + b.Label()}
		if err := creds.CheckCredentials(b); err != nil {
			c.Status, c.Detail = StatusWarn, "credentials missing"
		} else {
			c.Status = StatusOK
			usable++
		}
		checks = append(checks, c)
	}
	if usable == 0 {
		checks = append(checks, Check{Name: "backends", Status: StatusFail, Detail: "no backend has credentials"})
	}

	def := Check{Name: "default backend"}
	b, err := provider.ParseBackend(defaultBackend)
	switch {
	case err != nil:
		def.Status, def.Detail = StatusFail, fmt.Sprintf("unknown backend %q", defaultBackend)
	case creds.CheckCredentials(b) != nil:
		def.Status, def.Detail = StatusWarn, b.Label()+" has no credentials"
	default:
		def.Status, def.Detail = StatusOK, b.Label()
	}
	return append(checks, def)
}
