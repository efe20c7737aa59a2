// Package provider maps the closed set of model backends to embedding and chat clients.
package provider

import (
	"fmt"
	"strings"

	"github.com/hyperjump/policyqa/internal/apperr"
)

// Backend identifies a model provider.
type Backend string

const (
	BackendOpenAI Backend = "openai"
	BackendAzure  Backend = "azure-openai"
	BackendGemini Backend = "gemini"
)

var labels = map[Backend]string{
	BackendOpenAI: "OpenAI",
	BackendAzure:  "Azure OpenAI",
	BackendGemini: "Gemini",
}

// All returns every backend in display order.
func All() []Backend {
	return []Backend{BackendOpenAI, BackendAzure, BackendGemini}
}

// Label is the display name shown in the UIs.
func (b Backend) Label() string {
	if l, ok := labels[b]; ok {
		return l
	}
	return string(b)
}

func (b Backend) String() string {
	return string(b)
}

// ParseBackend accepts a backend ID or its display label, case-insensitively.
func ParseBackend(s string) (Backend, error) {
	s = strings.TrimSpace(s)
	for _, b := range All() {
		if strings.EqualFold(s, string(b)) || strings.EqualFold(s, b.Label()) {
			return b, nil
		}
	}
	return "", apperr.Wrap(fmt.Errorf("unknown backend %q", s), apperr.KindProviderConfig, "unknown backend")
}
