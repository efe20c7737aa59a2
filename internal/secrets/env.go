package secrets

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotenv loads a .env file into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

var placeholderValues = map[string]bool{
	"your_openai_api_key_here":       true,
	"your_azure_openai_api_key_here": true,
	"your_google_api_key_here":       true,
	"your_gemini_api_key_here":       true,
	"changeme":                       true,
	"xxx":                            true,
}

// IsPlaceholder reports whether v is an unfilled template value.
func IsPlaceholder(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	if s == "" {
		return true
	}
	if placeholderValues[s] {
		return true
	}
	return strings.HasPrefix(s, "your_") && strings.HasSuffix(s, "_here")
}
