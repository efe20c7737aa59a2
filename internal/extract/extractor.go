// Package extract provides text extraction for the accepted policy document formats.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/policyqa/internal/apperr"
)

// Kind names the loading path used for a format.
type Kind string

const (
	// KindPDF extracts one segment per page.
	KindPDF Kind = "pdf"
	// KindGeneric extracts the whole document as a single segment.
	KindGeneric Kind = "generic"
)

var kinds = map[string]Kind{
	".pdf":  KindPDF,
	".docx": KindGeneric,
}

// Page is a text segment of a document. Number is 1-based for paged formats and 0 otherwise.
type Page struct {
	Number int
	Text   string
}

// Extractor extracts text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// KindFor returns the loading path for ext (case-insensitive, with leading dot).
// Unknown extensions fail with apperr.ErrUnsupportedFormat.
func KindFor(ext string) (Kind, error) {
	k, ok := kinds[strings.ToLower(ext)]
	if !ok {
		return "", apperr.Wrap(fmt.Errorf("extension %q", ext), apperr.KindUnsupportedFormat, "unsupported file format")
	}
	return k, nil
}

// SupportedExtensions lists accepted extensions.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx"}
}

// Supports reports whether the file name has an accepted extension.
func Supports(name string) bool {
	_, err := KindFor(filepath.Ext(name))
	return err == nil
}

// Extract reads the file at path and returns its text segments.
// The format is checked before the file is read.
func (e *Extractor) Extract(path string) ([]Page, error) {
	return e.ExtractStaged(path, filepath.Ext(path))
}

// ExtractStaged reads a file whose name does not carry the original extension,
// such as a staged upload, and extracts it as ext.
func (e *Extractor) ExtractStaged(path, ext string) ([]Page, error) {
	if _, err := KindFor(ext); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text segments from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) ([]Page, error) {
	kind, err := KindFor(ext)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindPDF:
		return extractPDF(content)
	default:
		text, err := extractDOCX(content)
		if err != nil {
			return nil, err
		}
		return []Page{{Number: 0, Text: text}}, nil
	}
}

// cleanText replaces invalid UTF-8 and NUL bytes, which some PDF producers emit.
func cleanText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return strings.ReplaceAll(s, "\x00", "")
}
