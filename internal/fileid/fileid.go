// Package fileid derives deterministic document IDs for uploads.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"path/filepath"
)

const (
	pathPrefix    = "file:"
	contentPrefix = "doc:"
)

// FileDocID returns a stable document ID for the given path.
// Same cleaned path always yields the same ID.
func FileDocID(path string) string {
	normalized := filepath.Clean(path)
	hash := sha256.Sum256([]byte(normalized))
	return pathPrefix + hex.EncodeToString(hash[:])
}

// ContentDocID returns a document ID derived from a content digest, so the
// same upload yields the same ID regardless of where it was staged.
func ContentDocID(sum []byte) string {
	return contentPrefix + hex.EncodeToString(sum)
}

// Hasher computes a content ID while the content is copied elsewhere.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a Hasher ready to receive content.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Writer returns the io.Writer to tee content into.
func (h *Hasher) Writer() io.Writer {
	return h.h
}

// DocID returns the ID of everything written so far.
func (h *Hasher) DocID() string {
	return ContentDocID(h.h.Sum(nil))
}
