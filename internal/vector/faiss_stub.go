//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"errors"
)

var errNoFAISS = errors.New("FAISS not available: build with -tags=faiss and install the FAISS library")

// FAISSIndex is a stub used when FAISS support is not compiled in.
type FAISSIndex struct{}

// NewFAISSIndex returns an error because FAISS is not available.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	return nil, errNoFAISS
}

// LoadFAISSIndex returns an error because FAISS is not available.
func LoadFAISSIndex(dir string) (*FAISSIndex, error) {
	return nil, errNoFAISS
}

func (f *FAISSIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	return errNoFAISS
}

func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	return nil, errNoFAISS
}

func (f *FAISSIndex) Save(dir string) error { return errNoFAISS }
func (f *FAISSIndex) Size() int             { return 0 }
func (f *FAISSIndex) Dimensions() int       { return 0 }
func (f *FAISSIndex) Close() error          { return nil }
func (f *FAISSIndex) Type() string          { return string(IndexTypeFAISS) }
