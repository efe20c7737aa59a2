//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"
)

const (
	// FAISSFileName holds the serialised FAISS index inside the index directory.
	FAISSFileName = "index.faiss"
	// FAISSIDsFileName holds the chunk IDs in insertion order (FAISS label = position).
	FAISSIDsFileName = "index.ids"
)

// FAISSIndex is a flat inner-product FAISS index. Labels are insertion positions,
// which stay valid because the index is never modified after it is built.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	ids        []string
	mu         sync.RWMutex
}

// NewFAISSIndex creates a FAISS index with the given dimension using inner product.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	var flat *C.FaissIndexFlatIP
	if ret := C.faiss_IndexFlatIP_new_with(&flat, C.idx_t(dimensions)); ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	return &FAISSIndex{
		index:      (*C.FaissIndex)(unsafe.Pointer(flat)),
		dimensions: dimensions,
	}, nil
}

// LoadFAISSIndex reads an index saved by Save from dir.
func LoadFAISSIndex(dir string) (*FAISSIndex, error) {
	mapFile, err := os.Open(filepath.Join(dir, FAISSIDsFileName))
	if err != nil {
		return nil, fmt.Errorf("open id file: %w", err)
	}
	defer mapFile.Close()
	var ids []string
	if err := gob.NewDecoder(mapFile).Decode(&ids); err != nil {
		return nil, fmt.Errorf("decode id file: %w", err)
	}

	cPath := C.CString(filepath.Join(dir, FAISSFileName))
	defer C.free(unsafe.Pointer(cPath))
	var index *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &index); ret != 0 {
		return nil, fmt.Errorf("failed to load FAISS index: %s", faissLastError())
	}
	if n := int(C.faiss_Index_ntotal(index)); n != len(ids) {
		C.faiss_Index_free(index)
		return nil, fmt.Errorf("FAISS index has %d vectors but %d ids", n, len(ids))
	}
	return &FAISSIndex{
		index:      index,
		dimensions: int(C.faiss_Index_d(index)),
		ids:        ids,
	}, nil
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}

// Dimensions returns the vector size.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// Add appends vectors with the given IDs.
func (f *FAISSIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	if len(ids) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	flat := make([]float32, len(vectors)*f.dimensions)
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), f.dimensions)
		}
		copy(flat[i*f.dimensions:], vec)
	}
	if ret := C.faiss_Index_add(f.index, C.idx_t(len(vectors)), (*C.float)(unsafe.Pointer(&flat[0]))); ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	f.ids = append(f.ids, ids...)
	return nil
}

// Search returns the top-k vectors by inner product.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.ids) == 0 {
		return nil, nil
	}
	if k > len(f.ids) {
		k = len(f.ids)
	}
	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}
	results := make([]*VectorResult, 0, k)
	for i, label := range labels {
		if label < 0 || int(label) >= len(f.ids) {
			continue
		}
		results = append(results, &VectorResult{ID: f.ids[label], Score: float64(distances[i])})
	}
	return results, nil
}

// Save writes dir/index.faiss and dir/index.ids.
func (f *FAISSIndex) Save(dir string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	cPath := C.CString(filepath.Join(dir, FAISSFileName))
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	mapFile, err := os.Create(filepath.Join(dir, FAISSIDsFileName))
	if err != nil {
		return fmt.Errorf("create id file: %w", err)
	}
	defer mapFile.Close()
	if err := gob.NewEncoder(mapFile).Encode(f.ids); err != nil {
		return fmt.Errorf("encode id file: %w", err)
	}
	return nil
}

// Size returns the number of vectors.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
