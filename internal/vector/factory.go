package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS uses a FAISS flat inner-product index.
	// Requires the FAISS C library and the faiss build tag.
	IndexTypeFAISS IndexType = "faiss"
)

// NewVectorIndex creates an empty vector index of the specified type.
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, faiss)", indexType)
	}
}

// OpenVectorIndex loads an index of the given type saved under dir.
func OpenVectorIndex(indexType string, dir string) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return LoadMemoryIndex(dir)
	case IndexTypeFAISS:
		return LoadFAISSIndex(dir)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, faiss)", indexType)
	}
}

// ResolveType returns the index type to build for a requested type,
// falling back to memory when FAISS is requested but not compiled in.
func ResolveType(requested string) IndexType {
	if IndexType(requested) == IndexTypeFAISS && IsFAISSAvailable() {
		return IndexTypeFAISS
	}
	return IndexTypeMemory
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
