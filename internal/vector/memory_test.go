package vector

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a", "b", "c"}, [][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d, want 3", idx.Size())
	}
	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("results = %+v", results)
	}
}

func TestMemoryIndex_SearchKLargerThanSize(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	_ = idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}})
	results, err := idx.Search(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(3)
	if err := idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}}); err == nil {
		t.Error("expected add dimension error")
	}
	if _, err := idx.Search(context.Background(), []float32{1, 0}, 1); err == nil {
		t.Error("expected search dimension error")
	}
	if err := idx.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0, 0}}); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "slot")
	idx, _ := NewMemoryIndex(3)
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"chunk-α", "chunk-b"}, [][]float32{{1, 0, 0}, {0, 0.6, 0.8}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(dir); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadMemoryIndex(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 || loaded.Dimensions() != 3 {
		t.Fatalf("loaded size=%d dims=%d", loaded.Size(), loaded.Dimensions())
	}
	results, _ := loaded.Search(ctx, []float32{0, 0.6, 0.8}, 1)
	if results[0].ID != "chunk-b" {
		t.Errorf("top result = %s, want chunk-b", results[0].ID)
	}
	results, _ = loaded.Search(ctx, []float32{1, 0, 0}, 1)
	if results[0].ID != "chunk-α" {
		t.Errorf("top result = %s, want chunk-α", results[0].ID)
	}
}

func TestLoadMemoryIndex_missing(t *testing.T) {
	if _, err := LoadMemoryIndex(t.TempDir()); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoadMemoryIndex_truncated(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, MemoryFileName), []byte{3, 0, 0, 0, 5, 0, 0, 0, 1}, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMemoryIndex(dir); err == nil {
		t.Error("expected error for truncated file")
	}
}
