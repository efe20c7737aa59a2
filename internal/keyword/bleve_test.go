package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/policyqa/internal/models"
)

func newTestIndex(t *testing.T) (*BleveIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), DirName)
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	chunks := []*models.DocumentChunk{
		{ID: "c0", Content: "Cataract surgery is covered up to 50000 after a waiting period of 24 months", Source: "policy.pdf", Page: 4},
		{ID: "c1", Content: "Room rent is limited to one percent of the sum insured per day", Source: "policy.pdf", Page: 6},
		{ID: "c2", Content: "Waiting period applies to surgery for listed conditions", Source: "policy.pdf", Page: 7},
	}
	if err := idx.IndexChunks(context.Background(), chunks); err != nil {
		t.Fatalf("IndexChunks: %v", err)
	}
	return idx, path
}

func TestBleveIndex_SearchFindsContent(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	results, err := idx.Search(context.Background(), "cataract", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c0" {
		t.Errorf("results = %+v, want only c0", results)
	}
	n, err := idx.DocCount()
	if err != nil || n != 3 {
		t.Errorf("DocCount = %d, %v", n, err)
	}
}

func TestBleveIndex_PhraseBoost(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	results, err := idx.Search(context.Background(), "waiting period", 10, &SearchOptions{PhraseBoost: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("expected both waiting-period chunks, got %+v", results)
	}
	for _, r := range results {
		if r.ID == "c1" {
			t.Error("room rent chunk should not match")
		}
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	exact, _ := idx.Search(context.Background(), "catarct", 10, nil)
	if len(exact) != 0 {
		t.Errorf("misspelling should not match exactly: %+v", exact)
	}
	fuzzy, err := idx.Search(context.Background(), "catarct", 10, &SearchOptions{Fuzziness: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(fuzzy) == 0 || fuzzy[0].ID != "c0" {
		t.Errorf("fuzzy results = %+v, want c0", fuzzy)
	}
}

func TestBleveIndex_EmptyQuery(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	results, err := idx.Search(context.Background(), "  ", 10, nil)
	if err != nil || results != nil {
		t.Errorf("empty query = %v, %v", results, err)
	}
}

func TestOpenBleveIndex(t *testing.T) {
	idx, path := newTestIndex(t)
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	reopened, err := OpenBleveIndex(path)
	if err != nil {
		t.Fatalf("OpenBleveIndex: %v", err)
	}
	defer reopened.Close()
	results, _ := reopened.Search(context.Background(), "rent", 10, nil)
	if len(results) != 1 || results[0].ID != "c1" {
		t.Errorf("results = %+v", results)
	}
	if _, err := OpenBleveIndex(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing index")
	}
}

func TestOpenBleveIndexReadOnly_concurrentReaders(t *testing.T) {
	idx, path := newTestIndex(t)
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	first, err := OpenBleveIndexReadOnly(path)
	if err != nil {
		t.Fatalf("first reader: %v", err)
	}
	defer first.Close()
	second, err := OpenBleveIndexReadOnly(path)
	if err != nil {
		t.Fatalf("second reader: %v", err)
	}
	defer second.Close()
	for _, r := range []*BleveIndex{first, second} {
		results, err := r.Search(context.Background(), "cataract", 10, nil)
		if err != nil || len(results) != 1 {
			t.Errorf("results = %+v, err = %v", results, err)
		}
	}
}

func TestTokenizeQuery(t *testing.T) {
	got := tokenizeQuery("Clause 4.2: Cataract!")
	want := []string{"clause", "4", "2", "cataract"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestChunkMapping(t *testing.T) {
	im := chunkMapping()
	if err := im.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	content := im.DefaultMapping.Properties["content"]
	if content == nil || len(content.Fields) != 1 || content.Fields[0].Analyzer != standard.Name {
		t.Errorf("content field = %+v, want standard analyzer", content)
	}
	page := im.DefaultMapping.Properties["page"]
	if page == nil || page.Fields[0].Index {
		t.Errorf("page field must be stored but not indexed: %+v", page)
	}
}
