package indexer

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/config"
)

func writeDocx(t *testing.T, path string, paragraphs ...string) {
	t.Helper()
	var body string
	for _, p := range paragraphs {
		body += `<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	_ = w.Close()
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
}

func testLoader() *Loader {
	return NewLoader(config.ChunkingConfig{ChunkSize: 5, ChunkOverlap: 1})
}

func TestLoader_Load_docx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.docx")
	writeDocx(t, path, "Clause 4.2 Cataract surgery is covered", "Clause 7 Exclusions apply")
	chunks, err := testLoader().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for _, ch := range chunks {
		if ch.Source != "policy.docx" || ch.Page != 0 {
			t.Errorf("chunk provenance = %q page %d", ch.Source, ch.Page)
		}
	}
}

func TestLoader_Load_unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := testLoader().Load(path)
	if !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoader_LoadNamed_usesOriginalName(t *testing.T) {
	staged := filepath.Join(t.TempDir(), "upload-123.tmp")
	writeDocx(t, staged, "Room rent capped at one percent")
	doc, chunks, err := testLoader().LoadNamed(staged, "Policy.DOCX", "doc:abc")
	if err != nil {
		t.Fatalf("LoadNamed: %v", err)
	}
	if doc.ID != "doc:abc" || doc.Name != "Policy.DOCX" || doc.ChunkCount != len(chunks) {
		t.Errorf("doc = %+v", doc)
	}
	if chunks[0].DocumentID != "doc:abc" {
		t.Errorf("chunk DocumentID = %q", chunks[0].DocumentID)
	}
}

func TestLoader_LoadNamed_emptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	writeDocx(t, path)
	_, _, err := testLoader().LoadNamed(path, "empty.docx", "doc:empty")
	if !errors.Is(err, apperr.ErrEmptyDocument) {
		t.Errorf("err = %v, want ErrEmptyDocument", err)
	}
}
