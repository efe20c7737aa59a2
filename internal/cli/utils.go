// Package cli provides output helpers for the policyqa command line.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/policyqa/internal/models"
	"github.com/hyperjump/policyqa/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

// AnswerOutput is the result of a one-shot question.
type AnswerOutput struct {
	Question string                   `json:"question"`
	Backend  string                   `json:"backend"`
	Answer   string                   `json:"answer"`
	Failed   bool                     `json:"failed"`
	Sources  []*models.RetrievedChunk `json:"sources,omitempty"`
}

// WriteAnswer writes an answer to w in the given format.
func WriteAnswer(w io.Writer, out *AnswerOutput, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		writeAnswerText(w, out)
		return nil
	}
}

func writeAnswerText(w io.Writer, out *AnswerOutput) {
	fmt.Fprintf(w, "\nQ: %s\n\n", out.Question)
	fmt.Fprintln(w, PrettyAnswer(out.Answer))
	if len(out.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- Sources ---")
	for _, src := range out.Sources {
		writeOneSource(w, src)
	}
}

func writeOneSource(w io.Writer, src *models.RetrievedChunk) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f (Keyword: %.4f, Semantic: %.4f)\n",
		src.Rank, src.Score, src.KeywordScore, src.SemanticScore)
	if src.Chunk == nil {
		return
	}
	if src.Chunk.Page > 0 {
		fmt.Fprintf(w, "Source: %s, page %d\n", src.Chunk.Source, src.Chunk.Page)
	} else {
		fmt.Fprintf(w, "Source: %s\n", src.Chunk.Source)
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(utils.CollapseWhitespace(src.Chunk.Content), 200))
}

// PrettyAnswer indents an answer that is a JSON object and returns any other text unchanged.
// Models often wrap JSON in a ```json fence; the fence is dropped when the body parses.
func PrettyAnswer(answer string) string {
	body := strings.TrimSpace(answer)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "{") {
		return answer
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(body), "", "  "); err != nil {
		return answer
	}
	return buf.String()
}

// DocumentOutput is the result of ingesting a document.
type DocumentOutput struct {
	Document *models.Document `json:"document"`
	IndexDir string           `json:"index_dir"`
	Hybrid   bool             `json:"hybrid"`
}

// WriteDocument writes an ingestion result to w in the given format.
func WriteDocument(w io.Writer, out *DocumentOutput, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	mode := "semantic"
	if out.Hybrid {
		mode = "hybrid"
	}
	fmt.Fprintf(w, "Processed %s: %d pages, %d chunks\n", out.Document.Name, out.Document.Pages, out.Document.ChunkCount)
	fmt.Fprintf(w, "Index: %s (%s retrieval)\n", out.IndexDir, mode)
	return nil
}
