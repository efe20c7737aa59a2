package models

import (
	"fmt"
	"strings"
)

// RetrievalQuery is a request for the top-k chunks relevant to Query.
type RetrievalQuery struct {
	Query  string `json:"query"`
	TopK   int    `json:"top_k,omitempty"`
	Hybrid bool   `json:"hybrid,omitempty"`
}

// Validate ensures the query is usable and sets defaults.
// Returns an error if the query is blank; otherwise clamps TopK to [1, 50], defaulting to 4.
func (q *RetrievalQuery) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = 4
	}
	if q.TopK > 50 {
		q.TopK = 50
	}
	return nil
}
