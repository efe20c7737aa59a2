package models

// RetrievedChunk is a single retrieval hit.
type RetrievedChunk struct {
	Chunk         *DocumentChunk `json:"chunk"`
	Score         float64        `json:"score"`
	KeywordScore  float64        `json:"keyword_score"`
	SemanticScore float64        `json:"semantic_score"`
	Rank          int            `json:"rank"`
}
