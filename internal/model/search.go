package model

// ScoredChunk is one ranked vector-search hit. Distance is the cosine
// distance reported by the store, Similarity its 1-distance mirror.
type ScoredChunk struct {
	Chunk       `json:"chunk"`
	Filename    string  `json:"filename"`
	Distance    float64 `json:"distance"`
	Similarity  float64 `json:"similarity"`
	SourceLabel string  `json:"source_label"`
}

// Source identifies a chunk that contributed to an answer.
type Source struct {
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
}

// Answer is the final result of one RAG pipeline run.
type Answer struct {
	Answer         string   `json:"answer"`
	RelevanceScore float64  `json:"relevance_score"`
	Sources        []Source `json:"sources"`
	ModelUsed      string   `json:"model_used"`
}
