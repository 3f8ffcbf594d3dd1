package model

// Chunk is a contiguous, token-bounded slice of a document's text.
// StartChar/EndChar are byte offsets into the original content
// (EndChar exclusive); consecutive chunks may overlap by the
// configured number of tokens. Embedding is nil when the embedding
// call failed and the chunk is waiting for backfill.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	TokenCount int       `json:"token_count"`
	StartChar  int       `json:"start_char"`
	EndChar    int       `json:"end_char"`
	Ctime      int64     `json:"ctime"`
	Mtime      int64     `json:"mtime"`
}
