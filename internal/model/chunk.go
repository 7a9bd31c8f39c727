package model

// Chunk is the metadata row of one indexed segment. Its vector lives in the
// vector index under the same ID.
type Chunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	SessionID   string `json:"session_id"`
	Index       int    `json:"chunk_index"`
	Content     string `json:"content"`
	StartOffset int    `json:"start_offset"`
	Overlap     int    `json:"overlap"`
	Page        int    `json:"page,omitempty"`
	Ctime       int64  `json:"ctime"`
}

type EvidenceItem struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Page       int     `json:"page,omitempty"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}
