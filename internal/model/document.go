package model

type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusFailed     DocumentStatus = "failed"
)

const MetadataSummary = "summary"

type Document struct {
	ID           string                 `json:"id"`
	SessionID    string                 `json:"session_id"`
	Filename     string                 `json:"filename"`
	FileType     string                 `json:"file_type"`
	FileSize     int64                  `json:"file_size"`
	StorageKey   string                 `json:"-"`
	Status       DocumentStatus         `json:"status"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	ChunkCount   int                    `json:"chunk_count"`
	Metadata     map[string]interface{} `json:"metadata"`
	IndexedAt    int64                  `json:"indexed_at,omitempty"`
	Ctime        int64                  `json:"ctime"`
	Mtime        int64                  `json:"mtime"`
}

func (d *Document) Summary() string {
	if d == nil || d.Metadata == nil {
		return ""
	}
	s, _ := d.Metadata[MetadataSummary].(string)
	return s
}
