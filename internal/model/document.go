package model

// Status is the persisted projection of a document's ingestion state. It
// only ever moves forward through the sequence below; StatusError is
// terminal and reachable from any non-terminal state.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusExtracting  Status = "extracting"
	StatusDescribing  Status = "describing_images"
	StatusChunking    Status = "chunking"
	StatusEmbedding   Status = "embedding"
	StatusReady       Status = "ready"
	StatusError       Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

type Document struct {
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	Status     Status `json:"status"`
	PageCount  int    `json:"page_count"`
	ChunkCount int    `json:"chunk_count"`
	ImageCount int    `json:"image_count"`
	ErrMessage string `json:"error_message,omitempty"`
	Ctime      int64  `json:"ctime"`
}
