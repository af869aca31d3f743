package model

// Chunk is the atomic retrieval granule. Seq values are dense and contiguous
// per document and define the chunk order; StartOffset/EndOffset are byte
// offsets into the extracted text of the chunk's page. The embedding is only
// present once the embedding phase completed for the whole document.
type Chunk struct {
	Slug        string    `json:"slug"`
	Seq         int       `json:"seq"`
	Page        int       `json:"page"`
	Text        string    `json:"text"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	Embedding   []float32 `json:"embedding,omitempty"`
}
