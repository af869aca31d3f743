// Package extract pulls per-page text and embedded images out of uploaded
// documents.
package extract

import "context"

// Page holds the extracted text of one page. Text may be empty for pages
// without an extractable text layer.
type Page struct {
	Number int
	Text   string
}

// ImageBlob is one embedded image, still undescribed.
type ImageBlob struct {
	Page   int
	Data   []byte
	Format string // file extension without dot, e.g. "png"
}

type Result struct {
	Pages  []Page
	Images []ImageBlob
}

// Extractor turns raw document bytes into ordered page text and images. An
// unreadable document yields an error wrapping errs.ErrExtraction, which is
// fatal for the ingestion job.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*Result, error)
}
