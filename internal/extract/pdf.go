package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	pdfcpuapi "github.com/pdfcpu/pdfcpu/pkg/api"
	pdfcpumodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/paperbase/paperbase/internal/pkg/errors"
)

// PDFExtractor reads page text with ledongthuc/pdf and embedded images with
// pdfcpu. Images smaller than MinImageBytes are skipped; they are almost
// always icons or list bullets.
type PDFExtractor struct {
	minImageBytes int
}

func NewPDFExtractor(minImageBytes int) *PDFExtractor {
	return &PDFExtractor{minImageBytes: minImageBytes}
}

func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (result *Result, err error) {
	// The pdf reader panics on some malformed files instead of returning an
	// error; a broken upload must surface as ErrExtraction, not a crash.
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: reader panic: %v", appErr.ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrExtraction, err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("%w: document has no pages", appErr.ErrExtraction)
	}

	result = &Result{Pages: make([]Page, 0, numPages)}
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		text := ""
		if !page.V.IsNull() {
			content, err := page.GetPlainText(nil)
			if err != nil {
				// A single unparseable page yields an empty string, same as a
				// scanned page without a text layer.
				logutil.GetLogger(ctx).Warn("page text extraction failed",
					zap.Int("page", i), zap.Error(err))
			} else {
				text = normalizeText(content)
			}
		}
		result.Pages = append(result.Pages, Page{Number: i, Text: text})
	}

	images, err := e.extractImages(ctx, data)
	if err != nil {
		// Image extraction failure is not fatal; the document is still
		// searchable through its text.
		logutil.GetLogger(ctx).Warn("image extraction failed", zap.Error(err))
	} else {
		result.Images = images
	}
	return result, nil
}

func (e *PDFExtractor) extractImages(ctx context.Context, data []byte) ([]ImageBlob, error) {
	conf := pdfcpumodel.NewDefaultConfiguration()
	pageImages, err := pdfcpuapi.ExtractImagesRaw(bytes.NewReader(data), nil, conf)
	if err != nil {
		return nil, err
	}
	var blobs []ImageBlob
	for _, perPage := range pageImages {
		for _, img := range perPage {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			raw, err := io.ReadAll(img)
			if err != nil {
				continue
			}
			if len(raw) < e.minImageBytes {
				continue
			}
			format := strings.TrimPrefix(img.FileType, ".")
			if format == "" {
				format = "png"
			}
			blobs = append(blobs, ImageBlob{Page: img.PageNr, Data: raw, Format: format})
		}
	}
	return blobs, nil
}

// normalizeText collapses the extractor's raw output into stable,
// reproducible page text: CRLF to LF and trailing whitespace per line
// removed. Offsets recorded by the chunker refer to this normalized form.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
