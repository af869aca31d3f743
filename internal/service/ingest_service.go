// Package service holds the application logic between handlers and
// repositories: ingestion, document lifecycle and answering.
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/paperbase/paperbase/internal/ai"
	"github.com/paperbase/paperbase/internal/chunker"
	"github.com/paperbase/paperbase/internal/extract"
	"github.com/paperbase/paperbase/internal/filestore"
	"github.com/paperbase/paperbase/internal/model"
	appErr "github.com/paperbase/paperbase/internal/pkg/errors"
	"github.com/paperbase/paperbase/internal/repo"
	"github.com/paperbase/paperbase/internal/vectorstore"
)

type IngestDeps struct {
	Documents *repo.DocumentRepo
	Images    *repo.ImageRepo
	Files     filestore.Store
	Vectors   vectorstore.Store
	Extractor extract.Extractor
	Describer *ai.Describer
	Embedder  *ai.Embedder
	Chunker   *chunker.Chunker
}

// IngestService drives a document through the ingestion phases in a
// background goroutine per document. The status row is updated before each
// phase starts, so polls observe the pipeline move strictly forward:
// queued, extracting, describing_images, chunking, embedding, then ready or
// error. There is no resume; a failed or interrupted document must be
// re-uploaded.
type IngestService struct {
	deps IngestDeps

	mu     sync.Mutex
	active map[string]struct{}
}

func NewIngestService(deps IngestDeps) *IngestService {
	return &IngestService{deps: deps, active: map[string]struct{}{}}
}

// Submit schedules ingestion for slug. Submitting a document already being
// ingested is a no-op.
func (s *IngestService) Submit(ctx context.Context, slug string) {
	s.mu.Lock()
	if _, ok := s.active[slug]; ok {
		s.mu.Unlock()
		logutil.GetLogger(ctx).Debug("ingestion already running", zap.String("slug", slug))
		return
	}
	s.active[slug] = struct{}{}
	s.mu.Unlock()

	// Detached from the request context: ingestion outlives the upload call.
	go s.run(context.Background(), slug)
}

// Running reports whether slug is currently being ingested.
func (s *IngestService) Running(slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[slug]
	return ok
}

func (s *IngestService) run(ctx context.Context, slug string) {
	defer func() {
		s.mu.Lock()
		delete(s.active, slug)
		s.mu.Unlock()
	}()
	logger := logutil.GetLogger(ctx).With(zap.String("slug", slug))

	result, err := s.extractPhase(ctx, slug)
	if err != nil {
		s.fail(ctx, slug, "extraction failed", err)
		return
	}
	logger.Info("extraction finished",
		zap.Int("pages", len(result.Pages)), zap.Int("images", len(result.Images)))

	images, err := s.describePhase(ctx, slug, result.Images)
	if err != nil {
		s.fail(ctx, slug, "image description failed", err)
		return
	}

	chunks, err := s.chunkPhase(ctx, slug, result.Pages)
	if err != nil {
		s.fail(ctx, slug, "chunking failed", err)
		return
	}

	if err := s.embedPhase(ctx, slug, chunks); err != nil {
		s.fail(ctx, slug, "embedding failed", err)
		return
	}

	if err := s.deps.Documents.MarkReady(ctx, slug, len(chunks), len(images)); err != nil {
		logger.Error("mark ready failed", zap.Error(err))
		return
	}
	logger.Info("document ready", zap.Int("chunks", len(chunks)), zap.Int("images", len(images)))
}

func (s *IngestService) extractPhase(ctx context.Context, slug string) (*extract.Result, error) {
	if err := s.deps.Documents.UpdateStatus(ctx, slug, model.StatusExtracting); err != nil {
		return nil, err
	}
	r, err := s.deps.Files.Open(ctx, pdfKey(slug))
	if err != nil {
		return nil, fmt.Errorf("open stored pdf: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stored pdf: %w", err)
	}
	result, err := s.deps.Extractor.Extract(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Files.Save(ctx, fulltextKey(slug), strings.NewReader(joinPages(result.Pages))); err != nil {
		return nil, fmt.Errorf("store fulltext: %w", err)
	}
	if err := s.deps.Documents.SetPageCount(ctx, slug, len(result.Pages)); err != nil {
		return nil, err
	}
	return result, nil
}

// joinPages renders the whole extracted text with form-feed page breaks,
// the same convention pdftotext uses.
func joinPages(pages []extract.Page) string {
	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		texts = append(texts, page.Text)
	}
	return strings.Join(texts, "\f")
}

// describePhase stores each image blob, creates its row and runs the
// describer. Re-running after a previous interrupted attempt starts clean.
func (s *IngestService) describePhase(ctx context.Context, slug string, blobs []extract.ImageBlob) ([]model.Image, error) {
	if err := s.deps.Documents.UpdateStatus(ctx, slug, model.StatusDescribing); err != nil {
		return nil, err
	}
	if err := s.deps.Images.DeleteBySlug(ctx, slug); err != nil {
		return nil, err
	}

	targets := make([]ai.Target, 0, len(blobs))
	images := make([]model.Image, 0, len(blobs))
	for i, blob := range blobs {
		key := imageKey(slug, i, blob.Format)
		if err := s.deps.Files.Save(ctx, key, bytes.NewReader(blob.Data)); err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}
		img := model.Image{Slug: slug, Page: blob.Page, Path: key}
		if err := s.deps.Images.Create(ctx, &img); err != nil {
			return nil, fmt.Errorf("create image row: %w", err)
		}
		images = append(images, img)
		targets = append(targets, ai.Target{
			ID:      img.ID,
			Page:    blob.Page,
			Data:    blob.Data,
			MIME:    mimeForFormat(blob.Format),
			Persist: s.deps.Images.SetDescription,
		})
	}
	if err := s.deps.Describer.DescribeAll(ctx, targets); err != nil {
		return nil, err
	}
	return images, nil
}

// chunkPhase inlines finished image descriptions at the end of their page's
// text, then windows every page. Offsets in the produced chunks refer to the
// augmented page text.
func (s *IngestService) chunkPhase(ctx context.Context, slug string, pages []extract.Page) ([]model.Chunk, error) {
	if err := s.deps.Documents.UpdateStatus(ctx, slug, model.StatusChunking); err != nil {
		return nil, err
	}
	images, err := s.deps.Images.ListBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	descByPage := map[int][]string{}
	for _, img := range images {
		if img.Description != nil && *img.Description != "" {
			descByPage[img.Page] = append(descByPage[img.Page], *img.Description)
		}
	}

	inputs := make([]chunker.PageInput, 0, len(pages))
	for _, page := range pages {
		text := page.Text
		for _, desc := range descByPage[page.Number] {
			marker := fmt.Sprintf("[figure: %s]", desc)
			if text == "" {
				text = marker
			} else {
				text = text + "\n\n" + marker
			}
		}
		inputs = append(inputs, chunker.PageInput{Number: page.Number, Text: text})
	}

	chunks := s.deps.Chunker.Split(inputs)
	for i := range chunks {
		chunks[i].Slug = slug
	}
	return chunks, nil
}

// embedPhase vectorizes all chunks and writes them to the store in one shot.
// Chunks only become visible to search here, already carrying vectors.
func (s *IngestService) embedPhase(ctx context.Context, slug string, chunks []model.Chunk) error {
	if err := s.deps.Documents.UpdateStatus(ctx, slug, model.StatusEmbedding); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}
	vectors, err := s.deps.Embedder.EmbedTexts(ctx, texts, ai.TaskTypeDocument)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", appErr.ErrEmbedding, len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return s.deps.Vectors.Add(ctx, slug, chunks)
}

func (s *IngestService) fail(ctx context.Context, slug string, phase string, cause error) {
	logutil.GetLogger(ctx).Error("ingestion failed",
		zap.String("slug", slug), zap.String("phase", phase), zap.Error(cause))
	message := fmt.Sprintf("%s: %v", phase, cause)
	if err := s.deps.Documents.MarkError(ctx, slug, message); err != nil {
		logutil.GetLogger(ctx).Error("mark error failed", zap.String("slug", slug), zap.Error(err))
	}
}

func pdfKey(slug string) string {
	return slug + "/document.pdf"
}

func fulltextKey(slug string) string {
	return slug + "/fulltext.txt"
}

func imageKey(slug string, index int, format string) string {
	if format == "" {
		format = "bin"
	}
	return fmt.Sprintf("%s/images/%d.%s", slug, index, format)
}

func mimeForFormat(format string) string {
	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "tif", "tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
