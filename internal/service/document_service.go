package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/paperbase/paperbase/internal/filestore"
	"github.com/paperbase/paperbase/internal/model"
	appErr "github.com/paperbase/paperbase/internal/pkg/errors"
	"github.com/paperbase/paperbase/internal/pkg/slugify"
	"github.com/paperbase/paperbase/internal/pkg/timeutil"
	"github.com/paperbase/paperbase/internal/repo"
)

const maxSlugProbes = 100

// DocumentService owns the document lifecycle outside the ingestion
// pipeline: upload, listing, status and serving the original file.
type DocumentService struct {
	docs   *repo.DocumentRepo
	files  filestore.Store
	ingest *IngestService
}

func NewDocumentService(docs *repo.DocumentRepo, files filestore.Store, ingest *IngestService) *DocumentService {
	return &DocumentService{docs: docs, files: files, ingest: ingest}
}

// Upload registers a new document and schedules its ingestion. The returned
// document is in status queued; the caller polls Status to follow progress.
// Slugs are derived from the file name; collisions get a numeric suffix.
func (s *DocumentService) Upload(ctx context.Context, filename string, r io.Reader) (*model.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: not a pdf file", appErr.ErrInvalid)
	}

	title := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base := slugify.Make(title)

	doc := &model.Document{
		Title:  title,
		Status: model.StatusQueued,
		Ctime:  timeutil.NowUnix(),
	}
	// Claim a free slug through the unique key; concurrent uploads of the
	// same name race on Create, not on a lookup.
	for probe := 0; ; probe++ {
		if probe >= maxSlugProbes {
			return nil, fmt.Errorf("%w: no free slug for %s", appErr.ErrConflict, base)
		}
		doc.Slug = base
		if probe > 0 {
			doc.Slug = fmt.Sprintf("%s-%d", base, probe)
		}
		err := s.docs.Create(ctx, doc)
		if err == nil {
			break
		}
		if appErr.IsConflict(err) {
			continue
		}
		return nil, err
	}

	if err := s.files.Save(ctx, pdfKey(doc.Slug), bytes.NewReader(data)); err != nil {
		s.failUpload(ctx, doc.Slug, err)
		return nil, fmt.Errorf("store pdf: %w", err)
	}
	logutil.GetLogger(ctx).Info("document uploaded",
		zap.String("slug", doc.Slug), zap.Int("size", len(data)))
	s.ingest.Submit(ctx, doc.Slug)
	return doc, nil
}

func (s *DocumentService) failUpload(ctx context.Context, slug string, cause error) {
	if err := s.docs.MarkError(ctx, slug, fmt.Sprintf("upload failed: %v", cause)); err != nil {
		logutil.GetLogger(ctx).Error("mark upload error failed",
			zap.String("slug", slug), zap.Error(err))
	}
}

func (s *DocumentService) List(ctx context.Context) ([]model.Document, error) {
	return s.docs.List(ctx)
}

func (s *DocumentService) Status(ctx context.Context, slug string) (*model.Document, error) {
	return s.docs.GetBySlug(ctx, slug)
}

// OpenPDF streams the stored original. The caller must close the reader.
func (s *DocumentService) OpenPDF(ctx context.Context, slug string) (io.ReadCloser, error) {
	if _, err := s.docs.GetBySlug(ctx, slug); err != nil {
		return nil, err
	}
	r, err := s.files.Open(ctx, pdfKey(slug))
	if err != nil {
		return nil, fmt.Errorf("%w: stored pdf missing", appErr.ErrNotFound)
	}
	return r, nil
}
