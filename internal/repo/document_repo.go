package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/didi/gendry/builder"

	"github.com/paperbase/paperbase/internal/model"
	appErr "github.com/paperbase/paperbase/internal/pkg/errors"
)

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

var documentFields = []string{"slug", "title", "status", "page_count", "chunk_count", "image_count", "err_message", "ctime"}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"slug":        doc.Slug,
		"title":       doc.Title,
		"status":      string(doc.Status),
		"page_count":  doc.PageCount,
		"chunk_count": doc.ChunkCount,
		"image_count": doc.ImageCount,
		"err_message": doc.ErrMessage,
		"ctime":       doc.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *DocumentRepo) GetBySlug(ctx context.Context, slug string) (*model.Document, error) {
	where := map[string]interface{}{"slug": slug}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.ErrNotFound
	}
	return doc, err
}

func (r *DocumentRepo) List(ctx context.Context) ([]model.Document, error) {
	where := map[string]interface{}{"_orderby": "ctime desc"}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// UpdateStatus persists a phase transition. The write commits before the
// caller starts the next phase, so a poll never observes a half-finished
// transition.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, slug string, status model.Status) error {
	return r.update(ctx, slug, map[string]interface{}{"status": string(status)})
}

func (r *DocumentRepo) MarkError(ctx context.Context, slug string, message string) error {
	return r.update(ctx, slug, map[string]interface{}{
		"status":      string(model.StatusError),
		"err_message": message,
	})
}

func (r *DocumentRepo) MarkReady(ctx context.Context, slug string, chunkCount, imageCount int) error {
	return r.update(ctx, slug, map[string]interface{}{
		"status":      string(model.StatusReady),
		"chunk_count": chunkCount,
		"image_count": imageCount,
		"err_message": "",
	})
}

func (r *DocumentRepo) SetPageCount(ctx context.Context, slug string, pageCount int) error {
	return r.update(ctx, slug, map[string]interface{}{"page_count": pageCount})
}

// ListUnfinished returns documents left in a non-terminal status, used by the
// reaper to flag ingestions interrupted by a restart.
func (r *DocumentRepo) ListUnfinished(ctx context.Context) ([]model.Document, error) {
	where := map[string]interface{}{
		"status not in": []interface{}{string(model.StatusReady), string(model.StatusError)},
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) update(ctx context.Context, slug string, data map[string]interface{}) error {
	where := map[string]interface{}{"slug": slug}
	sqlStr, args, err := builder.BuildUpdate("documents", where, data)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	var status string
	if err := row.Scan(&doc.Slug, &doc.Title, &status, &doc.PageCount, &doc.ChunkCount, &doc.ImageCount, &doc.ErrMessage, &doc.Ctime); err != nil {
		return nil, err
	}
	doc.Status = model.Status(status)
	return &doc, nil
}
