package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/paperbase/paperbase/internal/model"
)

type ImageRepo struct {
	db *sql.DB
}

func NewImageRepo(db *sql.DB) *ImageRepo {
	return &ImageRepo{db: db}
}

func (r *ImageRepo) Create(ctx context.Context, img *model.Image) error {
	data := map[string]interface{}{
		"slug": img.Slug,
		"page": img.Page,
		"path": img.Path,
	}
	if img.Description != nil {
		data["description"] = *img.Description
	}
	sqlStr, args, err := builder.BuildInsert("images", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	img.ID, err = res.LastInsertId()
	return err
}

// SetDescription durably associates a description with its image. Called per
// image as vision calls complete, before the chunking phase reads them back.
func (r *ImageRepo) SetDescription(ctx context.Context, id int64, description string) error {
	where := map[string]interface{}{"id": id}
	data := map[string]interface{}{"description": description}
	sqlStr, args, err := builder.BuildUpdate("images", where, data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ImageRepo) ListBySlug(ctx context.Context, slug string) ([]model.Image, error) {
	where := map[string]interface{}{
		"slug":     slug,
		"_orderby": "page asc, id asc",
	}
	sqlStr, args, err := builder.BuildSelect("images", where, []string{"id", "slug", "page", "path", "description"})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var images []model.Image
	for rows.Next() {
		var img model.Image
		var desc sql.NullString
		if err := rows.Scan(&img.ID, &img.Slug, &img.Page, &img.Path, &desc); err != nil {
			return nil, err
		}
		if desc.Valid {
			img.Description = &desc.String
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (r *ImageRepo) DeleteBySlug(ctx context.Context, slug string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM images WHERE slug = ?", slug)
	return err
}
