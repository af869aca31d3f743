package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/paperbase/paperbase/internal/model"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// SaveAll writes a document's chunk set in one transaction. Every chunk
// carries its vector already; a reader can never observe a chunk without
// one. Any previous chunk set for the slug is dropped first so a re-ingested
// document starts from a clean seq 0.
func (r *ChunkRepo) SaveAll(ctx context.Context, slug string, chunks []model.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE slug = ?", slug); err != nil {
		return err
	}
	for _, chunk := range chunks {
		blob, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return err
		}
		data := map[string]interface{}{
			"slug":         slug,
			"seq":          chunk.Seq,
			"page":         chunk.Page,
			"text":         chunk.Text,
			"start_offset": chunk.StartOffset,
			"end_offset":   chunk.EndOffset,
			"embedding":    blob,
		}
		sqlStr, args, err := builder.BuildInsert("chunks", []map[string]interface{}{data})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ChunkRepo) ListBySlug(ctx context.Context, slug string, page int) ([]model.Chunk, error) {
	where := map[string]interface{}{
		"slug":     slug,
		"_orderby": "seq asc",
	}
	if page > 0 {
		where["page"] = page
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, []string{"slug", "seq", "page", "text", "start_offset", "end_offset", "embedding"})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []model.Chunk
	for rows.Next() {
		var chunk model.Chunk
		var blob []byte
		if err := rows.Scan(&chunk.Slug, &chunk.Seq, &chunk.Page, &chunk.Text, &chunk.StartOffset, &chunk.EndOffset, &blob); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(blob, &chunk.Embedding); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepo) CountBySlug(ctx context.Context, slug string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE slug = ?", slug).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}
