package vectorstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/paperbase/paperbase/internal/model"
	appErr "github.com/paperbase/paperbase/internal/pkg/errors"
)

// PgvectorStore is the postgres-backed alternative for setups that already
// run postgres with the pgvector extension. Distance ordering happens in the
// database.
type PgvectorStore struct {
	db  *sqlx.DB
	dim int
}

func NewPgvectorStore(dsn string, dim int) (*PgvectorStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect pgvector store: %w", err)
	}
	store := &PgvectorStore{db: db, dim: dim}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PgvectorStore) migrate() error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			slug TEXT NOT NULL,
			seq INTEGER NOT NULL,
			page INTEGER NOT NULL,
			text TEXT NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			embedding vector(%d) NOT NULL,
			PRIMARY KEY (slug, seq)
		)`, s.dim),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("pgvector migrate: %w", err)
		}
	}
	return nil
}

func (s *PgvectorStore) Close() error {
	return s.db.Close()
}

func (s *PgvectorStore) Add(ctx context.Context, slug string, chunks []model.Chunk) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE slug = $1", slug); err != nil {
		return err
	}
	const insert = `INSERT INTO chunks (slug, seq, page, text, start_offset, end_offset, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return appErr.ErrEmbedding
		}
		if _, err := tx.ExecContext(ctx, insert,
			slug, chunk.Seq, chunk.Page, chunk.Text, chunk.StartOffset, chunk.EndOffset,
			pgvector.NewVector(chunk.Embedding)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PgvectorStore) Search(ctx context.Context, slug string, vector []float32, k int, page int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, appErr.ErrInvalid
	}
	query := `SELECT slug, seq, page, text, start_offset, end_offset,
			1 - (embedding <=> $2) AS score
		FROM chunks WHERE slug = $1`
	args := []interface{}{slug, pgvector.NewVector(vector)}
	if page > 0 {
		query += " AND page = $3"
		args = append(args, page)
	}
	query += fmt.Sprintf(" ORDER BY embedding <=> $2, seq ASC LIMIT %d", k)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []SearchResult
	for rows.Next() {
		var item SearchResult
		if err := rows.Scan(&item.Chunk.Slug, &item.Chunk.Seq, &item.Chunk.Page, &item.Chunk.Text,
			&item.Chunk.StartOffset, &item.Chunk.EndOffset, &item.Score); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}
