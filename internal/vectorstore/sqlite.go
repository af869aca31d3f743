package vectorstore

import (
	"context"

	"github.com/paperbase/paperbase/internal/model"
	appErr "github.com/paperbase/paperbase/internal/pkg/errors"
	"github.com/paperbase/paperbase/internal/repo"
)

// SqliteStore keeps vectors alongside chunk rows in the main sqlite file and
// scores them brute-force in memory. Fine for a single-user local index;
// documents top out at a few thousand chunks.
type SqliteStore struct {
	chunks *repo.ChunkRepo
}

func NewSqliteStore(chunks *repo.ChunkRepo) *SqliteStore {
	return &SqliteStore{chunks: chunks}
}

func (s *SqliteStore) Add(ctx context.Context, slug string, chunks []model.Chunk) error {
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return appErr.ErrEmbedding
		}
	}
	return s.chunks.SaveAll(ctx, slug, chunks)
}

func (s *SqliteStore) Search(ctx context.Context, slug string, vector []float32, k int, page int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, appErr.ErrInvalid
	}
	chunks, err := s.chunks.ListBySlug(ctx, slug, page)
	if err != nil {
		return nil, err
	}
	return rank(chunks, vector, k), nil
}
