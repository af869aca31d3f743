package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paperbase/paperbase/internal/model"
	appErr "github.com/paperbase/paperbase/internal/pkg/errors"
	"github.com/paperbase/paperbase/internal/repo"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	db, err := repo.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repo.ApplyMigrations(db))
	return NewSqliteStore(repo.NewChunkRepo(db))
}

func chunk(seq, page int, text string, vec []float32) model.Chunk {
	return model.Chunk{Slug: "doc", Seq: seq, Page: page, Text: text, Embedding: vec}
}

func TestSearchOrdersByCosineSimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, "doc", []model.Chunk{
		chunk(0, 1, "opposite", []float32{-1, 0, 0}),
		chunk(1, 1, "orthogonal", []float32{0, 1, 0}),
		chunk(2, 2, "aligned", []float32{1, 0, 0}),
		chunk(3, 2, "close", []float32{0.9, 0.1, 0}),
	}))

	results, err := store.Search(ctx, "doc", []float32{1, 0, 0}, 3, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "aligned", results[0].Chunk.Text)
	require.Equal(t, "close", results[1].Chunk.Text)
	require.Equal(t, "orthogonal", results[2].Chunk.Text)
	require.True(t, results[0].Score >= results[1].Score && results[1].Score >= results[2].Score)
}

func TestSearchTieBrokenByLowerSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	// Same vector twice: identical similarity, lower seq must sort first.
	require.NoError(t, store.Add(ctx, "doc", []model.Chunk{
		chunk(0, 1, "first", []float32{1, 1, 0}),
		chunk(1, 1, "second", []float32{1, 1, 0}),
	}))
	results, err := store.Search(ctx, "doc", []float32{1, 1, 0}, 2, 0)
	require.NoError(t, err)
	require.Equal(t, 0, results[0].Chunk.Seq)
	require.Equal(t, 1, results[1].Chunk.Seq)
}

func TestSearchKLargerThanCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, "doc", []model.Chunk{
		chunk(0, 1, "a", []float32{1, 0, 0}),
		chunk(1, 1, "b", []float32{0, 1, 0}),
	}))
	results, err := store.Search(ctx, "doc", []float32{1, 0, 0}, 50, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestSearchPageFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, "doc", []model.Chunk{
		chunk(0, 1, "page one", []float32{1, 0, 0}),
		chunk(1, 2, "page two", []float32{1, 0, 0}),
	}))
	results, err := store.Search(ctx, "doc", []float32{1, 0, 0}, 10, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "page two", results[0].Chunk.Text)
}

func TestSearchScopedToDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, "doc", []model.Chunk{chunk(0, 1, "mine", []float32{1, 0, 0})}))
	other := model.Chunk{Slug: "other", Seq: 0, Page: 1, Text: "theirs", Embedding: []float32{1, 0, 0}}
	require.NoError(t, store.Add(ctx, "other", []model.Chunk{other}))

	results, err := store.Search(ctx, "doc", []float32{1, 0, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "mine", results[0].Chunk.Text)
}

func TestAddRejectsVectorlessChunk(t *testing.T) {
	store := newTestStore(t)
	err := store.Add(context.Background(), "doc", []model.Chunk{{Slug: "doc", Seq: 0, Page: 1, Text: "bare"}})
	require.ErrorIs(t, err, appErr.ErrEmbedding)
}

func TestSearchEmptyDocument(t *testing.T) {
	store := newTestStore(t)
	results, err := store.Search(context.Background(), "missing", []float32{1, 0, 0}, 5, 0)
	require.NoError(t, err)
	require.Empty(t, results)
}
