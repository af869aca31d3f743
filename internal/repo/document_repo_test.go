package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paperbase/paperbase/internal/model"
	appErr "github.com/paperbase/paperbase/internal/pkg/errors"
)

func newTestDB(t *testing.T) *DocumentRepo {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, ApplyMigrations(db))
	return NewDocumentRepo(db)
}

func TestDocumentCreateConflictOnSlug(t *testing.T) {
	docs := newTestDB(t)
	ctx := context.Background()
	doc := &model.Document{Slug: "my-paper", Title: "My Paper", Status: model.StatusQueued, Ctime: 1}
	require.NoError(t, docs.Create(ctx, doc))
	err := docs.Create(ctx, &model.Document{Slug: "my-paper", Title: "Other", Status: model.StatusQueued, Ctime: 2})
	require.ErrorIs(t, err, appErr.ErrConflict)
}

func TestDocumentGetNotFound(t *testing.T) {
	docs := newTestDB(t)
	_, err := docs.GetBySlug(context.Background(), "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.ErrorIs(t, docs.UpdateStatus(context.Background(), "missing", model.StatusReady), appErr.ErrNotFound)
}

func TestDocumentListNewestFirst(t *testing.T) {
	docs := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, docs.Create(ctx, &model.Document{Slug: "old", Title: "old", Status: model.StatusReady, Ctime: 10}))
	require.NoError(t, docs.Create(ctx, &model.Document{Slug: "new", Title: "new", Status: model.StatusQueued, Ctime: 20}))

	list, err := docs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "new", list[0].Slug)
	require.Equal(t, "old", list[1].Slug)
}

func TestDocumentLifecycleUpdates(t *testing.T) {
	docs := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, docs.Create(ctx, &model.Document{Slug: "doc", Title: "doc", Status: model.StatusQueued, Ctime: 1}))

	require.NoError(t, docs.UpdateStatus(ctx, "doc", model.StatusExtracting))
	require.NoError(t, docs.SetPageCount(ctx, "doc", 7))
	require.NoError(t, docs.MarkReady(ctx, "doc", 12, 3))

	doc, err := docs.GetBySlug(ctx, "doc")
	require.NoError(t, err)
	require.Equal(t, model.StatusReady, doc.Status)
	require.Equal(t, 7, doc.PageCount)
	require.Equal(t, 12, doc.ChunkCount)
	require.Equal(t, 3, doc.ImageCount)
	require.Empty(t, doc.ErrMessage)

	require.NoError(t, docs.MarkError(ctx, "doc", "embedding failed: boom"))
	doc, err = docs.GetBySlug(ctx, "doc")
	require.NoError(t, err)
	require.Equal(t, model.StatusError, doc.Status)
	require.Equal(t, "embedding failed: boom", doc.ErrMessage)
}

func TestListUnfinished(t *testing.T) {
	docs := newTestDB(t)
	ctx := context.Background()
	for i, status := range []model.Status{
		model.StatusQueued, model.StatusChunking, model.StatusReady, model.StatusError,
	} {
		require.NoError(t, docs.Create(ctx, &model.Document{
			Slug: string(status), Title: string(status), Status: status, Ctime: int64(i),
		}))
	}
	unfinished, err := docs.ListUnfinished(ctx)
	require.NoError(t, err)
	require.Len(t, unfinished, 2)
	slugs := []string{unfinished[0].Slug, unfinished[1].Slug}
	require.ElementsMatch(t, []string{"queued", "chunking"}, slugs)
}
