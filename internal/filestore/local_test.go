package filestore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) Store {
	t.Helper()
	store, err := createLocalStore(map[string]interface{}{"dir": t.TempDir()})
	require.NoError(t, err)
	return store
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "my-paper/document.pdf", strings.NewReader("%PDF-1.4")))

	r, err := store.Open(ctx, "my-paper/document.pdf")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(data))
}

func TestLocalStoreNestedKeys(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "my-paper/images/3.png", strings.NewReader("png")))
	r, err := store.Open(ctx, "my-paper/images/3.png")
	require.NoError(t, err)
	r.Close()
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()
	for _, key := range []string{"../escape", "a/../../b", "", "a//b", `a\b`} {
		require.Error(t, store.Save(ctx, key, strings.NewReader("x")), "key %q", key)
	}
}

func TestLocalStoreDeleteIdempotent(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "doc/file", strings.NewReader("x")))
	require.NoError(t, store.Delete(ctx, "doc/file"))
	require.NoError(t, store.Delete(ctx, "doc/file"))
	_, err := store.Open(ctx, "doc/file")
	require.Error(t, err)
}
