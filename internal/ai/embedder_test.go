package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/paperbase/paperbase/internal/pkg/errors"
)

type fakeProvider struct {
	dim        int
	embedCalls int
	failFirst  int  // number of leading EmbedBatch calls that fail
	emptyBatch bool // return no vectors with a nil error
	describeFn func(image []byte) (string, error)
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, model, prompt string) (string, error) {
	return "generated", nil
}

func (p *fakeProvider) Describe(ctx context.Context, model string, image []byte, mimeType, prompt string) (string, error) {
	if p.describeFn != nil {
		return p.describeFn(image)
	}
	return "an image", nil
}

func (p *fakeProvider) EmbedBatch(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	p.embedCalls++
	if p.embedCalls <= p.failFirst {
		return nil, errors.New("transient upstream error")
	}
	if p.emptyBatch {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, p.dim)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

func newTestEmbedder(p IProvider, dim, batchSize, attempts int) *Embedder {
	e := NewEmbedder(p, "test-embed", dim, batchSize, attempts, time.Second)
	e.backoffBase = time.Millisecond
	return e
}

func TestEmbedTextsBatching(t *testing.T) {
	provider := &fakeProvider{dim: 4}
	embedder := newTestEmbedder(provider, 4, 2, 3)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := embedder.EmbedTexts(context.Background(), texts, TaskTypeDocument)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	require.Equal(t, 3, provider.embedCalls, "5 texts at batch size 2 is 3 calls")
	for i, vec := range vectors {
		require.Len(t, vec, 4)
		require.Equal(t, float32(len(texts[i])), vec[0], "order must be preserved")
	}
}

func TestEmbedTextsRetriesTransientFailure(t *testing.T) {
	provider := &fakeProvider{dim: 4, failFirst: 2}
	embedder := newTestEmbedder(provider, 4, 8, 3)

	vectors, err := embedder.EmbedTexts(context.Background(), []string{"x"}, TaskTypeDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	require.Equal(t, 3, provider.embedCalls)
}

func TestEmbedTextsExhaustionIsFatal(t *testing.T) {
	provider := &fakeProvider{dim: 4, failFirst: 100}
	embedder := newTestEmbedder(provider, 4, 8, 2)

	_, err := embedder.EmbedTexts(context.Background(), []string{"x"}, TaskTypeDocument)
	require.ErrorIs(t, err, appErr.ErrEmbedding)
	require.Equal(t, 2, provider.embedCalls)
}

func TestEmbedTextsDimensionMismatch(t *testing.T) {
	provider := &fakeProvider{dim: 3}
	embedder := newTestEmbedder(provider, 8, 8, 1)

	_, err := embedder.EmbedTexts(context.Background(), []string{"x"}, TaskTypeDocument)
	require.ErrorIs(t, err, appErr.ErrEmbedding)
}

func TestEmbedQueryShortBatch(t *testing.T) {
	provider := &fakeProvider{dim: 4, emptyBatch: true}
	embedder := newTestEmbedder(provider, 4, 8, 1)

	_, err := embedder.EmbedQuery(context.Background(), "q")
	require.ErrorIs(t, err, appErr.ErrEmbedding)
}

func TestDescribeAllAbsorbsFailures(t *testing.T) {
	provider := &fakeProvider{describeFn: func(image []byte) (string, error) {
		if len(image) == 0 {
			return "", fmt.Errorf("simulated vision failure")
		}
		return "a diagram", nil
	}}
	describer := NewDescriber(provider, "test-vision", 2, 2, time.Second)
	describer.backoffBase = time.Millisecond

	saved := map[int64]string{}
	targets := []Target{
		{ID: 1, Page: 1, Data: []byte{1}, MIME: "image/png", Persist: func(ctx context.Context, id int64, d string) error {
			saved[id] = d
			return nil
		}},
		{ID: 2, Page: 2, Data: nil, MIME: "image/png", Persist: func(ctx context.Context, id int64, d string) error {
			saved[id] = d
			return nil
		}},
	}
	require.NoError(t, describer.DescribeAll(context.Background(), targets))
	require.Equal(t, "a diagram", saved[1])
	_, described := saved[2]
	require.False(t, described, "failed image must keep a null description")
}

func TestDescribeAllCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	provider := &fakeProvider{}
	describer := NewDescriber(provider, "test-vision", 2, 2, time.Second)
	err := describer.DescribeAll(ctx, []Target{{ID: 1, Data: []byte{1}, Persist: func(context.Context, int64, string) error { return nil }}})
	require.ErrorIs(t, err, context.Canceled)
}
