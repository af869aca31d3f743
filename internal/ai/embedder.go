package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/paperbase/paperbase/internal/pkg/errors"
)

const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

// Embedder converts texts into fixed-dimension vectors via batched provider
// calls. A batch that still fails after retries is fatal: there is no such
// thing as a chunk without a vector once embedding is declared complete.
type Embedder struct {
	provider    IProvider
	model       string
	dim         int
	batchSize   int
	attempts    int
	callTimeout time.Duration
	backoffBase time.Duration
}

func NewEmbedder(provider IProvider, model string, dim, batchSize, attempts int, callTimeout time.Duration) *Embedder {
	if batchSize <= 0 {
		batchSize = 64
	}
	if attempts <= 0 {
		attempts = 3
	}
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	return &Embedder{
		provider:    provider,
		model:       model,
		dim:         dim,
		batchSize:   batchSize,
		attempts:    attempts,
		callTimeout: callTimeout,
		backoffBase: time.Second,
	}
}

func (e *Embedder) Dim() int {
	return e.dim
}

// EmbedTexts returns one vector per input, in input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedBatch(ctx, texts[start:end], taskType)
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %v", appErr.ErrEmbedding, start, end, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedQuery embeds a single retrieval query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text}, TaskTypeQuery)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one query", appErr.ErrEmbedding, len(vectors))
	}
	return vectors[0], nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	var vectors [][]float32
	err := retry(ctx, e.attempts, e.backoffBase, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
		result, err := e.provider.EmbedBatch(callCtx, e.model, texts, taskType)
		if err != nil {
			logutil.GetLogger(ctx).Warn("embedding batch failed, will retry",
				zap.Int("batch_size", len(texts)), zap.Error(err))
			return err
		}
		for i, vec := range result {
			if e.dim > 0 && len(vec) != e.dim {
				return fmt.Errorf("vector %d has dimension %d, want %d", i, len(vec), e.dim)
			}
		}
		vectors = result
		return nil
	})
	return vectors, err
}
