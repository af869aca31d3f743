package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/paperbase/paperbase/internal/agent"
	"github.com/paperbase/paperbase/internal/ai"
	"github.com/paperbase/paperbase/internal/model"
	appErr "github.com/paperbase/paperbase/internal/pkg/errors"
	"github.com/paperbase/paperbase/internal/repo"
	"github.com/paperbase/paperbase/internal/vectorstore"
)

const (
	queryCacheSize = 256
	queryCacheTTL  = 10 * time.Minute
)

type AskRequest struct {
	Slug         string
	Question     string
	SelectedText string
	Page         int
}

// AnswerService orchestrates one question: seed retrieval, delegation to the
// reasoning agent with a document-scoped retrieval tool, and the resulting
// event stream. Query embeddings are cached so repeated or reformulated
// questions on the same passage do not re-bill the embedding endpoint.
type AnswerService struct {
	docs       *repo.DocumentRepo
	embedder   *ai.Embedder
	store      vectorstore.Store
	agent      agent.Agent
	topK       int
	queryCache *expirable.LRU[string, []float32]
}

func NewAnswerService(docs *repo.DocumentRepo, embedder *ai.Embedder, store vectorstore.Store, runner agent.Agent, topK int) *AnswerService {
	if topK <= 0 {
		topK = 5
	}
	return &AnswerService{
		docs:       docs,
		embedder:   embedder,
		store:      store,
		agent:      runner,
		topK:       topK,
		queryCache: expirable.NewLRU[string, []float32](queryCacheSize, nil, queryCacheTTL),
	}
}

// Ask validates the request, retrieves seed context and starts the agent.
// The returned channel carries zero or more partials and exactly one
// terminal event, then closes. Cancelling ctx tears the agent down.
func (s *AnswerService) Ask(ctx context.Context, req AskRequest) (<-chan agent.Event, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("%w: question is required", appErr.ErrInvalid)
	}
	doc, err := s.docs.GetBySlug(ctx, req.Slug)
	if err != nil {
		return nil, err
	}
	if doc.Status != model.StatusReady {
		return nil, fmt.Errorf("%w: document is %s, not ready", appErr.ErrConflict, doc.Status)
	}

	// Selected text anchors the embedding: the question alone is often
	// deictic ("what does this mean?").
	embedText := req.Question
	if req.SelectedText != "" {
		embedText = req.SelectedText + "\n\n" + req.Question
	}
	seed, err := s.search(ctx, req.Slug, embedText, s.topK, 0)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("seed retrieval done",
		zap.String("slug", req.Slug), zap.Int("hits", len(seed)))

	tool := func(ctx context.Context, query string, k int, page int) ([]agent.ContextChunk, error) {
		return s.search(ctx, req.Slug, query, k, page)
	}
	return s.agent.Ask(ctx, agent.Request{
		Question:     req.Question,
		SelectedText: req.SelectedText,
		Page:         req.Page,
		Context:      seed,
	}, tool)
}

func (s *AnswerService) search(ctx context.Context, slug string, query string, k int, page int) ([]agent.ContextChunk, error) {
	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", appErr.ErrRetrieval, err)
	}
	results, err := s.store.Search(ctx, slug, vector, k, page)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrRetrieval, err)
	}
	chunks := make([]agent.ContextChunk, 0, len(results))
	for _, item := range results {
		chunks = append(chunks, agent.ContextChunk{
			Seq:   item.Chunk.Seq,
			Page:  item.Chunk.Page,
			Text:  item.Chunk.Text,
			Score: item.Score,
		})
	}
	return chunks, nil
}

func (s *AnswerService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if vector, ok := s.queryCache.Get(query); ok {
		return vector, nil
	}
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	s.queryCache.Add(query, vector)
	return vector, nil
}
