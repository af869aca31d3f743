package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paperbase/paperbase/internal/ai"
	"github.com/paperbase/paperbase/internal/chunker"
	"github.com/paperbase/paperbase/internal/config"
	"github.com/paperbase/paperbase/internal/extract"
	"github.com/paperbase/paperbase/internal/filestore"
	"github.com/paperbase/paperbase/internal/model"
	"github.com/paperbase/paperbase/internal/repo"
	"github.com/paperbase/paperbase/internal/vectorstore"
)

// gate lets a test hold a pipeline phase open and observe state mid-flight.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gate) pass() {
	g.entered <- struct{}{}
	<-g.release
}

type stubProvider struct {
	mu         sync.Mutex
	embedCalls int
	failEmbed  bool
	embedGate  *gate
	describeFn func(image []byte) (string, error)
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	return "", nil
}

func (p *stubProvider) Describe(ctx context.Context, model string, image []byte, mimeType string, prompt string) (string, error) {
	if p.describeFn != nil {
		return p.describeFn(image)
	}
	return "a figure", nil
}

func (p *stubProvider) EmbedBatch(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	p.mu.Lock()
	p.embedCalls++
	fail := p.failEmbed
	g := p.embedGate
	p.mu.Unlock()
	if g != nil {
		g.pass()
	}
	if fail {
		return nil, context.DeadlineExceeded
	}
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vectors = append(vectors, embedText(text))
	}
	return vectors, nil
}

func (p *stubProvider) embedCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.embedCalls
}

// embedText is an arbitrary deterministic 3d embedding.
func embedText(text string) []float32 {
	var a, b float32
	for i := 0; i < len(text); i++ {
		a += float32(text[i] % 13)
		b += float32(text[i] % 7)
	}
	return []float32{a + 1, b + 1, 1}
}

type stubExtractor struct {
	result extract.Result
	err    error
	calls  atomic.Int32
	gate   *gate
}

func (e *stubExtractor) Extract(ctx context.Context, data []byte) (*extract.Result, error) {
	e.calls.Add(1)
	if e.gate != nil {
		e.gate.pass()
	}
	if e.err != nil {
		return nil, e.err
	}
	result := e.result
	return &result, nil
}

func twoPageResult() extract.Result {
	return extract.Result{
		Pages: []extract.Page{
			{Number: 1, Text: "Introduction. This work studies caching."},
			{Number: 2, Text: "Conclusion."},
		},
		Images: []extract.ImageBlob{
			{Page: 2, Data: []byte("fake-png-bytes"), Format: "png"},
		},
	}
}

type env struct {
	docs      *repo.DocumentRepo
	images    *repo.ImageRepo
	files     filestore.Store
	store     vectorstore.Store
	provider  *stubProvider
	extractor *stubExtractor
	ingest    *IngestService
	documents *DocumentService
}

func newEnv(t *testing.T, provider *stubProvider, extractor *stubExtractor) *env {
	t.Helper()
	db, err := repo.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repo.ApplyMigrations(db))

	files, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err)

	docs := repo.NewDocumentRepo(db)
	images := repo.NewImageRepo(db)
	store := vectorstore.NewSqliteStore(repo.NewChunkRepo(db))
	// Single attempts: failures in tests must not wait out retry backoff.
	describer := ai.NewDescriber(provider, "vision-model", 2, 1, time.Second)
	embedder := newEnvEmbedder(provider)

	ingest := NewIngestService(IngestDeps{
		Documents: docs,
		Images:    images,
		Files:     files,
		Vectors:   store,
		Extractor: extractor,
		Describer: describer,
		Embedder:  embedder,
		Chunker:   chunker.New(chunker.Config{MaxTokens: 50, Overlap: 10, BoundaryLookback: 5}),
	})
	return &env{
		docs:      docs,
		images:    images,
		files:     files,
		store:     store,
		provider:  provider,
		extractor: extractor,
		ingest:    ingest,
		documents: NewDocumentService(docs, files, ingest),
	}
}

func newEnvEmbedder(provider ai.IProvider) *ai.Embedder {
	return ai.NewEmbedder(provider, "embed-model", 3, 2, 1, 5*time.Second)
}

func waitStatus(t *testing.T, docs *repo.DocumentRepo, slug string, want model.Status) *model.Document {
	t.Helper()
	var doc *model.Document
	require.Eventually(t, func() bool {
		d, err := docs.GetBySlug(context.Background(), slug)
		if err != nil {
			return false
		}
		doc = d
		return d.Status == want
	}, 10*time.Second, 10*time.Millisecond, "document %s never reached %s", slug, want)
	return doc
}
