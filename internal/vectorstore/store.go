// Package vectorstore persists (chunk, vector) tuples per document and
// serves nearest-neighbor retrieval over them.
package vectorstore

import (
	"context"
	"math"
	"sort"

	"github.com/paperbase/paperbase/internal/model"
)

type SearchResult struct {
	Chunk model.Chunk `json:"chunk"`
	Score float32     `json:"score"`
}

// Store is append-only during ingestion: a document's chunk set is written
// once, never mutated or reordered. Search never observes a chunk without
// its vector.
type Store interface {
	// Add writes the document's complete chunk set atomically. Every chunk
	// must already carry its embedding.
	Add(ctx context.Context, slug string, chunks []model.Chunk) error
	// Search returns the k chunks most similar to vector by cosine
	// similarity, ties broken by ascending chunk seq. page > 0 restricts
	// results to that page. k beyond the available count returns everything.
	Search(ctx context.Context, slug string, vector []float32, k int, page int) ([]SearchResult, error)
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// rank scores chunks against the query vector and returns the top k with
// the tie rule applied.
func rank(chunks []model.Chunk, vector []float32, k int) []SearchResult {
	results := make([]SearchResult, 0, len(chunks))
	for _, chunk := range chunks {
		results = append(results, SearchResult{
			Chunk: chunk,
			Score: cosineSimilarity(vector, chunk.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Seq < results[j].Chunk.Seq
	})
	if k < len(results) {
		results = results[:k]
	}
	return results
}
