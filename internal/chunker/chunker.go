// Package chunker splits extracted page text into overlapping, bounded-size
// retrieval units. Chunking is fully deterministic: identical input and
// configuration always produce the identical chunk sequence.
package chunker

import (
	"strings"
	"unicode"

	"github.com/paperbase/paperbase/internal/model"
)

type Config struct {
	// MaxTokens bounds the number of word tokens per chunk.
	MaxTokens int
	// Overlap is the number of trailing tokens repeated at the start of the
	// next chunk. Must be smaller than MaxTokens.
	Overlap int
	// BoundaryLookback is how many tokens before the hard window end the
	// chunker may cut early to land on a sentence boundary.
	BoundaryLookback int
}

type Chunker struct {
	cfg Config
}

func New(cfg Config) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.MaxTokens {
		cfg.Overlap = cfg.MaxTokens / 4
	}
	if cfg.BoundaryLookback < 0 {
		cfg.BoundaryLookback = 0
	}
	return &Chunker{cfg: cfg}
}

// PageInput is one page's text with any image descriptions already inlined.
type PageInput struct {
	Number int
	Text   string
}

// span is a token's byte range within its page text.
type span struct {
	start int
	end   int
}

// Split windows each page independently; chunks never merge text across a
// page boundary and the first chunk of a page starts at byte offset 0 of
// that page's text. Seq values are dense and ascending across the document.
func (c *Chunker) Split(pages []PageInput) []model.Chunk {
	var chunks []model.Chunk
	seq := 0
	for _, page := range pages {
		toks := tokenize(page.Text)
		if len(toks) == 0 {
			continue
		}
		first := true
		i := 0
		for {
			end := c.windowEnd(page.Text, toks, i)
			start := toks[i].start
			if first {
				start = 0
				first = false
			}
			chunks = append(chunks, model.Chunk{
				Seq:         seq,
				Page:        page.Number,
				Text:        page.Text[start:toks[end-1].end],
				StartOffset: start,
				EndOffset:   toks[end-1].end,
			})
			seq++
			if end == len(toks) {
				break
			}
			next := end - c.cfg.Overlap
			if next <= i {
				// Overlap would stall the window; drop it for this step.
				next = end
			}
			i = next
		}
	}
	return chunks
}

// windowEnd returns the exclusive token index closing the window that starts
// at token i. Within the look-back distance it prefers the nearest sentence
// boundary, so chunks avoid splitting mid-sentence.
func (c *Chunker) windowEnd(text string, toks []span, i int) int {
	end := i + c.cfg.MaxTokens
	if end >= len(toks) {
		return len(toks)
	}
	lo := end - c.cfg.BoundaryLookback
	if lo <= i {
		lo = i + 1
	}
	for j := end - 1; j >= lo; j-- {
		if endsSentence(text[toks[j].start:toks[j].end]) {
			return j + 1
		}
	}
	return end
}

func endsSentence(tok string) bool {
	trimmed := strings.TrimRight(tok, `"')]`)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// tokenize records the byte range of every whitespace-separated token.
func tokenize(text string) []span {
	var toks []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				toks = append(toks, span{start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, span{start: start, end: len(text)})
	}
	return toks
}
