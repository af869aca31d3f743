package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func words(n int, prefix string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func TestSplitSinglePageFitsOneChunk(t *testing.T) {
	c := New(Config{MaxTokens: 100, Overlap: 10})
	chunks := c.Split([]PageInput{{Number: 1, Text: "Introduction. This work studies caching."}})
	require.Len(t, chunks, 1)
	require.Equal(t, 0, chunks[0].Seq)
	require.Equal(t, 1, chunks[0].Page)
	require.Equal(t, 0, chunks[0].StartOffset)
	require.Equal(t, "Introduction. This work studies caching.", chunks[0].Text)
}

func TestSplitNeverCrossesPageBoundary(t *testing.T) {
	c := New(Config{MaxTokens: 100, Overlap: 10})
	chunks := c.Split([]PageInput{
		{Number: 1, Text: "Introduction. This work studies caching."},
		{Number: 2, Text: "Conclusion."},
	})
	require.Len(t, chunks, 2)
	require.Equal(t, []int{0, 1}, []int{chunks[0].Seq, chunks[1].Seq})
	require.Equal(t, 1, chunks[0].Page)
	require.Equal(t, 2, chunks[1].Page)
	// Each page's first chunk starts at that page's first byte.
	require.Equal(t, 0, chunks[0].StartOffset)
	require.Equal(t, 0, chunks[1].StartOffset)
}

func TestSplitOverlapAndDensity(t *testing.T) {
	text := words(250, "w")
	c := New(Config{MaxTokens: 100, Overlap: 20})
	chunks := c.Split([]PageInput{{Number: 1, Text: text}})
	require.True(t, len(chunks) > 1)
	for i, chunk := range chunks {
		require.Equal(t, i, chunk.Seq, "seq must be dense and contiguous")
		require.Equal(t, chunk.Text, text[chunk.StartOffset:chunk.EndOffset])
	}
	// Consecutive chunks overlap: the next chunk starts before the previous
	// one ends.
	for i := 1; i < len(chunks); i++ {
		require.Less(t, chunks[i].StartOffset, chunks[i-1].EndOffset)
	}
}

func TestSplitReconstructsTokenSequence(t *testing.T) {
	text := words(317, "tok")
	c := New(Config{MaxTokens: 64, Overlap: 16})
	chunks := c.Split([]PageInput{{Number: 1, Text: text}})

	// Dropping each chunk's leading overlap tokens and concatenating must
	// reproduce the page's token sequence exactly.
	var rebuilt []string
	prevEnd := 0
	for _, chunk := range chunks {
		toks := strings.Fields(chunk.Text)
		if chunk.StartOffset < prevEnd {
			overlapText := text[chunk.StartOffset:prevEnd]
			toks = toks[len(strings.Fields(overlapText)):]
		}
		rebuilt = append(rebuilt, toks...)
		prevEnd = chunk.EndOffset
	}
	require.Equal(t, strings.Fields(text), rebuilt)
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	// 50 plain words, a sentence end at word 40, then more words. With a
	// window of 45 and lookback 10 the cut should land right after "end."
	head := words(40, "a")
	text := head + " end. " + words(30, "b")
	c := New(Config{MaxTokens: 45, Overlap: 0, BoundaryLookback: 10})
	chunks := c.Split([]PageInput{{Number: 1, Text: text}})
	require.True(t, len(chunks) >= 2)
	require.True(t, strings.HasSuffix(chunks[0].Text, "end."), "got %q", chunks[0].Text)
}

func TestSplitDeterministic(t *testing.T) {
	pages := []PageInput{
		{Number: 1, Text: words(123, "x") + ". " + words(77, "y")},
		{Number: 2, Text: ""},
		{Number: 3, Text: words(401, "z")},
	}
	c := New(Config{MaxTokens: 120, Overlap: 30, BoundaryLookback: 15})
	first := c.Split(pages)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, c.Split(pages))
	}
}

func TestSplitEmptyAndWhitespacePages(t *testing.T) {
	c := New(Config{MaxTokens: 50, Overlap: 5})
	chunks := c.Split([]PageInput{
		{Number: 1, Text: ""},
		{Number: 2, Text: "   \n\t  "},
		{Number: 3, Text: "only page with content"},
	})
	require.Len(t, chunks, 1)
	require.Equal(t, 3, chunks[0].Page)
	require.Equal(t, 0, chunks[0].Seq)
}
