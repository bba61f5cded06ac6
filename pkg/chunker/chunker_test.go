package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordText(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%04d", i+1)
	}
	return strings.Join(words, " ")
}

// sharedEdge returns the length of the longest suffix of prev that is also a
// prefix of next.
func sharedEdge(prev, next string) int {
	for l := min(len(prev), len(next)); l > 0; l-- {
		if strings.HasSuffix(prev, next[:l]) {
			return l
		}
	}
	return 0
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := New(Options{}).(*recursiveChunker)
		assert.Equal(t, DefaultChunkSize, c.opts.ChunkSize)
		assert.Equal(t, 0, c.opts.ChunkOverlap)
		assert.Equal(t, DefaultSeparators, c.opts.Separators)
	})

	t.Run("overlap not smaller than size is reduced", func(t *testing.T) {
		c := New(Options{ChunkSize: 100, ChunkOverlap: 150}).(*recursiveChunker)
		assert.Less(t, c.opts.ChunkOverlap, c.opts.ChunkSize)
	})

	t.Run("zero overlap is kept", func(t *testing.T) {
		c := New(Options{ChunkSize: 100, ChunkOverlap: 0}).(*recursiveChunker)
		assert.Equal(t, 100, c.opts.ChunkSize)
		assert.Equal(t, 0, c.opts.ChunkOverlap)
	})

	t.Run("negative overlap clamps to zero", func(t *testing.T) {
		c := New(Options{ChunkSize: 100, ChunkOverlap: -3}).(*recursiveChunker)
		assert.Equal(t, 0, c.opts.ChunkOverlap)
	})
}

func TestChunk_Empty(t *testing.T) {
	c := New(DefaultOptions())
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\n  \n"))
}

func TestChunk_ShortTextIsSingleTrimmedChunk(t *testing.T) {
	c := New(DefaultOptions())
	chunks := c.Chunk("  Diabetes is a chronic condition.  ")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Diabetes is a chronic condition.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestChunk_BoundedLengthAndOverlap(t *testing.T) {
	opts := Options{ChunkSize: 100, ChunkOverlap: 20}
	c := New(opts)
	chunks := c.Chunk(wordText(200))
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.NotEmpty(t, ch.Content)
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), opts.ChunkSize)
	}

	for i := 1; i < len(chunks); i++ {
		shared := sharedEdge(chunks[i-1].Content, chunks[i].Content)
		assert.Greater(t, shared, 0, "chunks %d and %d do not overlap", i-1, i)
		assert.LessOrEqual(t, shared, opts.ChunkOverlap)
	}

	assert.True(t, strings.HasPrefix(chunks[0].Content, "w0001"))
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1].Content, "w0200"))
}

func TestChunk_PrefersParagraphBreaks(t *testing.T) {
	p1 := strings.Repeat("a", 600)
	p2 := strings.Repeat("b", 600)

	chunks := New(DefaultOptions()).Chunk(p1 + "\n\n" + p2)
	require.Len(t, chunks, 2)
	assert.Equal(t, p1, chunks[0].Content)
	assert.Equal(t, p2, chunks[1].Content)
}

func TestChunk_FallsBackToCharacters(t *testing.T) {
	chunks := New(DefaultOptions()).Chunk(strings.Repeat("x", 2500))
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Content, 1000)
	assert.Len(t, chunks[1].Content, 1000)
	assert.Len(t, chunks[2].Content, 900)
}

func TestChunk_CountsRunesNotBytes(t *testing.T) {
	chunks := New(Options{ChunkSize: 1000, ChunkOverlap: 0}).Chunk(strings.Repeat("é", 1500))
	require.Len(t, chunks, 2)
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0].Content))
	assert.Equal(t, 500, utf8.RuneCountInString(chunks[1].Content))
}

func TestChunk_Deterministic(t *testing.T) {
	text := wordText(500) + "\n\n" + wordText(120)
	c := New(DefaultOptions())
	assert.Equal(t, c.Chunk(text), c.Chunk(text))
}

func TestSplitKeepSeparator(t *testing.T) {
	assert.Equal(t, []string{"a", ". b", ". c"}, splitKeepSeparator("a. b. c", ". "))
	assert.Equal(t, []string{"\nb"}, splitKeepSeparator("\nb", "\n"))
	assert.Equal(t, []string{"x", "y"}, splitKeepSeparator("xy", ""))
}
