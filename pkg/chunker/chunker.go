package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators go from coarse to fine: paragraphs, lines, sentences,
// words, and finally single characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

type Chunker interface {
	Chunk(text string) []TextChunk
}

type Options struct {
	ChunkSize    int // maximum chunk length in characters (runes)
	ChunkOverlap int // maximum characters carried from one chunk into the next
	Separators   []string
}

type TextChunk struct {
	Content string
	Index   int
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Separators:   DefaultSeparators,
	}
}

type recursiveChunker struct {
	opts Options
}

// New returns a recursive character splitter. A non-positive ChunkSize and
// empty Separators fall back to the defaults. ChunkOverlap is taken as given:
// zero means no overlap, a negative value is clamped to zero, and a value not
// smaller than the chunk size is reduced to a fifth of it.
func New(opts Options) Chunker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 5
	}
	if len(opts.Separators) == 0 {
		opts.Separators = DefaultSeparators
	}
	return &recursiveChunker{opts: opts}
}

func (c *recursiveChunker) Chunk(text string) []TextChunk {
	parts := c.split(text, c.opts.Separators)

	chunks := make([]TextChunk, 0, len(parts))
	for _, p := range parts {
		chunks = append(chunks, TextChunk{Content: p, Index: len(chunks)})
	}
	return chunks
}

// split picks the first separator present in text, cuts on it, and recurses
// with the finer separators into any piece that is still too long. Runs of
// short pieces are merged back together.
func (c *recursiveChunker) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var finer []string
	for i, s := range separators {
		if s == "" {
			sep = s
			break
		}
		if strings.Contains(text, s) {
			sep = s
			finer = separators[i+1:]
			break
		}
	}

	var result, pending []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if runeLen(piece) < c.opts.ChunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			result = append(result, c.merge(pending)...)
			pending = nil
		}
		if len(finer) == 0 {
			result = append(result, piece)
		} else {
			result = append(result, c.split(piece, finer)...)
		}
	}
	if len(pending) > 0 {
		result = append(result, c.merge(pending)...)
	}
	return result
}

// merge packs pieces into chunks of at most ChunkSize runes. When a chunk is
// emitted, its trailing pieces totalling at most ChunkOverlap runes are kept
// as the start of the next chunk.
func (c *recursiveChunker) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > c.opts.ChunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				out = append(out, doc)
			}
			for len(current) > 0 && (total > c.opts.ChunkOverlap || total+n > c.opts.ChunkSize) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		out = append(out, doc)
	}
	return out
}

// splitKeepSeparator cuts text on sep and re-attaches the separator to the
// start of each following piece, so joining the pieces restores the text.
// An empty separator splits into single characters.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
