package rag

import (
	"github.com/nikhilbhutani/medibot/pkg/chunker"
	"github.com/nikhilbhutani/medibot/pkg/textextract"
	"github.com/nikhilbhutani/medibot/pkg/tokenizer"
)

// Document is an extracted source file with its pages in order.
type Document struct {
	Source string
	Pages  []textextract.Page
}

// NewDocument adapts extractor output.
func NewDocument(e *textextract.ExtractedText) Document {
	return Document{Source: e.Source, Pages: e.Pages}
}

// Chunk is a piece of a document small enough to embed, with its provenance.
type Chunk struct {
	Text       string
	Source     string
	Page       int
	TokenCount int
}

// Split cuts every page of doc independently so each chunk keeps the page it
// came from. The result is deterministic for a given document and options.
func Split(doc Document, opts chunker.Options) []Chunk {
	c := chunker.New(opts)

	var chunks []Chunk
	for _, page := range doc.Pages {
		for _, tc := range c.Chunk(page.Text) {
			chunks = append(chunks, Chunk{
				Text:       tc.Content,
				Source:     doc.Source,
				Page:       page.Number,
				TokenCount: tokenizer.CountTokens(tc.Content),
			})
		}
	}
	return chunks
}
