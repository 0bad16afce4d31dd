// Package chunker splits document text into overlapping, size-bounded chunks.
//
// Chunking is a pure function of (text, size, overlap): identical input yields
// byte-for-byte identical output across runs and processes. The pipeline
// depends on this to regenerate stable vector identifiers on re-runs.
package chunker

import (
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"
)

// Chunk is one bounded span of a document's text, the unit of embedding.
type Chunk struct {
	// Text is the chunk content.
	Text string

	// Index is zero-based and dense over emitted chunks: spans skipped for
	// being too short do not consume an index slot.
	Index int

	// Offset is the rune offset of the span within the source text.
	Offset int
}

// Size returns the chunk length in runes.
func (c Chunk) Size() int {
	return len([]rune(c.Text))
}

// Chunker produces overlapping chunks with a fixed window and step.
type Chunker struct {
	size      int
	overlap   int
	minLength int
}

// New creates a Chunker. Overlap must be smaller than size so the window
// always advances.
func New(size, overlap, minLength int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, size), got %d", overlap)
	}
	if minLength < 0 {
		return nil, fmt.Errorf("min length cannot be negative, got %d", minLength)
	}
	return &Chunker{size: size, overlap: overlap, minLength: minLength}, nil
}

// Seq returns a lazy, restartable sequence of chunks. Each span starts at a
// multiple of (size - overlap) in rune offsets; spans whose trimmed content is
// not longer than the minimum length are skipped without reserving an index.
func (c *Chunker) Seq(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		runes := []rune(text)
		step := c.size - c.overlap
		index := 0
		for offset := 0; offset < len(runes); offset += step {
			end := offset + c.size
			if end > len(runes) {
				end = len(runes)
			}
			span := string(runes[offset:end])
			if utf8.RuneCountInString(strings.TrimSpace(span)) <= c.minLength {
				continue
			}
			if !yield(Chunk{Text: span, Index: index, Offset: offset}) {
				return
			}
			index++
		}
	}
}

// Chunk materializes Seq into a slice.
func (c *Chunker) Chunk(text string) []Chunk {
	var chunks []Chunk
	for ch := range c.Seq(text) {
		chunks = append(chunks, ch)
	}
	return chunks
}
