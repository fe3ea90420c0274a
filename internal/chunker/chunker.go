// Package chunker splits extracted document text into overlapping fixed-size chunks.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultSize is the number of characters per chunk.
	DefaultSize = 1000

	// DefaultOverlap is the number of characters shared by adjacent chunks.
	DefaultOverlap = 200
)

// ErrInvalidParameters is returned when size and overlap violate size > overlap >= 0.
var ErrInvalidParameters = errors.New("invalid chunk parameters")

// Chunk is a window of a document's text.
type Chunk struct {
	Index   int    // Position in the chunk sequence (0, 1, 2...)
	Start   int    // Offset of the first character, counted in code points
	Content string // Chunk text
}

// Chunker splits text with a sliding window of Size characters that advances
// by Size-Overlap characters.
type Chunker struct {
	size    int
	overlap int
}

// Validate reports whether size and overlap form a usable window.
func Validate(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: size=%d overlap=%d (need size > overlap >= 0)",
			ErrInvalidParameters, size, overlap)
	}
	return nil
}

// New creates a Chunker. It returns ErrInvalidParameters unless size > overlap >= 0.
func New(size, overlap int) (*Chunker, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window size in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of characters shared by adjacent chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into chunks. Each chunk is text[start:start+size]; the next
// window starts at start+size-overlap and the loop stops once start reaches the
// end of the text, so the final chunk may be a short tail already covered by
// its predecessor. The empty string yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	chunks := make([]Chunk, 0, Count(len(runes), c.size, c.overlap))

	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Start:   start,
			Content: string(runes[start:end]),
		})
	}

	return chunks
}

// Texts returns the chunk contents in order.
func Texts(chunks []Chunk) []string {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	return texts
}

// Join reassembles the text Split produced from chunk contents given in index
// order, dropping the overlapping prefix of every chunk after the first.
func Join(contents []string, overlap int) string {
	var b strings.Builder
	for i, content := range contents {
		if i == 0 {
			b.WriteString(content)
			continue
		}
		runes := []rune(content)
		if len(runes) > overlap {
			b.WriteString(string(runes[overlap:]))
		}
	}
	return b.String()
}

// Count returns the number of chunks Split produces for text of the given
// length in characters: ceil(length / (size-overlap)), or 0 for empty text.
func Count(length, size, overlap int) int {
	if length <= 0 || size <= overlap {
		return 0
	}
	step := size - overlap
	return (length + step - 1) / step
}
