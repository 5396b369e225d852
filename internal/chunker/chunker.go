// Package chunker splits extracted page text into overlapping windows
// suitable for embedding.
package chunker

import "strings"

// Chunker produces fixed-size character windows with a configured overlap.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. Overlap must be smaller than size; callers validate
// this at configuration time.
func New(size, overlap int) *Chunker {
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits text into ordered windows. Window i starts at i*(size-overlap)
// and covers [start, start+size) clipped to the text length. Positions are
// counted in runes, not bytes, so multibyte text never splits mid-character.
// Windows that are empty after trimming whitespace are discarded.
func (c *Chunker) Chunk(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	step := c.size - c.overlap
	if step <= 0 {
		step = 1
	}
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		window := string(runes[start:end])
		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, window)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
