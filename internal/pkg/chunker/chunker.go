package chunker

import (
	"strings"
)

const (
	DefaultMaxChars = 1200
	DefaultOverlap  = 200

	// minBoundaryOffset keeps sentence/space boundaries that sit too close to
	// the window start from producing tiny chunks.
	minBoundaryOffset = 200
)

// Chunker splits whitespace-normalized text into bounded windows, preferring
// to cut after a sentence end or, failing that, at a space.
type Chunker struct {
	MaxChars int
	Overlap  int
}

func New(maxChars, overlap int) *Chunker {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlap < 0 || overlap >= maxChars {
		overlap = DefaultOverlap
		if overlap >= maxChars {
			overlap = maxChars / 2
		}
	}
	return &Chunker{MaxChars: maxChars, Overlap: overlap}
}

// Normalize collapses every whitespace run to a single space and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Split returns every chunk of text in order.
func (c *Chunker) Split(text string) []string {
	var out []string
	c.Each(text, func(_ int, chunk string) bool {
		out = append(out, chunk)
		return true
	})
	return out
}

// Each walks the chunks of text in order, calling fn with a 1-based index.
// Walking stops early when fn returns false. Each call starts over from the
// beginning of the text.
func (c *Chunker) Each(text string, fn func(index int, chunk string) bool) {
	runes := []rune(Normalize(text))
	n := len(runes)
	index := 0
	for start := 0; start < n; {
		end := start + c.MaxChars
		if end > n {
			end = n
		}
		if end < n {
			if pivot := lastBoundary(runes, start, end); pivot != -1 && pivot > start+minBoundaryOffset {
				end = pivot + 1
			}
		}
		index++
		if !fn(index, string(runes[start:end])) {
			return
		}
		// The next window never starts before the current cut.
		next := end - c.Overlap
		if next < end {
			next = end
		}
		start = next
	}
}

// Split chunks text with the default window and overlap.
func Split(text string) []string {
	return New(DefaultMaxChars, DefaultOverlap).Split(text)
}

// lastBoundary returns the index of the last ". " inside runes[start:end], or
// the last space when no sentence end exists, or -1.
func lastBoundary(runes []rune, start, end int) int {
	for i := end - 2; i >= start; i-- {
		if runes[i] == '.' && runes[i+1] == ' ' {
			return i
		}
	}
	for i := end - 1; i >= start; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}
