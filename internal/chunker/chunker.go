// Package chunker splits cleaned document text into bounded, overlapping
// segments for embedding. Splitting is deterministic: the same text and
// parameters always yield the same chunk sequence, which is what makes
// re-ingestion idempotent.
package chunker

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrInvalidConfig reports unusable chunking parameters. It is fatal and
// never retried; fix the configuration.
var ErrInvalidConfig = errors.New("invalid chunking config")

// Chunk is a bounded segment of a document. Start and End are rune
// offsets into the cleaned document text; consecutive chunks overlap by
// at most the configured overlap window.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
	Start      int
	End        int
}

// ID returns the chunk's stable identifier, namespaced by document so two
// documents can never collide: "<documentID>:<index>".
func (c Chunk) ID() string {
	return fmt.Sprintf("%s:%d", c.DocumentID, c.Index)
}

// Splitter produces chunks of at most size runes, with consecutive chunks
// overlapping by overlap runes.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter validates the parameters and returns a Splitter. Both must
// be positive (overlap may be zero) and overlap must be smaller than size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d must be positive", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap %d must not be negative", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidConfig, overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// lookback bounds how far the splitter searches backward for a word or
// sentence boundary before falling back to a hard cut.
func (s *Splitter) lookback() int {
	lb := s.size / 5
	if lb > 120 {
		lb = 120
	}
	return lb
}

// Split chunks text into overlapping windows. A window ending mid-word is
// shortened to the nearest preceding boundary within the lookback range;
// a window with no boundary in range is cut hard at size runes. Empty
// text yields no chunks; text shorter than size yields exactly one.
func (s *Splitter) Split(documentID, text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	index := 0
	for {
		end := start + s.size
		if end >= len(runes) {
			chunks = append(chunks, Chunk{
				DocumentID: documentID,
				Index:      index,
				Text:       string(runes[start:]),
				Start:      start,
				End:        len(runes),
			})
			return chunks
		}

		// Only adjust when the hard cut would land mid-word.
		if !isBoundary(runes[end-1], runes[end]) {
			if b := s.findBoundary(runes, start, end); b > start {
				end = b
			}
		}

		chunks = append(chunks, Chunk{
			DocumentID: documentID,
			Index:      index,
			Text:       string(runes[start:end]),
			Start:      start,
			End:        end,
		})
		index++

		next := end - s.overlap
		if next <= start {
			// Guard against a boundary adjustment shrinking the window
			// below the overlap; always make forward progress.
			next = start + 1
		}
		start = next
	}
}

// findBoundary searches backward from end for the best split point within
// the lookback range: sentence ends are preferred over plain whitespace.
// Returns the rune index just after the boundary, or -1 if none found.
func (s *Splitter) findBoundary(runes []rune, start, end int) int {
	limit := end - s.lookback()
	if limit < start+1 {
		limit = start + 1
	}

	wordBoundary := -1
	for i := end - 1; i >= limit; i-- {
		switch {
		case isSentenceEnd(runes[i]):
			return i + 1
		case unicode.IsSpace(runes[i]) && wordBoundary == -1:
			wordBoundary = i + 1
		}
	}
	return wordBoundary
}

// isBoundary reports whether a cut between prev and next does not break a
// word.
func isBoundary(prev, next rune) bool {
	return unicode.IsSpace(prev) || unicode.IsSpace(next) || isSentenceEnd(prev)
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}
