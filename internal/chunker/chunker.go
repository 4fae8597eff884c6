// Package chunker splits extracted manual text into overlapping fragments
// suitable for embedding and retrieval.
//
// Fragments carry the byte offset of their first character in the original
// text, so every retrieved passage can be traced back to its exact location
// in the source document.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Default splitting parameters, matching the ingestion defaults used for
// manual pages (a page of a flight manual is typically 2-4 fragments).
const (
	DefaultMaxChars = 1000
	DefaultOverlap  = 200
)

// ErrInvalidConfig indicates the splitter parameters are out of range.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Fragment is one piece of a split document.
type Fragment struct {
	// Text is the fragment content, an exact substring of the input.
	Text string

	// StartOffset is the byte offset of Text within the input.
	StartOffset int
}

// Splitter splits text into fragments of at most MaxChars bytes, with
// consecutive fragments overlapping by Overlap bytes.
//
// Split points prefer paragraph breaks ("\n\n"), then line breaks ("\n"),
// and fall back to a hard cut at a rune boundary when neither occurs within
// the size limit. Splitter is stateless and safe for concurrent use.
type Splitter struct {
	maxChars int
	overlap  int
}

// New creates a Splitter.
// maxChars must be positive and overlap must satisfy 0 <= overlap < maxChars.
func New(maxChars, overlap int) (*Splitter, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("%w: max chars must be positive, got %d", ErrInvalidConfig, maxChars)
	}
	if overlap < 0 || overlap >= maxChars {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfig, maxChars, overlap)
	}
	return &Splitter{maxChars: maxChars, overlap: overlap}, nil
}

// MaxChars returns the configured fragment size limit.
func (s *Splitter) MaxChars() int { return s.maxChars }

// Overlap returns the configured fragment overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split splits text into ordered fragments.
//
// Guarantees:
//   - every fragment is at most MaxChars bytes long
//   - the first fragment starts at offset 0
//   - each fragment after the first starts Overlap bytes before the end of
//     its predecessor (clamped so the sequence always makes forward progress)
//   - text shorter than MaxChars yields exactly one fragment
//   - empty text yields no fragments and no error
func (s *Splitter) Split(text string) []Fragment {
	if text == "" {
		return nil
	}

	var fragments []Fragment
	pos := 0
	for pos < len(text) {
		remaining := len(text) - pos
		if remaining <= s.maxChars {
			fragments = append(fragments, Fragment{Text: text[pos:], StartOffset: pos})
			break
		}

		end := pos + s.splitPoint(text, pos)
		fragments = append(fragments, Fragment{Text: text[pos:end], StartOffset: pos})

		// Step back by the overlap, but never so far that the next fragment
		// would be fully covered by this one.
		next := end - s.overlap
		if next <= pos {
			next = pos + 1
		}
		// A fragment never starts mid-rune. end is rune-aligned, so this
		// stays within the current fragment and forward progress holds.
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		pos = next
	}
	return fragments
}

// splitPoint returns the cut size for the fragment starting at pos, at most
// maxChars. It prefers the last paragraph break in the window, then the last
// line break, and finally a hard cut aligned to a rune boundary. The
// separator itself stays with the preceding fragment so offsets remain
// contiguous.
func (s *Splitter) splitPoint(text string, pos int) int {
	window := text[pos : pos+s.maxChars]
	for _, sep := range []string{"\n\n", "\n"} {
		if idx := strings.LastIndex(window, sep); idx > 0 {
			return idx + len(sep)
		}
	}

	// Hard cut: back up until the byte after the cut starts a rune, so
	// multi-byte characters are never split across fragments.
	cut := s.maxChars
	for cut > 0 && !utf8.RuneStart(text[pos+cut]) {
		cut--
	}
	if cut == 0 {
		cut = s.maxChars
	}
	return cut
}
