package chunker

import (
	"strings"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
)

// piece is one bounded slice of a candidate's text.
type piece struct {
	text string
	// oversized marks an indivisible run longer than MaxChars that
	// was emitted whole rather than truncated.
	oversized bool
}

// enforceBounds merges and splits raw candidates so every result
// respects the configured bounds: accumulate adjacent candidates until
// a chunk reaches MinChars, split anything over MaxChars at the
// nearest whitespace with an OverlapChars seam. Content is never
// dropped.
func enforceBounds(candidates []Candidate, b Bounds) []Candidate {
	var out []Candidate

	var bufText string
	var bufMeta domain.ChunkMetadata

	flush := func() {
		if bufText == "" {
			return
		}
		out = append(out, Candidate{Text: bufText, Metadata: bufMeta})
		bufText = ""
		bufMeta = domain.ChunkMetadata{}
	}

	for _, cand := range candidates {
		pieces := splitText(strings.TrimSpace(cand.Text), b)
		split := len(pieces) > 1
		for i, p := range pieces {
			if p.text == "" {
				continue
			}
			meta := cand.Metadata
			if split {
				meta.SplitIndex = i
			}
			if p.oversized {
				// Never merged with neighbours: emitted whole, flagged.
				flush()
				meta.Oversized = true
				out = append(out, Candidate{Text: p.text, Metadata: meta})
				continue
			}
			if bufText == "" {
				bufText = p.text
				bufMeta = meta
			} else if joined := bufText + "\n\n" + p.text; len(joined) <= b.MaxChars {
				bufText = joined
				bufMeta = mergeMeta(bufMeta, meta)
			} else {
				flush()
				bufText = p.text
				bufMeta = meta
			}
			if len(bufText) >= b.MinChars {
				flush()
			}
		}
	}
	flush()
	return out
}

// mergeMeta combines metadata when two candidates merge into one
// chunk: page ranges expand, the earliest heading and element type
// win. first is the metadata of the earlier candidate.
func mergeMeta(first, next domain.ChunkMetadata) domain.ChunkMetadata {
	merged := first
	if merged.PageStart == 0 || (next.PageStart != 0 && next.PageStart < merged.PageStart) {
		merged.PageStart = next.PageStart
	}
	if next.PageEnd > merged.PageEnd {
		merged.PageEnd = next.PageEnd
	}
	if merged.Heading == "" {
		merged.Heading = next.Heading
	}
	if merged.ElementType == "" {
		merged.ElementType = next.ElementType
	}
	return merged
}

// splitText slices text into pieces of at most MaxChars, cutting at
// the last whitespace before the limit and carrying OverlapChars of
// trailing text into the next piece as a seam. A run with no
// whitespace boundary longer than MaxChars comes back whole, flagged
// oversized.
func splitText(text string, b Bounds) []piece {
	if len(text) <= b.MaxChars {
		if text == "" {
			return nil
		}
		return []piece{{text: text}}
	}

	var pieces []piece
	start := 0
	for start < len(text) {
		// Skip whitespace left at the cut position.
		for start < len(text) && isSpace(text[start]) {
			start++
		}
		if start >= len(text) {
			break
		}
		if len(text)-start <= b.MaxChars {
			if tail := strings.TrimSpace(text[start:]); tail != "" {
				pieces = append(pieces, piece{text: tail})
			}
			break
		}

		end := start + b.MaxChars
		cut := lastSpace(text, start, end)
		if cut <= start {
			// Indivisible run: advance to the next whitespace (or the
			// end of the text) and emit it whole.
			runEnd := nextSpace(text, end)
			pieces = append(pieces, piece{
				text:      text[start:runEnd],
				oversized: runEnd-start > b.MaxChars,
			})
			start = runEnd
			continue
		}

		pieces = append(pieces, piece{text: strings.TrimSpace(text[start:cut])})
		next := cut - b.OverlapChars
		if next <= start {
			next = cut
		}
		start = next
	}
	return pieces
}

// lastSpace returns the index of the last whitespace byte in
// text[from+1:to], or -1 when there is none.
func lastSpace(text string, from, to int) int {
	for i := to - 1; i > from; i-- {
		if isSpace(text[i]) {
			return i
		}
	}
	return -1
}

// nextSpace returns the index of the first whitespace byte at or
// after from, or len(text).
func nextSpace(text string, from int) int {
	for i := from; i < len(text); i++ {
		if isSpace(text[i]) {
			return i
		}
	}
	return len(text)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}
