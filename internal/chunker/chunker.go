// Package chunker turns one document's structured text into bounded,
// metadata-carrying text chunks.
//
// Two strategies sit behind a small interface: a structure-aware
// primary that consumes converter segments, and a naive fallback that
// splits raw text on paragraph boundaries. The strategy is selected
// per call depending on whether usable structure is present; a primary
// failure is recovered by the fallback automatically.
package chunker

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/logger"
)

// Bounds configures chunk sizes, measured in characters.
type Bounds struct {
	// MinChars is the accumulation target: adjacent pieces merge until
	// a chunk reaches it.
	MinChars int

	// MaxChars is the hard upper bound, honoured except for the
	// documented indivisible-run exception.
	MaxChars int

	// OverlapChars is the tail of one split piece carried into the
	// next as a seam.
	OverlapChars int
}

// Validate checks the bounds.
func (b Bounds) Validate() error {
	if b.MinChars <= 0 {
		return &domain.ConfigError{Field: "chunk.min_chars", Reason: "must be positive"}
	}
	if b.MaxChars <= 0 {
		return &domain.ConfigError{Field: "chunk.max_chars", Reason: "must be positive"}
	}
	if b.MinChars >= b.MaxChars {
		return &domain.ConfigError{Field: "chunk.min_chars", Reason: "must be smaller than chunk.max_chars"}
	}
	if b.OverlapChars < 0 {
		return &domain.ConfigError{Field: "chunk.overlap_chars", Reason: "must not be negative"}
	}
	if b.OverlapChars >= b.MaxChars {
		return &domain.ConfigError{Field: "chunk.overlap_chars", Reason: "must be smaller than chunk.max_chars"}
	}
	return nil
}

// Candidate is one chunk-to-be: bounded text plus merged metadata.
// The orchestrator assigns chunk indices over the final sequence.
type Candidate struct {
	Text     string
	Metadata domain.ChunkMetadata
}

// strategy produces raw candidates from a document. Bound enforcement
// (merge to min, split at max) happens afterwards and is shared.
type strategy interface {
	name() string
	split(doc *domain.StructuredDocument) ([]Candidate, error)
}

// Chunker applies the two-tier chunking strategy under fixed bounds.
type Chunker struct {
	bounds   Bounds
	primary  strategy
	fallback strategy
}

// New creates a chunker. Invalid bounds are a domain.ConfigError.
func New(bounds Bounds) (*Chunker, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{
		bounds:   bounds,
		primary:  &structureStrategy{},
		fallback: &naiveStrategy{},
	}, nil
}

// Bounds returns the configured bounds.
func (c *Chunker) Bounds() Bounds { return c.bounds }

// Chunk turns the document into an ordered list of bounded candidates.
// Content is never dropped: the total characters across candidates is
// at least the input's, modulo whitespace normalization. A primary
// strategy failure falls back to naive splitting; only a fallback
// failure is returned, as a domain.ChunkingError.
func (c *Chunker) Chunk(doc *domain.StructuredDocument) ([]Candidate, error) {
	if doc == nil {
		return nil, &domain.ChunkingError{Location: "", Err: fmt.Errorf("nil document")}
	}

	if hasStructure(doc) {
		candidates, err := c.primary.split(doc)
		if err == nil {
			return enforceBounds(candidates, c.bounds), nil
		}
		logger.Warn("structure chunking failed for %s, falling back: %v", doc.Location, err)
	}

	candidates, err := c.fallback.split(doc)
	if err != nil {
		return nil, &domain.ChunkingError{Location: doc.Location, Err: err}
	}
	return enforceBounds(candidates, c.bounds), nil
}

// hasStructure reports whether the primary strategy has anything to
// work with: at least one segment carrying text.
func hasStructure(doc *domain.StructuredDocument) bool {
	for _, seg := range doc.Segments {
		if strings.TrimSpace(seg.Text) != "" {
			return true
		}
	}
	return false
}

// structureStrategy consumes the converter's segments in order.
type structureStrategy struct{}

func (s *structureStrategy) name() string { return "structure" }

func (s *structureStrategy) split(doc *domain.StructuredDocument) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(doc.Segments))
	for _, seg := range doc.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			Text: text,
			Metadata: domain.ChunkMetadata{
				PageStart:   seg.PageStart,
				PageEnd:     seg.PageEnd,
				Heading:     seg.Heading,
				ElementType: seg.ElementType,
			},
		})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no usable segments")
	}
	return candidates, nil
}

// naiveStrategy splits raw text on blank lines. It must not fail on
// well-formed text; an empty document yields an empty candidate list.
type naiveStrategy struct{}

func (s *naiveStrategy) name() string { return "naive" }

func (s *naiveStrategy) split(doc *domain.StructuredDocument) ([]Candidate, error) {
	text := doc.Text
	if text == "" && len(doc.Segments) > 0 {
		// Structure was present but unusable; reassemble the raw text
		// from whatever the converter produced.
		var b strings.Builder
		for _, seg := range doc.Segments {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(seg.Text)
		}
		text = b.String()
	}

	var candidates []Candidate
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			Text:     para,
			Metadata: domain.ChunkMetadata{ElementType: "paragraph"},
		})
	}
	if len(candidates) == 0 && strings.TrimSpace(text) != "" {
		candidates = append(candidates, Candidate{
			Text:     strings.TrimSpace(text),
			Metadata: domain.ChunkMetadata{ElementType: "paragraph"},
		})
	}
	return candidates, nil
}
