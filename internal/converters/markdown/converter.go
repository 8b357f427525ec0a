// Package markdown converts Markdown documents into structured
// segments: headings, paragraphs, lists and fenced code blocks, each
// tagged with the section heading it falls under.
package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles Markdown documents.
type Converter struct{}

// New creates a new Markdown converter.
func New() *Converter {
	return &Converter{}
}

// SupportedTypes returns the document types this converter handles.
func (c *Converter) SupportedTypes() []string {
	return []string{"md", "markdown"}
}

// Priority returns the selection priority.
func (c *Converter) Priority() int {
	return 50
}

// Convert parses the markdown into ordered segments. The full plain
// text is always populated so naive chunking can take over if the
// segments turn out unusable.
func (c *Converter) Convert(_ context.Context, raw *domain.RawDocument) (*domain.StructuredDocument, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := string(raw.Data)
	return &domain.StructuredDocument{
		Location: raw.Location,
		Segments: parseSegments(content),
		Text:     stripMarkdown(content),
	}, nil
}

// parseSegments walks the document block by block. Blocks are
// separated by blank lines; fenced code blocks are kept whole.
func parseSegments(content string) []domain.Segment {
	var (
		segments []domain.Segment
		block    []string
		heading  string
		inFence  bool
	)

	flush := func(elementType string) {
		if len(block) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(block, "\n"))
		block = nil
		if text == "" {
			return
		}
		if elementType == "paragraph" || elementType == "list" {
			text = stripInline(text)
		}
		if text == "" {
			return
		}
		segments = append(segments, domain.Segment{
			Text:        text,
			Heading:     heading,
			ElementType: elementType,
		})
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				flush("code")
				inFence = false
			} else {
				flush(blockType(block))
				inFence = true
			}
			continue
		}
		if inFence {
			block = append(block, line)
			continue
		}

		switch {
		case trimmed == "":
			flush(blockType(block))
		case headingMarker.MatchString(trimmed):
			flush(blockType(block))
			heading = strings.TrimSpace(headingMarker.ReplaceAllString(trimmed, ""))
			segments = append(segments, domain.Segment{
				Text:        heading,
				Heading:     heading,
				ElementType: "heading",
			})
		default:
			block = append(block, line)
		}
	}
	if inFence {
		flush("code")
	} else {
		flush(blockType(block))
	}
	return segments
}

// blockType classifies an accumulated block by its first line.
func blockType(block []string) string {
	if len(block) == 0 {
		return "paragraph"
	}
	first := strings.TrimSpace(block[0])
	if listMarker.MatchString(first) || numberedMarker.MatchString(first) {
		return "list"
	}
	return "paragraph"
}

var (
	headingMarker  = regexp.MustCompile(`^#{1,6}\s+`)
	listMarker     = regexp.MustCompile(`^\s*[-*+]\s+`)
	numberedMarker = regexp.MustCompile(`^\s*\d+\.\s+`)

	codeBlockRe   = regexp.MustCompile("(?s)```[^`]*```")
	inlineCodeRe  = regexp.MustCompile("`([^`]+)`")
	imageRe       = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	linkRe        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headingRe     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	blockquoteRe  = regexp.MustCompile(`(?m)^>\s*`)
	hrRe          = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	listRe        = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberedRe    = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// stripInline removes inline markdown from a block of text, keeping
// the words.
func stripInline(text string) string {
	text = imageRe.ReplaceAllString(text, "")
	text = linkRe.ReplaceAllString(text, "$1")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = blockquoteRe.ReplaceAllString(text, "")
	text = listRe.ReplaceAllString(text, "")
	text = numberedRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "__", "")
	text = strings.ReplaceAll(text, "*", "")
	return strings.TrimSpace(text)
}

// stripMarkdown flattens the whole document to plain text.
func stripMarkdown(content string) string {
	content = codeBlockRe.ReplaceAllString(content, "")
	content = headingRe.ReplaceAllString(content, "")
	content = hrRe.ReplaceAllString(content, "")
	content = stripInline(content)
	content = multiNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
