// Package plaintext converts plain text documents into paragraph
// segments. It also serves as the wildcard fallback for types no
// specialised converter claims.
package plaintext

import (
	"context"
	"strings"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles plain text documents.
type Converter struct{}

// New creates a new plain text converter.
func New() *Converter {
	return &Converter{}
}

// SupportedTypes returns the document types this converter handles.
// The wildcard makes it the fallback for unclaimed types.
func (c *Converter) SupportedTypes() []string {
	return []string{"txt", "text", "*"}
}

// Priority returns the selection priority.
func (c *Converter) Priority() int {
	return 5
}

// Convert splits the text into paragraph segments on blank lines.
func (c *Converter) Convert(_ context.Context, raw *domain.RawDocument) (*domain.StructuredDocument, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	text := normaliseNewlines(string(raw.Data))
	doc := &domain.StructuredDocument{
		Location: raw.Location,
		Text:     strings.TrimSpace(text),
	}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		doc.Segments = append(doc.Segments, domain.Segment{
			Text:        para,
			ElementType: "paragraph",
		})
	}
	return doc, nil
}

func normaliseNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
