package driven

import (
	"context"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
)

// Converter transforms raw document bytes into structured form.
// Each converter handles specific document types (e.g., Markdown, plain text).
type Converter interface {
	// SupportedTypes returns the document type identifiers this
	// converter handles (e.g., "md", "txt").
	SupportedTypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Type-specific converters should return 50-89.
	// Fallback converters should return 1-9.
	Priority() int

	// Convert transforms a raw document into structured segments.
	// When structural analysis fails the converter may return a
	// StructuredDocument with only Text populated and no segments;
	// the chunker falls back to naive splitting in that case.
	Convert(ctx context.Context, raw *domain.RawDocument) (*domain.StructuredDocument, error)
}

// ConverterRegistry selects the appropriate converter for a document.
// It maintains a priority-ordered list of converters and dispatches by
// declared document type.
type ConverterRegistry interface {
	// Convert transforms a raw document using the best matching converter.
	Convert(ctx context.Context, raw *domain.RawDocument) (*domain.StructuredDocument, error)

	// Register adds a converter to the registry.
	Register(converter Converter)

	// SupportedTypes returns all document types that can be converted.
	SupportedTypes() []string
}
