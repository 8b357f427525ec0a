package domain

import "time"

// RawDocument represents opaque bytes produced by a source adapter.
// The adapter computes the content hash; the core only verifies and
// stores it.
type RawDocument struct {
	// Location is the original location (file path, URL).
	Location string

	// Data is the raw content.
	Data []byte

	// ContentHash is the SHA-256 digest of Data, hex encoded.
	ContentHash string

	// DeclaredType is the format hint ("md", "txt", "pdf", ...).
	DeclaredType string

	// SizeBytes is the content length as reported by the adapter.
	SizeBytes int64

	// ModifiedAt is the last modification time, zero if unknown.
	ModifiedAt time.Time
}

// Name returns the trailing path element of the location, used as
// the document's display name.
func (r *RawDocument) Name() string {
	loc := r.Location
	for i := len(loc) - 1; i >= 0; i-- {
		if loc[i] == '/' || loc[i] == '\\' {
			return loc[i+1:]
		}
	}
	return loc
}

// Segment is one structural unit emitted by a document converter:
// a paragraph, heading, list item or similar, in document order.
type Segment struct {
	// Text is the segment content.
	Text string

	// PageStart and PageEnd are the inclusive page range, 0 if unknown.
	PageStart int
	PageEnd   int

	// Heading is the section heading path the segment falls under.
	Heading string

	// ElementType is the structural kind ("paragraph", "heading", ...).
	ElementType string
}

// StructuredDocument is the converter output consumed by the chunker's
// primary strategy. Text carries the full raw text so the naive
// fallback strategy can operate when Segments are missing or invalid.
type StructuredDocument struct {
	// Location identifies the converted document.
	Location string

	// Segments are the ordered structural units. May be empty when the
	// converter could not recover structure.
	Segments []Segment

	// Text is the full plain text of the document.
	Text string
}
