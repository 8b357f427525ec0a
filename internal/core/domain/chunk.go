package domain

// Chunk represents a bounded unit of document text stored with its own
// embedding and metadata. It is the atomic unit of retrieval.
// (SourceID, ChunkIndex) is unique; the whole set for a source is
// replaced atomically on every successful re-ingestion, never patched.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// SourceID links to the owning DocumentSource.
	SourceID string

	// ChunkIndex is the 0-based ordinal within the source.
	ChunkIndex int

	// Text is the chunk content. Its length is within the configured
	// [MinChars, MaxChars] bounds except for the documented oversized
	// indivisible-run exception (flagged in Metadata, never truncated).
	Text string

	// Embedding is the fixed-dimension vector representation.
	// Nil when the chunk's embedding batch failed.
	Embedding []float32

	// Metadata carries structural hints from conversion and chunking.
	Metadata ChunkMetadata

	// EmbeddingModel identifies the model that produced Embedding.
	EmbeddingModel string

	// Fingerprint ties the embedding to the exact model artifact or
	// dataset version that produced it, enabling safe re-embedding.
	Fingerprint string
}

// ChunkMetadata carries structural hints attached to a chunk.
type ChunkMetadata struct {
	// PageStart and PageEnd are the inclusive page range the chunk
	// spans, 0 when the format has no page concept. Merging segments
	// expands the range (min start, max end).
	PageStart int `json:"page_start,omitempty"`
	PageEnd   int `json:"page_end,omitempty"`

	// Heading is the section heading path. When segments merge, the
	// earliest segment's heading wins.
	Heading string `json:"heading,omitempty"`

	// ElementType is the structural kind ("paragraph", "heading", ...).
	ElementType string `json:"element_type,omitempty"`

	// SplitIndex is set on pieces produced by splitting one oversized
	// segment; all pieces share the segment's page/heading metadata.
	SplitIndex int `json:"split_index,omitempty"`

	// Oversized flags the single documented bounds exception: an
	// indivisible run of characters longer than MaxChars that was
	// emitted whole rather than truncated.
	Oversized bool `json:"oversized,omitempty"`

	// Extra contains converter-specific key-value pairs.
	Extra map[string]any `json:"extra,omitempty"`
}
