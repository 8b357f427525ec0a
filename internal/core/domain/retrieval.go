package domain

// QueryClass is the result of the retrieval engine's query heuristic.
type QueryClass string

const (
	// ClassIdentifier marks queries dominated by code-like tokens
	// (digits, hyphens, mixed case) such as SKUs or part numbers.
	ClassIdentifier QueryClass = "identifier"

	// ClassConceptual marks everything else.
	ClassConceptual QueryClass = "conceptual"
)

// RetrievalQuery carries one retrieval request.
type RetrievalQuery struct {
	// Text is the raw query.
	Text string

	// TopK is the maximum number of results (default applied by the
	// engine when zero).
	TopK int

	// MinScore drops results whose combined score falls below it.
	// Zero means the configured default; a negative value disables
	// the threshold entirely.
	MinScore float64
}

// WeightProfile is a named linear blend of the three retrieval passes.
// Profiles are configuration, not constants baked into ranking code:
// retrieval tuning is an expected ongoing activity.
type WeightProfile struct {
	Dense   float64 `toml:"dense" json:"dense"`
	Lexical float64 `toml:"lexical" json:"lexical"`
	Pattern float64 `toml:"pattern" json:"pattern"`
}

// Zero reports whether the profile is entirely unset.
func (p WeightProfile) Zero() bool {
	return p.Dense == 0 && p.Lexical == 0 && p.Pattern == 0
}

// Combine blends the three pass scores under this profile.
func (p WeightProfile) Combine(dense, lexical, pattern float64) float64 {
	return p.Dense*dense + p.Lexical*lexical + p.Pattern*pattern
}

// Validate checks the profile weights. The field prefix names the
// config section in error messages.
func (p WeightProfile) Validate(field string) error {
	if p.Dense < 0 || p.Lexical < 0 || p.Pattern < 0 {
		return &ConfigError{Field: field, Reason: "weights must not be negative"}
	}
	if p.Zero() {
		return &ConfigError{Field: field, Reason: "at least one weight must be positive"}
	}
	return nil
}

// RankedChunk is one retrieval result with its combined score and the
// three component scores kept for explainability.
type RankedChunk struct {
	// ChunkID identifies the chunk.
	ChunkID string

	// SourceID identifies the owning document source.
	SourceID string

	// ChunkIndex is the chunk's ordinal within its source, used as the
	// deterministic tie-break.
	ChunkIndex int

	// Text is the chunk content.
	Text string

	// Metadata carries the chunk's structural hints.
	Metadata ChunkMetadata

	// Score is the weighted combination of the three passes.
	Score float64

	// Dense, Lexical and Pattern are the per-pass scores in [0,1];
	// a pass that did not return the chunk contributes 0.
	Dense   float64
	Lexical float64
	Pattern float64
}
