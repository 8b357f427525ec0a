// Package domain defines the core business entities for Retriva.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - DocumentSource: One logical document tracked for ingestion
//   - Chunk: A bounded, embedded unit of retrievable text
//   - RawDocument: Opaque bytes from a source adapter
//   - StructuredDocument: Converter output consumed by the chunker
//   - IngestionRequest/IngestionResult: Job inputs and outcomes
//   - RetrievalQuery/RankedChunk: Query inputs and ranked results
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
