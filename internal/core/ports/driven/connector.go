package driven

import (
	"context"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
)

// Connector discovers and reads raw documents from a data source.
// The filesystem connector is the primary implementation.
type Connector interface {
	// Type returns the connector type identifier.
	Type() string

	// Validate checks the connector is properly configured.
	// For filesystem, this checks the roots exist and are readable.
	Validate(ctx context.Context) error

	// Discover streams every document matching the configured
	// patterns. Returns channels for documents and errors; both are
	// closed when discovery finishes or the context is cancelled.
	Discover(ctx context.Context) (<-chan domain.RawDocument, <-chan error)

	// Watch listens for changes under the configured roots and
	// streams the affected documents as they settle.
	Watch(ctx context.Context) (<-chan domain.RawDocument, error)

	// Close releases resources.
	Close() error
}

// ConnectorFactory builds connectors for a set of roots and glob
// patterns. Keeps the ingestion service free of filesystem details.
type ConnectorFactory interface {
	// Create returns a connector scanning the given roots. Empty
	// patterns means the factory's defaults.
	Create(roots, patterns []string) (Connector, error)
}
