package mcp

import (
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driving"
)

// Ports aggregates the driving port interfaces required by the MCP
// server. This provides a single injection point.
type Ports struct {
	// Retrieve serves ranked chunk retrieval.
	Retrieve driving.RetrieveService

	// Ingest runs ingestion jobs.
	Ingest driving.IngestService

	// Source exposes the tracked document sources.
	Source driving.SourceService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Retrieve == nil {
		return ErrMissingRetrieveService
	}
	// Ingest and Source are optional; the matching tools and
	// resources degrade when absent.
	return nil
}
