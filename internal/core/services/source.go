package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driving"
)

// Ensure SourceService implements the interface.
var _ driving.SourceService = (*SourceService)(nil)

// SourceService exposes the tracked document sources.
type SourceService struct {
	store driven.PersistenceStore
}

// NewSourceService creates a new source service.
func NewSourceService(store driven.PersistenceStore) *SourceService {
	return &SourceService{store: store}
}

// ListSources returns all tracked sources ordered by location.
func (s *SourceService) ListSources(ctx context.Context) ([]domain.DocumentSource, error) {
	return s.store.ListSources(ctx)
}

// RemoveSource deletes a source and its chunks.
func (s *SourceService) RemoveSource(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: source id is required", domain.ErrInvalidInput)
	}
	return s.store.DeleteSource(ctx, id)
}
