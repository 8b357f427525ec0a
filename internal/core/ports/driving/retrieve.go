package driving

import (
	"context"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
)

// RetrieveService serves ranked chunk retrieval to external actors.
type RetrieveService interface {
	// Retrieve runs the three search passes and returns the combined
	// ranking, best first. An empty result is not an error.
	Retrieve(ctx context.Context, query domain.RetrievalQuery) ([]domain.RankedChunk, error)
}
