package driving

import (
	"context"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// SearchService answers faceted, permission-filtered queries
type SearchService interface {
	// Search runs a query on behalf of q.Principal.
	// Results never include a file the principal cannot read.
	Search(ctx context.Context, q domain.SearchQuery) (*domain.SearchResult, error)
}
