package driven

import (
	"context"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// SearchIndex is the faceted free-text index over servable assets.
// Upserts are atomic per file ID and last-writer-wins by revision token.
// The index performs no permission filtering.
type SearchIndex interface {
	// Upsert indexes an asset. Assets that are not servable are removed.
	// A revision older than the indexed one is ignored.
	Upsert(ctx context.Context, asset *domain.Asset) error

	// Remove drops a file from the index. Removing an absent file is not an error.
	Remove(ctx context.Context, fileID string) error

	// Query returns candidates matching every facet filter, ranked by score.
	Query(ctx context.Context, q domain.IndexQuery) ([]domain.ScoredAsset, error)

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)
}
