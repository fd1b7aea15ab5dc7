package driven

import (
	"context"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// AssetStore persists Asset records, one per file ID.
type AssetStore interface {
	// Get retrieves an asset by file ID. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, fileID string) (*domain.Asset, error)

	// Upsert creates or replaces an asset.
	// Returns domain.ErrStaleRevision when the stored revision is newer than
	// asset.RevisionToken; an equal revision replaces the record.
	Upsert(ctx context.Context, asset *domain.Asset) error

	// ListByScope returns every asset recorded under a scope, deleted ones included.
	ListByScope(ctx context.Context, scopeID string) ([]*domain.Asset, error)

	// List returns up to limit assets ordered by file ID, starting after afterFileID.
	List(ctx context.Context, afterFileID string, limit int) ([]*domain.Asset, error)

	// CountByScope counts assets of a scope that are not deleted.
	CountByScope(ctx context.Context, scopeID string) (int, error)
}

// PermissionStore persists PermissionSnapshots, one per file ID.
type PermissionStore interface {
	// Save atomically replaces the snapshot for snap.FileID.
	// Returns domain.ErrStaleRevision when the stored snapshot is newer.
	Save(ctx context.Context, snap *domain.PermissionSnapshot) error

	// Get retrieves a snapshot. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, fileID string) (*domain.PermissionSnapshot, error)

	// GetMany retrieves the snapshots that exist for fileIDs.
	GetMany(ctx context.Context, fileIDs []string) (map[string]*domain.PermissionSnapshot, error)
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}
