package driven

import (
	"context"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// FileStore is the external file-store connector.
//
// Implementations map source errors onto domain.ErrTransient,
// domain.ErrRateLimited, domain.ErrSourceUnauthorized and domain.ErrNotFound.
type FileStore interface {
	// ListFolder returns one page of a folder's direct children.
	// Pass an empty pageToken for the first page.
	ListFolder(ctx context.Context, folderID, pageToken string) (*domain.FolderPage, error)

	// GetFileMetadata fetches the current entry and intrinsic metadata of a file.
	GetFileMetadata(ctx context.Context, fileID string) (*domain.FileMetadata, error)

	// GetPermissions returns the principals granted read access to a file.
	GetPermissions(ctx context.Context, fileID string) ([]string, error)

	// StartCursor returns a cursor positioned at the head of the change stream.
	StartCursor(ctx context.Context) (string, error)

	// FetchChanges returns the next page of the change stream after cursor.
	FetchChanges(ctx context.Context, cursor string, pageSize int) (*domain.ChangePage, error)

	// OpenInSourceURL returns the link users follow to open a file.
	OpenInSourceURL(fileID string) string
}

// ChangeDeduper remembers change keys already handed to the orchestrator.
type ChangeDeduper interface {
	// MarkSeen records key and reports whether it was new.
	MarkSeen(ctx context.Context, key string) (firstTime bool, err error)

	// Forget removes keys whose changes were not handed over after all.
	Forget(ctx context.Context, keys ...string) error
}

// Alerter delivers operator-visible alerts.
type Alerter interface {
	Alert(ctx context.Context, alert domain.Alert) error
}

// AlertHistory exposes recently raised alerts to the dashboard.
type AlertHistory interface {
	Recent(ctx context.Context) ([]domain.Alert, error)
}
