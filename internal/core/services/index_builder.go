package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

const indexRebuildPageSize = 500

// IndexBuilder loads the search index from the durable asset and permission
// stores. Only servable assets whose permission snapshot covers their
// revision are indexed.
type IndexBuilder struct {
	assets driven.AssetStore
	perms  driven.PermissionStore
	index  driven.SearchIndex
	logger *slog.Logger
}

// NewIndexBuilder creates an index builder.
func NewIndexBuilder(assets driven.AssetStore, perms driven.PermissionStore, index driven.SearchIndex, logger *slog.Logger) *IndexBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexBuilder{assets: assets, perms: perms, index: index, logger: logger}
}

// Rebuild walks every stored asset and returns how many were indexed.
func (b *IndexBuilder) Rebuild(ctx context.Context) (int, error) {
	start := time.Now()
	indexed := 0
	after := ""

	for {
		page, err := b.assets.List(ctx, after, indexRebuildPageSize)
		if err != nil {
			return indexed, fmt.Errorf("list assets: %w", err)
		}
		if len(page) == 0 {
			break
		}

		ids := make([]string, len(page))
		for i, a := range page {
			ids[i] = a.FileID
		}
		snaps, err := b.perms.GetMany(ctx, ids)
		if err != nil {
			return indexed, fmt.Errorf("load permissions: %w", err)
		}

		for _, asset := range page {
			snap := snaps[asset.FileID]
			if !asset.IndexState.Servable() || snap == nil || !covers(snap, asset.RevisionToken) {
				if err := b.index.Remove(ctx, asset.FileID); err != nil {
					return indexed, err
				}
				continue
			}
			if err := b.index.Upsert(ctx, asset); err != nil {
				return indexed, fmt.Errorf("index %s: %w", asset.FileID, err)
			}
			indexed++
		}
		after = page[len(page)-1].FileID
	}

	b.logger.Info("search index rebuilt", "documents", indexed, "duration", time.Since(start))
	return indexed, nil
}

// Run rebuilds the index every interval until ctx is cancelled. Processes
// that serve queries without crawling use it to pick up writes made elsewhere.
func (b *IndexBuilder) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := b.Rebuild(ctx); err != nil && ctx.Err() == nil {
				b.logger.Error("index refresh failed", "error", err)
			}
		}
	}
}
