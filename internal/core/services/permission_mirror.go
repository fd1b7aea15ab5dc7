package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Permission cache defaults
const (
	DefaultPermissionCacheSize = 100_000
	DefaultPermissionCacheTTL  = 30 * time.Second
)

// PermissionMirror is the read-through, fail-closed view of per-file ACL snapshots.
// Writes go to the durable store first; the cache only ever holds what the
// store acknowledged.
type PermissionMirror struct {
	store  driven.PermissionStore
	cache  *expirable.LRU[string, *domain.PermissionSnapshot]
	logger *slog.Logger
}

// PermissionMirrorConfig holds configuration for the permission mirror.
type PermissionMirrorConfig struct {
	Store     driven.PermissionStore
	CacheSize int           // default: 100000
	CacheTTL  time.Duration // default: 30s; bounds staleness across instances
	Logger    *slog.Logger
}

// NewPermissionMirror creates a permission mirror.
func NewPermissionMirror(cfg PermissionMirrorConfig) *PermissionMirror {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultPermissionCacheSize
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultPermissionCacheTTL
	}

	return &PermissionMirror{
		store:  cfg.Store,
		cache:  expirable.NewLRU[string, *domain.PermissionSnapshot](size, nil, ttl),
		logger: logger,
	}
}

// Upsert atomically replaces the principal set of a file as of revision.
// Returns domain.ErrStaleRevision if a newer snapshot is already stored.
func (m *PermissionMirror) Upsert(ctx context.Context, fileID string, principals []string, revision string) (*domain.PermissionSnapshot, error) {
	if fileID == "" {
		return nil, fmt.Errorf("%w: file id required", domain.ErrInvalidInput)
	}

	snap := domain.NewPermissionSnapshot(fileID, principals, revision, time.Now())
	if err := m.store.Save(ctx, snap); err != nil {
		if errors.Is(err, domain.ErrStaleRevision) {
			m.cache.Remove(fileID)
			return nil, err
		}
		return nil, fmt.Errorf("save permissions: %w: %v", domain.ErrTransient, err)
	}

	m.cache.Add(fileID, snap.Clone())
	return snap, nil
}

// Get returns the snapshot of a file. Returns domain.ErrNotFound if none was captured.
func (m *PermissionMirror) Get(ctx context.Context, fileID string) (*domain.PermissionSnapshot, error) {
	if snap, ok := m.cache.Get(fileID); ok {
		return snap.Clone(), nil
	}

	snap, err := m.store.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	m.cache.Add(fileID, snap.Clone())
	return snap, nil
}

// IsAuthorized reports whether principal may read a file.
// Missing snapshots and lookup failures deny.
func (m *PermissionMirror) IsAuthorized(ctx context.Context, fileID, principal string) bool {
	snap, err := m.Get(ctx, fileID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			m.logger.Warn("permission lookup failed, denying", "file_id", fileID, "error", err)
		}
		return false
	}
	return snap.Grants(principal)
}

// IsAuthorizedAt is IsAuthorized that also denies when the snapshot is older
// than revision, the revision of the asset about to be served.
func (m *PermissionMirror) IsAuthorizedAt(ctx context.Context, fileID, principal, revision string) bool {
	snap, err := m.Get(ctx, fileID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			m.logger.Warn("permission lookup failed, denying", "file_id", fileID, "error", err)
		}
		return false
	}
	return covers(snap, revision) && snap.Grants(principal)
}

// Filter keeps the candidates any of identities may read, preserving order.
// Snapshots missing from the cache are fetched in one batch.
func (m *PermissionMirror) Filter(ctx context.Context, candidates []domain.ScoredAsset, identities []string) ([]domain.ScoredAsset, error) {
	if len(identities) == 0 || len(candidates) == 0 {
		return nil, nil
	}

	snaps := make(map[string]*domain.PermissionSnapshot, len(candidates))
	var missing []string
	for _, c := range candidates {
		if snap, ok := m.cache.Get(c.Asset.FileID); ok {
			snaps[c.Asset.FileID] = snap
		} else {
			missing = append(missing, c.Asset.FileID)
		}
	}

	if len(missing) > 0 {
		fetched, err := m.store.GetMany(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("load permissions: %w", err)
		}
		for id, snap := range fetched {
			snaps[id] = snap
			m.cache.Add(id, snap.Clone())
		}
	}

	out := make([]domain.ScoredAsset, 0, len(candidates))
	for _, c := range candidates {
		snap := snaps[c.Asset.FileID]
		if snap == nil || !covers(snap, c.Asset.RevisionToken) {
			continue
		}
		if snap.GrantsAny(identities) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Invalidate drops a cached snapshot.
func (m *PermissionMirror) Invalidate(fileID string) {
	m.cache.Remove(fileID)
}

// covers reports whether snap was captured at or after revision.
func covers(snap *domain.PermissionSnapshot, revision string) bool {
	return domain.CompareRevisions(snap.RevisionToken, revision) >= 0
}
