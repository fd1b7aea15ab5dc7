package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.AssetStore      = (*AssetStore)(nil)
	_ driven.PermissionStore = (*PermissionStore)(nil)
)

// AssetStore is an in-memory AssetStore.
type AssetStore struct {
	mu     sync.RWMutex
	assets map[string]*domain.Asset
}

// NewAssetStore creates an empty store.
func NewAssetStore() *AssetStore {
	return &AssetStore{assets: make(map[string]*domain.Asset)}
}

func (s *AssetStore) Get(ctx context.Context, fileID string) (*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[fileID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *AssetStore) Upsert(ctx context.Context, asset *domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.assets[asset.FileID]; ok &&
		domain.CompareRevisions(existing.RevisionToken, asset.RevisionToken) > 0 {
		return domain.ErrStaleRevision
	}
	s.assets[asset.FileID] = asset.Clone()
	return nil
}

func (s *AssetStore) ListByScope(ctx context.Context, scopeID string) ([]*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Asset
	for _, a := range s.assets {
		if a.ScopeID == scopeID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out, nil
}

func (s *AssetStore) List(ctx context.Context, afterFileID string, limit int) ([]*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.assets))
	for id := range s.assets {
		if id > afterFileID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]*domain.Asset, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.assets[id].Clone())
	}
	return out, nil
}

func (s *AssetStore) CountByScope(ctx context.Context, scopeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.assets {
		if a.ScopeID == scopeID && a.IndexState != domain.IndexStateDeleted {
			n++
		}
	}
	return n, nil
}

// PermissionStore is an in-memory PermissionStore.
type PermissionStore struct {
	mu    sync.RWMutex
	snaps map[string]*domain.PermissionSnapshot
}

// NewPermissionStore creates an empty store.
func NewPermissionStore() *PermissionStore {
	return &PermissionStore{snaps: make(map[string]*domain.PermissionSnapshot)}
}

func (s *PermissionStore) Save(ctx context.Context, snap *domain.PermissionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.snaps[snap.FileID]; ok &&
		domain.CompareRevisions(existing.RevisionToken, snap.RevisionToken) > 0 {
		return domain.ErrStaleRevision
	}
	s.snaps[snap.FileID] = snap.Clone()
	return nil
}

func (s *PermissionStore) Get(ctx context.Context, fileID string) (*domain.PermissionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snaps[fileID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return snap.Clone(), nil
}

func (s *PermissionStore) GetMany(ctx context.Context, fileIDs []string) (map[string]*domain.PermissionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*domain.PermissionSnapshot, len(fileIDs))
	for _, id := range fileIDs {
		if snap, ok := s.snaps[id]; ok {
			out[id] = snap.Clone()
		}
	}
	return out, nil
}
