package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/drive-index/internal/adapters/driven/memory"
	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// failingPermissionStore fails every write.
type failingPermissionStore struct {
	*memory.PermissionStore
}

func (s failingPermissionStore) Save(ctx context.Context, snap *domain.PermissionSnapshot) error {
	return errors.New("connection reset")
}

func newTestMirror(ttl time.Duration) (*PermissionMirror, *memory.PermissionStore) {
	store := memory.NewPermissionStore()
	return NewPermissionMirror(PermissionMirrorConfig{Store: store, CacheTTL: ttl, Logger: quietLogger()}), store
}

func TestPermissionMirror_UpsertAndAuthorize(t *testing.T) {
	m, _ := newTestMirror(0)
	ctx := context.Background()

	snap, err := m.Upsert(ctx, "f1", []string{"user:bob", "user:alice", "user:alice", ""}, "3")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:alice", "user:bob"}, snap.Principals)

	assert.True(t, m.IsAuthorized(ctx, "f1", "user:alice"))
	assert.False(t, m.IsAuthorized(ctx, "f1", "user:carol"))
	assert.False(t, m.IsAuthorized(ctx, "missing", "user:alice"), "missing snapshots deny")

	assert.True(t, m.IsAuthorizedAt(ctx, "f1", "user:alice", "3"))
	assert.False(t, m.IsAuthorizedAt(ctx, "f1", "user:alice", "4"), "a snapshot older than the asset denies")
}

func TestPermissionMirror_RejectsOlderRevision(t *testing.T) {
	m, _ := newTestMirror(0)
	ctx := context.Background()

	_, err := m.Upsert(ctx, "f1", []string{"user:alice"}, "5")
	require.NoError(t, err)

	_, err = m.Upsert(ctx, "f1", []string{"user:mallory"}, "4")
	assert.ErrorIs(t, err, domain.ErrStaleRevision)
	assert.False(t, m.IsAuthorized(ctx, "f1", "user:mallory"))
	assert.True(t, m.IsAuthorized(ctx, "f1", "user:alice"))
}

func TestPermissionMirror_RevocationIsImmediate(t *testing.T) {
	m, _ := newTestMirror(time.Hour)
	ctx := context.Background()

	_, err := m.Upsert(ctx, "f1", []string{"user:alice", "user:bob"}, "1")
	require.NoError(t, err)
	require.True(t, m.IsAuthorized(ctx, "f1", "user:bob"))

	_, err = m.Upsert(ctx, "f1", []string{"user:alice"}, "2")
	require.NoError(t, err)
	assert.False(t, m.IsAuthorized(ctx, "f1", "user:bob"))
}

func TestPermissionMirror_StoreFailureIsTransient(t *testing.T) {
	m := NewPermissionMirror(PermissionMirrorConfig{
		Store:  failingPermissionStore{memory.NewPermissionStore()},
		Logger: quietLogger(),
	})

	_, err := m.Upsert(context.Background(), "f1", []string{"user:alice"}, "1")
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.False(t, m.IsAuthorized(context.Background(), "f1", "user:alice"))

	_, err = m.Upsert(context.Background(), "", nil, "1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPermissionMirror_CacheExpires(t *testing.T) {
	m, store := newTestMirror(20 * time.Millisecond)
	ctx := context.Background()

	_, err := m.Upsert(ctx, "f1", []string{"user:alice"}, "1")
	require.NoError(t, err)

	// Another instance revokes alice.
	require.NoError(t, store.Save(ctx, domain.NewPermissionSnapshot("f1", nil, "2", time.Now())))

	assert.Eventually(t, func() bool {
		return !m.IsAuthorized(ctx, "f1", "user:alice")
	}, time.Second, 5*time.Millisecond)
}

func TestPermissionMirror_Filter(t *testing.T) {
	m, store := newTestMirror(0)
	ctx := context.Background()

	_, err := m.Upsert(ctx, "a", []string{"user:alice"}, "1")
	require.NoError(t, err)
	// Stored but not yet cached.
	require.NoError(t, store.Save(ctx, domain.NewPermissionSnapshot("b", []string{"group:staff"}, "1", time.Now())))
	require.NoError(t, store.Save(ctx, domain.NewPermissionSnapshot("c", []string{"user:alice"}, "1", time.Now())))

	candidates := []domain.ScoredAsset{
		{Asset: &domain.Asset{FileID: "b", RevisionToken: "1"}, Score: 3},
		{Asset: &domain.Asset{FileID: "a", RevisionToken: "1"}, Score: 2},
		{Asset: &domain.Asset{FileID: "c", RevisionToken: "2"}, Score: 1.5},
		{Asset: &domain.Asset{FileID: "orphan", RevisionToken: "1"}, Score: 1},
	}

	got, err := m.Filter(ctx, candidates, []string{"user:alice", "group:staff"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Asset.FileID)
	assert.Equal(t, "a", got[1].Asset.FileID)

	got, err = m.Filter(ctx, candidates, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPermissionMirror_Invalidate(t *testing.T) {
	m, store := newTestMirror(time.Hour)
	ctx := context.Background()

	_, err := m.Upsert(ctx, "f1", []string{"user:alice"}, "1")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, domain.NewPermissionSnapshot("f1", []string{"user:bob"}, "2", time.Now())))

	assert.True(t, m.IsAuthorized(ctx, "f1", "user:alice"))
	m.Invalidate("f1")
	assert.False(t, m.IsAuthorized(ctx, "f1", "user:alice"))
	assert.True(t, m.IsAuthorized(ctx, "f1", "user:bob"))
}
