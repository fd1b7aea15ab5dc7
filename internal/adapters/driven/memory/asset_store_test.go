package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

func TestAssetStore_RevisionNeverRegresses(t *testing.T) {
	ctx := context.Background()
	store := NewAssetStore()

	require.NoError(t, store.Upsert(ctx, &domain.Asset{FileID: "f1", RevisionToken: "5", Name: "new"}))
	err := store.Upsert(ctx, &domain.Asset{FileID: "f1", RevisionToken: "4", Name: "old"})
	assert.ErrorIs(t, err, domain.ErrStaleRevision)

	got, err := store.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Name)
	assert.Equal(t, "5", got.RevisionToken)

	require.NoError(t, store.Upsert(ctx, &domain.Asset{FileID: "f1", RevisionToken: "5", Name: "same rev"}))
}

func TestAssetStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewAssetStore()
	asset := &domain.Asset{FileID: "f1", Tags: domain.Tags{domain.FacetSubject: "Art"}}
	require.NoError(t, store.Upsert(ctx, asset))

	asset.Tags[domain.FacetSubject] = "mutated"
	got, err := store.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "Art", got.Tags[domain.FacetSubject])
}

func TestAssetStore_ListAndCount(t *testing.T) {
	ctx := context.Background()
	store := NewAssetStore()
	for _, a := range []*domain.Asset{
		{FileID: "c", ScopeID: "s1", IndexState: domain.IndexStateIndexed},
		{FileID: "a", ScopeID: "s1", IndexState: domain.IndexStateDeleted},
		{FileID: "b", ScopeID: "s2", IndexState: domain.IndexStateIndexed},
	} {
		require.NoError(t, store.Upsert(ctx, a))
	}

	count, err := store.CountByScope(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	scoped, err := store.ListByScope(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, scoped, 2)

	page, err := store.List(ctx, "a", 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].FileID)
}

func TestPermissionStore_SaveAndGetMany(t *testing.T) {
	ctx := context.Background()
	store := NewPermissionStore()

	require.NoError(t, store.Save(ctx, domain.NewPermissionSnapshot("f1", []string{"u1"}, "2", time.Now())))
	err := store.Save(ctx, domain.NewPermissionSnapshot("f1", []string{"u2"}, "1", time.Now()))
	assert.ErrorIs(t, err, domain.ErrStaleRevision)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	many, err := store.GetMany(ctx, []string{"f1", "missing"})
	require.NoError(t, err)
	require.Len(t, many, 1)
	assert.True(t, many["f1"].Grants("u1"))
}

func TestDeduper_MarkSeen(t *testing.T) {
	ctx := context.Background()
	d, err := NewDeduper(2)
	require.NoError(t, err)

	first, err := d.MarkSeen(ctx, "f1@1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.MarkSeen(ctx, "f1@1")
	require.NoError(t, err)
	assert.False(t, again)

	_, _ = d.MarkSeen(ctx, "f2@1")
	_, _ = d.MarkSeen(ctx, "f3@1")
	evicted, err := d.MarkSeen(ctx, "f1@1")
	require.NoError(t, err)
	assert.True(t, evicted, "keys outside the window are forgotten")
}

func TestDeduper_Forget(t *testing.T) {
	ctx := context.Background()
	d, err := NewDeduper(10)
	require.NoError(t, err)

	_, _ = d.MarkSeen(ctx, "f1@1")
	require.NoError(t, d.Forget(ctx, "f1@1"))

	first, err := d.MarkSeen(ctx, "f1@1")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestDeduper_NonPositiveSizeUsesDefaultWindow(t *testing.T) {
	d, err := NewDeduper(0)
	require.NoError(t, err)

	first, err := d.MarkSeen(context.Background(), "f1@1")
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, 1, d.seen.Len())
}
