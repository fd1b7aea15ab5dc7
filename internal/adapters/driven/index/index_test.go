package index

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

func gardenVideo() *domain.Asset {
	return &domain.Asset{
		FileID:        "video-1",
		Name:          "video.mp4",
		Path:          "/Subjects/English/Grade 4/Lesson - 'Nature and Environment'/Part - 'A Walk in the Garden'/video.mp4",
		RevisionToken: "1",
		IndexState:    domain.IndexStateIndexed,
		Tags: domain.Tags{
			domain.FacetSubject:    "English",
			domain.FacetGradeLevel: "Grade 4",
			domain.FacetLesson:     "Nature and Environment",
			domain.FacetLessonPart: "A Walk in the Garden",
			domain.FacetFileType:   "video",
		},
	}
}

func mathWorksheet() *domain.Asset {
	return &domain.Asset{
		FileID:        "sheet-1",
		Name:          "worksheet.pdf",
		Path:          "/Subjects/Math/Grade 4/Lesson - 'Fractions'/Part - 'Halves'/worksheet.pdf",
		RevisionToken: "1",
		IndexState:    domain.IndexStateIndexed,
		Tags: domain.Tags{
			domain.FacetSubject:    "Math",
			domain.FacetGradeLevel: "Grade 4",
			domain.FacetLesson:     "Fractions",
			domain.FacetLessonPart: "Halves",
			domain.FacetFileType:   "document",
		},
	}
}

func newIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func TestQuery_TextIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)
	require.NoError(t, ix.Upsert(ctx, gardenVideo()))

	for _, text := range []string{"GARDEN", "walk in the garden", "Grade 4"} {
		results, err := ix.Query(ctx, domain.IndexQuery{Terms: []string{text}})
		require.NoError(t, err)
		require.Len(t, results, 1, text)
		assert.Equal(t, "video-1", results[0].Asset.FileID)
	}

	results, err := ix.Query(ctx, domain.IndexQuery{Terms: []string{"fractions"}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQuery_FacetThenText(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)
	require.NoError(t, ix.Upsert(ctx, gardenVideo()))
	require.NoError(t, ix.Upsert(ctx, mathWorksheet()))

	results, err := ix.Query(ctx, domain.IndexQuery{
		Terms:        []string{"garden"},
		FacetFilters: domain.Tags{domain.FacetGradeLevel: "Grade 4"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "video-1", results[0].Asset.FileID)
	assert.Equal(t, "sheet-1", results[1].Asset.FileID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestQuery_FacetFiltersAreConjunctive(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)
	require.NoError(t, ix.Upsert(ctx, gardenVideo()))
	require.NoError(t, ix.Upsert(ctx, mathWorksheet()))

	results, err := ix.Query(ctx, domain.IndexQuery{FacetFilters: domain.Tags{
		domain.FacetGradeLevel: "grade 4",
		domain.FacetSubject:    "Math",
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sheet-1", results[0].Asset.FileID)

	results, err = ix.Query(ctx, domain.IndexQuery{FacetFilters: domain.Tags{domain.FacetSubject: "History"}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQuery_TextWithoutFacetsFilters(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)
	require.NoError(t, ix.Upsert(ctx, gardenVideo()))
	require.NoError(t, ix.Upsert(ctx, mathWorksheet()))

	results, err := ix.Query(ctx, domain.IndexQuery{Terms: []string{"Fractions"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sheet-1", results[0].Asset.FileID)
}

func TestQuery_NameOutranksPath(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)
	named := &domain.Asset{FileID: "a", Name: "garden.png", Path: "/x/garden.png", IndexState: domain.IndexStateIndexed}
	pathOnly := &domain.Asset{FileID: "b", Name: "photo.png", Path: "/garden/photo.png", IndexState: domain.IndexStateIndexed}
	require.NoError(t, ix.Upsert(ctx, pathOnly))
	require.NoError(t, ix.Upsert(ctx, named))

	results, err := ix.Query(ctx, domain.IndexQuery{Terms: []string{"garden"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Asset.FileID)
}

func TestQuery_TiesBreakByPath(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)
	for _, a := range []*domain.Asset{
		{FileID: "2", Path: "/b/file", IndexState: domain.IndexStateIndexed},
		{FileID: "1", Path: "/a/file", IndexState: domain.IndexStateIndexed},
		{FileID: "0", Path: "/b/file", IndexState: domain.IndexStateIndexed},
	} {
		require.NoError(t, ix.Upsert(ctx, a))
	}

	results, err := ix.Query(ctx, domain.IndexQuery{Limit: 10})
	require.NoError(t, err)
	ids := []string{results[0].Asset.FileID, results[1].Asset.FileID, results[2].Asset.FileID}
	assert.Equal(t, []string{"1", "0", "2"}, ids)

	limited, err := ix.Query(ctx, domain.IndexQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestUpsert_LastWriterWinsByRevision(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)

	newer := gardenVideo()
	newer.RevisionToken = "2"
	newer.Tags = newer.Tags.Clone()
	newer.Tags[domain.FacetGradeLevel] = "Grade 5"
	require.NoError(t, ix.Upsert(ctx, newer))
	require.NoError(t, ix.Upsert(ctx, gardenVideo()))

	results, err := ix.Query(ctx, domain.IndexQuery{FacetFilters: domain.Tags{domain.FacetGradeLevel: "Grade 4"}})
	require.NoError(t, err)
	assert.Empty(t, results, "older revision must not replace the newer document")

	results, err = ix.Query(ctx, domain.IndexQuery{FacetFilters: domain.Tags{domain.FacetGradeLevel: "Grade 5"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "2", results[0].Asset.RevisionToken)
}

func TestUpsert_NonServableIsRemoved(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)
	require.NoError(t, ix.Upsert(ctx, gardenVideo()))

	deleted := gardenVideo()
	deleted.IndexState = domain.IndexStateDeleted
	require.NoError(t, ix.Upsert(ctx, deleted))

	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	results, err := ix.Query(ctx, domain.IndexQuery{Terms: []string{"garden"}})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, ix.docs)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)
	require.NoError(t, ix.Upsert(ctx, gardenVideo()))
	require.NoError(t, ix.Remove(ctx, "video-1"))
	require.NoError(t, ix.Remove(ctx, "missing"))

	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	results, err := ix.Query(ctx, domain.IndexQuery{FacetFilters: domain.Tags{domain.FacetSubject: "English"}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_ConcurrentUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, ix.Upsert(ctx, gardenVideo()))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				results, err := ix.Query(ctx, domain.IndexQuery{Terms: []string{"garden"}})
				assert.NoError(t, err)
				for _, r := range results {
					assert.Equal(t, "video-1", r.Asset.FileID)
				}
			}
		}()
	}
	wg.Wait()
}

func TestQuery_DynamicFacet(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)
	asset := gardenVideo()
	asset.Tags = asset.Tags.Clone()
	asset.Tags["term"] = "Autumn Term"
	require.NoError(t, ix.Upsert(ctx, asset))
	require.NoError(t, ix.Upsert(ctx, mathWorksheet()))

	results, err := ix.Query(ctx, domain.IndexQuery{FacetFilters: domain.Tags{"term": "autumn term"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "video-1", results[0].Asset.FileID)

	// Facet values match whole, not by token.
	results, err = ix.Query(ctx, domain.IndexQuery{FacetFilters: domain.Tags{"term": "autumn"}})
	require.NoError(t, err)
	assert.Empty(t, results)
}
