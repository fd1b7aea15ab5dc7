// Package index implements the in-process faceted search index on a
// memory-only bleve index.
//
// Facet values are indexed under keyword-analyzed fields and filtered as a
// conjunction of term queries; free text is matched against the file name,
// folder path, tag values and intrinsic metadata with per-field boosts.
package index

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SearchIndex = (*Index)(nil)

const (
	// TextAnalyzerName lowercases and splits on Unicode word boundaries.
	// No stop words: lesson titles are short and "A Walk in the Garden" must match whole.
	TextAnalyzerName = "drive_text"

	fieldName   = "name"
	fieldFolder = "folder"
	fieldTags   = "tags"
	fieldMeta   = "meta"
	fieldPath   = "path"

	facetFieldPrefix = "facet_"
)

// textFields are the free-text fields and their boosts.
var textFields = []struct {
	name  string
	boost float64
}{
	{fieldName, domain.NameFieldWeight},
	{fieldFolder, domain.PathFieldWeight},
	{fieldTags, domain.PathFieldWeight},
	{fieldMeta, domain.MetadataFieldWeight},
}

// Index is a thread-safe faceted index.
// docs holds the servable revision of every indexed file; it guards against
// older revisions and resolves hits back to assets. Readers never observe a
// partially applied upsert.
type Index struct {
	mu   sync.RWMutex
	docs map[string]*domain.Asset
	idx  bleve.Index
}

// New creates an empty index.
func New() (*Index, error) {
	m, err := newMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{docs: make(map[string]*domain.Asset), idx: idx}, nil
}

// newMapping maps the text fields explicitly. Facet fields are dynamic so
// grammars can introduce facets; they fall back to the keyword analyzer.
func newMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(TextAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}
	m.DefaultAnalyzer = keyword.Name
	m.StoreDynamic = false

	doc := bleve.NewDocumentMapping()
	for _, f := range textFields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = TextAnalyzerName
		fm.Store = false
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(f.name, fm)
	}
	pathField := bleve.NewKeywordFieldMapping()
	pathField.Store = false
	pathField.IncludeInAll = false
	doc.AddFieldMappingsAt(fieldPath, pathField)

	m.DefaultMapping = doc
	return m, nil
}

// Upsert indexes asset, replacing any older revision. Non-servable assets are removed.
func (ix *Index) Upsert(ctx context.Context, asset *domain.Asset) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if existing, ok := ix.docs[asset.FileID]; ok &&
		domain.CompareRevisions(existing.RevisionToken, asset.RevisionToken) > 0 {
		return nil
	}
	if !asset.IndexState.Servable() {
		return ix.removeLocked(asset.FileID)
	}

	if err := ix.idx.Index(asset.FileID, document(asset)); err != nil {
		return fmt.Errorf("index %s: %w", asset.FileID, err)
	}
	ix.docs[asset.FileID] = asset.Clone()
	return nil
}

// Remove drops a file from the index.
func (ix *Index) Remove(ctx context.Context, fileID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.removeLocked(fileID)
}

// removeLocked deletes a document. Callers hold ix.mu.
func (ix *Index) removeLocked(fileID string) error {
	if _, ok := ix.docs[fileID]; !ok {
		return nil
	}
	if err := ix.idx.Delete(fileID); err != nil {
		return fmt.Errorf("unindex %s: %w", fileID, err)
	}
	delete(ix.docs, fileID)
	return nil
}

// Query evaluates facet filters as a conjunctive pre-filter, then ranks the
// candidates by boosted text relevance. Without facet filters, documents
// matching no term are dropped. Ties break by path, then file ID. Returned
// assets are shared and must not be modified.
func (ix *Index) Query(ctx context.Context, q domain.IndexQuery) ([]domain.ScoredAsset, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	size := len(ix.docs)
	if q.Limit > 0 && q.Limit < size {
		size = q.Limit
	}
	if size == 0 {
		return []domain.ScoredAsset{}, nil
	}

	req := bleve.NewSearchRequestOptions(buildQuery(q), size, 0, false)
	req.SortBy([]string{"-_score", fieldPath, "_id"})
	res, err := ix.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]domain.ScoredAsset, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if asset, ok := ix.docs[hit.ID]; ok {
			results = append(results, domain.ScoredAsset{Asset: asset, Score: hit.Score})
		}
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (ix *Index) Count(ctx context.Context) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n, err := ix.idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return int(n), nil
}

// Close releases the underlying index.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.idx.Close()
}

func buildQuery(q domain.IndexQuery) query.Query {
	facets := make([]query.Query, 0, len(q.FacetFilters))
	for facet, value := range q.FacetFilters {
		tq := bleve.NewTermQuery(normalizeFacetValue(value))
		tq.SetField(facetField(facet))
		tq.SetBoost(domain.FacetWeight)
		facets = append(facets, tq)
	}
	text := textQuery(q.Terms)

	switch {
	case len(facets) > 0 && text != nil:
		bq := bleve.NewBooleanQuery()
		bq.AddMust(facets...)
		bq.AddShould(text)
		return bq
	case len(facets) > 0:
		return bleve.NewConjunctionQuery(facets...)
	case text != nil:
		return text
	}
	return bleve.NewMatchAllQuery()
}

// textQuery matches terms against every text field, or returns nil for blank text.
func textQuery(terms []string) query.Query {
	text := strings.TrimSpace(strings.Join(terms, " "))
	if text == "" {
		return nil
	}
	fields := make([]query.Query, 0, len(textFields))
	for _, f := range textFields {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(f.name)
		mq.SetBoost(domain.TextWeight * f.boost)
		fields = append(fields, mq)
	}
	return bleve.NewDisjunctionQuery(fields...)
}

// document is the bleve representation of an asset.
func document(a *domain.Asset) map[string]interface{} {
	tagValues := make([]string, 0, len(a.Tags))
	for _, v := range a.Tags {
		tagValues = append(tagValues, v)
	}

	doc := map[string]interface{}{
		fieldName:   a.Name,
		fieldFolder: path.Dir(strings.TrimSuffix(a.Path, "/")),
		fieldTags:   strings.Join(tagValues, " "),
		fieldMeta:   a.IntrinsicMetadata.AuthorName + " " + a.IntrinsicMetadata.MimeType,
		fieldPath:   a.Path,
	}
	for facet, value := range a.Tags {
		doc[facetField(facet)] = normalizeFacetValue(value)
	}
	return doc
}

func facetField(f domain.Facet) string {
	return facetFieldPrefix + string(f)
}

// normalizeFacetValue is the key facet values are stored and matched under.
func normalizeFacetValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
