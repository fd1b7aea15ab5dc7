package domain

import "time"

// Ranking and paging constants
const (
	// TextWeight scales the term-frequency score
	TextWeight = 1.0
	// FacetWeight is added per facet filter the asset satisfies
	FacetWeight = 0.5
	// NameFieldWeight scales term hits in the file name
	NameFieldWeight = 2.0
	// PathFieldWeight scales term hits in folder path segments and tag values
	PathFieldWeight = 1.0
	// MetadataFieldWeight scales term hits in intrinsic metadata
	MetadataFieldWeight = 0.5

	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxCandidates bounds the candidate set the permission filter walks per query
	MaxCandidates = 50000
)

// SearchQuery is a faceted, access-filtered query from the search surface
type SearchQuery struct {
	Text         string    `json:"text"`
	FacetFilters Tags      `json:"facet_filters,omitempty"`
	Principal    Principal `json:"principal"`
	Page         int       `json:"page"`
	PageSize     int       `json:"page_size"`
}

// Normalize applies paging defaults and bounds
func (q *SearchQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
}

// Offset returns the index of the first result on the page
func (q *SearchQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// IndexQuery is what the search index evaluates: facet pre-filter plus text scoring.
// Permission filtering happens outside the index.
type IndexQuery struct {
	Terms        []string
	FacetFilters Tags
	Limit        int
}

// ScoredAsset is an index hit before permission filtering
type ScoredAsset struct {
	Asset *Asset
	Score float64
}

// SearchHit is one result returned to the search surface
type SearchHit struct {
	FileID    string  `json:"file_id"`
	Path      string  `json:"path"`
	Name      string  `json:"name"`
	Tags      Tags    `json:"tags"`
	Score     float64 `json:"score"`
	SourceURL string  `json:"source_url"`
}

// SearchResult is the response to a SearchQuery
type SearchResult struct {
	Results     []SearchHit   `json:"results"`
	TotalApprox int           `json:"total_approx"`
	Took        time.Duration `json:"-"`
	TookMs      int64         `json:"took_ms"`
}
