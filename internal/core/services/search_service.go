package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
	"github.com/custodia-labs/drive-index/internal/core/ports/driving"
)

// Ensure searchService implements SearchService
var _ driving.SearchService = (*searchService)(nil)

// searchService narrows by facets, ranks by text, and filters by permission last.
type searchService struct {
	index         driven.SearchIndex
	mirror        *PermissionMirror
	maxCandidates int
	logger        *slog.Logger
}

// SearchServiceConfig holds configuration for the search service.
type SearchServiceConfig struct {
	Index         driven.SearchIndex
	Permissions   *PermissionMirror
	MaxCandidates int // default: domain.MaxCandidates
	Logger        *slog.Logger
}

// NewSearchService creates a new SearchService
func NewSearchService(cfg SearchServiceConfig) driving.SearchService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.MaxCandidates
	if limit <= 0 {
		limit = domain.MaxCandidates
	}
	return &searchService{
		index:         cfg.Index,
		mirror:        cfg.Permissions,
		maxCandidates: limit,
		logger:        logger,
	}
}

// Search runs a faceted query for q.Principal.
// TotalApprox is exact unless the candidate set hit the candidate bound.
func (s *searchService) Search(ctx context.Context, q domain.SearchQuery) (*domain.SearchResult, error) {
	start := time.Now()
	q.Normalize()

	filters := make(domain.Tags, len(q.FacetFilters))
	for facet, value := range q.FacetFilters {
		if facet == "" {
			return nil, fmt.Errorf("%w: empty facet name", domain.ErrInvalidInput)
		}
		if v := strings.TrimSpace(value); v != "" {
			filters[facet] = v
		}
	}

	result := &domain.SearchResult{Results: []domain.SearchHit{}}
	identities := q.Principal.ReadIdentities()
	if len(identities) == 0 {
		return s.finish(result, start), nil
	}

	candidates, err := s.index.Query(ctx, domain.IndexQuery{
		Terms:        strings.Fields(q.Text),
		FacetFilters: filters,
		Limit:        s.maxCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if len(candidates) == s.maxCandidates {
		s.logger.Warn("search candidate bound reached", "limit", s.maxCandidates, "principal", q.Principal.ID)
	}

	allowed, err := s.mirror.Filter(ctx, candidates, identities)
	if err != nil {
		return nil, fmt.Errorf("filter by permission: %w", err)
	}

	result.TotalApprox = len(allowed)
	from := min(q.Offset(), len(allowed))
	to := min(from+q.PageSize, len(allowed))
	for _, c := range allowed[from:to] {
		result.Results = append(result.Results, domain.SearchHit{
			FileID:    c.Asset.FileID,
			Path:      c.Asset.Path,
			Name:      c.Asset.Name,
			Tags:      c.Asset.Tags.Clone(),
			Score:     c.Score,
			SourceURL: c.Asset.SourceURL,
		})
	}
	return s.finish(result, start), nil
}

func (s *searchService) finish(result *domain.SearchResult, start time.Time) *domain.SearchResult {
	result.Took = time.Since(start)
	result.TookMs = result.Took.Milliseconds()
	return result
}
