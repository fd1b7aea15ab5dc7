package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
	"github.com/custodia-labs/drive-index/internal/core/ports/driving"
)

// Ensure crawlService implements CrawlService
var _ driving.CrawlService = (*crawlService)(nil)

// Job listing bounds
const (
	DefaultJobListLimit = 50
	MaxJobListLimit     = 500
)

// JobCanceller stops jobs running in this process.
type JobCanceller interface {
	Cancel(jobID string) bool
}

// crawlService implements the crawl dashboard operations
type crawlService struct {
	jobs     driven.CrawlJobStore
	assets   driven.AssetStore
	index    driven.SearchIndex
	canceler JobCanceller
	logger   *slog.Logger
}

// CrawlServiceConfig holds configuration for the crawl service.
type CrawlServiceConfig struct {
	Jobs     driven.CrawlJobStore
	Assets   driven.AssetStore
	Index    driven.SearchIndex
	Canceler JobCanceller // Optional: the local orchestrator
	Logger   *slog.Logger
}

// NewCrawlService creates a new CrawlService
func NewCrawlService(cfg CrawlServiceConfig) driving.CrawlService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &crawlService{
		jobs:     cfg.Jobs,
		assets:   cfg.Assets,
		index:    cfg.Index,
		canceler: cfg.Canceler,
		logger:   logger,
	}
}

// TriggerFullCrawl enqueues a full crawl of a scope
func (s *crawlService) TriggerFullCrawl(ctx context.Context, scopeID string) (*domain.CrawlJob, error) {
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return nil, fmt.Errorf("%w: scope id required", domain.ErrInvalidInput)
	}

	halted, reason, err := s.jobs.HaltStatus(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	if halted {
		return nil, fmt.Errorf("%w: %s", domain.ErrScopeHalted, reason)
	}

	job := domain.NewFullCrawlJob(scopeID)
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue full crawl: %w", err)
	}
	s.logger.Info("full crawl triggered", "scope_id", scopeID, "job_id", job.ID)
	return job, nil
}

// CrawlStatus summarizes the latest job and asset count of a scope
func (s *crawlService) CrawlStatus(ctx context.Context, scopeID string) (*domain.CrawlStatus, error) {
	if strings.TrimSpace(scopeID) == "" {
		return nil, fmt.Errorf("%w: scope id required", domain.ErrInvalidInput)
	}

	status := &domain.CrawlStatus{ScopeID: scopeID}

	job, err := s.jobs.LatestForScope(ctx, scopeID)
	switch {
	case err == nil:
		status.State = job.State
		status.JobID = job.ID
		status.LastError = job.LastError
		status.Stats = job.Stats
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	if status.AssetCount, err = s.assets.CountByScope(ctx, scopeID); err != nil {
		return nil, err
	}
	if status.Halted, status.HaltReason, err = s.jobs.HaltStatus(ctx, scopeID); err != nil {
		return nil, err
	}
	return status, nil
}

// ListJobs lists jobs in a dashboard column
func (s *crawlService) ListJobs(ctx context.Context, state domain.JobState, limit int) ([]*domain.CrawlJob, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: unknown job state %q", domain.ErrInvalidInput, state)
	}
	if limit <= 0 {
		limit = DefaultJobListLimit
	}
	if limit > MaxJobListLimit {
		limit = MaxJobListLimit
	}
	return s.jobs.ListByState(ctx, state, limit)
}

// GetJob retrieves a job
func (s *crawlService) GetJob(ctx context.Context, jobID string) (*domain.CrawlJob, error) {
	return s.jobs.Get(ctx, jobID)
}

// Transitions returns the audit trail of a job
func (s *crawlService) Transitions(ctx context.Context, jobID string) ([]domain.JobTransition, error) {
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return s.jobs.Transitions(ctx, jobID)
}

// CancelJob stops a job. A job running in this process finishes its
// in-flight files and fails itself; any other queued or processing job is
// failed directly, which revokes a remote worker's lease.
func (s *crawlService) CancelJob(ctx context.Context, jobID, actor string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, job.State)
	}

	if job.State == domain.JobStateProcessing && s.canceler != nil && s.canceler.Cancel(jobID) {
		s.logger.Info("crawl job cancellation requested", "job_id", jobID, "actor", actor)
		return nil
	}
	if err := s.jobs.Transition(ctx, jobID, domain.JobStateFailed, domain.ErrCancelled.Error(), actor); err != nil {
		return err
	}
	s.logger.Info("crawl job cancelled", "job_id", jobID, "actor", actor)
	return nil
}

// ResolveReview closes a job in review
func (s *crawlService) ResolveReview(ctx context.Context, jobID, actor string) error {
	if err := s.jobs.Transition(ctx, jobID, domain.JobStateDone, "review resolved", actor); err != nil {
		return err
	}
	s.logger.Info("crawl review resolved", "job_id", jobID, "actor", actor)
	return nil
}

// RetryJob requeues a failed job with a fresh attempt budget
func (s *crawlService) RetryJob(ctx context.Context, jobID, actor string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if halted, reason, err := s.jobs.HaltStatus(ctx, job.ScopeID); err != nil {
		return err
	} else if halted {
		return fmt.Errorf("%w: %s", domain.ErrScopeHalted, reason)
	}
	if err := s.jobs.Transition(ctx, jobID, domain.JobStateQueued, "retried by operator", actor); err != nil {
		return err
	}
	s.logger.Info("crawl job retried", "job_id", jobID, "actor", actor)
	return nil
}

// ResumeScope clears an authorization halt
func (s *crawlService) ResumeScope(ctx context.Context, scopeID, actor string) error {
	if err := s.jobs.ResumeScope(ctx, scopeID); err != nil {
		return err
	}
	s.logger.Info("crawl scope resumed", "scope_id", scopeID, "actor", actor)
	return nil
}

// ResolveAsset applies operator-confirmed tags to a servable asset and
// marks it indexed. Tags not given keep their parsed value.
func (s *crawlService) ResolveAsset(ctx context.Context, fileID string, tags domain.Tags, actor string) (*domain.Asset, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: tags required", domain.ErrInvalidInput)
	}

	asset, err := s.assets.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !asset.IndexState.Servable() {
		return nil, fmt.Errorf("%w: asset is %s", domain.ErrInvalidInput, asset.IndexState)
	}

	resolved := asset.Clone()
	if resolved.Tags == nil {
		resolved.Tags = domain.Tags{}
	}
	for facet, value := range tags {
		if value = strings.TrimSpace(value); value == "" {
			delete(resolved.Tags, facet)
			continue
		}
		resolved.Tags[facet] = value
	}
	now := time.Now()
	resolved.Confidence = domain.ConfidenceFull
	resolved.IndexState = domain.IndexStateIndexed
	resolved.IndexedAt = now
	resolved.UpdatedAt = now

	if err := s.assets.Upsert(ctx, resolved); err != nil {
		return nil, err
	}
	if err := s.index.Upsert(ctx, resolved); err != nil {
		return nil, fmt.Errorf("index asset: %w", err)
	}

	s.logger.Info("asset tags resolved", "file_id", fileID, "actor", actor)
	return resolved, nil
}
