package driving

import (
	"context"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// CrawlService backs the operational crawl dashboard
type CrawlService interface {
	// TriggerFullCrawl enqueues a full crawl of a scope
	TriggerFullCrawl(ctx context.Context, scopeID string) (*domain.CrawlJob, error)

	// CrawlStatus summarizes the latest job and asset count of a scope
	CrawlStatus(ctx context.Context, scopeID string) (*domain.CrawlStatus, error)

	// ListJobs lists jobs in a dashboard column
	ListJobs(ctx context.Context, state domain.JobState, limit int) ([]*domain.CrawlJob, error)

	// GetJob retrieves a job
	GetJob(ctx context.Context, jobID string) (*domain.CrawlJob, error)

	// Transitions returns the audit trail of a job
	Transitions(ctx context.Context, jobID string) ([]domain.JobTransition, error)

	// CancelJob stops a queued or processing job; it ends in failed
	CancelJob(ctx context.Context, jobID, actor string) error

	// ResolveReview closes a job in review
	ResolveReview(ctx context.Context, jobID, actor string) error

	// RetryJob requeues a failed job
	RetryJob(ctx context.Context, jobID, actor string) error

	// ResumeScope clears an authorization halt
	ResumeScope(ctx context.Context, scopeID, actor string) error

	// ResolveAsset sets operator-confirmed tags on a needsReview asset
	ResolveAsset(ctx context.Context, fileID string, tags domain.Tags, actor string) (*domain.Asset, error)
}

// Scheduler manages periodic full crawls
type Scheduler interface {
	// Start begins the scheduler loop
	Start(ctx context.Context) error

	// Stop stops the scheduler
	Stop(ctx context.Context) error

	// ScheduleScope registers or updates a recurring full crawl for a scope
	ScheduleScope(ctx context.Context, scopeID string) error

	// UnscheduleScope removes a scope from scheduling
	UnscheduleScope(ctx context.Context, scopeID string) error
}
