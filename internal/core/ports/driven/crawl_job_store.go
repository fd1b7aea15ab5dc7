package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// CrawlJobStore is the durable crawl state store.
//
// A scope has at most one processing job at a time. Every state change is
// validated against domain.CanTransition and appended to the transition log.
type CrawlJobStore interface {
	// Enqueue persists a new queued job.
	Enqueue(ctx context.Context, job *domain.CrawlJob) error

	// Get retrieves a job by ID. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, jobID string) (*domain.CrawlJob, error)

	// Claim atomically moves the oldest claimable job of scopeID to processing
	// under owner. A processing job whose heartbeat is older than liveness is
	// reclaimed. Returns nil, nil when there is nothing to claim, the scope is
	// halted, or another owner holds a live job in the scope.
	Claim(ctx context.Context, scopeID, owner string, liveness time.Duration) (*domain.CrawlJob, error)

	// ClaimNext is Claim across all scopes, oldest job first.
	ClaimNext(ctx context.Context, owner string, liveness time.Duration) (*domain.CrawlJob, error)

	// Heartbeat refreshes the lease of a processing job.
	// Returns domain.ErrLeaseLost if owner no longer holds it.
	Heartbeat(ctx context.Context, jobID, owner string) error

	// Complete applies a worker's outcome to a processing job it owns.
	// outcome.State queued requeues the job until outcome.RetryAt.
	Complete(ctx context.Context, jobID, owner string, outcome domain.JobOutcome) error

	// Transition applies an operator state change, such as review to done.
	Transition(ctx context.Context, jobID string, to domain.JobState, reason, actor string) error

	// ListByState returns up to limit jobs in state, newest first.
	ListByState(ctx context.Context, state domain.JobState, limit int) ([]*domain.CrawlJob, error)

	// LatestForScope returns the most recently created job of a scope.
	// Returns domain.ErrNotFound if the scope has no jobs.
	LatestForScope(ctx context.Context, scopeID string) (*domain.CrawlJob, error)

	// Transitions returns the audit trail of a job, oldest first.
	Transitions(ctx context.Context, jobID string) ([]domain.JobTransition, error)

	// HaltScope stops claims for a scope until ResumeScope.
	HaltScope(ctx context.Context, scopeID, reason string) error

	// ResumeScope clears a halt.
	ResumeScope(ctx context.Context, scopeID string) error

	// HaltStatus reports whether a scope is halted and why.
	HaltStatus(ctx context.Context, scopeID string) (halted bool, reason string, err error)
}

// CursorStore persists change stream cursors by stream name.
type CursorStore interface {
	// Get returns the stored cursor, or "" if none was saved.
	Get(ctx context.Context, stream string) (string, error)

	// Save replaces the cursor of a stream.
	Save(ctx context.Context, stream, cursor string) error
}

// ScheduleStore persists recurring full crawl configuration.
type ScheduleStore interface {
	// Get retrieves a schedule by ID. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.ScheduledCrawl, error)

	// List returns all schedules.
	List(ctx context.Context) ([]*domain.ScheduledCrawl, error)

	// Save creates or updates a schedule.
	Save(ctx context.Context, schedule *domain.ScheduledCrawl) error

	// Delete removes a schedule.
	Delete(ctx context.Context, id string) error

	// Due returns enabled schedules whose next run has passed.
	Due(ctx context.Context) ([]*domain.ScheduledCrawl, error)

	// UpdateLastRun records a run and advances NextRun by the schedule interval.
	UpdateLastRun(ctx context.Context, id string, lastError string) error
}
