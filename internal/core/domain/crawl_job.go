package domain

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	return uuid.NewString()
}

// JobKind identifies the type of crawl work
type JobKind string

const (
	// JobKindFull enumerates the whole scope subtree and tombstones absent files
	JobKindFull JobKind = "full"
	// JobKindIncremental applies a bounded batch of change events
	JobKindIncremental JobKind = "incremental"
)

// JobState represents the current state of a crawl job.
// queued, processing and done mirror the dashboard columns; review and
// failed are surfaced for manual triage.
type JobState string

const (
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateReview     JobState = "review"
	JobStateDone       JobState = "done"
	JobStateFailed     JobState = "failed"
)

// AllJobStates lists job states in dashboard order.
var AllJobStates = []JobState{JobStateQueued, JobStateProcessing, JobStateReview, JobStateDone, JobStateFailed}

// Terminal reports whether no worker will pick the job up again without operator action.
func (s JobState) Terminal() bool {
	return s == JobStateDone || s == JobStateFailed || s == JobStateReview
}

// Valid reports whether s is a known state.
func (s JobState) Valid() bool {
	return slices.Contains(AllJobStates, s)
}

// allowedTransitions is the CrawlJob state machine.
// processing -> processing is a stale-lease reclaim by another worker.
var allowedTransitions = map[JobState][]JobState{
	JobStateQueued:     {JobStateProcessing, JobStateFailed},
	JobStateProcessing: {JobStateProcessing, JobStateQueued, JobStateDone, JobStateFailed, JobStateReview},
	JobStateReview:     {JobStateDone},
	JobStateFailed:     {JobStateQueued},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to JobState) bool {
	return slices.Contains(allowedTransitions[from], to)
}

// Default job limits
const (
	// DefaultJobMaxAttempts is the job-level retry ceiling
	DefaultJobMaxAttempts = 5
	// DefaultLivenessWindow is how long a processing job may go without a
	// heartbeat before another worker can reclaim it
	DefaultLivenessWindow = 2 * time.Minute
	// MaxJobBackoff caps the delay before a requeued job becomes claimable
	MaxJobBackoff = 5 * time.Minute
)

// CrawlStats holds counters for one crawl job run
type CrawlStats struct {
	Observed    int `json:"observed"`
	Indexed     int `json:"indexed"`
	NeedsReview int `json:"needs_review"`
	Skipped     int `json:"skipped"`
	Deleted     int `json:"deleted"`
	Errors      int `json:"errors"`
}

// CrawlJob is a unit of scheduled work over a folder subtree
type CrawlJob struct {
	// ID is the unique identifier for this job
	ID string `json:"id"`

	// ScopeID is the root folder of the subtree this job covers
	ScopeID string `json:"scope_id"`

	// Kind is full or incremental
	Kind JobKind `json:"kind"`

	// State is the current state machine position
	State JobState `json:"state"`

	// Changes is the batch an incremental job applies
	Changes []Change `json:"changes,omitempty"`

	// AttemptCount is how many times this job has been claimed
	AttemptCount int `json:"attempt_count"`

	// MaxAttempts is the retry ceiling before the job fails
	MaxAttempts int `json:"max_attempts"`

	// LastError contains the last error message
	LastError string `json:"last_error,omitempty"`

	// Owner identifies the worker holding the processing lease
	Owner string `json:"owner,omitempty"`

	// HeartbeatAt is the last liveness report from Owner
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`

	Stats CrawlStats `json:"stats"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScheduledFor is when the job becomes claimable (retry backoff)
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewCrawlJob creates a queued job with default limits
func NewCrawlJob(scopeID string, kind JobKind) *CrawlJob {
	now := time.Now()
	return &CrawlJob{
		ID:           GenerateID(),
		ScopeID:      scopeID,
		Kind:         kind,
		State:        JobStateQueued,
		MaxAttempts:  DefaultJobMaxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewFullCrawlJob creates a job that enumerates scopeID
func NewFullCrawlJob(scopeID string) *CrawlJob {
	return NewCrawlJob(scopeID, JobKindFull)
}

// NewIncrementalJob creates a job applying changes within scopeID
func NewIncrementalJob(scopeID string, changes []Change) *CrawlJob {
	job := NewCrawlJob(scopeID, JobKindIncremental)
	job.Changes = slices.Clone(changes)
	return job
}

// CanRetry returns true if the job has attempts left
func (j *CrawlJob) CanRetry() bool {
	return j.AttemptCount < j.MaxAttempts
}

// IsClaimable returns true if a worker may claim the job at now
func (j *CrawlJob) IsClaimable(now time.Time) bool {
	return j.State == JobStateQueued && !now.Before(j.ScheduledFor)
}

// IsStale returns true if the processing lease expired at now
func (j *CrawlJob) IsStale(now time.Time, window time.Duration) bool {
	if j.State != JobStateProcessing {
		return false
	}
	if j.HeartbeatAt == nil {
		return true
	}
	return now.Sub(*j.HeartbeatAt) > window
}

// Clone returns a deep copy of the job
func (j *CrawlJob) Clone() *CrawlJob {
	if j == nil {
		return nil
	}
	c := *j
	c.Changes = slices.Clone(j.Changes)
	return &c
}

// TransitionTo moves the job to state to at now, maintaining lease and
// timestamp fields. Callers set Owner when claiming.
func (j *CrawlJob) TransitionTo(to JobState, now time.Time) error {
	if !CanTransition(j.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, to)
	}
	from := j.State
	j.State = to
	j.UpdatedAt = now

	switch to {
	case JobStateProcessing:
		j.AttemptCount++
		j.HeartbeatAt = &now
		j.StartedAt = &now
		j.CompletedAt = nil
	case JobStateQueued:
		j.Owner = ""
		j.HeartbeatAt = nil
		if from == JobStateFailed {
			j.AttemptCount = 0
			j.ScheduledFor = now
			j.CompletedAt = nil
		}
	default:
		j.Owner = ""
		j.HeartbeatAt = nil
		j.CompletedAt = &now
	}
	return nil
}

// JobBackoff returns the delay before attempt n+1 becomes claimable.
// Exponential (1s, 2s, 4s, ...) with up to 20% jitter, capped at MaxJobBackoff.
func JobBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	backoff := time.Duration(1<<attempt) * time.Second
	if backoff > MaxJobBackoff {
		backoff = MaxJobBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/5 + 1))
	return backoff + jitter
}

// JobOutcome is what a worker reports when it finishes processing a job
type JobOutcome struct {
	// State is the target state: done, review, failed, or queued for retry
	State JobState `json:"state"`
	// Error is the failure reason, if any
	Error string `json:"error,omitempty"`
	// Stats are the counters of the run
	Stats CrawlStats `json:"stats"`
	// RetryAt is when a requeued job becomes claimable
	RetryAt time.Time `json:"retry_at,omitempty"`
}

// JobTransition is one append-only audit record of a CrawlJob state change
type JobTransition struct {
	ID     string    `json:"id"`
	JobID  string    `json:"job_id"`
	From   JobState  `json:"from"`
	To     JobState  `json:"to"`
	Reason string    `json:"reason,omitempty"`
	Actor  string    `json:"actor,omitempty"`
	At     time.Time `json:"at"`
}

// NewJobTransition creates an audit record stamped now
func NewJobTransition(jobID string, from, to JobState, reason, actor string) JobTransition {
	return JobTransition{
		ID:     GenerateID(),
		JobID:  jobID,
		From:   from,
		To:     to,
		Reason: reason,
		Actor:  actor,
		At:     time.Now(),
	}
}

// ScheduledCrawl is a recurring full crawl configuration for a root scope
type ScheduledCrawl struct {
	ID        string        `json:"id"`
	ScopeID   string        `json:"scope_id"`
	Interval  time.Duration `json:"interval"`
	Enabled   bool          `json:"enabled"`
	LastRun   *time.Time    `json:"last_run,omitempty"`
	NextRun   time.Time     `json:"next_run"`
	LastError string        `json:"last_error,omitempty"`
}

// NewScheduledCrawl creates an enabled schedule whose first run is due immediately
func NewScheduledCrawl(scopeID string, interval time.Duration) *ScheduledCrawl {
	return &ScheduledCrawl{
		ID:       "full-crawl:" + scopeID,
		ScopeID:  scopeID,
		Interval: interval,
		Enabled:  true,
		NextRun:  time.Now(),
	}
}

// IsDue returns true if the schedule should be triggered
func (s *ScheduledCrawl) IsDue() bool {
	return s.Enabled && !time.Now().Before(s.NextRun)
}

// UpdateNextRun records a run and calculates the next one
func (s *ScheduledCrawl) UpdateNextRun() {
	now := time.Now()
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
}
