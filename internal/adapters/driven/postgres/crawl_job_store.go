package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CrawlJobStore = (*CrawlJobStore)(nil)

// CrawlJobStore implements driven.CrawlJobStore using PostgreSQL.
//
// Claims take a transaction-scoped advisory lock on the scope and select the
// next queued row with FOR UPDATE SKIP LOCKED. The partial unique index on
// (scope_id) WHERE state = 'processing' backs the one-processing-job-per-scope rule.
type CrawlJobStore struct {
	db *DB
}

// NewCrawlJobStore creates a new CrawlJobStore
func NewCrawlJobStore(db *DB) *CrawlJobStore {
	return &CrawlJobStore{db: db}
}

const jobColumns = `id, scope_id, kind, state, changes, attempt_count, max_attempts,
	last_error, owner, heartbeat_at, stats, created_at, updated_at,
	started_at, completed_at, scheduled_for`

// Enqueue persists a new queued job
func (s *CrawlJobStore) Enqueue(ctx context.Context, job *domain.CrawlJob) error {
	if job.State != domain.JobStateQueued {
		return fmt.Errorf("enqueue job in state %s: %w", job.State, domain.ErrInvalidInput)
	}
	changes, stats, err := marshalJobPayload(job)
	if err != nil {
		return err
	}

	query := `INSERT INTO crawl_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.ScopeID,
		string(job.Kind),
		string(job.State),
		changes,
		job.AttemptCount,
		job.MaxAttempts,
		job.LastError,
		job.Owner,
		nullTime(job.HeartbeatAt),
		stats,
		job.CreatedAt,
		job.UpdatedAt,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		job.ScheduledFor,
	)
	if err != nil {
		return fmt.Errorf("insert crawl job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID
func (s *CrawlJobStore) Get(ctx context.Context, jobID string) (*domain.CrawlJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM crawl_jobs WHERE id = $1`, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get crawl job: %w", err)
	}
	return job, nil
}

// Claim moves the oldest claimable job of a scope to processing
func (s *CrawlJobStore) Claim(ctx context.Context, scopeID, owner string, liveness time.Duration) (*domain.CrawlJob, error) {
	var claimed *domain.CrawlJob
	err := s.db.inTx(ctx, func(tx *sql.Tx) error {
		job, err := s.claimTx(ctx, tx, scopeID, owner, liveness)
		claimed = job
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ClaimNext claims across scopes, trying the scopes with the oldest work first
func (s *CrawlJobStore) ClaimNext(ctx context.Context, owner string, liveness time.Duration) (*domain.CrawlJob, error) {
	now := time.Now()
	query := `
		SELECT j.scope_id
		FROM crawl_jobs j
		LEFT JOIN crawl_scope_halts h ON h.scope_id = j.scope_id
		WHERE h.scope_id IS NULL
		  AND ((j.state = $1 AND j.scheduled_for <= $2)
		    OR (j.state = $3 AND (j.heartbeat_at IS NULL OR j.heartbeat_at < $4)))
		GROUP BY j.scope_id
		ORDER BY MIN(j.created_at)
		LIMIT 32
	`
	rows, err := s.db.QueryContext(ctx, query,
		string(domain.JobStateQueued), now,
		string(domain.JobStateProcessing), now.Add(-liveness),
	)
	if err != nil {
		return nil, fmt.Errorf("list claimable scopes: %w", err)
	}

	var scopes []string
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			rows.Close()
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, scope := range scopes {
		job, err := s.Claim(ctx, scope, owner, liveness)
		if err != nil || job != nil {
			return job, err
		}
	}
	return nil, nil
}

// claimTx implements Claim inside tx
func (s *CrawlJobStore) claimTx(ctx context.Context, tx *sql.Tx, scopeID, owner string, liveness time.Duration) (*domain.CrawlJob, error) {
	if err := xactLock(ctx, tx, "scope", scopeID); err != nil {
		return nil, err
	}

	var halted bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM crawl_scope_halts WHERE scope_id = $1)`, scopeID).Scan(&halted)
	if err != nil {
		return nil, fmt.Errorf("read halt: %w", err)
	}
	if halted {
		return nil, nil
	}

	now := time.Now()
	current, err := scanJob(tx.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM crawl_jobs WHERE scope_id = $1 AND state = $2 FOR UPDATE`,
		scopeID, string(domain.JobStateProcessing)))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("read processing job: %w", err)
	case !current.IsStale(now, liveness):
		return nil, nil
	case !current.CanRetry():
		if err := s.applyTx(ctx, tx, current, domain.JobStateFailed, now, "lease expired with no attempts left", owner); err != nil {
			return nil, err
		}
	default:
		previous := current.Owner
		current.Owner = owner
		if err := s.applyTx(ctx, tx, current, domain.JobStateProcessing, now, "reclaimed stale lease from "+previous, owner); err != nil {
			return nil, err
		}
		return current, nil
	}

	next, err := scanJob(tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM crawl_jobs
		WHERE scope_id = $1 AND state = $2 AND scheduled_for <= $3
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		scopeID, string(domain.JobStateQueued), now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select queued job: %w", err)
	}

	next.Owner = owner
	if err := s.applyTx(ctx, tx, next, domain.JobStateProcessing, now, "claimed", owner); err != nil {
		return nil, err
	}
	return next, nil
}

// Heartbeat refreshes a processing lease
func (s *CrawlJobStore) Heartbeat(ctx context.Context, jobID, owner string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE crawl_jobs SET heartbeat_at = $1, updated_at = $1
		WHERE id = $2 AND state = $3 AND owner = $4`,
		time.Now(), jobID, string(domain.JobStateProcessing), owner)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, jobID); err != nil {
			return err
		}
		return domain.ErrLeaseLost
	}
	return nil
}

// Complete applies a worker outcome to a job the worker owns
func (s *CrawlJobStore) Complete(ctx context.Context, jobID, owner string, outcome domain.JobOutcome) error {
	if outcome.State == domain.JobStateProcessing {
		return fmt.Errorf("%w: complete into processing", domain.ErrInvalidTransition)
	}

	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		job, err := s.lockJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.State != domain.JobStateProcessing || job.Owner != owner {
			return domain.ErrLeaseLost
		}

		now := time.Now()
		job.Stats = outcome.Stats
		job.LastError = outcome.Error
		if outcome.State == domain.JobStateQueued {
			job.ScheduledFor = now
			if outcome.RetryAt.After(now) {
				job.ScheduledFor = outcome.RetryAt
			}
		}
		return s.applyTx(ctx, tx, job, outcome.State, now, outcome.Error, owner)
	})
}

// Transition applies an operator state change
func (s *CrawlJobStore) Transition(ctx context.Context, jobID string, to domain.JobState, reason, actor string) error {
	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		job, err := s.lockJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if to == domain.JobStateFailed && reason != "" {
			job.LastError = reason
		}
		return s.applyTx(ctx, tx, job, to, time.Now(), reason, actor)
	})
}

func (s *CrawlJobStore) lockJob(ctx context.Context, tx *sql.Tx, jobID string) (*domain.CrawlJob, error) {
	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM crawl_jobs WHERE id = $1 FOR UPDATE`, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock crawl job: %w", err)
	}
	return job, nil
}

// applyTx validates a transition, writes the job row and appends the audit record
func (s *CrawlJobStore) applyTx(ctx context.Context, tx *sql.Tx, job *domain.CrawlJob, to domain.JobState, now time.Time, reason, actor string) error {
	from := job.State
	owner := job.Owner
	if err := job.TransitionTo(to, now); err != nil {
		return err
	}
	if to == domain.JobStateProcessing {
		job.Owner = owner
	}

	stats, err := json.Marshal(job.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE crawl_jobs SET
			state = $2, attempt_count = $3, last_error = $4, owner = $5,
			heartbeat_at = $6, stats = $7, updated_at = $8, started_at = $9,
			completed_at = $10, scheduled_for = $11
		WHERE id = $1`,
		job.ID,
		string(job.State),
		job.AttemptCount,
		job.LastError,
		job.Owner,
		nullTime(job.HeartbeatAt),
		stats,
		job.UpdatedAt,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		job.ScheduledFor,
	)
	if err != nil {
		return fmt.Errorf("update crawl job: %w", err)
	}

	t := domain.NewJobTransition(job.ID, from, to, reason, actor)
	t.At = now
	_, err = tx.ExecContext(ctx, `
		INSERT INTO crawl_job_transitions (id, job_id, from_state, to_state, reason, actor, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.JobID, string(t.From), string(t.To), t.Reason, t.Actor, t.At)
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}

// ListByState returns jobs in a state, newest first
func (s *CrawlJobStore) ListByState(ctx context.Context, state domain.JobState, limit int) ([]*domain.CrawlJob, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM crawl_jobs WHERE state = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("list crawl jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.CrawlJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// LatestForScope returns the most recent job of a scope
func (s *CrawlJobStore) LatestForScope(ctx context.Context, scopeID string) (*domain.CrawlJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM crawl_jobs WHERE scope_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		scopeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest crawl job: %w", err)
	}
	return job, nil
}

// Transitions returns the audit trail of a job
func (s *CrawlJobStore) Transitions(ctx context.Context, jobID string) ([]domain.JobTransition, error) {
	if _, err := s.Get(ctx, jobID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, from_state, to_state, reason, actor, at
		FROM crawl_job_transitions
		WHERE job_id = $1
		ORDER BY at ASC, id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []domain.JobTransition
	for rows.Next() {
		var t domain.JobTransition
		if err := rows.Scan(&t.ID, &t.JobID, &t.From, &t.To, &t.Reason, &t.Actor, &t.At); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// HaltScope stops claims for a scope
func (s *CrawlJobStore) HaltScope(ctx context.Context, scopeID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawl_scope_halts (scope_id, reason, halted_at) VALUES ($1, $2, $3)
		ON CONFLICT (scope_id) DO UPDATE SET reason = EXCLUDED.reason, halted_at = EXCLUDED.halted_at`,
		scopeID, reason, time.Now())
	if err != nil {
		return fmt.Errorf("halt scope: %w", err)
	}
	return nil
}

// ResumeScope clears a halt
func (s *CrawlJobStore) ResumeScope(ctx context.Context, scopeID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM crawl_scope_halts WHERE scope_id = $1`, scopeID); err != nil {
		return fmt.Errorf("resume scope: %w", err)
	}
	return nil
}

// HaltStatus reports whether a scope is halted
func (s *CrawlJobStore) HaltStatus(ctx context.Context, scopeID string) (bool, string, error) {
	var reason string
	err := s.db.QueryRowContext(ctx, `SELECT reason FROM crawl_scope_halts WHERE scope_id = $1`, scopeID).Scan(&reason)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("read halt: %w", err)
	}
	return true, reason, nil
}

func marshalJobPayload(job *domain.CrawlJob) (changes, stats []byte, err error) {
	list := job.Changes
	if list == nil {
		list = []domain.Change{}
	}
	if changes, err = json.Marshal(list); err != nil {
		return nil, nil, fmt.Errorf("marshal changes: %w", err)
	}
	if stats, err = json.Marshal(job.Stats); err != nil {
		return nil, nil, fmt.Errorf("marshal stats: %w", err)
	}
	return changes, stats, nil
}

func scanJob(row rowScanner) (*domain.CrawlJob, error) {
	var (
		job                               domain.CrawlJob
		changes, stats                    []byte
		heartbeat, startedAt, completedAt sql.NullTime
	)
	err := row.Scan(
		&job.ID,
		&job.ScopeID,
		&job.Kind,
		&job.State,
		&changes,
		&job.AttemptCount,
		&job.MaxAttempts,
		&job.LastError,
		&job.Owner,
		&heartbeat,
		&stats,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&completedAt,
		&job.ScheduledFor,
	)
	if err != nil {
		return nil, err
	}

	job.HeartbeatAt = timePtr(heartbeat)
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &job.Changes); err != nil {
			return nil, fmt.Errorf("unmarshal changes: %w", err)
		}
	}
	if len(job.Changes) == 0 {
		job.Changes = nil
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &job.Stats); err != nil {
			return nil, fmt.Errorf("unmarshal stats: %w", err)
		}
	}
	return &job, nil
}
