package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CrawlJobStore = (*CrawlJobStore)(nil)

// CrawlJobStore is an in-memory CrawlJobStore.
// A single mutex makes every claim and transition atomic.
type CrawlJobStore struct {
	mu          sync.Mutex
	jobs        map[string]*domain.CrawlJob
	transitions map[string][]domain.JobTransition
	halted      map[string]string

	// now is replaceable in tests
	now func() time.Time
}

// NewCrawlJobStore creates an empty store.
func NewCrawlJobStore() *CrawlJobStore {
	return &CrawlJobStore{
		jobs:        make(map[string]*domain.CrawlJob),
		transitions: make(map[string][]domain.JobTransition),
		halted:      make(map[string]string),
		now:         time.Now,
	}
}

func (s *CrawlJobStore) Enqueue(ctx context.Context, job *domain.CrawlJob) error {
	if job.State != domain.JobStateQueued {
		return fmt.Errorf("enqueue job in state %s: %w", job.State, domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *CrawlJobStore) Get(ctx context.Context, jobID string) (*domain.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (s *CrawlJobStore) Claim(ctx context.Context, scopeID, owner string, liveness time.Duration) (*domain.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.claimLocked(scopeID, owner, liveness)
}

func (s *CrawlJobStore) ClaimNext(ctx context.Context, owner string, liveness time.Duration) (*domain.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*domain.CrawlJob, 0)
	for _, job := range s.jobs {
		if job.State == domain.JobStateQueued || job.State == domain.JobStateProcessing {
			candidates = append(candidates, job)
		}
	}
	sortOldestFirst(candidates)

	tried := make(map[string]bool)
	for _, job := range candidates {
		if tried[job.ScopeID] {
			continue
		}
		tried[job.ScopeID] = true

		claimed, err := s.claimLocked(job.ScopeID, owner, liveness)
		if err != nil || claimed != nil {
			return claimed, err
		}
	}
	return nil, nil
}

// claimLocked implements Claim. Callers hold s.mu.
func (s *CrawlJobStore) claimLocked(scopeID, owner string, liveness time.Duration) (*domain.CrawlJob, error) {
	if _, halted := s.halted[scopeID]; halted {
		return nil, nil
	}
	now := s.now()

	var queued []*domain.CrawlJob
	for _, job := range s.jobs {
		if job.ScopeID != scopeID {
			continue
		}
		switch job.State {
		case domain.JobStateProcessing:
			if !job.IsStale(now, liveness) {
				return nil, nil
			}
			if !job.CanRetry() {
				if err := s.transitionLocked(job, domain.JobStateFailed, now, "lease expired with no attempts left", owner); err != nil {
					return nil, fmt.Errorf("fail expired job %s: %w", job.ID, err)
				}
				continue
			}
			if err := s.transitionLocked(job, domain.JobStateProcessing, now, "reclaimed stale lease from "+job.Owner, owner); err != nil {
				return nil, fmt.Errorf("reclaim job %s: %w", job.ID, err)
			}
			job.Owner = owner
			return job.Clone(), nil
		case domain.JobStateQueued:
			if job.IsClaimable(now) {
				queued = append(queued, job)
			}
		}
	}
	if len(queued) == 0 {
		return nil, nil
	}

	sortOldestFirst(queued)
	job := queued[0]
	if err := s.transitionLocked(job, domain.JobStateProcessing, now, "claimed", owner); err != nil {
		return nil, fmt.Errorf("claim job %s: %w", job.ID, err)
	}
	job.Owner = owner
	return job.Clone(), nil
}

func (s *CrawlJobStore) Heartbeat(ctx context.Context, jobID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.State != domain.JobStateProcessing || job.Owner != owner {
		return domain.ErrLeaseLost
	}
	now := s.now()
	job.HeartbeatAt = &now
	job.UpdatedAt = now
	return nil
}

func (s *CrawlJobStore) Complete(ctx context.Context, jobID, owner string, outcome domain.JobOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.State != domain.JobStateProcessing || job.Owner != owner {
		return domain.ErrLeaseLost
	}
	if outcome.State == domain.JobStateProcessing {
		return fmt.Errorf("%w: complete into processing", domain.ErrInvalidTransition)
	}

	now := s.now()
	if err := s.transitionLocked(job, outcome.State, now, outcome.Error, owner); err != nil {
		return err
	}
	job.Stats = outcome.Stats
	job.LastError = outcome.Error
	if outcome.State == domain.JobStateQueued {
		job.ScheduledFor = now
		if outcome.RetryAt.After(now) {
			job.ScheduledFor = outcome.RetryAt
		}
	}
	return nil
}

func (s *CrawlJobStore) Transition(ctx context.Context, jobID string, to domain.JobState, reason, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := s.transitionLocked(job, to, s.now(), reason, actor); err != nil {
		return err
	}
	if to == domain.JobStateFailed && reason != "" {
		job.LastError = reason
	}
	return nil
}

// transitionLocked validates, applies and records a state change. Callers hold s.mu.
func (s *CrawlJobStore) transitionLocked(job *domain.CrawlJob, to domain.JobState, now time.Time, reason, actor string) error {
	from := job.State
	if err := job.TransitionTo(to, now); err != nil {
		return err
	}
	t := domain.NewJobTransition(job.ID, from, to, reason, actor)
	t.At = now
	s.transitions[job.ID] = append(s.transitions[job.ID], t)
	return nil
}

func (s *CrawlJobStore) ListByState(ctx context.Context, state domain.JobState, limit int) ([]*domain.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.CrawlJob
	for _, job := range s.jobs {
		if job.State == state {
			out = append(out, job.Clone())
		}
	}
	sortOldestFirst(out)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *CrawlJobStore) LatestForScope(ctx context.Context, scopeID string) (*domain.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *domain.CrawlJob
	for _, job := range s.jobs {
		if job.ScopeID != scopeID {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) ||
			(job.CreatedAt.Equal(latest.CreatedAt) && job.ID > latest.ID) {
			latest = job
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest.Clone(), nil
}

func (s *CrawlJobStore) Transitions(ctx context.Context, jobID string) ([]domain.JobTransition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return nil, domain.ErrNotFound
	}
	return slices.Clone(s.transitions[jobID]), nil
}

func (s *CrawlJobStore) HaltScope(ctx context.Context, scopeID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.halted[scopeID] = reason
	return nil
}

func (s *CrawlJobStore) ResumeScope(ctx context.Context, scopeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.halted, scopeID)
	return nil
}

func (s *CrawlJobStore) HaltStatus(ctx context.Context, scopeID string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reason, halted := s.halted[scopeID]
	return halted, reason, nil
}

func sortOldestFirst(jobs []*domain.CrawlJob) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}
