package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
	"github.com/custodia-labs/drive-index/internal/core/ports/driving"
)

// Ensure Scheduler implements driving.Scheduler
var _ driving.Scheduler = (*Scheduler)(nil)

// Scheduler defaults
const (
	DefaultCrawlInterval = 6 * time.Hour
	schedulerLockName    = "scheduler"
)

// Scheduler enqueues periodic full crawls of root scopes.
//
// For multi-instance deployments, configure a DistributedLock to prevent
// duplicate enqueuing across instances.
type Scheduler struct {
	store  driven.ScheduleStore
	jobs   driven.CrawlJobStore
	lock   driven.DistributedLock
	logger *slog.Logger

	// Internal state
	mu        sync.RWMutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	interval  time.Duration
	crawlEach time.Duration

	// Lock configuration
	lockTTL time.Duration
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Store         driven.ScheduleStore
	Jobs          driven.CrawlJobStore
	Lock          driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger        *slog.Logger
	PollInterval  time.Duration // How often to check for due schedules (default: 30s)
	CrawlInterval time.Duration // Interval of schedules created by ScheduleScope (default: 6h)
	LockTTL       time.Duration // TTL for the distributed lock (default: 60s)
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.PollInterval
	if interval == 0 {
		interval = 30 * time.Second
	}

	crawlEach := cfg.CrawlInterval
	if crawlEach == 0 {
		crawlEach = DefaultCrawlInterval
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 2 * interval
	}

	return &Scheduler{
		store:     cfg.Store,
		jobs:      cfg.Jobs,
		lock:      cfg.Lock,
		logger:    logger,
		interval:  interval,
		crawlEach: crawlEach,
		lockTTL:   lockTTL,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", "poll_interval", s.interval)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	select {
	case <-doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
	return nil
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.checkAndEnqueue(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkAndEnqueue(ctx)
		}
	}
}

// checkAndEnqueue enqueues a full crawl for every due schedule.
// With a lock configured, a cycle is skipped unless this instance holds it.
func (s *Scheduler) checkAndEnqueue(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, schedulerLockName, s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire scheduler lock", "error", err)
			return
		}
		if !acquired {
			s.logger.Debug("scheduler lock held by another instance, skipping cycle")
			return
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), schedulerLockName); err != nil {
				s.logger.Warn("failed to release scheduler lock", "error", err)
			}
		}()
	}

	due, err := s.store.Due(ctx)
	if err != nil {
		s.logger.Error("failed to get due schedules", "error", err)
		return
	}

	for _, scheduled := range due {
		if !scheduled.IsDue() {
			continue
		}

		job, err := s.enqueue(ctx, scheduled.ScopeID)
		if err != nil {
			s.logger.Error("failed to enqueue scheduled crawl",
				"schedule_id", scheduled.ID,
				"scope_id", scheduled.ScopeID,
				"error", err,
			)
			_ = s.store.UpdateLastRun(ctx, scheduled.ID, err.Error())
			continue
		}

		if job != nil {
			s.logger.Info("enqueued scheduled crawl",
				"schedule_id", scheduled.ID,
				"scope_id", scheduled.ScopeID,
				"job_id", job.ID,
			)
		}

		if err := s.store.UpdateLastRun(ctx, scheduled.ID, ""); err != nil {
			s.logger.Warn("failed to update schedule last run",
				"schedule_id", scheduled.ID,
				"error", err,
			)
		}
	}
}

// enqueue adds a full crawl unless the scope is halted or already has
// one queued or processing. Returns nil, nil when skipped.
func (s *Scheduler) enqueue(ctx context.Context, scopeID string) (*domain.CrawlJob, error) {
	halted, reason, err := s.jobs.HaltStatus(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	if halted {
		return nil, fmt.Errorf("%w: %s", domain.ErrScopeHalted, reason)
	}

	latest, err := s.jobs.LatestForScope(ctx, scopeID)
	switch {
	case err == nil:
		if latest.Kind == domain.JobKindFull && !latest.State.Terminal() {
			s.logger.Debug("full crawl already pending", "scope_id", scopeID, "job_id", latest.ID)
			return nil, nil
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	job := domain.NewFullCrawlJob(scopeID)
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ScheduleScope registers a recurring full crawl for a scope. An existing
// schedule keeps its next run.
func (s *Scheduler) ScheduleScope(ctx context.Context, scopeID string) error {
	if scopeID == "" {
		return fmt.Errorf("%w: scope id required", domain.ErrInvalidInput)
	}

	scheduled := domain.NewScheduledCrawl(scopeID, s.crawlEach)
	existing, err := s.store.Get(ctx, scheduled.ID)
	switch {
	case err == nil:
		existing.Interval = s.crawlEach
		existing.Enabled = true
		return s.store.Save(ctx, existing)
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}
	return s.store.Save(ctx, scheduled)
}

// UnscheduleScope removes a scope from scheduling.
func (s *Scheduler) UnscheduleScope(ctx context.Context, scopeID string) error {
	return s.store.Delete(ctx, domain.NewScheduledCrawl(scopeID, s.crawlEach).ID)
}

// ListSchedules lists all schedules.
func (s *Scheduler) ListSchedules(ctx context.Context) ([]*domain.ScheduledCrawl, error) {
	return s.store.List(ctx)
}

// TriggerNow immediately enqueues the crawl of a schedule, ignoring its next run.
func (s *Scheduler) TriggerNow(ctx context.Context, id string) (*domain.CrawlJob, error) {
	scheduled, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	job, err := s.enqueue(ctx, scheduled.ScopeID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: full crawl already pending", domain.ErrAlreadyExists)
	}

	s.logger.Info("manually triggered scheduled crawl",
		"schedule_id", scheduled.ID,
		"job_id", job.ID,
	)
	return job, nil
}
