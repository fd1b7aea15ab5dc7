package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
	"github.com/custodia-labs/drive-index/internal/core/services"
)

// JobRunner executes a claimed crawl job and records its outcome.
type JobRunner interface {
	RunJob(ctx context.Context, job *domain.CrawlJob) (domain.JobOutcome, error)
}

// Worker claims crawl jobs from the job store and runs them.
// Each processor goroutine holds its own lease identity.
type Worker struct {
	jobs      driven.CrawlJobStore
	runner    JobRunner
	scheduler *services.Scheduler
	ingestor  *services.ChangeIngestor
	logger    *slog.Logger

	// Configuration
	id           string
	concurrency  int
	pollInterval time.Duration
	liveness     time.Duration

	// Internal state
	mu        sync.RWMutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	cancelRun context.CancelFunc
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	Jobs         driven.CrawlJobStore
	Runner       JobRunner
	Scheduler    *services.Scheduler      // Optional: started and stopped with the worker
	Ingestor     *services.ChangeIngestor // Optional: consumes the change stream alongside
	Logger       *slog.Logger
	ID           string        // Lease owner prefix (default: random)
	Concurrency  int           // Number of concurrent job processors
	PollInterval time.Duration // Wait between claims when no job is claimable (default: 1s)
	Liveness     time.Duration // Heartbeat age after which a lease is reclaimed
}

// NewWorker creates a new crawl worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	liveness := cfg.Liveness
	if liveness <= 0 {
		liveness = domain.DefaultLivenessWindow
	}

	id := cfg.ID
	if id == "" {
		id = "worker-" + domain.GenerateID()[:8]
	}

	return &Worker{
		jobs:         cfg.Jobs,
		runner:       cfg.Runner,
		scheduler:    cfg.Scheduler,
		ingestor:     cfg.Ingestor,
		logger:       logger,
		id:           id,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		liveness:     liveness,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.cancelRun = cancel
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"worker_id", w.id,
		"concurrency", w.concurrency,
		"poll_interval", w.pollInterval,
	)

	// Start the scheduler if provided
	if w.scheduler != nil {
		if err := w.scheduler.Start(runCtx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	if w.ingestor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.ingestor.Run(runCtx); err != nil {
				w.logger.Error("change ingestor stopped", "error", err)
			}
		}()
	}

	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w.processLoop(runCtx, fmt.Sprintf("%s/%d", w.id, n))
		}(i)
	}

	// Wait for all workers to finish
	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop stops claiming new jobs and waits for running ones to finish. When
// ctx expires first, running jobs are interrupted and requeued.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	close(w.stopCh)
	doneCh := w.doneCh
	cancel := w.cancelRun
	w.mu.Unlock()

	// Stop the scheduler
	if w.scheduler != nil {
		if err := w.scheduler.Stop(ctx); err != nil {
			w.logger.Warn("scheduler did not stop cleanly", "error", err)
		}
	}

	var err error
	select {
	case <-doneCh:
	case <-ctx.Done():
		w.logger.Warn("shutdown deadline reached, interrupting running jobs")
		err = ctx.Err()
	}
	cancel()
	<-doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
	return err
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	w.mu.RLock()
	doneCh := w.doneCh
	w.mu.RUnlock()
	if doneCh != nil {
		<-doneCh
	}
}

// processLoop claims and runs jobs until stopped.
func (w *Worker) processLoop(ctx context.Context, owner string) {
	logger := w.logger.With("owner", owner)
	logger.Debug("job processor started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("job processor context cancelled")
			return
		case <-w.stopCh:
			logger.Debug("job processor stop signal received")
			return
		default:
		}

		job, err := w.jobs.ClaimNext(ctx, owner, w.liveness)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				logger.Error("failed to claim job", "error", err)
			}
			w.idle(ctx)
			continue
		}
		if job == nil {
			w.idle(ctx)
			continue
		}

		w.processJob(ctx, job, logger)
	}
}

// idle waits one poll interval or until the worker stops.
func (w *Worker) idle(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-timer.C:
	}
}

// processJob runs one claimed job.
func (w *Worker) processJob(ctx context.Context, job *domain.CrawlJob, logger *slog.Logger) {
	logger = logger.With("job_id", job.ID, "scope_id", job.ScopeID, "kind", job.Kind)

	startTime := time.Now()
	outcome, err := w.runner.RunJob(ctx, job)
	duration := time.Since(startTime)

	switch {
	case errors.Is(err, domain.ErrLeaseLost):
		logger.Warn("job lease lost", "duration", duration)
	case err != nil:
		logger.Error("job run failed", "duration", duration, "error", err)
	default:
		logger.Debug("job processed", "duration", duration, "state", outcome.State)
	}
}

// Health returns health status of the worker.
type Health struct {
	Running     bool   `json:"running"`
	StoreHealth bool   `json:"store_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running:     running,
		StoreHealth: true,
	}

	// Check job store health
	if pinger, ok := w.jobs.(driven.Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			health.StoreHealth = false
			health.Error = err.Error()
		}
	}

	return health
}
