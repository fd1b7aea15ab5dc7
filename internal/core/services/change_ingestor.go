package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Ingestor defaults
const (
	DefaultChangeStream       = "drive-changes"
	DefaultIngestPollInterval = 15 * time.Second
	DefaultIngestBatchSize    = 200

	// maxPagesPerPoll bounds how much of a backlog one poll consumes.
	maxPagesPerPoll = 50
)

// ChangeIngestor consumes the source change stream and enqueues deduplicated
// incremental jobs. The stream cursor is saved only after the changes it
// covers are durably enqueued, so a restart never skips a change.
type ChangeIngestor struct {
	files   driven.FileStore
	cursors driven.CursorStore
	deduper driven.ChangeDeduper
	jobs    driven.CrawlJobStore
	lock    driven.DistributedLock
	logger  *slog.Logger
	retry   RetryConfig

	stream    string
	scopeID   string
	scopes    []string
	interval  time.Duration
	batchSize int
	lockTTL   time.Duration
}

// ChangeIngestorConfig holds configuration for the change ingestor.
type ChangeIngestorConfig struct {
	Files   driven.FileStore
	Cursors driven.CursorStore
	Deduper driven.ChangeDeduper
	Jobs    driven.CrawlJobStore
	Lock    driven.DistributedLock // Optional: keeps one consumer across instances
	Logger  *slog.Logger
	Retry   *RetryConfig

	Stream       string        // cursor name (default: drive-changes)
	PollInterval time.Duration // default: 15s
	BatchSize    int           // changes per incremental job (default: 200)

	// Scopes get a reconciling full crawl when the stream cursor is rejected.
	Scopes []string
}

// NewChangeIngestor creates a change ingestor.
func NewChangeIngestor(cfg ChangeIngestorConfig) *ChangeIngestor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retryCfg := DefaultRetryConfig()
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}
	stream := cfg.Stream
	if stream == "" {
		stream = DefaultChangeStream
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultIngestPollInterval
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultIngestBatchSize
	}

	return &ChangeIngestor{
		files:     cfg.Files,
		cursors:   cfg.Cursors,
		deduper:   cfg.Deduper,
		jobs:      cfg.Jobs,
		lock:      cfg.Lock,
		logger:    logger,
		retry:     retryCfg,
		stream:    stream,
		scopeID:   domain.ChangeStreamScope,
		scopes:    cfg.Scopes,
		interval:  interval,
		batchSize: batch,
		lockTTL:   4 * interval,
	}
}

// Run polls the change stream until ctx is cancelled.
func (i *ChangeIngestor) Run(ctx context.Context) error {
	i.logger.Info("change ingestor starting", "stream", i.stream, "poll_interval", i.interval)

	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		if _, err := i.poll(ctx); err != nil && ctx.Err() == nil {
			i.logger.Error("change poll failed", "stream", i.stream, "error", err)
		}
		select {
		case <-ctx.Done():
			i.logger.Info("change ingestor stopped", "stream", i.stream)
			return nil
		case <-ticker.C:
		}
	}
}

// poll runs PollOnce under the ingestor lock when one is configured.
func (i *ChangeIngestor) poll(ctx context.Context) (int, error) {
	lockName := "ingestor:" + i.stream
	if i.lock != nil {
		acquired, err := i.lock.Acquire(ctx, lockName, i.lockTTL)
		if err != nil {
			return 0, fmt.Errorf("acquire ingestor lock: %w", err)
		}
		if !acquired {
			i.logger.Debug("ingestor lock held by another instance, skipping cycle")
			return 0, nil
		}
		defer func() {
			if err := i.lock.Release(context.WithoutCancel(ctx), lockName); err != nil {
				i.logger.Warn("failed to release ingestor lock", "error", err)
			}
		}()
	}
	return i.PollOnce(ctx)
}

// PollOnce drains the currently available changes and returns how many new
// changes were enqueued. A stream without a saved cursor starts at the head;
// the baseline comes from full crawls.
func (i *ChangeIngestor) PollOnce(ctx context.Context) (int, error) {
	cursor, err := i.cursors.Get(ctx, i.stream)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	if cursor == "" {
		return 0, i.reset(ctx, false)
	}

	enqueued := 0
	for page := 0; page < maxPagesPerPoll; page++ {
		changes, err := retry(ctx, i.retry, func() (*domain.ChangePage, error) {
			return i.files.FetchChanges(ctx, cursor, i.batchSize)
		})
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) {
			i.logger.Warn("change cursor rejected by source, resetting", "stream", i.stream, "error", err)
			return enqueued, i.reset(ctx, true)
		}
		if err != nil {
			return enqueued, fmt.Errorf("fetch changes: %w", err)
		}

		n, err := i.enqueue(ctx, changes.Changes)
		if err != nil {
			return enqueued, err
		}
		enqueued += n

		if changes.NextCursor != "" && changes.NextCursor != cursor {
			if err := i.cursors.Save(ctx, i.stream, changes.NextCursor); err != nil {
				return enqueued, fmt.Errorf("save cursor: %w", err)
			}
			cursor = changes.NextCursor
		}
		if changes.Exhausted {
			break
		}
	}

	if enqueued > 0 {
		i.logger.Info("changes ingested", "stream", i.stream, "changes", enqueued)
	}
	return enqueued, nil
}

// enqueue dedups a page of changes and enqueues the new ones as one job.
// Keys are forgotten again if the job cannot be enqueued.
func (i *ChangeIngestor) enqueue(ctx context.Context, changes []domain.Change) (int, error) {
	batch := make([]domain.Change, 0, len(changes))
	keys := make([]string, 0, len(changes))
	for _, c := range changes {
		if c.FileID == "" || !c.Type.Valid() {
			i.logger.Debug("ignoring malformed change", "file_id", c.FileID, "type", c.Type)
			continue
		}
		key := c.DedupKey()
		firstTime, err := i.deduper.MarkSeen(ctx, key)
		if err != nil {
			// Deliver anyway; the orchestrator discards repeats.
			i.logger.Warn("dedup failed, passing change through", "key", key, "error", err)
			firstTime = true
		}
		if !firstTime {
			i.logger.Debug("duplicate change dropped", "key", key)
			continue
		}
		if c.ObservedAt.IsZero() {
			c.ObservedAt = time.Now()
		}
		batch = append(batch, c)
		keys = append(keys, key)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	job := domain.NewIncrementalJob(i.scopeID, batch)
	if err := i.jobs.Enqueue(ctx, job); err != nil {
		if ferr := i.deduper.Forget(context.WithoutCancel(ctx), keys...); ferr != nil {
			i.logger.Warn("failed to forget dedup keys", "error", ferr)
		}
		return 0, fmt.Errorf("enqueue incremental job: %w", err)
	}

	i.logger.Debug("incremental job enqueued", "job_id", job.ID, "changes", len(batch))
	return len(batch), nil
}

// reset moves the cursor to the head of the stream. When reconcile is set
// the configured scopes get a full crawl to cover the changes skipped.
func (i *ChangeIngestor) reset(ctx context.Context, reconcile bool) error {
	head, err := retry(ctx, i.retry, func() (string, error) {
		return i.files.StartCursor(ctx)
	})
	if err != nil {
		return fmt.Errorf("start cursor: %w", err)
	}

	if reconcile {
		for _, scope := range i.scopes {
			job := domain.NewFullCrawlJob(scope)
			if err := i.jobs.Enqueue(ctx, job); err != nil {
				return fmt.Errorf("enqueue reconciling crawl of %s: %w", scope, err)
			}
			i.logger.Info("reconciling full crawl enqueued", "scope_id", scope, "job_id", job.ID)
		}
	}

	if err := i.cursors.Save(ctx, i.stream, head); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	i.logger.Info("change cursor positioned at stream head", "stream", i.stream)
	return nil
}
