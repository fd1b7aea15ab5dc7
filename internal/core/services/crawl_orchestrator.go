package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
	"github.com/custodia-labs/drive-index/internal/taxonomy"
)

// ObserveResult is what a single file observation did.
type ObserveResult string

const (
	ObserveIndexed     ObserveResult = "indexed"
	ObserveNeedsReview ObserveResult = "needs_review"
	ObserveStale       ObserveResult = "stale"
	ObserveDeleted     ObserveResult = "deleted"
	ObserveSkipped     ObserveResult = "skipped"
)

// Orchestrator defaults
const (
	DefaultFileConcurrency = 8
	DefaultScopeCacheSize  = 10_000

	// maxScopeDepth bounds the ancestor walk when resolving a file's scope.
	maxScopeDepth = 64
)

// CrawlOrchestrator turns file observations into indexed assets and drives
// claimed crawl jobs to a terminal or requeued state.
//
// Per file, permissions are mirrored before the asset is written, and the
// asset is written before it is indexed, so the index never serves a
// revision whose snapshot is missing or older.
type CrawlOrchestrator struct {
	files       driven.FileStore
	assets      driven.AssetStore
	mirror      *PermissionMirror
	index       driven.SearchIndex
	jobs        driven.CrawlJobStore
	alerter     driven.Alerter
	parser      *taxonomy.Parser
	logger      *slog.Logger
	retry       RetryConfig
	concurrency int
	heartbeat   time.Duration

	scopes     map[string]bool
	scopeCache *lru.Cache[string, string]

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
}

// CrawlOrchestratorConfig holds configuration for the orchestrator.
type CrawlOrchestratorConfig struct {
	Files       driven.FileStore
	Assets      driven.AssetStore
	Permissions *PermissionMirror
	Index       driven.SearchIndex
	Jobs        driven.CrawlJobStore
	Alerter     driven.Alerter   // Optional: alerts are logged either way
	Parser      *taxonomy.Parser // default: taxonomy.NewDefaultParser()
	Logger      *slog.Logger
	Retry       *RetryConfig // default: DefaultRetryConfig()

	// FileConcurrency bounds per-file work inside one job (default: 8)
	FileConcurrency int

	// HeartbeatInterval is how often a running job refreshes its lease
	// (default: a quarter of domain.DefaultLivenessWindow)
	HeartbeatInterval time.Duration

	// Scopes are the crawled root folders. Files reported by the change
	// stream are attributed to the scope they sit under; files outside
	// every scope are ignored. Empty accepts every file into the job's scope.
	Scopes []string
}

// NewCrawlOrchestrator creates a crawl orchestrator.
func NewCrawlOrchestrator(cfg CrawlOrchestratorConfig) (*CrawlOrchestrator, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parser := cfg.Parser
	if parser == nil {
		parser = taxonomy.NewDefaultParser()
	}
	retryCfg := DefaultRetryConfig()
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}
	concurrency := cfg.FileConcurrency
	if concurrency <= 0 {
		concurrency = DefaultFileConcurrency
	}
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = domain.DefaultLivenessWindow / 4
	}

	scopeCache, err := lru.New[string, string](DefaultScopeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create scope cache: %w", err)
	}
	scopes := make(map[string]bool, len(cfg.Scopes))
	for _, s := range cfg.Scopes {
		if s != "" {
			scopes[s] = true
		}
	}

	return &CrawlOrchestrator{
		files:       cfg.Files,
		assets:      cfg.Assets,
		mirror:      cfg.Permissions,
		index:       cfg.Index,
		jobs:        cfg.Jobs,
		alerter:     cfg.Alerter,
		parser:      parser,
		logger:      logger,
		retry:       retryCfg,
		concurrency: concurrency,
		heartbeat:   heartbeat,
		scopes:      scopes,
		scopeCache:  scopeCache,
		running:     make(map[string]context.CancelCauseFunc),
	}, nil
}

// RunJob executes a job claimed by job.Owner and reports its outcome to the
// job store. If the lease is lost mid-run the outcome is not reported and
// domain.ErrLeaseLost is returned.
func (o *CrawlOrchestrator) RunJob(ctx context.Context, job *domain.CrawlJob) (domain.JobOutcome, error) {
	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	o.register(job.ID, cancel)
	defer o.unregister(job.ID)

	logger := o.logger.With("job_id", job.ID, "scope_id", job.ScopeID, "kind", job.Kind, "attempt", job.AttemptCount)
	logger.Info("crawl job started")
	start := time.Now()

	hbDone := make(chan struct{})
	go o.heartbeatLoop(jobCtx, job, cancel, hbDone)

	stats := &crawlStats{}
	var runErr error
	switch job.Kind {
	case domain.JobKindFull:
		runErr = o.crawlFull(jobCtx, job, stats, logger)
	case domain.JobKindIncremental:
		runErr = o.applyChanges(jobCtx, job, stats, logger)
	default:
		runErr = fmt.Errorf("%w: unknown job kind %q", domain.ErrInvalidInput, job.Kind)
	}
	cause := context.Cause(jobCtx)
	cancel(nil)
	<-hbDone

	if errors.Is(cause, domain.ErrLeaseLost) {
		logger.Warn("crawl job lease lost, abandoning run")
		return domain.JobOutcome{}, domain.ErrLeaseLost
	}

	outcome, alert, halt := o.decide(ctx, job, stats.snapshot(), runErr, cause)

	// The outcome is recorded even when ctx is shutting down.
	reportCtx := context.WithoutCancel(ctx)
	if halt {
		if err := o.jobs.HaltScope(reportCtx, job.ScopeID, outcome.Error); err != nil {
			logger.Error("failed to halt scope", "error", err)
		}
	}
	if err := o.jobs.Complete(reportCtx, job.ID, job.Owner, outcome); err != nil {
		logger.Error("failed to record crawl outcome", "state", outcome.State, "error", err)
		return outcome, fmt.Errorf("complete job: %w", err)
	}
	if alert != nil {
		o.raise(reportCtx, *alert)
	}

	logger.Info("crawl job finished",
		"state", outcome.State,
		"duration", time.Since(start),
		"observed", outcome.Stats.Observed,
		"indexed", outcome.Stats.Indexed,
		"needs_review", outcome.Stats.NeedsReview,
		"deleted", outcome.Stats.Deleted,
		"errors", outcome.Stats.Errors,
	)
	return outcome, nil
}

// Cancel stops enumeration for a job running in this process. In-flight
// per-file work completes and the job ends in failed. Returns false if the
// job is not running here.
func (o *CrawlOrchestrator) Cancel(jobID string) bool {
	o.mu.Lock()
	cancel, ok := o.running[jobID]
	o.mu.Unlock()
	if ok {
		cancel(domain.ErrCancelled)
	}
	return ok
}

// Running reports whether a job is executing in this process.
func (o *CrawlOrchestrator) Running(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[jobID]
	return ok
}

func (o *CrawlOrchestrator) register(jobID string, cancel context.CancelCauseFunc) {
	o.mu.Lock()
	o.running[jobID] = cancel
	o.mu.Unlock()
}

func (o *CrawlOrchestrator) unregister(jobID string) {
	o.mu.Lock()
	delete(o.running, jobID)
	o.mu.Unlock()
}

// decide maps a run result onto the job state machine.
func (o *CrawlOrchestrator) decide(ctx context.Context, job *domain.CrawlJob, stats domain.CrawlStats, runErr, cause error) (domain.JobOutcome, *domain.Alert, bool) {
	out := domain.JobOutcome{Stats: stats}
	critical := func(msg string) *domain.Alert {
		a := domain.NewAlert(domain.AlertSeverityCritical, job.ScopeID, job.ID, msg)
		return &a
	}

	switch {
	case runErr == nil && stats.NeedsReview > 0:
		out.State = domain.JobStateReview
	case runErr == nil:
		out.State = domain.JobStateDone
	case errors.Is(cause, domain.ErrCancelled):
		out.State = domain.JobStateFailed
		out.Error = domain.ErrCancelled.Error()
	case ctx.Err() != nil:
		out.State = domain.JobStateQueued
		out.Error = "interrupted by worker shutdown"
		out.RetryAt = time.Now()
	case domain.IsFatalForScope(runErr):
		out.State = domain.JobStateFailed
		out.Error = runErr.Error()
		return out, critical("scope halted: " + runErr.Error()), true
	case domain.IsTransient(runErr) && job.CanRetry():
		out.State = domain.JobStateQueued
		out.Error = runErr.Error()
		out.RetryAt = time.Now().Add(domain.JobBackoff(job.AttemptCount))
	case domain.IsTransient(runErr):
		out.State = domain.JobStateFailed
		out.Error = runErr.Error()
		return out, critical(fmt.Sprintf("crawl failed after %d attempts: %v", job.AttemptCount, runErr)), false
	default:
		out.State = domain.JobStateFailed
		out.Error = runErr.Error()
		return out, critical("crawl failed: " + runErr.Error()), false
	}
	return out, nil, false
}

func (o *CrawlOrchestrator) raise(ctx context.Context, alert domain.Alert) {
	o.logger.Error("crawl alert",
		"severity", alert.Severity,
		"scope_id", alert.ScopeID,
		"job_id", alert.JobID,
		"message", alert.Message,
	)
	if o.alerter == nil {
		return
	}
	if err := o.alerter.Alert(ctx, alert); err != nil {
		o.logger.Warn("failed to deliver alert", "job_id", alert.JobID, "error", err)
	}
}

func (o *CrawlOrchestrator) heartbeatLoop(ctx context.Context, job *domain.CrawlJob, cancel context.CancelCauseFunc, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := o.jobs.Heartbeat(ctx, job.ID, job.Owner)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrLeaseLost):
				cancel(domain.ErrLeaseLost)
				return
			case ctx.Err() == nil:
				o.logger.Warn("heartbeat failed", "job_id", job.ID, "error", err)
			}
		}
	}
}

// crawlFull enumerates the scope, observes every file, and tombstones known
// files that were not seen. Tombstoning only happens after a complete walk
// with every file acknowledged.
func (o *CrawlOrchestrator) crawlFull(ctx context.Context, job *domain.CrawlJob, stats *crawlStats, logger *slog.Logger) error {
	started := time.Now()
	seen := newSeenSet()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	walkErr := o.walk(gctx, job.ScopeID, func(entry domain.FileEntry) {
		seen.add(entry.FileID)
		g.Go(func() error {
			result, err := o.Observe(context.WithoutCancel(gctx), job.ScopeID, entry)
			return stats.record(entry.FileID, result, err, logger)
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if walkErr != nil {
		return walkErr
	}
	if err := stats.incompleteErr(); err != nil {
		return err
	}

	known, err := retry(ctx, o.retry, func() ([]*domain.Asset, error) {
		assets, err := o.assets.ListByScope(ctx, job.ScopeID)
		return assets, storeErr("list scope assets", err)
	})
	if err != nil {
		return err
	}
	for _, asset := range known {
		if asset.IndexState == domain.IndexStateDeleted || seen.has(asset.FileID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		// Re-read so a concurrent incremental write is not lost to the listing above.
		current, err := o.storedAsset(ctx, asset.FileID)
		if err != nil {
			return err
		}
		if !absentSince(current, started) {
			logger.Debug("keeping asset written during crawl", "file_id", asset.FileID)
			continue
		}
		result, err := o.tombstone(ctx, current, "not observed by full crawl")
		if err != nil {
			return err
		}
		if result == ObserveDeleted {
			stats.deleted.Add(1)
		}
	}
	return nil
}

// walk visits every non-trashed file under rootID, breadth first.
// It stops scheduling work as soon as ctx is done.
func (o *CrawlOrchestrator) walk(ctx context.Context, rootID string, visit func(domain.FileEntry)) error {
	queue := []string{rootID}
	visited := map[string]bool{rootID: true}

	for len(queue) > 0 {
		folderID := queue[0]
		queue = queue[1:]

		pageToken := ""
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			page, err := retry(ctx, o.retry, func() (*domain.FolderPage, error) {
				return o.files.ListFolder(ctx, folderID, pageToken)
			})
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) && folderID != rootID {
					o.logger.Debug("folder vanished during crawl", "folder_id", folderID)
					break
				}
				return fmt.Errorf("list folder %s: %w", folderID, err)
			}

			for _, entry := range page.Entries {
				if entry.Trashed {
					continue
				}
				if entry.IsFolder {
					if !visited[entry.FileID] {
						visited[entry.FileID] = true
						queue = append(queue, entry.FileID)
					}
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				visit(entry)
			}

			if page.NextPageToken == "" {
				break
			}
			pageToken = page.NextPageToken
		}
	}
	return nil
}

// applyChanges observes each file referenced by an incremental job once.
// Metadata is always re-fetched, so duplicate and out-of-order events for a
// file collapse into one observation of its current state.
func (o *CrawlOrchestrator) applyChanges(ctx context.Context, job *domain.CrawlJob, stats *crawlStats, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	seen := make(map[string]bool, len(job.Changes))
	for _, change := range job.Changes {
		if change.FileID == "" || seen[change.FileID] {
			continue
		}
		seen[change.FileID] = true
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return o.applyChange(context.WithoutCancel(gctx), job.ScopeID, change, stats, logger)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return stats.incompleteErr()
}

func (o *CrawlOrchestrator) applyChange(ctx context.Context, fallbackScope string, change domain.Change, stats *crawlStats, logger *slog.Logger) error {
	stored, err := o.storedAsset(ctx, change.FileID)
	if err != nil {
		return stats.record(change.FileID, "", err, logger)
	}

	meta, err := retry(ctx, o.retry, func() (*domain.FileMetadata, error) {
		return o.files.GetFileMetadata(ctx, change.FileID)
	})
	if errors.Is(err, domain.ErrNotFound) || (err == nil && meta.Entry.Trashed) {
		result, err := o.tombstone(ctx, stored, "removed at source")
		return stats.record(change.FileID, result, err, logger)
	}
	if err != nil {
		return stats.record(change.FileID, "", err, logger)
	}

	if meta.Entry.IsFolder {
		return o.applyFolderChange(ctx, fallbackScope, meta.Entry, stats, logger)
	}

	scope, err := o.resolveScope(ctx, stored, meta.Entry, fallbackScope)
	if err != nil {
		return stats.record(change.FileID, "", err, logger)
	}
	if scope == "" {
		result, err := o.tombstone(ctx, stored, "moved out of crawled scopes")
		return stats.record(change.FileID, result, err, logger)
	}

	result, err := o.observeMeta(ctx, scope, stored, meta)
	return stats.record(change.FileID, result, err, logger)
}

// applyFolderChange re-observes everything under a renamed or moved folder.
func (o *CrawlOrchestrator) applyFolderChange(ctx context.Context, fallbackScope string, folder domain.FileEntry, stats *crawlStats, logger *slog.Logger) error {
	o.scopeCache.Purge()
	scope := fallbackScope
	if len(o.scopes) > 0 {
		var err error
		if scope, err = o.scopeOf(ctx, folder.FileID); err != nil {
			return stats.record(folder.FileID, "", err, logger)
		}
		if scope == "" {
			// Files left behind under the old scope are tombstoned by its next full crawl.
			logger.Debug("folder outside crawled scopes", "folder_id", folder.FileID)
			return nil
		}
	}

	var fatal error
	walkErr := o.walk(ctx, folder.FileID, func(entry domain.FileEntry) {
		if fatal != nil {
			return
		}
		result, err := o.Observe(ctx, scope, entry)
		fatal = stats.record(entry.FileID, result, err, logger)
	})
	if fatal != nil {
		return fatal
	}
	if walkErr != nil {
		return stats.record(folder.FileID, "", walkErr, logger)
	}
	return nil
}

// Observe applies one file seen during enumeration of scopeID.
// An entry whose revision is not newer than the stored asset is discarded.
func (o *CrawlOrchestrator) Observe(ctx context.Context, scopeID string, entry domain.FileEntry) (ObserveResult, error) {
	if entry.IsFolder {
		return ObserveSkipped, nil
	}

	stored, err := o.storedAsset(ctx, entry.FileID)
	if err != nil {
		return "", err
	}
	if isStale(stored, entry) {
		o.logger.Debug("discarding stale observation",
			"file_id", entry.FileID,
			"revision", entry.RevisionToken,
			"stored_revision", stored.RevisionToken,
		)
		return ObserveStale, nil
	}

	meta, err := retry(ctx, o.retry, func() (*domain.FileMetadata, error) {
		return o.files.GetFileMetadata(ctx, entry.FileID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return o.tombstone(ctx, stored, "removed at source")
	}
	if err != nil {
		return "", fmt.Errorf("metadata of %s: %w", entry.FileID, err)
	}
	if meta.Entry.Trashed {
		return o.tombstone(ctx, stored, "trashed at source")
	}
	if meta.Entry.RevisionToken == "" {
		meta.Entry.RevisionToken = entry.RevisionToken
	}
	if meta.Entry.Path == "" {
		meta.Entry.Path = entry.Path
	}
	return o.observeMeta(ctx, scopeID, stored, meta)
}

// observeMeta mirrors permissions, then writes and indexes the asset.
func (o *CrawlOrchestrator) observeMeta(ctx context.Context, scopeID string, stored *domain.Asset, meta *domain.FileMetadata) (ObserveResult, error) {
	entry := meta.Entry
	if isStale(stored, entry) {
		o.logger.Debug("discarding stale observation", "file_id", entry.FileID, "revision", entry.RevisionToken)
		return ObserveStale, nil
	}

	principals, err := retry(ctx, o.retry, func() ([]string, error) {
		return o.files.GetPermissions(ctx, entry.FileID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return o.tombstone(ctx, stored, "removed at source")
	}
	if err != nil {
		o.failClosed(ctx, stored)
		return "", fmt.Errorf("permissions of %s: %w", entry.FileID, err)
	}

	_, err = retry(ctx, o.retry, func() (*domain.PermissionSnapshot, error) {
		return o.mirror.Upsert(ctx, entry.FileID, principals, entry.RevisionToken)
	})
	if errors.Is(err, domain.ErrStaleRevision) {
		return ObserveStale, nil
	}
	if err != nil {
		o.failClosed(ctx, stored)
		return "", fmt.Errorf("mirror permissions of %s: %w", entry.FileID, err)
	}

	mimeType := meta.Intrinsic.MimeType
	if mimeType == "" {
		mimeType = entry.MimeType
	}
	parsed := o.parser.Parse(entry.Path, mimeType)

	now := time.Now()
	asset := &domain.Asset{
		FileID:            entry.FileID,
		ScopeID:           scopeID,
		Name:              entry.Name,
		Path:              entry.Path,
		ParentID:          entry.ParentID,
		Tags:              parsed.Tags,
		Confidence:        parsed.Confidence,
		IntrinsicMetadata: meta.Intrinsic,
		RevisionToken:     entry.RevisionToken,
		IndexState:        domain.IndexStateIndexed,
		SourceURL:         o.files.OpenInSourceURL(entry.FileID),
		IndexedAt:         now,
		UpdatedAt:         now,
	}
	if asset.IntrinsicMetadata.MimeType == "" {
		asset.IntrinsicMetadata.MimeType = entry.MimeType
	}
	if parsed.Confidence == domain.ConfidenceUnstructured {
		asset.IndexState = domain.IndexStateNeedsReview
	}

	err = retryErr(ctx, o.retry, func() error {
		return storeErr("upsert asset", o.assets.Upsert(ctx, asset))
	})
	if errors.Is(err, domain.ErrStaleRevision) {
		return ObserveStale, nil
	}
	if err != nil {
		return "", fmt.Errorf("store asset %s: %w", entry.FileID, err)
	}

	if err := o.index.Upsert(ctx, asset); err != nil {
		return "", fmt.Errorf("index asset %s: %w: %v", entry.FileID, domain.ErrTransient, err)
	}

	if asset.IndexState == domain.IndexStateNeedsReview {
		return ObserveNeedsReview, nil
	}
	return ObserveIndexed, nil
}

// tombstone soft-deletes a known asset and drops it from the index.
func (o *CrawlOrchestrator) tombstone(ctx context.Context, stored *domain.Asset, reason string) (ObserveResult, error) {
	if stored == nil {
		return ObserveSkipped, nil
	}
	if err := o.index.Remove(ctx, stored.FileID); err != nil {
		return "", fmt.Errorf("unindex %s: %w: %v", stored.FileID, domain.ErrTransient, err)
	}
	if stored.IndexState == domain.IndexStateDeleted {
		return ObserveSkipped, nil
	}

	deleted := stored.Clone()
	deleted.IndexState = domain.IndexStateDeleted
	deleted.UpdatedAt = time.Now()
	err := retryErr(ctx, o.retry, func() error {
		return storeErr("tombstone asset", o.assets.Upsert(ctx, deleted))
	})
	if errors.Is(err, domain.ErrStaleRevision) {
		return ObserveStale, nil
	}
	if err != nil {
		return "", fmt.Errorf("tombstone %s: %w", stored.FileID, err)
	}

	o.logger.Debug("asset tombstoned", "file_id", stored.FileID, "scope_id", stored.ScopeID, "reason", reason)
	return ObserveDeleted, nil
}

// failClosed withdraws a servable asset whose newer permissions could not be
// mirrored. The asset keeps its revision and becomes pending so the next
// observation retries it.
func (o *CrawlOrchestrator) failClosed(ctx context.Context, stored *domain.Asset) {
	if stored == nil || !stored.IndexState.Servable() {
		return
	}
	if err := o.index.Remove(ctx, stored.FileID); err != nil {
		o.logger.Error("failed to unindex asset with stale permissions", "file_id", stored.FileID, "error", err)
	}
	pending := stored.Clone()
	pending.IndexState = domain.IndexStatePending
	pending.UpdatedAt = time.Now()
	if err := o.assets.Upsert(ctx, pending); err != nil {
		o.logger.Warn("failed to mark asset pending", "file_id", stored.FileID, "error", err)
	}
}

func (o *CrawlOrchestrator) storedAsset(ctx context.Context, fileID string) (*domain.Asset, error) {
	asset, err := retry(ctx, o.retry, func() (*domain.Asset, error) {
		a, err := o.assets.Get(ctx, fileID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return a, storeErr("get asset", err)
	})
	if err != nil {
		return nil, fmt.Errorf("load asset %s: %w", fileID, err)
	}
	return asset, nil
}

// resolveScope attributes a changed file to a crawled root scope.
func (o *CrawlOrchestrator) resolveScope(ctx context.Context, stored *domain.Asset, entry domain.FileEntry, fallback string) (string, error) {
	if len(o.scopes) == 0 {
		if stored != nil && stored.ScopeID != "" {
			return stored.ScopeID, nil
		}
		return fallback, nil
	}
	if stored != nil && stored.ParentID == entry.ParentID && o.scopes[stored.ScopeID] {
		return stored.ScopeID, nil
	}
	return o.scopeOf(ctx, entry.ParentID)
}

// scopeOf walks up from folderID to the first crawled scope.
// Returns "" if the folder is outside every scope.
func (o *CrawlOrchestrator) scopeOf(ctx context.Context, folderID string) (string, error) {
	var visited []string
	result := ""
	id := folderID
	for depth := 0; id != "" && depth < maxScopeDepth; depth++ {
		if o.scopes[id] {
			result = id
			break
		}
		if cached, ok := o.scopeCache.Get(id); ok {
			result = cached
			break
		}
		visited = append(visited, id)

		meta, err := retry(ctx, o.retry, func() (*domain.FileMetadata, error) {
			return o.files.GetFileMetadata(ctx, id)
		})
		if errors.Is(err, domain.ErrNotFound) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("resolve scope of %s: %w", folderID, err)
		}
		id = meta.Entry.ParentID
	}

	for _, v := range visited {
		o.scopeCache.Add(v, result)
	}
	return result, nil
}

// absentSince reports whether a stored asset unseen by a full crawl started
// at started may be tombstoned. Assets written since the crawl started were
// observed by another job after their folder was walked.
func absentSince(stored *domain.Asset, started time.Time) bool {
	if stored == nil || stored.IndexState == domain.IndexStateDeleted {
		return false
	}
	return stored.UpdatedAt.Before(started)
}

// isStale reports whether an observation of entry must be discarded: its
// revision is older than the stored one, or equal with nothing moved.
// Pending and deleted assets are never stale, so a failed observation is
// retried and a file seen again after a tombstone is restored.
func isStale(stored *domain.Asset, entry domain.FileEntry) bool {
	if stored == nil || stored.IndexState == domain.IndexStatePending || stored.IndexState == domain.IndexStateDeleted {
		return false
	}
	switch domain.CompareRevisions(entry.RevisionToken, stored.RevisionToken) {
	case 1:
		return false
	case 0:
		// Renaming or moving a folder changes a file's path but not its revision.
		return entry.Path == "" || entry.Path == stored.Path
	}
	return true
}

// storeErr marks a store failure as transient. Stale revisions pass through.
func storeErr(op string, err error) error {
	if err == nil || errors.Is(err, domain.ErrStaleRevision) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrTransient, err)
}

// crawlStats are the run counters of one job, shared by its file workers.
type crawlStats struct {
	observed    atomic.Int64
	indexed     atomic.Int64
	needsReview atomic.Int64
	skipped     atomic.Int64
	deleted     atomic.Int64
	errors      atomic.Int64
	incomplete  atomic.Int64

	mu      sync.Mutex
	lastErr error
}

// record counts one observation. Only scope-fatal errors are returned; other
// failures stay contained to the file.
func (s *crawlStats) record(fileID string, result ObserveResult, err error, logger *slog.Logger) error {
	s.observed.Add(1)
	if err != nil {
		if domain.IsFatalForScope(err) {
			return err
		}
		s.errors.Add(1)
		if domain.IsTransient(err) {
			s.incomplete.Add(1)
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
		}
		logger.Warn("file observation failed", "file_id", fileID, "error", err)
		return nil
	}

	switch result {
	case ObserveIndexed:
		s.indexed.Add(1)
	case ObserveNeedsReview:
		s.needsReview.Add(1)
	case ObserveDeleted:
		s.deleted.Add(1)
	default:
		s.skipped.Add(1)
	}
	return nil
}

// incompleteErr fails the run if any file could not be acknowledged.
func (s *crawlStats) incompleteErr() error {
	n := s.incomplete.Load()
	if n == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Errorf("%d files not acknowledged, last error: %w", n, s.lastErr)
}

func (s *crawlStats) snapshot() domain.CrawlStats {
	return domain.CrawlStats{
		Observed:    int(s.observed.Load()),
		Indexed:     int(s.indexed.Load()),
		NeedsReview: int(s.needsReview.Load()),
		Skipped:     int(s.skipped.Load()),
		Deleted:     int(s.deleted.Load()),
		Errors:      int(s.errors.Load()),
	}
}

type seenSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{ids: make(map[string]struct{})}
}

func (s *seenSet) add(id string) {
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

func (s *seenSet) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}
