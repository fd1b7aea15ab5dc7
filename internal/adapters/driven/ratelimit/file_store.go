// Package ratelimit enforces a global outbound request budget on the file store.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.FileStore = (*FileStore)(nil)

// Config holds the token bucket settings.
type Config struct {
	// RequestsPerSecond is the sustained rate shared by every worker.
	RequestsPerSecond float64
	// Burst is the maximum burst size.
	Burst int
	// Cooldown is how long all callers pause after the source reports a rate limit.
	Cooldown time.Duration
}

// DefaultConfig stays below Drive's 10 requests/sec/user quota.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 8.0,
		Burst:             10,
		Cooldown:          10 * time.Second,
	}
}

// FileStore wraps a driven.FileStore and makes every outbound call wait on a
// shared token bucket. A rate-limited response pauses all callers for Cooldown.
type FileStore struct {
	next     driven.FileStore
	limiter  *rate.Limiter
	cooldown time.Duration

	mu      sync.Mutex
	retryAt time.Time
}

// New wraps next with the budget in cfg.
func New(next driven.FileStore, cfg Config) *FileStore {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultConfig().Burst
	}
	return &FileStore{
		next:     next,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cooldown: cfg.Cooldown,
	}
}

// Wait blocks until a request may be made without exceeding the budget.
func (f *FileStore) Wait(ctx context.Context) error {
	f.mu.Lock()
	retryAt := f.retryAt
	f.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return f.limiter.Wait(ctx)
}

// record starts a cooldown when err says the source throttled us.
func (f *FileStore) record(err error) error {
	if err != nil && errors.Is(err, domain.ErrRateLimited) && f.cooldown > 0 {
		f.mu.Lock()
		until := time.Now().Add(f.cooldown)
		if until.After(f.retryAt) {
			f.retryAt = until
		}
		f.mu.Unlock()
	}
	return err
}

func (f *FileStore) ListFolder(ctx context.Context, folderID, pageToken string) (*domain.FolderPage, error) {
	if err := f.Wait(ctx); err != nil {
		return nil, err
	}
	page, err := f.next.ListFolder(ctx, folderID, pageToken)
	return page, f.record(err)
}

func (f *FileStore) GetFileMetadata(ctx context.Context, fileID string) (*domain.FileMetadata, error) {
	if err := f.Wait(ctx); err != nil {
		return nil, err
	}
	meta, err := f.next.GetFileMetadata(ctx, fileID)
	return meta, f.record(err)
}

func (f *FileStore) GetPermissions(ctx context.Context, fileID string) ([]string, error) {
	if err := f.Wait(ctx); err != nil {
		return nil, err
	}
	principals, err := f.next.GetPermissions(ctx, fileID)
	return principals, f.record(err)
}

func (f *FileStore) StartCursor(ctx context.Context) (string, error) {
	if err := f.Wait(ctx); err != nil {
		return "", err
	}
	cursor, err := f.next.StartCursor(ctx)
	return cursor, f.record(err)
}

func (f *FileStore) FetchChanges(ctx context.Context, cursor string, pageSize int) (*domain.ChangePage, error) {
	if err := f.Wait(ctx); err != nil {
		return nil, err
	}
	page, err := f.next.FetchChanges(ctx, cursor, pageSize)
	return page, f.record(err)
}

// OpenInSourceURL makes no request and is not budgeted.
func (f *FileStore) OpenInSourceURL(fileID string) string {
	return f.next.OpenInSourceURL(fileID)
}
