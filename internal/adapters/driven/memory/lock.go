package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

// Lock is a process-local DistributedLock for single-instance deployments.
type Lock struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

// NewLock creates a process-local lock.
func NewLock() *Lock {
	return &Lock{locks: make(map[string]time.Time)}
}

func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.locks[name]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	l.locks[name] = time.Now().Add(ttl)
	return true, nil
}

func (l *Lock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.locks, name)
	return nil
}

func (l *Lock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	expiry, ok := l.locks[name]
	if !ok || time.Now().After(expiry) {
		return fmt.Errorf("lock %s not held", name)
	}
	l.locks[name] = time.Now().Add(ttl)
	return nil
}

func (l *Lock) Ping(ctx context.Context) error {
	return nil
}
