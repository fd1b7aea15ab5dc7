package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LockTable is the lock state shared between MockDistributedLock instances,
// standing in for the Redis or Postgres backend.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]lockEntry
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]lockEntry)}
}

// MockDistributedLock is a mock implementation of DistributedLock for testing.
// Instances sharing a LockTable behave like separate processes.
type MockDistributedLock struct {
	owner string
	table *LockTable

	// Custom behavior hooks (optional)
	AcquireFn func(name string, ttl time.Duration) (bool, error)
	ReleaseFn func(name string) error
	ExtendFn  func(name string, ttl time.Duration) error
	PingFn    func() error
}

type lockEntry struct {
	owner  string
	expiry time.Time
}

// NewMockDistributedLock creates a mock lock with its own table.
func NewMockDistributedLock() *MockDistributedLock {
	return NewSharedMockLock(NewLockTable(), "mock-owner")
}

// NewSharedMockLock creates a mock lock for owner backed by table.
func NewSharedMockLock(table *LockTable, owner string) *MockDistributedLock {
	return &MockDistributedLock{owner: owner, table: table}
}

// Acquire attempts to acquire a named lock.
func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if m.AcquireFn != nil {
		return m.AcquireFn(name, ttl)
	}

	t := m.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.locks[name]; exists && time.Now().Before(entry.expiry) {
		return false, nil
	}
	t.locks[name] = lockEntry{owner: m.owner, expiry: time.Now().Add(ttl)}
	return true, nil
}

// Release releases a named lock if this owner holds it.
func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	if m.ReleaseFn != nil {
		return m.ReleaseFn(name)
	}

	t := m.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.locks[name]; exists && entry.owner == m.owner {
		delete(t.locks, name)
	}
	return nil
}

// Extend extends the TTL of a lock this owner holds.
func (m *MockDistributedLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	if m.ExtendFn != nil {
		return m.ExtendFn(name, ttl)
	}

	t := m.table
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.locks[name]
	if !exists || entry.owner != m.owner || time.Now().After(entry.expiry) {
		return fmt.Errorf("lock %s not held", name)
	}
	entry.expiry = time.Now().Add(ttl)
	t.locks[name] = entry
	return nil
}

// Ping checks backend health.
func (m *MockDistributedLock) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

// IsHeld checks if a lock is currently held by anyone (for test assertions).
func (m *MockDistributedLock) IsHeld(name string) bool {
	t := m.table
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.locks[name]
	return exists && time.Now().Before(entry.expiry)
}

// SetLockHeld forces a lock to be held by another owner (for test setup).
func (m *MockDistributedLock) SetLockHeld(name string, ttl time.Duration) {
	t := m.table
	t.mu.Lock()
	defer t.mu.Unlock()

	t.locks[name] = lockEntry{owner: "external-owner", expiry: time.Now().Add(ttl)}
}
