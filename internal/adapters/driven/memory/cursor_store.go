package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CursorStore = (*CursorStore)(nil)

// CursorStore is an in-memory CursorStore.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]string
}

// NewCursorStore creates an empty store.
func NewCursorStore() *CursorStore {
	return &CursorStore{cursors: make(map[string]string)}
}

func (s *CursorStore) Get(ctx context.Context, stream string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[stream], nil
}

func (s *CursorStore) Save(ctx context.Context, stream, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[stream] = cursor
	return nil
}
