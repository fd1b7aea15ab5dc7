package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ScheduleStore = (*ScheduleStore)(nil)

// ScheduleStore is an in-memory ScheduleStore.
type ScheduleStore struct {
	mu        sync.RWMutex
	schedules map[string]*domain.ScheduledCrawl
}

// NewScheduleStore creates an empty store.
func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{schedules: make(map[string]*domain.ScheduledCrawl)}
}

func (s *ScheduleStore) Get(ctx context.Context, id string) (*domain.ScheduledCrawl, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.schedules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *sc
	return &c, nil
}

func (s *ScheduleStore) List(ctx context.Context) ([]*domain.ScheduledCrawl, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.ScheduledCrawl, 0, len(s.schedules))
	for _, sc := range s.schedules {
		c := *sc
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *ScheduleStore) Save(ctx context.Context, schedule *domain.ScheduledCrawl) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *schedule
	s.schedules[schedule.ID] = &c
	return nil
}

func (s *ScheduleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.schedules, id)
	return nil
}

func (s *ScheduleStore) Due(ctx context.Context) ([]*domain.ScheduledCrawl, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	due := all[:0]
	for _, sc := range all {
		if sc.IsDue() {
			due = append(due, sc)
		}
	}
	return due, nil
}

func (s *ScheduleStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.schedules[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	sc.LastRun = &now
	sc.NextRun = now.Add(sc.Interval)
	sc.LastError = lastError
	return nil
}
