package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

func TestCrawlJobStore_ClaimIsExclusivePerScope(t *testing.T) {
	ctx := context.Background()
	store := NewCrawlJobStore()

	require.NoError(t, store.Enqueue(ctx, domain.NewFullCrawlJob("scope-a")))
	require.NoError(t, store.Enqueue(ctx, domain.NewFullCrawlJob("scope-a")))

	first, err := store.Claim(ctx, "scope-a", "w1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, domain.JobStateProcessing, first.State)
	assert.Equal(t, "w1", first.Owner)
	assert.Equal(t, 1, first.AttemptCount)

	second, err := store.Claim(ctx, "scope-a", "w2", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second, "scope already has a live processing job")
}

func TestCrawlJobStore_ConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	store := NewCrawlJobStore()
	for i := 0; i < 10; i++ {
		require.NoError(t, store.Enqueue(ctx, domain.NewFullCrawlJob("scope-a")))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := store.ClaimNext(ctx, "worker", time.Minute)
			assert.NoError(t, err)
			if job != nil {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claimed)
	processing, err := store.ListByState(ctx, domain.JobStateProcessing, 0)
	require.NoError(t, err)
	assert.Len(t, processing, 1)
}

func TestCrawlJobStore_ClaimNextSpansScopes(t *testing.T) {
	ctx := context.Background()
	store := NewCrawlJobStore()
	require.NoError(t, store.Enqueue(ctx, domain.NewFullCrawlJob("scope-a")))
	require.NoError(t, store.Enqueue(ctx, domain.NewFullCrawlJob("scope-b")))

	a, err := store.ClaimNext(ctx, "w1", time.Minute)
	require.NoError(t, err)
	b, err := store.ClaimNext(ctx, "w2", time.Minute)
	require.NoError(t, err)

	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotEqual(t, a.ScopeID, b.ScopeID)
}

func TestCrawlJobStore_StaleLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	store := NewCrawlJobStore()
	clock := time.Now()
	store.now = func() time.Time { return clock }

	job := domain.NewFullCrawlJob("scope-a")
	require.NoError(t, store.Enqueue(ctx, job))
	_, err := store.Claim(ctx, "scope-a", "dead-worker", time.Minute)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	reclaimed, err := store.Claim(ctx, "scope-a", "w2", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, job.ID, reclaimed.ID)
	assert.Equal(t, "w2", reclaimed.Owner)
	assert.Equal(t, 2, reclaimed.AttemptCount)

	assert.ErrorIs(t, store.Heartbeat(ctx, job.ID, "dead-worker"), domain.ErrLeaseLost)
	assert.ErrorIs(t, store.Complete(ctx, job.ID, "dead-worker", domain.JobOutcome{State: domain.JobStateDone}), domain.ErrLeaseLost)

	transitions, err := store.Transitions(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, domain.JobStateProcessing, transitions[1].From)
	assert.Equal(t, domain.JobStateProcessing, transitions[1].To)
}

func TestCrawlJobStore_StaleLeaseWithoutAttemptsFails(t *testing.T) {
	ctx := context.Background()
	store := NewCrawlJobStore()
	clock := time.Now()
	store.now = func() time.Time { return clock }

	job := domain.NewFullCrawlJob("scope-a")
	job.MaxAttempts = 1
	require.NoError(t, store.Enqueue(ctx, job))
	_, err := store.Claim(ctx, "scope-a", "dead-worker", time.Minute)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	claimed, err := store.Claim(ctx, "scope-a", "w2", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, claimed)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, got.State)
}

func TestCrawlJobStore_ExpiredLeaseFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	store := NewCrawlJobStore()
	clock := time.Now()
	store.now = func() time.Time { return clock }

	expired := domain.NewFullCrawlJob("scope-a")
	expired.MaxAttempts = 1
	require.NoError(t, store.Enqueue(ctx, expired))
	_, err := store.Claim(ctx, "scope-a", "dead-worker", time.Minute)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	next := domain.NewFullCrawlJob("scope-a")
	next.CreatedAt = clock
	require.NoError(t, store.Enqueue(ctx, next))

	claimed, err := store.Claim(ctx, "scope-a", "w2", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, next.ID, claimed.ID)

	transitions, err := store.Transitions(ctx, expired.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, domain.JobStateFailed, transitions[1].To)
	assert.Equal(t, "w2", transitions[1].Actor)
}

func TestCrawlJobStore_CompleteRequeueWithBackoff(t *testing.T) {
	ctx := context.Background()
	store := NewCrawlJobStore()
	clock := time.Now()
	store.now = func() time.Time { return clock }

	job := domain.NewFullCrawlJob("scope-a")
	require.NoError(t, store.Enqueue(ctx, job))
	_, err := store.Claim(ctx, "scope-a", "w1", time.Minute)
	require.NoError(t, err)

	err = store.Complete(ctx, job.ID, "w1", domain.JobOutcome{
		State:   domain.JobStateQueued,
		Error:   "rate limited",
		RetryAt: clock.Add(10 * time.Second),
	})
	require.NoError(t, err)

	claimed, err := store.Claim(ctx, "scope-a", "w1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, claimed, "job is not claimable before its backoff elapses")

	clock = clock.Add(11 * time.Second)
	claimed, err = store.Claim(ctx, "scope-a", "w1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, 2, claimed.AttemptCount)
	assert.Equal(t, "rate limited", claimed.LastError)
}

func TestCrawlJobStore_CompleteRejectsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	store := NewCrawlJobStore()
	job := domain.NewFullCrawlJob("scope-a")
	require.NoError(t, store.Enqueue(ctx, job))
	_, err := store.Claim(ctx, "scope-a", "w1", time.Minute)
	require.NoError(t, err)

	err = store.Complete(ctx, job.ID, "w1", domain.JobOutcome{State: domain.JobStateProcessing})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, store.Complete(ctx, job.ID, "w1", domain.JobOutcome{State: domain.JobStateReview}))
	assert.ErrorIs(t, store.Transition(ctx, job.ID, domain.JobStateQueued, "", "op"), domain.ErrInvalidTransition)
	require.NoError(t, store.Transition(ctx, job.ID, domain.JobStateDone, "resolved", "op"))

	transitions, err := store.Transitions(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 3)
	assert.Equal(t, "op", transitions[2].Actor)
}

func TestCrawlJobStore_HaltedScopeIsNotClaimed(t *testing.T) {
	ctx := context.Background()
	store := NewCrawlJobStore()
	require.NoError(t, store.Enqueue(ctx, domain.NewFullCrawlJob("scope-a")))
	require.NoError(t, store.HaltScope(ctx, "scope-a", "credentials revoked"))

	halted, reason, err := store.HaltStatus(ctx, "scope-a")
	require.NoError(t, err)
	assert.True(t, halted)
	assert.Equal(t, "credentials revoked", reason)

	job, err := store.ClaimNext(ctx, "w1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job)

	require.NoError(t, store.ResumeScope(ctx, "scope-a"))
	job, err = store.ClaimNext(ctx, "w1", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, job)
}

func TestCrawlJobStore_LatestForScope(t *testing.T) {
	ctx := context.Background()
	store := NewCrawlJobStore()

	_, err := store.LatestForScope(ctx, "scope-a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	older := domain.NewFullCrawlJob("scope-a")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := domain.NewFullCrawlJob("scope-a")
	require.NoError(t, store.Enqueue(ctx, older))
	require.NoError(t, store.Enqueue(ctx, newer))

	latest, err := store.LatestForScope(ctx, "scope-a")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
}
