package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := retry(context.Background(), fastRetry(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("list: %w", domain.ErrRateLimited)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := retryErr(context.Background(), fastRetry(), func() error {
		calls++
		return domain.ErrSourceUnauthorized
	})
	assert.ErrorIs(t, err, domain.ErrSourceUnauthorized)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	calls := 0
	err := retryErr(context.Background(), fastRetry(), func() error {
		calls++
		return domain.ErrTransient
	})
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.Equal(t, 4, calls)
}

func TestRetry_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryErr(ctx, fastRetry(), func() error {
		t.Fatal("fn should not run")
		return nil
	})
	assert.True(t, errors.Is(err, context.Canceled))
}
