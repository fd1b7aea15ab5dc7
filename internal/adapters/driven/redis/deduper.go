package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChangeDeduper = (*Deduper)(nil)

const (
	dedupPrefix = "drive-index:dedup:"

	// DefaultDedupTTL is how long a change key is remembered
	DefaultDedupTTL = 24 * time.Hour
)

// Deduper remembers change keys with SET NX EX, shared by every instance.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDeduper creates a deduper. A non-positive ttl uses DefaultDedupTTL.
func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Deduper{client: client, ttl: ttl}
}

// MarkSeen records key and reports whether it was new.
func (d *Deduper) MarkSeen(ctx context.Context, key string) (bool, error) {
	firstTime, err := d.client.SetNX(ctx, dedupPrefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup %s: %w", key, err)
	}
	return firstTime, nil
}

// Forget removes keys so their changes are accepted again.
func (d *Deduper) Forget(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = dedupPrefix + k
	}
	if err := d.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("forget dedup keys: %w", err)
	}
	return nil
}
