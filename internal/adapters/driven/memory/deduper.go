package memory

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChangeDeduper = (*Deduper)(nil)

// DefaultDedupWindow is how many change keys the in-memory deduper remembers.
const DefaultDedupWindow = 100_000

// Deduper remembers recent change keys in a bounded LRU.
// Keys evicted from the window may be delivered again; downstream idempotence absorbs them.
type Deduper struct {
	seen *lru.Cache[string, struct{}]
}

// NewDeduper creates a deduper remembering up to size keys.
// A non-positive size uses DefaultDedupWindow.
func NewDeduper(size int) (*Deduper, error) {
	if size <= 0 {
		size = DefaultDedupWindow
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create dedup window: %w", err)
	}
	return &Deduper{seen: seen}, nil
}

func (d *Deduper) MarkSeen(ctx context.Context, key string) (bool, error) {
	found, _ := d.seen.ContainsOrAdd(key, struct{}{})
	return !found, nil
}

func (d *Deduper) Forget(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		d.seen.Remove(k)
	}
	return nil
}
