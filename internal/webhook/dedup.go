package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Gateways deliver at least once; a retried delivery carries the same
// message ID. Keys expire after the retry horizon has long passed.
const dedupTTL = 24 * time.Hour

// Deduper tracks which channel message IDs have already been processed.
type Deduper struct {
	rdb *redis.Client
}

func NewDeduper(rdb *redis.Client) *Deduper {
	return &Deduper{rdb: rdb}
}

// Seen marks the message as processed and reports whether it had been
// processed before. A nil deduper never suppresses messages.
func (d *Deduper) Seen(ctx context.Context, channel, messageID string) (bool, error) {
	if d == nil || d.rdb == nil || messageID == "" {
		return false, nil
	}

	key := fmt.Sprintf("webhook:dedup:%s:%s", channel, messageID)
	set, err := d.rdb.SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !set, nil
}
