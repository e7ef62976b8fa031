package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper remembers message IDs a handler has finished with.
// Seen only reads; MarkProcessed writes. Callers mark an ID after its side effect is durable, so a
// crash in between leaves the ID unmarked and the redelivery is processed again.
type Deduper struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{rdb: rdb, ttl: ttl, logger: logger}
}

func DedupKey(handler, id string) string {
	return fmt.Sprintf("dedup:%s:%s", handler, id)
}

// Seen reports whether handler already finished id. When redis is unavailable it reports false
// and lets the store's own uniqueness catch duplicates.
func (d *Deduper) Seen(ctx context.Context, handler, id string) bool {
	key := DedupKey(handler, id)

	n, err := d.rdb.Exists(ctx, key).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("handler", handler),
			zap.String("id", id),
			zap.Error(err),
		)
		return false
	}

	if n > 0 {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.String("id", id),
			zap.String("dedup_key", key),
		)
		return true
	}
	return false
}

// MarkProcessed records id as finished for the dedup TTL.
func (d *Deduper) MarkProcessed(ctx context.Context, handler, id string) {
	if err := d.rdb.Set(ctx, DedupKey(handler, id), 1, d.ttl).Err(); err != nil {
		d.logger.Warn("Failed to mark event as processed",
			zap.String("handler", handler),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}
