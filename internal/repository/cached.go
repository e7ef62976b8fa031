package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/circuitbreaker"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/logger"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/metrics"
)

var ErrCacheMiss = errors.New("cache miss")

// tombstoneVersion outranks every real version, so nothing refills a deleted project's key.
const tombstoneVersion = math.MaxInt64

// Cache is the versioned byte store behind CachedProjectRepository.
// SetIfNewer only writes when version is greater than the version already cached under key.
// An empty payload is a tombstone and reads back as ErrCacheMiss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetIfNewer(ctx context.Context, key string, version int64, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// setIfNewer keeps {v, p} in a hash so the version comparison and the write are one atomic step.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'p', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

type RedisCache struct {
	rdb redis.Cmdable
}

func NewRedisCache(rdb redis.Cmdable) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.HGet(ctx, key, "p").Bytes()
	if errors.Is(err, redis.Nil) || (err == nil && len(b) == 0) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (c *RedisCache) SetIfNewer(ctx context.Context, key string, version int64, value []byte, ttl time.Duration) (bool, error) {
	n, err := setIfNewer.Run(ctx, c.rdb, []string{key}, version, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func projectCacheKey(id string) string {
	return fmt.Sprintf("project:%s", id)
}

// CachedProjectRepository is a read-through, write-through cache for projects.
// Every cache write carries the project version and never replaces a newer one, so a reader that
// loaded before a concurrent Save cannot put its stale copy back. A Save or Delete rejected by the
// store drops the key, so a stale entry that slipped in during a redis outage heals on the first
// conflict. Cache failures are logged and never fail the call; a circuit breaker stops hitting
// the cache while it is down.
type CachedProjectRepository struct {
	next    ProjectRepository
	cache   Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ ProjectRepository = (*CachedProjectRepository)(nil)

func NewCachedProjectRepository(next ProjectRepository, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedProjectRepository {
	cfg := circuitbreaker.DefaultConfig()
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("Project cache circuit breaker changed state",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return &CachedProjectRepository{
		next:    next,
		cache:   cache,
		ttl:     ttl,
		breaker: circuitbreaker.NewCircuitBreaker(cfg),
		logger:  logger,
	}
}

func (r *CachedProjectRepository) Load(ctx context.Context, id string) (*model.Project, error) {
	key := projectCacheKey(id)

	var raw []byte
	err := r.breaker.Execute(func() error {
		b, err := r.cache.Get(ctx, key)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		raw = b
		return err
	})
	if err != nil {
		metrics.IncrementCache("error")
		logger.WithTrace(ctx, r.logger).Warn("Project cache read failed", zap.String("key", key), zap.Error(err))
	} else if raw != nil {
		var p model.Project
		if uerr := json.Unmarshal(raw, &p); uerr == nil {
			metrics.IncrementCache("hit")
			return &p, nil
		}
		r.invalidate(ctx, id)
	}
	metrics.IncrementCache("miss")

	p, err := r.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, p)
	return p, nil
}

func (r *CachedProjectRepository) Save(ctx context.Context, p *model.Project) error {
	if err := r.next.Save(ctx, p); err != nil {
		r.invalidateOnReject(ctx, p.ID, err)
		return err
	}
	r.store(ctx, p)
	return nil
}

func (r *CachedProjectRepository) ListForParticipant(ctx context.Context, participantID string) ([]*model.Project, error) {
	return r.next.ListForParticipant(ctx, participantID)
}

func (r *CachedProjectRepository) Delete(ctx context.Context, p *model.Project) error {
	if err := r.next.Delete(ctx, p); err != nil {
		r.invalidateOnReject(ctx, p.ID, err)
		return err
	}
	if !r.put(ctx, p.ID, tombstoneVersion, []byte{}) {
		r.invalidate(ctx, p.ID)
	}
	return nil
}

// store caches p at its current version. A failed write falls back to dropping the key.
func (r *CachedProjectRepository) store(ctx context.Context, p *model.Project) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if !r.put(ctx, p.ID, p.Version, raw) {
		r.invalidate(ctx, p.ID)
	}
}

// put reports false only when the write failed; a write refused for being older is fine.
func (r *CachedProjectRepository) put(ctx context.Context, id string, version int64, raw []byte) bool {
	key := projectCacheKey(id)
	var written bool
	err := r.breaker.Execute(func() error {
		ok, err := r.cache.SetIfNewer(ctx, key, version, raw, r.ttl)
		written = ok
		return err
	})
	if err != nil {
		logger.WithTrace(ctx, r.logger).Warn("Project cache write failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !written {
		logger.WithTrace(ctx, r.logger).Debug("Project cache holds a newer version, skipped write",
			zap.String("key", key),
			zap.Int64("version", version),
		)
	}
	return true
}

func (r *CachedProjectRepository) invalidateOnReject(ctx context.Context, id string, err error) {
	var conflict *ConflictError
	var notFound *model.NotFoundError
	if errors.As(err, &conflict) || errors.As(err, &notFound) {
		r.invalidate(ctx, id)
	}
}

func (r *CachedProjectRepository) invalidate(ctx context.Context, id string) {
	key := projectCacheKey(id)
	if err := r.breaker.Execute(func() error { return r.cache.Del(ctx, key) }); err != nil {
		logger.WithTrace(ctx, r.logger).Warn("Project cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
