// Package cache implements the tenant-partitioned read-through cache.
// Keys are always derived from the ambient tenant context, never from
// caller-supplied tenant IDs, so a cache entry can never cross tenants.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/infrastructure/config"
	"github.com/saasbooks/backend/internal/infrastructure/logger"
	"github.com/saasbooks/backend/internal/tenantctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// trimSampleRate runs the soft-ceiling trim on one write in N.
const trimSampleRate = 16

// trimBatch is how many of the oldest keys one trim pass evicts.
const trimBatch = 32

// Loader produces the value on a cache miss.
type Loader func(ctx context.Context) ([]byte, error)

// NewClient creates a Redis client from configuration.
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return redis.NewClient(opts), nil
}

// Store is the read-through cache. A cache failure is never a request
// failure: errors fall through to the loader and repeated errors trip
// the circuit breaker for a cool-down period.
type Store struct {
	client  *redis.Client
	group   singleflight.Group
	breaker *breaker

	compressionThreshold int
	memoryCeiling        int64
	writes               atomic.Uint64
}

// NewStore creates a cache store.
func NewStore(client *redis.Client, cfg *config.CacheConfig) *Store {
	return &Store{
		client:               client,
		breaker:              newBreaker(cfg.CircuitCooldown),
		compressionThreshold: cfg.CompressionThresholdBytes,
		memoryCeiling:        cfg.TenantMemoryCeilingBytes,
	}
}

// keyFor builds the canonical tenant-partitioned key. It is the only
// place cache keys are assembled; a missing tenant context fails
// closed.
func (s *Store) keyFor(ctx context.Context, ns, key string) (string, error) {
	tc, err := tenantctx.Current(ctx)
	if err != nil {
		return "", shared.ErrNoContext
	}
	return fmt.Sprintf("tenant:%s:%s:%s", tc.TenantID, ns, key), nil
}

func trackerKey(fullKey string) string {
	// tenant:{id}:... -> tenant:{id}:cachekeys
	for i := len("tenant:"); i < len(fullKey); i++ {
		if fullKey[i] == ':' {
			return fullKey[:i] + ":cachekeys"
		}
	}
	return fullKey + ":cachekeys"
}

func usageKey(fullKey string) string {
	for i := len("tenant:"); i < len(fullKey); i++ {
		if fullKey[i] == ':' {
			return fullKey[:i] + ":cacheusage"
		}
	}
	return fullKey + ":cacheusage"
}

// Get returns the cached value for (ns, key), loading and storing it on
// a miss. Concurrent misses for the same key share one loader call.
func (s *Store) Get(ctx context.Context, ns, key string, ttl time.Duration, load Loader) ([]byte, error) {
	fullKey, err := s.keyFor(ctx, ns, key)
	if err != nil {
		return nil, err
	}

	if !s.breaker.allow() {
		return load(ctx)
	}

	stored, err := s.client.Get(ctx, fullKey).Bytes()
	if err == nil {
		payload, derr := decode(stored)
		if derr == nil {
			s.breaker.success()
			return payload, nil
		}
		// Corrupt entry: drop it and fall through to the loader.
		logger.L(ctx).Warn("dropping undecodable cache entry",
			zap.String("key", fullKey), zap.Error(derr))
		_ = s.client.Del(ctx, fullKey).Err()
	} else if err != redis.Nil {
		s.breaker.fail()
		logger.L(ctx).Warn("cache read failed, falling through to loader",
			zap.String("key", fullKey), zap.Error(err))
		return load(ctx)
	}

	v, err, _ := s.group.Do(fullKey, func() (any, error) {
		payload, err := load(ctx)
		if err != nil {
			return nil, err
		}
		s.store(ctx, fullKey, payload, ttl)
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// store writes the encoded value and updates the per-tenant tracking
// structures. Storage failures are logged, never surfaced.
func (s *Store) store(ctx context.Context, fullKey string, payload []byte, ttl time.Duration) {
	encoded, err := encode(payload, s.compressionThreshold)
	if err != nil {
		logger.L(ctx).Warn("failed to encode cache value", zap.String("key", fullKey), zap.Error(err))
		return
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fullKey, encoded, ttl)
	pipe.ZAdd(ctx, trackerKey(fullKey), redis.Z{Score: float64(time.Now().UnixNano()), Member: fullKey})
	pipe.IncrBy(ctx, usageKey(fullKey), int64(len(encoded)))
	if _, err := pipe.Exec(ctx); err != nil {
		s.breaker.fail()
		logger.L(ctx).Warn("cache write failed", zap.String("key", fullKey), zap.Error(err))
		return
	}
	s.breaker.success()

	if s.memoryCeiling > 0 && s.writes.Add(1)%trimSampleRate == 0 {
		s.trim(ctx, fullKey)
	}
}

// trim evicts the oldest tracked keys while the tenant's approximate
// usage exceeds the soft ceiling. Runs on a sampled fraction of writes
// so the hot path stays cheap.
func (s *Store) trim(ctx context.Context, fullKey string) {
	tracker := trackerKey(fullKey)
	usage := usageKey(fullKey)

	used, err := s.client.Get(ctx, usage).Int64()
	if err != nil || used <= s.memoryCeiling {
		return
	}

	for used > s.memoryCeiling {
		oldest, err := s.client.ZRange(ctx, tracker, 0, trimBatch-1).Result()
		if err != nil || len(oldest) == 0 {
			return
		}
		var freed int64
		for _, k := range oldest {
			n, err := s.client.StrLen(ctx, k).Result()
			if err == nil {
				freed += n
			}
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, oldest...)
		pipe.ZRem(ctx, tracker, toMembers(oldest)...)
		pipe.DecrBy(ctx, usage, freed)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.L(ctx).Warn("cache trim failed", zap.Error(err))
			return
		}
		used -= freed
		if freed == 0 {
			return
		}
	}
}

func toMembers(keys []string) []any {
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	return members
}

// Invalidate removes specific keys under a namespace for the ambient
// tenant.
func (s *Store) Invalidate(ctx context.Context, ns string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fk, err := s.keyFor(ctx, ns, k)
		if err != nil {
			return err
		}
		fullKeys[i] = fk
	}

	var freed int64
	for _, k := range fullKeys {
		if n, err := s.client.StrLen(ctx, k).Result(); err == nil {
			freed += n
		}
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, fullKeys...)
	pipe.ZRem(ctx, trackerKey(fullKeys[0]), toMembers(fullKeys)...)
	if freed > 0 {
		pipe.DecrBy(ctx, usageKey(fullKeys[0]), freed)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.breaker.fail()
		return shared.WrapError(shared.KindCacheUnavailable, "cache invalidation failed", err)
	}
	s.breaker.success()
	return nil
}

// InvalidateNamespace removes every key under (tenant, ns).
func (s *Store) InvalidateNamespace(ctx context.Context, ns string) error {
	prefix, err := s.keyFor(ctx, ns, "")
	if err != nil {
		return err
	}
	pattern := prefix + "*"

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			s.breaker.fail()
			return shared.WrapError(shared.KindCacheUnavailable, "cache scan failed", err)
		}
		if len(keys) > 0 {
			var freed int64
			for _, k := range keys {
				if n, err := s.client.StrLen(ctx, k).Result(); err == nil {
					freed += n
				}
			}
			pipe := s.client.TxPipeline()
			pipe.Del(ctx, keys...)
			pipe.ZRem(ctx, trackerKey(keys[0]), toMembers(keys)...)
			if freed > 0 {
				pipe.DecrBy(ctx, usageKey(keys[0]), freed)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				s.breaker.fail()
				return shared.WrapError(shared.KindCacheUnavailable, "cache invalidation failed", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	s.breaker.success()
	return nil
}

// Ping checks cache connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetJSON is a typed convenience over Get for JSON-encoded values.
func GetJSON[T any](ctx context.Context, s *Store, ns, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	raw, err := s.Get(ctx, ns, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("failed to decode cached value: %w", err)
	}
	return out, nil
}
