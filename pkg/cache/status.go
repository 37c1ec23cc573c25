// Package cache caches the live status of user accounts so the auth
// middleware does not hit the store on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"project-hub-backend/pkg/metrics"
	"project-hub-backend/pkg/models"
)

// Entry is what the auth middleware needs to know about a user.
type Entry struct {
	Status models.UserStatus `json:"status"`
	Role   models.Role       `json:"role"`
}

// StatusCache stores entries by user id. Get reports a miss with ok=false.
type StatusCache interface {
	Get(ctx context.Context, userID string) (entry Entry, ok bool, err error)
	Set(ctx context.Context, userID string, entry Entry) error
	Invalidate(ctx context.Context, userID string) error
	Close() error
}

// RedisConfig configures the Redis-backed cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

const keyPrefix = "user:status:"

// RedisCache keeps entries in Redis so every instance sees invalidations.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: cfg.TTL}, nil
}

func (c *RedisCache) Get(ctx context.Context, userID string) (Entry, bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyPrefix+userID, raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, keyPrefix+userID).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// MemoryCache is a per-process cache for single-instance deployments.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	Entry
	expires time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, entries: map[string]memoryEntry{}, now: time.Now}
}

func (c *MemoryCache) Get(ctx context.Context, userID string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[userID]
	if !ok || c.now().After(e.expires) {
		return Entry{}, false, nil
	}
	return e.Entry, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, userID string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = memoryEntry{Entry: entry, expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}

func (c *MemoryCache) Close() error { return nil }

// UserGetter loads users from the store.
type UserGetter interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Resolver answers status lookups from the cache, falling back to the store.
// Cache failures degrade to a store read.
type Resolver struct {
	cache  StatusCache
	users  UserGetter
	logger *zap.Logger
}

func NewResolver(cache StatusCache, users UserGetter, logger *zap.Logger) *Resolver {
	return &Resolver{cache: cache, users: users, logger: logger}
}

// Resolve returns the live entry of userID. Store errors (including
// not-found) are returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Entry, error) {
	entry, ok, err := r.cache.Get(ctx, userID)
	switch {
	case err != nil:
		metrics.RecordStatusCacheLookup("error")
		r.logger.Warn("Status cache read failed", zap.String("user_id", userID), zap.Error(err))
	case ok:
		metrics.RecordStatusCacheLookup("hit")
		return entry, nil
	default:
		metrics.RecordStatusCacheLookup("miss")
	}

	user, err := r.users.GetUserByID(ctx, userID)
	if err != nil {
		return Entry{}, err
	}
	entry = Entry{Status: user.Status, Role: user.Role}
	if err := r.cache.Set(ctx, userID, entry); err != nil {
		r.logger.Warn("Status cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return entry, nil
}

// Invalidate drops the cached entry of userID.
func (r *Resolver) Invalidate(ctx context.Context, userID string) {
	if err := r.cache.Invalidate(ctx, userID); err != nil {
		r.logger.Warn("Status cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}
