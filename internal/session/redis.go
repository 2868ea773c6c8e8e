package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "glassvoice:session:"
	defaultRedisTTL = 24 * time.Hour
)

// redisAPI is the part of the redis client the snapshotter uses.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisSnapshotter keeps session snapshots in redis with a sliding TTL.
type RedisSnapshotter struct {
	client redisAPI
	ttl    time.Duration
}

func NewRedisSnapshotter(client redisAPI, ttl time.Duration) *RedisSnapshotter {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisSnapshotter{client: client, ttl: ttl}
}

func (r *RedisSnapshotter) Load(ctx context.Context, key string) (*Snapshot, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, fmt.Errorf("session: decode snapshot: %w", err)
	}
	return &snap, nil
}

func (r *RedisSnapshotter) Save(ctx context.Context, snap Snapshot) error {
	val, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("session: encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key(snap.Key), val, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func (r *RedisSnapshotter) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

func (r *RedisSnapshotter) key(id string) string {
	return redisKeyPrefix + id
}
