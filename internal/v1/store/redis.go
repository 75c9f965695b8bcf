package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quizbattle/quizroom/internal/v1/metrics"
)

// RedisHotCache keeps room snapshots under a short TTL so a room can be
// rehydrated quickly after an eviction without touching Postgres.
type RedisHotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisHotCache connects to Redis and verifies connectivity.
func NewRedisHotCache(redisURL string, ttl time.Duration) (*RedisHotCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.DialTimeout = 10 * time.Second
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl < time.Minute {
		ttl = time.Minute
	}

	return &RedisHotCache{client: client, ttl: ttl}, nil
}

// NewRedisHotCacheFromClient wraps an existing client (used by tests with miniredis).
func NewRedisHotCacheFromClient(client *redis.Client, ttl time.Duration) *RedisHotCache {
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return &RedisHotCache{client: client, ttl: ttl}
}

// snapshotKey builds the cache key for a room. Key schema: "qb:room:snapshot:{id}".
func snapshotKey(roomID string) string {
	id := strings.ToUpper(roomID)
	if len(id) > 8 {
		id = id[:8]
	}
	return "qb:room:snapshot:" + id
}

// GetSnapshot returns the cached snapshot, or (nil, nil) on a miss or an
// unparseable payload. Cache reads never fail a room load.
func (c *RedisHotCache) GetSnapshot(ctx context.Context, roomID string) (*Snapshot, error) {
	raw, err := c.client.Get(ctx, snapshotKey(roomID)).Result()
	if err == redis.Nil {
		metrics.SnapshotLoads.WithLabelValues("hot", "miss").Inc()
		return nil, nil
	}
	if err != nil {
		metrics.SnapshotLoads.WithLabelValues("hot", "error").Inc()
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		metrics.SnapshotLoads.WithLabelValues("hot", "corrupt").Inc()
		return nil, nil
	}
	metrics.SnapshotLoads.WithLabelValues("hot", "hit").Inc()
	return &snap, nil
}

// SetSnapshot writes the snapshot with the configured TTL.
func (c *RedisHotCache) SetSnapshot(ctx context.Context, snap *Snapshot) error {
	payload := *snap
	payload.RoomID = strings.ToUpper(payload.RoomID)
	if len(payload.RoomID) > 8 {
		payload.RoomID = payload.RoomID[:8]
	}
	if len(payload.Topic) > 80 {
		payload.Topic = payload.Topic[:80]
	}
	if payload.UpdatedAt.IsZero() {
		payload.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := c.client.Set(ctx, snapshotKey(snap.RoomID), data, c.ttl).Err(); err != nil {
		metrics.SnapshotWrites.WithLabelValues("hot", "error").Inc()
		return fmt.Errorf("redis set failed: %w", err)
	}
	metrics.SnapshotWrites.WithLabelValues("hot", "success").Inc()
	return nil
}

// Ping verifies Redis connectivity.
func (c *RedisHotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *RedisHotCache) Close() error {
	return c.client.Close()
}
