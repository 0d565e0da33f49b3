package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chat:presence:"

// RedisTracker shares presence state across API instances.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTracker connects to Redis and verifies connectivity.
func NewRedisTracker(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisTracker{client: client, ttl: ttl}, nil
}

// Close releases the client.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}

func (t *RedisTracker) SetOnline(ctx context.Context, userID string) error {
	return t.client.Set(ctx, keyPrefix+userID, "1", t.ttl).Err()
}

func (t *RedisTracker) Heartbeat(ctx context.Context, userID string) error {
	return t.client.Expire(ctx, keyPrefix+userID, t.ttl).Err()
}

func (t *RedisTracker) SetOffline(ctx context.Context, userID string) error {
	return t.client.Del(ctx, keyPrefix+userID).Err()
}

func (t *RedisTracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := t.client.Exists(ctx, keyPrefix+userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
