package idempotency

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis is a Store shared by every worker process. Keys expire after ttl.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: "chatflow:applied:", ttl: ttl}
}

func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key %s: %w", key, err)
	}

	return n > 0, nil
}

func (r *Redis) Remember(ctx context.Context, key string) error {
	err := r.client.Set(ctx, r.prefix+key, time.Now().UTC().Format(time.RFC3339), r.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to store idempotency key %s: %w", key, err)
	}

	return nil
}
