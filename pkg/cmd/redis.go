package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/idempotency"
	"github.com/dukex/chatflow/pkg/lock"
	"github.com/dukex/chatflow/pkg/lock/redislock"
	redis "github.com/redis/go-redis/v9"
)

const idempotencyTTL = 7 * 24 * time.Hour

// NewRedisClient returns nil when redisURL is empty.
func NewRedisClient(redisURL string) redis.UniversalClient {
	if redisURL == "" {
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("invalid redis url: %w", err))
	}

	return redis.NewClient(opts)
}

// NewLocker shares locks through Redis when a client is configured. The
// in-process locker only serialises a single process.
func NewLocker(client redis.UniversalClient, logger *slog.Logger) lock.Locker {
	if client == nil {
		return lock.NewLocal()
	}

	return redislock.New(client, logger.With("module", "redislock"))
}

func NewIdempotencyStore(client redis.UniversalClient) idempotency.Store {
	if client == nil {
		return idempotency.NewMemory()
	}

	return idempotency.NewRedis(client, idempotencyTTL)
}
