package redislock_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/lock/redislock"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("redis tests need docker")
	}

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func TestLocker_MutualExclusion(t *testing.T) {
	client := setupRedis(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	lockers := []*redislock.Locker{
		redislock.New(client, logger, redislock.WithTTL(time.Second)),
		redislock.New(client, logger, redislock.WithTTL(time.Second)),
	}

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		overlap atomic.Bool
	)

	for i := range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock, err := lockers[i%2].Lock(t.Context(), "execution:exec-1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			if inside.Add(1) > 1 {
				overlap.Store(true)
			}

			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
		}()
	}

	wg.Wait()

	assert.False(t, overlap.Load())
}

func TestLocker_RefreshKeepsLockPastTTL(t *testing.T) {
	client := setupRedis(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	locker := redislock.New(client, logger, redislock.WithTTL(300*time.Millisecond))

	unlock, err := locker.Lock(t.Context(), "contact:c-1")
	require.NoError(t, err)

	time.Sleep(time.Second)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, "contact:c-1")
	require.ErrorIs(t, err, context.DeadlineExceeded, "holder still owns the lock")

	unlock()

	again, err := locker.Lock(t.Context(), "contact:c-1")
	require.NoError(t, err)
	again()

	exists, err := client.Exists(t.Context(), "chatflow:lock:contact:c-1").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestLocker_ReleaseFailureIsLogged(t *testing.T) {
	client := setupRedis(t)

	var out bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelWarn}))
	locker := redislock.New(client, logger)

	unlock, err := locker.Lock(t.Context(), "execution:e-1")
	require.NoError(t, err)

	require.NoError(t, client.Close())
	unlock()

	assert.Contains(t, out.String(), `"msg":"Failed to release lock"`)
	assert.Contains(t, out.String(), `"key":"execution:e-1"`)
}
