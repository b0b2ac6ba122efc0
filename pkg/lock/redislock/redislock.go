// Package redislock implements lock.Locker on Redis for multi-process
// deployments. A lock is a key holding a random token with a TTL that is
// extended while the holder is alive.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var errHeld = errors.New("lock held by another owner")

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type Option func(*Locker)

// WithTTL sets how long a lock survives a holder that stopped refreshing it.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		l.ttl = ttl
	}
}

func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

type Locker struct {
	client redis.UniversalClient
	logger *slog.Logger
	ttl    time.Duration
	prefix string
}

func New(client redis.UniversalClient, logger *slog.Logger, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		logger: logger,
		ttl:    30 * time.Second,
		prefix: "chatflow:lock:",
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 0
	policy.Reset()

	err := backoff.Retry(func() error {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(err)
		}

		if !ok {
			return errHeld
		}

		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("failed to acquire %s: %w", key, ctxErr)
		}

		return nil, fmt.Errorf("failed to acquire %s: %w", key, err)
	}

	refreshCtx, stopRefresh := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go l.refresh(refreshCtx, redisKey, token, done)

	return func() {
		stopRefresh()
		<-done

		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		err := unlockScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
		if err != nil {
			l.logger.ErrorContext(releaseCtx, "Failed to release lock", "key", key, "error", err)
		}
	}, nil
}

func (l *Locker) refresh(ctx context.Context, redisKey, token string, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := extendScript.Run(ctx, l.client, []string{redisKey}, token, l.ttl.Milliseconds()).Err()
			if err != nil && !errors.Is(err, context.Canceled) {
				l.logger.WarnContext(ctx, "Failed to extend lock", "key", redisKey, "error", err)
			}
		}
	}
}
