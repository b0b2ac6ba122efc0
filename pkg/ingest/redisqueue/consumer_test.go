package redisqueue_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/ingest/redisqueue"
	"github.com/dukex/chatflow/pkg/models"
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

type recorder struct {
	mu     sync.Mutex
	events []models.InboundEvent
}

func (r *recorder) handle(_ context.Context, event models.InboundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return nil
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	texts := make([]string, 0, len(r.events))
	for _, e := range r.events {
		texts = append(texts, e.Text)
	}

	return texts
}

func TestConsumer_DeliversInOrderAndDropsInvalid(t *testing.T) {
	client := setupRedis(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	rec := &recorder{}
	consumer := redisqueue.NewConsumer(client, "test:inbound", rec.handle, logger)

	require.NoError(t, consumer.Start(t.Context()))

	t.Cleanup(func() {
		_ = consumer.Stop(context.Background())
	})

	event := func(text string) models.InboundEvent {
		return models.InboundEvent{Kind: models.EventMessageReceived, OrganizationID: "org-1", ContactID: "c-1", Text: text}
	}

	require.NoError(t, redisqueue.Push(t.Context(), client, "test:inbound", event("one")))
	require.NoError(t, client.RPush(t.Context(), "test:inbound", "not json").Err())
	require.NoError(t, client.RPush(t.Context(), "test:inbound", `{"kind":"unknown","contact_id":"c-1"}`).Err())
	require.NoError(t, redisqueue.Push(t.Context(), client, "test:inbound", event("two")))

	assert.Eventually(t, func() bool {
		return len(rec.texts()) == 2
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"one", "two"}, rec.texts())
}

func TestConsumer_RequeuesOnHandlerError(t *testing.T) {
	client := setupRedis(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	var calls atomic.Int32

	handler := func(_ context.Context, _ models.InboundEvent) error {
		if calls.Add(1) == 1 {
			return errors.New("bus unavailable")
		}

		return nil
	}

	consumer := redisqueue.NewConsumer(client, "", handler, logger)
	require.NoError(t, consumer.Start(t.Context()))

	t.Cleanup(func() {
		_ = consumer.Stop(context.Background())
	})

	require.NoError(t, redisqueue.Push(t.Context(), client, "", models.InboundEvent{
		Kind: models.EventButtonClick, OrganizationID: "org-1", ContactID: "c-1", ButtonText: "Yes",
	}))

	assert.Eventually(t, func() bool {
		return calls.Load() == 2
	}, 10*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		n, err := client.LLen(t.Context(), redisqueue.DefaultQueue).Result()

		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)
}
