// Package redisqueue reads inbound events from a Redis list. Channel
// gateways RPUSH one JSON encoded event per message.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/go-playground/validator/v10"
	redis "github.com/redis/go-redis/v9"
)

const DefaultQueue = "chatflow:inbound"

var errStopped = errors.New("consumer already stopped")

// Handler receives every valid event, in queue order.
type Handler func(ctx context.Context, event models.InboundEvent) error

type Consumer struct {
	client   redis.UniversalClient
	queue    string
	handler  Handler
	validate *validator.Validate
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewConsumer(client redis.UniversalClient, queue string, handler Handler, logger *slog.Logger) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}

	return &Consumer{
		client:   client,
		queue:    queue,
		handler:  handler,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		stopCh:   make(chan struct{}),
		logger:   logger.With("module", "redis_inbound", "queue", queue),
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return errStopped
	default:
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.client.Ping(pingCtx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.wg.Add(1)

	go c.consume(ctx)

	c.logger.InfoContext(ctx, "Inbound queue consumer started")

	return nil
}

func (c *Consumer) consume(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			c.logger.InfoContext(ctx, "Inbound queue consumer stopped")

			return
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Context cancelled, stopping inbound queue consumer")

			return
		default:
			err := c.processMessage(ctx)
			if err != nil && ctx.Err() == nil {
				c.logger.ErrorContext(ctx, "Error processing inbound message", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context) error {
	result, err := c.client.BLPop(ctx, time.Second, c.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	raw := result[1]

	var event models.InboundEvent

	err = json.Unmarshal([]byte(raw), &event)
	if err != nil {
		c.logger.WarnContext(ctx, "Dropping undecodable inbound message", "error", err)

		return nil
	}

	err = c.validate.Struct(event)
	if err != nil {
		c.logger.WarnContext(ctx, "Dropping invalid inbound event", "error", err, "contact_id", event.ContactID)

		return nil
	}

	err = c.handler(ctx, event)
	if err != nil {
		pushErr := c.client.LPush(ctx, c.queue, raw).Err()
		if pushErr != nil {
			c.logger.ErrorContext(ctx, "Failed to requeue inbound event", "error", pushErr, "contact_id", event.ContactID)
		}

		return fmt.Errorf("failed to handle inbound event for contact %s: %w", event.ContactID, err)
	}

	return nil
}

// Stop waits for the message in progress. It does not close the client.
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Stopping inbound queue consumer")

	c.stopOnce.Do(func() {
		close(c.stopCh)
	})

	c.wg.Wait()

	return nil
}

// Push appends event to the queue. Gateways written in Go use it; others
// RPUSH the same JSON document.
func Push(ctx context.Context, client redis.UniversalClient, queue string, event models.InboundEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode inbound event: %w", err)
	}

	if queue == "" {
		queue = DefaultQueue
	}

	return client.RPush(ctx, queue, data).Err()
}
