// Package eventbus moves chatflow events between processes on top of a
// watermill publisher and subscriber.
package eventbus

import (
	"context"

	"github.com/dukex/chatflow/pkg/events"
)

// Event is any payload of the events package: step requests, inbound
// events, finished executions and handoff requests.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends an event keyed by the execution or contact it is
// about, so events of one key keep their order on partitioned brokers.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes received events to the handler registered for
// their type. Events of other types are acknowledged and skipped.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives the decoded event, a pointer to the events struct
// matching its type. A returned error nacks the message for redelivery.
type EventHandler func(ctx context.Context, event any) error

// EventBus carries execution.step_requested to the workers and
// inbound.received to the engine, and announces execution.finished and
// execution.handoff_requested to whoever listens.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	// GenerateID returns a fresh message id.
	GenerateID() string
}
