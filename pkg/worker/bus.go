package worker

import (
	"context"
	"log/slog"

	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
)

// BusEnqueuer hands executions to the worker fleet through the event bus.
// Steps of one execution share a partition key.
type BusEnqueuer struct {
	publisher eventbus.EventPublisher
	workerID  string
}

func NewBusEnqueuer(publisher eventbus.EventPublisher, workerID string) *BusEnqueuer {
	return &BusEnqueuer{publisher: publisher, workerID: workerID}
}

func (b *BusEnqueuer) Enqueue(ctx context.Context, executionID string) error {
	event := &events.StepRequested{
		BaseEvent:   events.NewBaseEvent(events.StepRequestedEvent, ""),
		ExecutionID: executionID,
	}
	event.WorkerID = b.workerID

	return b.publisher.Publish(ctx, executionID, event)
}

// PublishInbound queues an inbound event for the workers, keyed by contact
// so the events of one contact are handled in order.
func PublishInbound(ctx context.Context, publisher eventbus.EventPublisher, event models.InboundEvent) error {
	return publisher.Publish(ctx, event.ContactID, &events.InboundEventReceived{
		BaseEvent: events.NewBaseEvent(events.InboundEventReceivedEvent, event.FlowID),
		Event:     event,
	})
}

// Manager consumes step requests and inbound events from the bus.
type Manager struct {
	id     string
	engine Engine
	bus    eventbus.EventSubscriber
	logger *slog.Logger
}

func NewManager(id string, engine Engine, bus eventbus.EventSubscriber, logger *slog.Logger) *Manager {
	return &Manager{
		id:     id,
		engine: engine,
		bus:    bus,
		logger: logger.With("module", "chatflow-worker", "worker_id", id),
	}
}

// Start registers the handlers and subscribes. It returns once the
// subscription is running.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Starting worker manager")

	err := m.bus.Handle(events.StepRequestedEvent, m.handleStepRequested)
	if err != nil {
		return err
	}

	err = m.bus.Handle(events.InboundEventReceivedEvent, m.handleInboundEvent)
	if err != nil {
		return err
	}

	err = m.bus.Subscribe(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	m.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

func (m *Manager) handleStepRequested(ctx context.Context, event any) error {
	stepEvent, ok := event.(*events.StepRequested)
	if !ok {
		m.logger.ErrorContext(ctx, "Invalid event type for StepRequested")

		return nil
	}

	logger := m.logger.With("execution_id", stepEvent.ExecutionID, "event_id", stepEvent.ID)
	logger.DebugContext(ctx, "Processing step requested event")

	err := m.engine.Step(ctx, stepEvent.ExecutionID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to step execution", "error", err)

		return err
	}

	return nil
}

func (m *Manager) handleInboundEvent(ctx context.Context, event any) error {
	inbound, ok := event.(*events.InboundEventReceived)
	if !ok {
		m.logger.ErrorContext(ctx, "Invalid event type for InboundEventReceived")

		return nil
	}

	logger := m.logger.With("contact_id", inbound.Event.ContactID, "kind", inbound.Event.Kind, "event_id", inbound.ID)
	logger.DebugContext(ctx, "Processing inbound event")

	touched, err := m.engine.HandleEvent(ctx, inbound.Event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to handle inbound event", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Inbound event handled", "executions", len(touched))

	return nil
}
