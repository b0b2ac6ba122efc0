package eventbus_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/chatflow/pkg/channels/gochannel"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, logger)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newBus(t)

	received := make(chan *events.StepRequested, 1)

	require.NoError(t, bus.Handle(events.StepRequestedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.StepRequested)

		return nil
	}))

	require.NoError(t, bus.Subscribe(t.Context()))

	err := bus.Publish(t.Context(), "exec-1", &events.StepRequested{
		BaseEvent:   events.NewBaseEvent(events.StepRequestedEvent, "flow-1"),
		ExecutionID: "exec-1",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "exec-1", event.ExecutionID)
		assert.Equal(t, "flow-1", event.FlowID)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWatermillEventBus_UnhandledTypesAreSkipped(t *testing.T) {
	bus := newBus(t)

	received := make(chan *events.InboundEventReceived, 1)

	require.NoError(t, bus.Handle(events.InboundEventReceivedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.InboundEventReceived)

		return nil
	}))

	require.NoError(t, bus.Subscribe(t.Context()))

	require.NoError(t, bus.Publish(t.Context(), "exec-1", &events.ExecutionFinished{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFinishedEvent, "flow-1"),
		ExecutionID: "exec-1",
		Status:      models.ExecutionStatusCompleted,
	}))

	require.NoError(t, bus.Publish(t.Context(), "c-1", &events.InboundEventReceived{
		BaseEvent: events.NewBaseEvent(events.InboundEventReceivedEvent, ""),
		Event:     models.InboundEvent{Kind: models.EventMessageReceived, OrganizationID: "org-1", ContactID: "c-1", Text: "hi"},
	}))

	select {
	case event := <-received:
		assert.Equal(t, "hi", event.Event.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newBus(t)

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}

func TestWatermillEventBus_HandlerErrorRedelivers(t *testing.T) {
	bus := newBus(t)

	attempts := make(chan string, 2)

	var calls atomic.Int32

	require.NoError(t, bus.Handle(events.HumanHandoffRequestedEvent, func(_ context.Context, event any) error {
		handoff := event.(*events.HumanHandoffRequested)
		attempts <- handoff.ExecutionID

		if calls.Add(1) == 1 {
			return errors.New("agent desk offline")
		}

		return nil
	}))

	require.NoError(t, bus.Subscribe(t.Context()))

	require.NoError(t, bus.Publish(t.Context(), "c-1", &events.HumanHandoffRequested{
		BaseEvent:   events.NewBaseEvent(events.HumanHandoffRequestedEvent, "flow-1"),
		ExecutionID: "exec-1",
	}))

	for range 2 {
		select {
		case id := <-attempts:
			assert.Equal(t, "exec-1", id)
		case <-time.After(5 * time.Second):
			t.Fatal("event not redelivered")
		}
	}
}
