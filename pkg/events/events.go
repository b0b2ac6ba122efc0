// Package events defines the messages exchanged between the chatflow
// processes over the event bus.
package events

import (
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every chatflow event. Messages are keyed by execution id or
// contact id so one partition sees one contact in order.
const Topic = "chatflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	StepRequestedEvent         EventType = "execution.step_requested"
	ExecutionFinishedEvent     EventType = "execution.finished"
	HumanHandoffRequestedEvent EventType = "execution.handoff_requested"
	InboundEventReceivedEvent  EventType = "inbound.received"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	FlowID    string         `json:"flow_id,omitempty"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, flowID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		FlowID:    flowID,
		Metadata:  make(map[string]any),
	}
}

// StepRequested asks a worker to advance a running execution.
type StepRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e StepRequested) GetType() EventType {
	return StepRequestedEvent
}

// InboundEventReceived carries an external signal accepted by the API.
type InboundEventReceived struct {
	BaseEvent

	Event models.InboundEvent `json:"event"`
}

func (e InboundEventReceived) GetType() EventType {
	return InboundEventReceivedEvent
}

// HumanHandoffRequested notifies the agent inbox that a contact waits for a human.
type HumanHandoffRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	ContactID   string `json:"contact_id"`
	NodeID      string `json:"node_id"`
	Team        string `json:"team,omitempty"`
	Note        string `json:"note,omitempty"`
}

func (e HumanHandoffRequested) GetType() EventType {
	return HumanHandoffRequestedEvent
}

// ExecutionFinished is published once per execution reaching a terminal status.
type ExecutionFinished struct {
	BaseEvent

	ExecutionID string                 `json:"execution_id"`
	ContactID   string                 `json:"contact_id"`
	Status      models.ExecutionStatus `json:"status"`
	Error       *models.ExecutionError `json:"error,omitempty"`
	Duration    time.Duration          `json:"duration"`
}

func (e ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}
