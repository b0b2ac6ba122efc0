// Package worker runs execution steps and inbound events off the request
// path, either on an in-process pool or on consumers of the event bus.
package worker

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
)

// Stepper advances a running execution.
type Stepper interface {
	Step(ctx context.Context, executionID string) error
}

// EventHandler delivers an inbound event to the waiting executions and
// triggers of its contact.
type EventHandler interface {
	HandleEvent(ctx context.Context, event models.InboundEvent) ([]*models.ExecutionContext, error)
}

// Engine is what a bus consumer needs from the engine.
type Engine interface {
	Stepper
	EventHandler
}
