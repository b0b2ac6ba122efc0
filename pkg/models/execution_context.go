package models

import (
	"slices"
	"time"
)

type ExecutionStatus string

const (
	ExecutionStatusRunning         ExecutionStatus = "running"
	ExecutionStatusWaitingExternal ExecutionStatus = "waiting_external"
	ExecutionStatusWaitingTimer    ExecutionStatus = "waiting_timer"
	ExecutionStatusCompleted       ExecutionStatus = "completed"
	ExecutionStatusFailed          ExecutionStatus = "failed"
	ExecutionStatusCancelled       ExecutionStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

func (s ExecutionStatus) Waiting() bool {
	return s == ExecutionStatusWaitingExternal || s == ExecutionStatusWaitingTimer
}

// NonTerminalStatuses lists the statuses counted by the one-active-context
// per (contact, flow) rule.
func NonTerminalStatuses() []ExecutionStatus {
	return []ExecutionStatus{ExecutionStatusRunning, ExecutionStatusWaitingExternal, ExecutionStatusWaitingTimer}
}

// Wait describes what a suspended execution is waiting for.
type Wait struct {
	NodeID string      `json:"node_id"`
	Events []EventKind `json:"events,omitempty"`
	DueAt  *time.Time  `json:"due_at,omitempty"`
	Since  time.Time   `json:"since"`
	// Deferred holds the event that arrived while the flow was paused.
	Deferred *InboundEvent `json:"deferred,omitempty"`
}

// Expired reports whether the wait has a timer that is due at now.
func (w *Wait) Expired(now time.Time) bool {
	return w != nil && w.DueAt != nil && !w.DueAt.After(now)
}

func (w *Wait) Accepts(kind EventKind) bool {
	return w != nil && slices.Contains(w.Events, kind)
}

type ExecutionError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ExecutionContext is the durable progress record of one contact through one flow.
type ExecutionContext struct {
	ID             string          `json:"id"`
	FlowID         string          `json:"flow_id"`
	ContactID      string          `json:"contact_id"`
	OrganizationID string          `json:"organization_id"`
	CurrentNodeID  string          `json:"current_node_id,omitempty"`
	Variables      map[string]any  `json:"variables"`
	FlowPaused     bool            `json:"flow_paused"`
	Status         ExecutionStatus `json:"status"`
	Wait           *Wait           `json:"wait,omitempty"`
	// Epoch counts evaluated nodes. It keys side effect idempotency and
	// discards stale timer deliveries.
	Epoch       int64           `json:"epoch"`
	Version     int64           `json:"version"`
	Error       *ExecutionError `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Merge copies patch into the variable bag.
func (ec *ExecutionContext) Merge(patch map[string]any) {
	if len(patch) == 0 {
		return
	}

	if ec.Variables == nil {
		ec.Variables = make(map[string]any, len(patch))
	}

	for k, v := range patch {
		ec.Variables[k] = v
	}
}
