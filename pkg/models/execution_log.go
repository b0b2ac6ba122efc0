package models

import "time"

type LogStatus string

const (
	LogStatusSuccess LogStatus = "success"
	LogStatusError   LogStatus = "error"
)

// LogKind separates node evaluations from dispatcher attempts and lifecycle
// transitions in the execution log.
type LogKind string

const (
	LogKindStep       LogKind = "step"
	LogKindSideEffect LogKind = "side_effect"
	LogKindTransition LogKind = "transition"
)

// ExecutionLogEntry is an immutable observability record. The engine never
// reads it back.
type ExecutionLogEntry struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id,omitempty"`
	Kind        LogKind        `json:"kind"`
	Status      LogStatus      `json:"status"`
	Attempt     int            `json:"attempt,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
