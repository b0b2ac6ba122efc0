// Package models defines the core domain models for flow automation.
package models

import "time"

// FlowStatus represents the lifecycle state of a flow.
type FlowStatus string

const (
	FlowStatusDraft  FlowStatus = "draft"  // Editable, not executable
	FlowStatusActive FlowStatus = "active" // Validated and accepting triggers
	FlowStatusPaused FlowStatus = "paused" // Suspended by an operator
)

// ReentryPolicy decides whether a contact may start a flow again after a
// previous run of the same flow reached a terminal state.
type ReentryPolicy string

const (
	ReentryAlways   ReentryPolicy = "always"
	ReentryNever    ReentryPolicy = "never"
	ReentryCooldown ReentryPolicy = "cooldown"
)

type Reentry struct {
	Policy          ReentryPolicy `json:"policy,omitempty"           validate:"omitempty,oneof=always never cooldown"`
	CooldownSeconds int           `json:"cooldown_seconds,omitempty" validate:"gte=0"`
}

// FlowTrigger is the single entry condition of a flow.
type FlowTrigger struct {
	Type   string         `json:"type"             validate:"required"`
	Config map[string]any `json:"config,omitempty"`
}

// Flow is a stored automation graph definition.
type Flow struct {
	ID                  string      `json:"id"`
	OrganizationID      string      `json:"organization_id"      validate:"required"`
	Name                string      `json:"name"                 validate:"required,min=3"`
	Description         string      `json:"description"`
	Status              FlowStatus  `json:"status"               validate:"required,oneof=draft active paused"`
	IsActive            bool        `json:"is_active"`
	Trigger             FlowTrigger `json:"trigger"`
	Reentry             Reentry     `json:"reentry"`
	TotalExecutions     int64       `json:"total_executions"`
	SucceededExecutions int64       `json:"succeeded_executions"`
	FailedExecutions    int64       `json:"failed_executions"`
	LastExecutedAt      *time.Time  `json:"last_executed_at,omitempty"`
	GraphVersion        int64       `json:"graph_version"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Runnable reports whether the flow accepts triggers and resumptions.
func (f *Flow) Runnable() bool {
	return f.Status == FlowStatusActive && f.IsActive
}

// AllowsReentry applies the flow's re-entry policy to the previous run of a
// contact. prior must be terminal.
func (f *Flow) AllowsReentry(prior *ExecutionContext, now time.Time) bool {
	switch f.Reentry.Policy {
	case ReentryNever:
		return false
	case ReentryCooldown:
		if prior.CompletedAt == nil {
			return true
		}

		cooldown := time.Duration(f.Reentry.CooldownSeconds) * time.Second

		return !now.Before(prior.CompletedAt.Add(cooldown))
	default:
		return true
	}
}
