// Package persistence provides the storage abstraction for flows, their
// graphs, execution contexts, execution logs, scheduled resumptions and
// contacts.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

type Persistence interface {
	FlowRepository() FlowRepository
	ExecutionRepository() ExecutionRepository
	LogRepository() LogRepository
	ScheduleRepository() ScheduleRepository
	ContactRepository() ContactRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// FlowRepository stores flow definitions and their node/edge graphs.
type FlowRepository interface {
	// Save inserts or updates the flow definition. Counters and the graph
	// version are owned by IncrementCounters and SaveGraph and are never
	// overwritten.
	Save(ctx context.Context, flow *models.Flow) error
	GetByID(ctx context.Context, id string) (*models.Flow, error)
	// List returns the flows of an organization, or every flow when orgID is empty.
	List(ctx context.Context, orgID string) ([]*models.Flow, error)
	// ActiveByTrigger returns the runnable flows of an organization started
	// by triggerType.
	ActiveByTrigger(ctx context.Context, orgID, triggerType string) ([]*models.Flow, error)
	Delete(ctx context.Context, id string) error

	// SaveGraph atomically replaces the flow's nodes and edges and returns
	// the new graph version.
	SaveGraph(ctx context.Context, flowID string, nodes []*models.Node, edges []*models.Edge) (int64, error)
	LoadGraph(ctx context.Context, flowID string) ([]*models.Node, []*models.Edge, error)

	// IncrementCounters records one execution reaching the terminal status.
	IncrementCounters(ctx context.Context, flowID string, status models.ExecutionStatus, at time.Time) error
}

// ExecutionRepository stores execution contexts. At most one non-terminal
// context exists per (flow, contact).
type ExecutionRepository interface {
	// CreateIfAbsent inserts ec unless the contact already has a non-terminal
	// context for the flow, in which case that context is returned with
	// created set to false.
	CreateIfAbsent(ctx context.Context, ec *models.ExecutionContext) (*models.ExecutionContext, bool, error)
	GetByID(ctx context.Context, id string) (*models.ExecutionContext, error)
	// Update writes ec if its Version still matches the stored one and
	// increments ec.Version. Otherwise it returns models.ErrStorageConflict.
	Update(ctx context.Context, ec *models.ExecutionContext) error
	// Latest returns the most recently created context of the contact for the flow.
	Latest(ctx context.Context, flowID, contactID string) (*models.ExecutionContext, error)
	// Waiting returns the suspended contexts of a contact.
	Waiting(ctx context.Context, contactID string) ([]*models.ExecutionContext, error)
	// PausedByFlow returns the non-terminal contexts held back by a paused flow.
	PausedByFlow(ctx context.Context, flowID string) ([]*models.ExecutionContext, error)
	// Stale returns up to limit running contexts of runnable flows not
	// updated since before, oldest first.
	Stale(ctx context.Context, before time.Time, limit int) ([]*models.ExecutionContext, error)
}

// LogRepository is the append-only execution log.
type LogRepository interface {
	Append(ctx context.Context, entry *models.ExecutionLogEntry) error
	ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLogEntry, error)
}

// ScheduleRepository stores timer resumptions.
type ScheduleRepository interface {
	Schedule(ctx context.Context, resume *models.ScheduledResume) error
	// ClaimDue leases up to limit due records to owner. A record whose lease
	// expired without delivery can be claimed again.
	ClaimDue(ctx context.Context, now time.Time, owner string, lease time.Duration, limit int) ([]*models.ScheduledResume, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	// CancelByExecution cancels every pending record of an execution.
	CancelByExecution(ctx context.Context, executionID string, at time.Time) error
}

// ContactRepository is the engine's contact store.
type ContactRepository interface {
	GetByID(ctx context.Context, id string) (*models.Contact, error)
	// Save inserts the contact when Version is zero and otherwise updates it
	// if Version still matches. It increments contact.Version.
	Save(ctx context.Context, contact *models.Contact) error
}
