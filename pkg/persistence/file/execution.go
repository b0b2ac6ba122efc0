package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionRepository handles execution context file operations.
type ExecutionRepository struct {
	store *store
}

func (r *ExecutionRepository) filter(match func(*models.ExecutionContext) bool) ([]*models.ExecutionContext, error) {
	found := make([]*models.ExecutionContext, 0)

	err := each(r.store, executionsDir, func(ec *models.ExecutionContext) error {
		if match(ec) {
			found = append(found, ec)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].CreatedAt.Equal(found[j].CreatedAt) {
			return found[i].ID < found[j].ID
		}

		return found[i].CreatedAt.Before(found[j].CreatedAt)
	})

	return found, nil
}

func (r *ExecutionRepository) CreateIfAbsent(_ context.Context, ec *models.ExecutionContext) (*models.ExecutionContext, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	active, err := r.filter(func(existing *models.ExecutionContext) bool {
		return existing.FlowID == ec.FlowID && existing.ContactID == ec.ContactID && !existing.Status.Terminal()
	})
	if err != nil {
		return nil, false, persistence.NewExecutionError("CreateIfAbsent", ec.ID, err)
	}

	if len(active) > 0 {
		return active[0], false, nil
	}

	if ec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, false, fmt.Errorf("failed to generate execution ID: %w", err)
		}

		ec.ID = id.String()
	}

	now := time.Now().UTC()
	ec.CreatedAt = now
	ec.UpdatedAt = now
	ec.Version = 1

	err = r.store.write(executionsDir, ec.ID, ec)
	if err != nil {
		return nil, false, persistence.NewExecutionError("CreateIfAbsent", ec.ID, err)
	}

	return ec, true, nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.ExecutionContext, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ec := &models.ExecutionContext{}

	found, err := r.store.read(executionsDir, id, ec)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewExecutionError("GetByID", id, models.ErrExecutionNotFound)
	}

	return ec, nil
}

func (r *ExecutionRepository) Update(_ context.Context, ec *models.ExecutionContext) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored := &models.ExecutionContext{}

	found, err := r.store.read(executionsDir, ec.ID, stored)
	if err != nil {
		return persistence.NewExecutionError("Update", ec.ID, err)
	}

	if !found {
		return persistence.NewExecutionError("Update", ec.ID, models.ErrExecutionNotFound)
	}

	if stored.Version != ec.Version {
		return persistence.NewExecutionError("Update", ec.ID, models.ErrStorageConflict)
	}

	next := *ec
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	err = r.store.write(executionsDir, ec.ID, &next)
	if err != nil {
		return persistence.NewExecutionError("Update", ec.ID, err)
	}

	ec.Version = next.Version
	ec.UpdatedAt = next.UpdatedAt

	return nil
}

func (r *ExecutionRepository) Latest(_ context.Context, flowID, contactID string) (*models.ExecutionContext, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	found, err := r.filter(func(ec *models.ExecutionContext) bool {
		return ec.FlowID == flowID && ec.ContactID == contactID
	})
	if err != nil {
		return nil, err
	}

	if len(found) == 0 {
		return nil, models.ErrExecutionNotFound
	}

	return found[len(found)-1], nil
}

func (r *ExecutionRepository) Waiting(_ context.Context, contactID string) ([]*models.ExecutionContext, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.filter(func(ec *models.ExecutionContext) bool {
		return ec.ContactID == contactID && ec.Status.Waiting()
	})
}

func (r *ExecutionRepository) PausedByFlow(_ context.Context, flowID string) ([]*models.ExecutionContext, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.filter(func(ec *models.ExecutionContext) bool {
		return ec.FlowID == flowID && ec.FlowPaused && !ec.Status.Terminal()
	})
}

func (r *ExecutionRepository) Stale(_ context.Context, before time.Time, limit int) ([]*models.ExecutionContext, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	found, err := r.filter(func(ec *models.ExecutionContext) bool {
		return ec.Status == models.ExecutionStatusRunning && !ec.FlowPaused && ec.UpdatedAt.Before(before)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].UpdatedAt.Before(found[j].UpdatedAt)
	})

	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	return found, nil
}
