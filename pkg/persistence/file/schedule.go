package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
)

// ScheduleRepository stores one file per scheduled resumption.
type ScheduleRepository struct {
	store *store
}

func (r *ScheduleRepository) Schedule(_ context.Context, resume *models.ScheduledResume) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if resume.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate schedule ID: %w", err)
		}

		resume.ID = id.String()
	}

	return r.store.write(schedulesDir, resume.ID, resume)
}

func (r *ScheduleRepository) ClaimDue(_ context.Context, now time.Time, owner string, lease time.Duration, limit int) ([]*models.ScheduledResume, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	due := make([]*models.ScheduledResume, 0)

	err := each(r.store, schedulesDir, func(resume *models.ScheduledResume) error {
		if resume.Claimable(now, lease) {
			due = append(due, resume)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].DueAt.Before(due[j].DueAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	for _, resume := range due {
		claimedAt := now
		resume.ClaimedAt = &claimedAt
		resume.ClaimedBy = owner

		err := r.store.write(schedulesDir, resume.ID, resume)
		if err != nil {
			return nil, err
		}
	}

	return due, nil
}

func (r *ScheduleRepository) MarkDelivered(_ context.Context, id string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	resume := &models.ScheduledResume{}

	found, err := r.store.read(schedulesDir, id, resume)
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("scheduled resume %s not found", id)
	}

	resume.DeliveredAt = &at

	return r.store.write(schedulesDir, id, resume)
}

func (r *ScheduleRepository) CancelByExecution(_ context.Context, executionID string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return each(r.store, schedulesDir, func(resume *models.ScheduledResume) error {
		if resume.ExecutionID != executionID || resume.DeliveredAt != nil || resume.CancelledAt != nil {
			return nil
		}

		resume.CancelledAt = &at

		return r.store.write(schedulesDir, resume.ID, resume)
	})
}
