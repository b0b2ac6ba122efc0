package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
)

// ScheduleRepository stores timer resumptions. Claims use FOR UPDATE SKIP
// LOCKED so concurrent pollers never lease the same record.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ScheduleRepository) Schedule(ctx context.Context, resume *models.ScheduledResume) error {
	if resume.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate schedule ID: %w", err)
		}

		resume.ID = id.String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_resumes (id, execution_id, epoch, due_at)
		VALUES ($1, $2, $3, $4)
	`, resume.ID, resume.ExecutionID, resume.Epoch, resume.DueAt)
	if err != nil {
		return fmt.Errorf("failed to schedule resume for execution %s: %w", resume.ExecutionID, err)
	}

	return nil
}

func (r *ScheduleRepository) ClaimDue(ctx context.Context, now time.Time, owner string, lease time.Duration, limit int) ([]*models.ScheduledResume, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE scheduled_resumes SET claimed_at = $1, claimed_by = $2
		WHERE id IN (
			SELECT id FROM scheduled_resumes
			WHERE delivered_at IS NULL
			  AND cancelled_at IS NULL
			  AND due_at <= $1
			  AND (claimed_at IS NULL OR claimed_at <= $3)
			ORDER BY due_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, execution_id, epoch, due_at, claimed_at, claimed_by
	`, now, owner, now.Add(-lease), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due resumes: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	claimed := make([]*models.ScheduledResume, 0)

	for rows.Next() {
		var (
			resume    models.ScheduledResume
			claimedAt time.Time
		)

		err := rows.Scan(&resume.ID, &resume.ExecutionID, &resume.Epoch, &resume.DueAt, &claimedAt, &resume.ClaimedBy)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed resume: %w", err)
		}

		resume.ClaimedAt = &claimedAt
		claimed = append(claimed, &resume)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating claimed resumes: %w", err)
	}

	return claimed, nil
}

func (r *ScheduleRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE scheduled_resumes SET delivered_at = $2 WHERE id = $1", id, at)
	if err != nil {
		return fmt.Errorf("failed to mark resume %s delivered: %w", id, err)
	}

	return nil
}

func (r *ScheduleRepository) CancelByExecution(ctx context.Context, executionID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_resumes SET cancelled_at = $2
		WHERE execution_id = $1 AND delivered_at IS NULL AND cancelled_at IS NULL
	`, executionID, at)
	if err != nil {
		return fmt.Errorf("failed to cancel resumes of execution %s: %w", executionID, err)
	}

	return nil
}
