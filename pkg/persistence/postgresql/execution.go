package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionRepository handles execution context database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const executionColumns = `
	id
  , flow_id
  , contact_id
  , organization_id
  , current_node_id
  , variables
  , flow_paused
  , status
  , wait
  , epoch
  , version
  , error
  , created_at
  , updated_at
  , completed_at
`

func scanExecution(row scanner) (*models.ExecutionContext, error) {
	var (
		ec          models.ExecutionContext
		variables   []byte
		wait        []byte
		execErr     []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&ec.ID,
		&ec.FlowID,
		&ec.ContactID,
		&ec.OrganizationID,
		&ec.CurrentNodeID,
		&variables,
		&ec.FlowPaused,
		&ec.Status,
		&wait,
		&ec.Epoch,
		&ec.Version,
		&execErr,
		&ec.CreatedAt,
		&ec.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	err = errors.Join(
		jsonColumn(variables, &ec.Variables),
		jsonColumn(wait, &ec.Wait),
		jsonColumn(execErr, &ec.Error),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", ec.ID, err)
	}

	if completedAt.Valid {
		ec.CompletedAt = &completedAt.Time
	}

	return &ec, nil
}

type executionParams struct {
	variables any
	wait      any
	err       any
}

func encodeExecution(ec *models.ExecutionContext) (*executionParams, error) {
	variables := ec.Variables
	if variables == nil {
		variables = map[string]any{}
	}

	var (
		params executionParams
		errs   [3]error
	)

	params.variables, errs[0] = jsonParam(variables)
	params.wait, errs[1] = jsonParam(ec.Wait)
	params.err, errs[2] = jsonParam(ec.Error)

	err := errors.Join(errs[:]...)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution %s: %w", ec.ID, err)
	}

	return &params, nil
}

// CreateIfAbsent relies on the partial unique index over non-terminal
// contexts. When the insert is skipped the live context is returned; the
// lookup is retried if that context finished in between.
func (r *ExecutionRepository) CreateIfAbsent(ctx context.Context, ec *models.ExecutionContext) (*models.ExecutionContext, bool, error) {
	if ec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, false, fmt.Errorf("failed to generate execution ID: %w", err)
		}

		ec.ID = id.String()
	}

	params, err := encodeExecution(ec)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()

	for range 3 {
		var id string

		err = r.db.QueryRowContext(ctx, `
			INSERT INTO execution_contexts (id, flow_id, contact_id, organization_id, current_node_id,
				variables, flow_paused, status, wait, epoch, version, error, created_at, updated_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12, $12, $13)
			ON CONFLICT (flow_id, contact_id) WHERE status IN `+nonTerminalStatuses+` DO NOTHING
			RETURNING id
		`,
			ec.ID,
			ec.FlowID,
			ec.ContactID,
			ec.OrganizationID,
			ec.CurrentNodeID,
			params.variables,
			ec.FlowPaused,
			ec.Status,
			params.wait,
			ec.Epoch,
			params.err,
			now,
			ec.CompletedAt,
		).Scan(&id)
		if err == nil {
			ec.Version = 1
			ec.CreatedAt = now
			ec.UpdatedAt = now

			return ec, true, nil
		}

		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, persistence.NewExecutionError("CreateIfAbsent", ec.ID, err)
		}

		row := r.db.QueryRowContext(ctx, `
			SELECT `+executionColumns+`
			FROM execution_contexts
			WHERE flow_id = $1 AND contact_id = $2 AND status IN `+nonTerminalStatuses,
			ec.FlowID, ec.ContactID)

		existing, err := scanExecution(row)
		if err == nil {
			return existing, false, nil
		}

		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, persistence.NewExecutionError("CreateIfAbsent", ec.ID, err)
		}
	}

	return nil, false, persistence.NewExecutionError("CreateIfAbsent", ec.ID, models.ErrStorageConflict)
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionContext, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+executionColumns+" FROM execution_contexts WHERE id = $1", id)

	ec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, models.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return ec, nil
}

func (r *ExecutionRepository) Update(ctx context.Context, ec *models.ExecutionContext) error {
	params, err := encodeExecution(ec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE execution_contexts SET
			current_node_id = $3,
			variables = $4,
			flow_paused = $5,
			status = $6,
			wait = $7,
			epoch = $8,
			error = $9,
			completed_at = $10,
			updated_at = $11,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		ec.ID,
		ec.Version,
		ec.CurrentNodeID,
		params.variables,
		ec.FlowPaused,
		ec.Status,
		params.wait,
		ec.Epoch,
		params.err,
		ec.CompletedAt,
		now,
	)
	if err != nil {
		return persistence.NewExecutionError("Update", ec.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Update", ec.ID, err)
	}

	if affected == 0 {
		var exists bool

		err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM execution_contexts WHERE id = $1)", ec.ID).Scan(&exists)
		if err != nil {
			return persistence.NewExecutionError("Update", ec.ID, err)
		}

		if !exists {
			return persistence.NewExecutionError("Update", ec.ID, models.ErrExecutionNotFound)
		}

		return persistence.NewExecutionError("Update", ec.ID, models.ErrStorageConflict)
	}

	ec.Version++
	ec.UpdatedAt = now

	return nil
}

func (r *ExecutionRepository) query(ctx context.Context, query string, args ...any) ([]*models.ExecutionContext, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution contexts: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	found := make([]*models.ExecutionContext, 0)

	for rows.Next() {
		ec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution context: %w", err)
		}

		found = append(found, ec)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution contexts: %w", err)
	}

	return found, nil
}

func (r *ExecutionRepository) Latest(ctx context.Context, flowID, contactID string) (*models.ExecutionContext, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+executionColumns+`
		FROM execution_contexts
		WHERE flow_id = $1 AND contact_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, flowID, contactID)

	ec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to load latest execution: %w", err)
	}

	return ec, nil
}

func (r *ExecutionRepository) Waiting(ctx context.Context, contactID string) ([]*models.ExecutionContext, error) {
	return r.query(ctx, `
		SELECT `+executionColumns+`
		FROM execution_contexts
		WHERE contact_id = $1 AND status IN ('waiting_external', 'waiting_timer')
		ORDER BY created_at, id
	`, contactID)
}

func (r *ExecutionRepository) PausedByFlow(ctx context.Context, flowID string) ([]*models.ExecutionContext, error) {
	return r.query(ctx, `
		SELECT `+executionColumns+`
		FROM execution_contexts
		WHERE flow_id = $1 AND flow_paused AND status IN `+nonTerminalStatuses+`
		ORDER BY created_at, id
	`, flowID)
}

func (r *ExecutionRepository) Stale(ctx context.Context, before time.Time, limit int) ([]*models.ExecutionContext, error) {
	return r.query(ctx, `
		SELECT `+executionColumns+`
		FROM execution_contexts
		WHERE status = 'running' AND NOT flow_paused AND updated_at < $1
		ORDER BY updated_at, id
		LIMIT $2
	`, before, limit)
}
