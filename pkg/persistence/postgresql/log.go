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

// LogRepository appends to and reads the execution_logs table.
type LogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *LogRepository) Append(ctx context.Context, entry *models.ExecutionLogEntry) error {
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate log entry ID: %w", err)
		}

		entry.ID = id.String()
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	input, err := jsonParam(entry.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal log input: %w", err)
	}

	output, err := jsonParam(entry.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal log output: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO execution_logs (id, execution_id, node_id, kind, status, attempt, input, output, error, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID,
		entry.ExecutionID,
		entry.NodeID,
		entry.Kind,
		entry.Status,
		entry.Attempt,
		input,
		output,
		entry.Error,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append log entry for execution %s: %w", entry.ExecutionID, err)
	}

	return nil
}

func (r *LogRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, node_id, kind, status, attempt, input, output, error, logged_at
		FROM execution_logs
		WHERE execution_id = $1
		ORDER BY logged_at, id
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	entries := make([]*models.ExecutionLogEntry, 0)

	for rows.Next() {
		var (
			entry         models.ExecutionLogEntry
			input, output []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.ExecutionID,
			&entry.NodeID,
			&entry.Kind,
			&entry.Status,
			&entry.Attempt,
			&input,
			&output,
			&entry.Error,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		err = jsonColumn(input, &entry.Input)
		if err == nil {
			err = jsonColumn(output, &entry.Output)
		}

		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry %s: %w", entry.ID, err)
		}

		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating log entries: %w", err)
	}

	return entries, nil
}
