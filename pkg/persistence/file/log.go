package file

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
)

// LogRepository keeps one JSON array of entries per execution.
type LogRepository struct {
	store *store
}

func (r *LogRepository) Append(_ context.Context, entry *models.ExecutionLogEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

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

	var entries []*models.ExecutionLogEntry

	_, err := r.store.read(logsDir, entry.ExecutionID, &entries)
	if err != nil {
		return err
	}

	return r.store.write(logsDir, entry.ExecutionID, append(entries, entry))
}

func (r *LogRepository) ListByExecution(_ context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	entries := make([]*models.ExecutionLogEntry, 0)

	_, err := r.store.read(logsDir, executionID, &entries)
	if err != nil {
		return nil, err
	}

	return entries, nil
}
