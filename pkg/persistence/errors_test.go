package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("flow error unwraps", func(t *testing.T) {
		err := persistence.NewFlowError("SaveGraph", "flow-123", models.ErrFlowNotFound)

		assert.True(t, persistence.IsFlowNotFound(err))
		assert.True(t, errors.Is(err, models.ErrFlowNotFound))
		assert.False(t, persistence.IsConflict(err))
	})

	t.Run("flow error contains context", func(t *testing.T) {
		err := &persistence.FlowError{Op: "Save", FlowID: "flow-123", Err: models.ErrStorageConflict, Message: "stale"}

		assert.Contains(t, err.Error(), "Save")
		assert.Contains(t, err.Error(), "flow-123")
		assert.Contains(t, err.Error(), "stale")
		assert.Contains(t, err.Error(), "storage conflict")
		assert.True(t, persistence.IsConflict(err))
	})

	t.Run("execution error unwraps", func(t *testing.T) {
		err := persistence.NewExecutionError("Update", "exec-1", models.ErrStorageConflict)

		assert.True(t, persistence.IsConflict(err))
		assert.False(t, persistence.IsExecutionNotFound(err))
		assert.Contains(t, err.Error(), "exec-1")
	})
}
