package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	base := NewBaseEvent(StepRequestedEvent, "flow-1")

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, StepRequestedEvent, base.Type)
	assert.Equal(t, "flow-1", base.FlowID)
	assert.False(t, base.Timestamp.IsZero())
}

func TestExecutionFinished_JSON(t *testing.T) {
	original := &ExecutionFinished{
		BaseEvent:   NewBaseEvent(ExecutionFinishedEvent, "flow-1"),
		ExecutionID: "exec-1",
		ContactID:   "c-1",
		Status:      models.ExecutionStatusFailed,
		Error:       &models.ExecutionError{Kind: models.ErrorKindSideEffectFailed, Message: "webhook down"},
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"execution.finished"`)
	assert.Contains(t, string(raw), `"kind":"SideEffectFailed"`)

	var decoded ExecutionFinished
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, original.ExecutionID, decoded.ExecutionID)
	assert.Equal(t, original.Status, decoded.Status)
	assert.Equal(t, original.Error, decoded.Error)
}

func TestInboundEventReceived_JSON(t *testing.T) {
	original := &InboundEventReceived{
		BaseEvent: NewBaseEvent(InboundEventReceivedEvent, ""),
		Event: models.InboundEvent{
			Kind:           models.EventButtonClick,
			OrganizationID: "org-1",
			ContactID:      "c-1",
			ButtonText:     "Yes",
		},
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded InboundEventReceived
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, InboundEventReceivedEvent, decoded.GetType())
	assert.Equal(t, original.Event, decoded.Event)
}
