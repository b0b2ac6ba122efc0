package action_test

import (
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/nodes/action"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayConfig(t *testing.T) {
	t.Parallel()

	cfg, err := protocol.DecodeAs[action.DelayConfig](map[string]any{"amount": 1, "unit": "days"})
	require.NoError(t, err)
	assert.True(t, cfg.Suspends())

	outcome, err := cfg.Evaluate(t.Context(), protocol.EvalContext{})
	require.NoError(t, err)
	require.NotNil(t, outcome.Suspend)
	assert.Equal(t, 24*time.Hour, outcome.Suspend.Delay)
	assert.Empty(t, outcome.Suspend.Events)

	_, err = protocol.DecodeAs[action.DelayConfig](map[string]any{"amount": 0, "unit": "days"})
	require.ErrorIs(t, err, models.ErrConfigInvalid)
}

func TestCallWebhookConfig_Renders(t *testing.T) {
	t.Parallel()

	cfg, err := protocol.DecodeAs[action.CallWebhookConfig](map[string]any{
		"url":             "https://crm.example.com/orders/{{.vars.order}}",
		"headers":         map[string]any{"X-Contact": "{{.contact.id}}"},
		"body":            map[string]any{"name": "{{.contact.name}}"},
		"timeout_seconds": 5,
	})
	require.NoError(t, err)

	in := protocol.EvalContext{
		Contact:   &models.Contact{ID: "c-1", Name: "Ana"},
		Variables: map[string]any{"order": "77"},
	}

	outcome, err := cfg.Evaluate(t.Context(), in)
	require.NoError(t, err)

	req := outcome.SideEffect.Webhook
	assert.Equal(t, "https://crm.example.com/orders/77", req.URL)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "c-1", req.Headers["X-Contact"])
	assert.Equal(t, map[string]any{"name": "Ana"}, req.Body)
	assert.Equal(t, 5*time.Second, req.Timeout)
	assert.Equal(t, "webhook_response", outcome.SideEffect.ResultKey)
}

func TestWaitForReplyConfig(t *testing.T) {
	t.Parallel()

	cfg, err := protocol.DecodeAs[action.WaitForReplyConfig](map[string]any{"save_as": "answer", "timeout_seconds": 60})
	require.NoError(t, err)

	outcome, err := cfg.Evaluate(t.Context(), protocol.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, []models.EventKind{models.EventMessageReceived}, outcome.Suspend.Events)
	assert.Equal(t, time.Minute, outcome.Suspend.Delay)

	resumer := cfg.(protocol.Resumer)

	replied, err := resumer.Resume(t.Context(), protocol.EvalContext{}, models.InboundEvent{Kind: models.EventMessageReceived, Text: "sure"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": "sure", action.TimedOutVariable: false}, replied.ContextPatch)

	timedOut, err := resumer.Resume(t.Context(), protocol.EvalContext{}, models.InboundEvent{Kind: models.EventTimer})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{action.TimedOutVariable: true}, timedOut.ContextPatch)
}

func TestTransferToHumanConfig(t *testing.T) {
	t.Parallel()

	cfg, err := protocol.DecodeAs[action.TransferToHumanConfig](map[string]any{"team": "sales", "note": "{{.contact.name}} wants a quote"})
	require.NoError(t, err)

	outcome, err := cfg.Evaluate(t.Context(), protocol.EvalContext{Contact: &models.Contact{Name: "Rui"}})
	require.NoError(t, err)
	assert.Equal(t, protocol.SideEffectTransferToHuman, outcome.SideEffect.Kind)
	assert.Equal(t, "Rui wants a quote", outcome.SideEffect.Handoff.Note)
	assert.Equal(t, []models.EventKind{models.EventAgentReleased}, outcome.Suspend.Events)
}

func TestEndConfig(t *testing.T) {
	t.Parallel()

	cfg, err := protocol.DecodeAs[action.EndConfig](nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Handles())

	outcome, err := cfg.Evaluate(t.Context(), protocol.EvalContext{})
	require.NoError(t, err)
	assert.True(t, outcome.Terminal)
}
