package trigger_test

import (
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/nodes/trigger"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordConfig_Matches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		config   map[string]any
		text     string
		expected bool
	}{
		{"exact ignores case by default", map[string]any{"keywords": []any{"promo"}}, " PROMO ", true},
		{"exact rejects longer text", map[string]any{"keywords": []any{"promo"}}, "promo please", false},
		{"contains", map[string]any{"keywords": []any{"promo"}, "match": "contains"}, "any promo today?", true},
		{"starts with", map[string]any{"keywords": []any{"hi", "hello"}, "match": "starts_with"}, "hello there", true},
		{"case sensitive", map[string]any{"keywords": []any{"Promo"}, "case_sensitive": true}, "promo", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := protocol.DecodeAs[trigger.KeywordConfig](tt.config)
			require.NoError(t, err)

			matcher := cfg.(protocol.TriggerConfig)
			assert.Equal(t, tt.expected, matcher.Matches(models.InboundEvent{Kind: models.EventMessageReceived, Text: tt.text}))
		})
	}
}

func TestKeywordConfig_RequiresKeywords(t *testing.T) {
	t.Parallel()

	_, err := protocol.DecodeAs[trigger.KeywordConfig](map[string]any{"keywords": []any{}})
	require.ErrorIs(t, err, models.ErrConfigInvalid)
}

func TestButtonClickConfig_Matches(t *testing.T) {
	t.Parallel()

	cfg, err := protocol.DecodeAs[trigger.ButtonClickConfig](map[string]any{"button_text": "Start"})
	require.NoError(t, err)

	matcher := cfg.(protocol.TriggerConfig)

	assert.True(t, matcher.Matches(models.InboundEvent{Kind: models.EventButtonClick, ButtonText: "Start"}))
	assert.False(t, matcher.Matches(models.InboundEvent{Kind: models.EventButtonClick, ButtonText: "Stop"}))
	assert.False(t, matcher.Matches(models.InboundEvent{Kind: models.EventMessageReceived, Text: "Start"}))
}

func TestWebhookConfig_Matches(t *testing.T) {
	t.Parallel()

	cfg, err := protocol.DecodeAs[trigger.WebhookConfig](map[string]any{"event": "order.paid"})
	require.NoError(t, err)

	matcher := cfg.(protocol.TriggerConfig)

	assert.True(t, matcher.Matches(models.InboundEvent{Kind: models.EventWebhook, Payload: map[string]any{"event": "order.paid"}}))
	assert.False(t, matcher.Matches(models.InboundEvent{Kind: models.EventWebhook, Payload: map[string]any{"event": "order.created"}}))
}

func TestTriggerEvaluate(t *testing.T) {
	t.Parallel()

	cfg, err := protocol.DecodeAs[trigger.ContactCreatedConfig](nil)
	require.NoError(t, err)

	outcome, err := cfg.Evaluate(t.Context(), protocol.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, protocol.HandleDefault, outcome.NextHandle)
	assert.Equal(t, []string{protocol.HandleDefault}, cfg.Handles())
}
