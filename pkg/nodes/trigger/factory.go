package trigger

import (
	"github.com/dukex/chatflow/pkg/protocol"
)

const (
	TypeButtonClick     = "trigger:button_click"
	TypeKeyword         = "trigger:keyword"
	TypeWebhook         = "trigger:webhook"
	TypeMessageReceived = "trigger:message_received"
	TypeContactCreated  = "trigger:contact_created"
)

func emptySchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// Types returns the trigger node types.
func Types() []protocol.NodeType {
	return []protocol.NodeType{
		&protocol.Definition{
			ID:      TypeButtonClick,
			Label:   "Button click",
			Summary: "Starts the flow when the contact clicks a button, optionally a specific one.",
			Kind:    protocol.CategoryTrigger,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"button_text": map[string]any{"type": "string", "description": "Exact button text to react to"},
					"button_id":   map[string]any{"type": "string", "description": "Button identifier to react to"},
				},
			},
			DecodeFunc: protocol.DecodeAs[ButtonClickConfig],
		},
		&protocol.Definition{
			ID:      TypeKeyword,
			Label:   "Keyword",
			Summary: "Starts the flow when an inbound message matches one of the keywords.",
			Kind:    protocol.CategoryTrigger,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"keywords": map[string]any{
						"type":     "array",
						"minItems": 1,
						"items":    map[string]any{"type": "string", "minLength": 1},
					},
					"match": map[string]any{
						"type":    "string",
						"enum":    []string{MatchExact, MatchContains, MatchStartsWith},
						"default": MatchExact,
					},
					"case_sensitive": map[string]any{"type": "boolean", "default": false},
				},
				"required": []string{"keywords"},
			},
			DecodeFunc: protocol.DecodeAs[KeywordConfig],
		},
		&protocol.Definition{
			ID:      TypeWebhook,
			Label:   "Webhook",
			Summary: "Starts the flow when its webhook endpoint is called for a contact.",
			Kind:    protocol.CategoryTrigger,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"event": map[string]any{"type": "string", "description": "Required value of the payload event field"},
				},
			},
			DecodeFunc: protocol.DecodeAs[WebhookConfig],
		},
		&protocol.Definition{
			ID:           TypeMessageReceived,
			Label:        "Message received",
			Summary:      "Starts the flow on any inbound message.",
			Kind:         protocol.CategoryTrigger,
			ConfigSchema: emptySchema(),
			DecodeFunc:   protocol.DecodeAs[MessageReceivedConfig],
		},
		&protocol.Definition{
			ID:           TypeContactCreated,
			Label:        "Contact created",
			Summary:      "Starts the flow when a contact is created.",
			Kind:         protocol.CategoryTrigger,
			ConfigSchema: emptySchema(),
			DecodeFunc:   protocol.DecodeAs[ContactCreatedConfig],
		},
	}
}
