package action

import (
	"github.com/dukex/chatflow/pkg/protocol"
)

const (
	TypeAddTag          = "action:add_tag"
	TypeRemoveTag       = "action:remove_tag"
	TypeUpdateField     = "action:update_field"
	TypeCallWebhook     = "action:call_webhook"
	TypeDelay           = "action:delay"
	TypeWaitForReply    = "action:wait_for_reply"
	TypeTransferToHuman = "action:transfer_to_human"
	TypeEnd             = "action:end"
)

func tagSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tag": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{"tag"},
	}
}

// Types returns the action node types.
func Types() []protocol.NodeType {
	return []protocol.NodeType{
		&protocol.Definition{
			ID:           TypeAddTag,
			Label:        "Add tag",
			Summary:      "Adds a tag to the contact.",
			Kind:         protocol.CategoryAction,
			ConfigSchema: tagSchema(),
			DecodeFunc:   protocol.DecodeAs[AddTagConfig],
		},
		&protocol.Definition{
			ID:           TypeRemoveTag,
			Label:        "Remove tag",
			Summary:      "Removes a tag from the contact.",
			Kind:         protocol.CategoryAction,
			ConfigSchema: tagSchema(),
			DecodeFunc:   protocol.DecodeAs[RemoveTagConfig],
		},
		&protocol.Definition{
			ID:      TypeUpdateField,
			Label:   "Update field",
			Summary: "Sets a custom field on the contact.",
			Kind:    protocol.CategoryAction,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"field": map[string]any{"type": "string", "minLength": 1},
					"value": map[string]any{"description": "New value. Strings support {{.vars.name}} placeholders."},
				},
				"required": []string{"field", "value"},
			},
			DecodeFunc: protocol.DecodeAs[UpdateFieldConfig],
		},
		&protocol.Definition{
			ID:      TypeCallWebhook,
			Label:   "Call webhook",
			Summary: "Calls an external HTTP endpoint and stores the response in a flow variable.",
			Kind:    protocol.CategoryAction,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url":              map[string]any{"type": "string", "minLength": 1},
					"method":           map[string]any{"type": "string", "enum": []string{"GET", "POST", "PUT", "PATCH", "DELETE"}, "default": "POST"},
					"headers":          map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
					"body":             map[string]any{},
					"timeout_seconds":  map[string]any{"type": "integer", "minimum": 0, "maximum": 300},
					"save_response_as": map[string]any{"type": "string", "default": defaultResponseVariable},
				},
				"required": []string{"url"},
			},
			DecodeFunc: protocol.DecodeAs[CallWebhookConfig],
		},
		&protocol.Definition{
			ID:      TypeDelay,
			Label:   "Delay",
			Summary: "Waits for a fixed amount of time before continuing.",
			Kind:    protocol.CategoryAction,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"amount": map[string]any{"type": "integer", "minimum": 1},
					"unit":   map[string]any{"type": "string", "enum": []string{"seconds", "minutes", "hours", "days"}},
				},
				"required": []string{"amount", "unit"},
			},
			DecodeFunc: protocol.DecodeAs[DelayConfig],
		},
		&protocol.Definition{
			ID:      TypeWaitForReply,
			Label:   "Wait for reply",
			Summary: "Waits for the contact's next message, optionally with a timeout.",
			Kind:    protocol.CategoryAction,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"save_as":         map[string]any{"type": "string", "default": defaultReplyVariable},
					"timeout_seconds": map[string]any{"type": "integer", "minimum": 0},
				},
			},
			DecodeFunc: protocol.DecodeAs[WaitForReplyConfig],
		},
		&protocol.Definition{
			ID:      TypeTransferToHuman,
			Label:   "Transfer to human",
			Summary: "Hands the conversation to an agent and waits until it is released.",
			Kind:    protocol.CategoryAction,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"team": map[string]any{"type": "string"},
					"note": map[string]any{"type": "string"},
				},
			},
			DecodeFunc: protocol.DecodeAs[TransferToHumanConfig],
		},
		&protocol.Definition{
			ID:      TypeEnd,
			Label:   "End",
			Summary: "Completes the execution.",
			Kind:    protocol.CategoryAction,
			ConfigSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			DecodeFunc: protocol.DecodeAs[EndConfig],
		},
	}
}
