package message

import (
	"github.com/dukex/chatflow/pkg/protocol"
)

const (
	TypeSendText     = "message:send_text"
	TypeSendTemplate = "message:send_template"
	TypeSendButtons  = "message:send_buttons"
	TypeSendList     = "message:send_list"
	TypeSendMedia    = "message:send_media"
	TypeSendCTAURL   = "message:send_cta_url"
)

func textSchema() map[string]any {
	return map[string]any{
		"type":        "string",
		"minLength":   1,
		"description": "Message text. Supports {{.contact.name}} and {{.vars.name}} placeholders.",
	}
}

func buttonsSchema(maxItems int) map[string]any {
	schema := map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":   map[string]any{"type": "string"},
				"text": map[string]any{"type": "string", "minLength": 1},
			},
			"required": []string{"text"},
		},
	}

	if maxItems > 0 {
		schema["minItems"] = 1
		schema["maxItems"] = maxItems
	}

	return schema
}

// Types returns the message node types.
func Types() []protocol.NodeType {
	return []protocol.NodeType{
		&protocol.Definition{
			ID:      TypeSendText,
			Label:   "Send text",
			Summary: "Sends a plain text message.",
			Kind:    protocol.CategoryMessage,
			ConfigSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": textSchema()},
				"required":   []string{"text"},
			},
			DecodeFunc: protocol.DecodeAs[SendTextConfig],
		},
		&protocol.Definition{
			ID:      TypeSendTemplate,
			Label:   "Send template",
			Summary: "Sends an approved template. Can wait for one of its buttons and branch on it.",
			Kind:    protocol.CategoryMessage,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"template_name":            map[string]any{"type": "string", "minLength": 1},
					"language":                 map[string]any{"type": "string", "examples": []string{"pt_BR", "en_US"}},
					"parameters":               map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"buttons":                  buttonsSchema(0),
					"wait_for_button_response": map[string]any{"type": "boolean", "default": false},
				},
				"required": []string{"template_name"},
			},
			DecodeFunc: protocol.DecodeAs[SendTemplateConfig],
		},
		&protocol.Definition{
			ID:      TypeSendButtons,
			Label:   "Send buttons",
			Summary: "Sends an interactive message with up to three reply buttons.",
			Kind:    protocol.CategoryMessage,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text":    textSchema(),
					"buttons": buttonsSchema(3),
				},
				"required": []string{"text", "buttons"},
			},
			DecodeFunc: protocol.DecodeAs[SendButtonsConfig],
		},
		&protocol.Definition{
			ID:      TypeSendList,
			Label:   "Send list",
			Summary: "Sends an interactive list message.",
			Kind:    protocol.CategoryMessage,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text":        textSchema(),
					"button_text": map[string]any{"type": "string", "minLength": 1},
					"sections": map[string]any{
						"type":     "array",
						"minItems": 1,
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"title": map[string]any{"type": "string"},
								"rows": map[string]any{
									"type":     "array",
									"minItems": 1,
									"items": map[string]any{
										"type": "object",
										"properties": map[string]any{
											"id":          map[string]any{"type": "string"},
											"title":       map[string]any{"type": "string"},
											"description": map[string]any{"type": "string"},
										},
										"required": []string{"id", "title"},
									},
								},
							},
							"required": []string{"title", "rows"},
						},
					},
				},
				"required": []string{"text", "button_text", "sections"},
			},
			DecodeFunc: protocol.DecodeAs[SendListConfig],
		},
		&protocol.Definition{
			ID:      TypeSendMedia,
			Label:   "Send media",
			Summary: "Sends an image, video, audio or document.",
			Kind:    protocol.CategoryMessage,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"media_type": map[string]any{"type": "string", "enum": []string{"image", "video", "audio", "document"}},
					"url":        map[string]any{"type": "string", "format": "uri"},
					"caption":    map[string]any{"type": "string"},
				},
				"required": []string{"media_type", "url"},
			},
			DecodeFunc: protocol.DecodeAs[SendMediaConfig],
		},
		&protocol.Definition{
			ID:      TypeSendCTAURL,
			Label:   "Send CTA URL",
			Summary: "Sends a message with a call-to-action button that opens a URL.",
			Kind:    protocol.CategoryMessage,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text":        textSchema(),
					"button_text": map[string]any{"type": "string", "minLength": 1},
					"url":         map[string]any{"type": "string", "minLength": 1},
				},
				"required": []string{"text", "button_text", "url"},
			},
			DecodeFunc: protocol.DecodeAs[SendCTAURLConfig],
		},
	}
}
