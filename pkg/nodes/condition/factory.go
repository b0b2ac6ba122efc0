package condition

import (
	"github.com/dukex/chatflow/pkg/protocol"
)

const (
	TypeButtonEquals = "condition:button_equals"
	TypeTagPresent   = "condition:tag_present"
	TypeFieldCompare = "condition:field_compare"
	TypeTimeInRange  = "condition:time_in_range"
	TypeDayOfWeek    = "condition:day_of_week"
	TypeButton       = "condition:button"
)

var clockPattern = `^([01][0-9]|2[0-3]):[0-5][0-9]$`

func optionsSchema() map[string]any {
	return map[string]any{
		"type":     "array",
		"minItems": 1,
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":   map[string]any{"type": "string"},
				"text": map[string]any{"type": "string", "minLength": 1},
			},
			"required": []string{"text"},
		},
	}
}

// Types returns the condition node types.
func Types() []protocol.NodeType {
	return []protocol.NodeType{
		&protocol.Definition{
			ID:      TypeButtonEquals,
			Label:   "Button equals",
			Summary: "Checks whether the last clicked button text equals a value.",
			Kind:    protocol.CategoryCondition,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"value":    map[string]any{"type": "string", "minLength": 1},
					"variable": map[string]any{"type": "string", "default": defaultButtonVariable},
				},
				"required": []string{"value"},
			},
			DecodeFunc: protocol.DecodeAs[ButtonEqualsConfig],
		},
		&protocol.Definition{
			ID:      TypeTagPresent,
			Label:   "Tag present",
			Summary: "Checks whether the contact carries a tag.",
			Kind:    protocol.CategoryCondition,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tag": map[string]any{"type": "string", "minLength": 1},
				},
				"required": []string{"tag"},
			},
			DecodeFunc: protocol.DecodeAs[TagPresentConfig],
		},
		&protocol.Definition{
			ID:      TypeFieldCompare,
			Label:   "Field compare",
			Summary: "Compares a contact field or a flow variable with a value.",
			Kind:    protocol.CategoryCondition,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"field":  map[string]any{"type": "string", "minLength": 1},
					"source": map[string]any{"type": "string", "enum": []string{SourceContact, SourceVariables}},
					"operator": map[string]any{
						"type": "string",
						"enum": []string{"eq", "neq", "contains", "gt", "gte", "lt", "lte", "exists", "not_exists"},
					},
					"value": map[string]any{},
				},
				"required": []string{"field", "operator"},
			},
			DecodeFunc: protocol.DecodeAs[FieldCompareConfig],
		},
		&protocol.Definition{
			ID:      TypeTimeInRange,
			Label:   "Time in range",
			Summary: "Checks whether the current local time falls inside a daily window.",
			Kind:    protocol.CategoryCondition,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"start":    map[string]any{"type": "string", "pattern": clockPattern},
					"end":      map[string]any{"type": "string", "pattern": clockPattern},
					"timezone": map[string]any{"type": "string", "examples": []string{"America/Sao_Paulo"}},
				},
				"required": []string{"start", "end"},
			},
			DecodeFunc: protocol.DecodeAs[TimeInRangeConfig],
		},
		&protocol.Definition{
			ID:      TypeDayOfWeek,
			Label:   "Day of week",
			Summary: "Checks whether today is one of the configured weekdays.",
			Kind:    protocol.CategoryCondition,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"days": map[string]any{
						"type":     "array",
						"minItems": 1,
						"items": map[string]any{
							"type": "string",
							"enum": []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"},
						},
					},
					"timezone": map[string]any{"type": "string"},
				},
				"required": []string{"days"},
			},
			DecodeFunc: protocol.DecodeAs[DayOfWeekConfig],
		},
		&protocol.Definition{
			ID:      TypeButton,
			Label:   "Button",
			Summary: "Routes on the last clicked button, one output per option plus an optional no_match output.",
			Kind:    protocol.CategoryCondition,
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"options":  optionsSchema(),
					"variable": map[string]any{"type": "string", "default": defaultButtonVariable},
				},
				"required": []string{"options"},
			},
			DecodeFunc: protocol.DecodeAs[ButtonConfig],
		},
	}
}
