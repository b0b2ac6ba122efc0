// Package trigger provides the entry node types of a flow.
package trigger

import (
	"context"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

const (
	MatchExact      = "exact"
	MatchContains   = "contains"
	MatchStartsWith = "starts_with"
)

type base struct {
	protocol.SingleOutput
	protocol.Pure
}

func (base) Evaluate(_ context.Context, _ protocol.EvalContext) (protocol.Outcome, error) {
	return protocol.Next(protocol.HandleDefault), nil
}

// ButtonClickConfig fires on a button click, optionally restricted to one button.
type ButtonClickConfig struct {
	base

	ButtonText string `json:"button_text,omitempty"`
	ButtonID   string `json:"button_id,omitempty"`
}

func (c *ButtonClickConfig) Matches(event models.InboundEvent) bool {
	if event.Kind != models.EventButtonClick {
		return false
	}

	if c.ButtonText != "" && c.ButtonText != event.ButtonText {
		return false
	}

	return c.ButtonID == "" || c.ButtonID == event.ButtonID
}

// KeywordConfig fires on an inbound message matching one of the keywords.
type KeywordConfig struct {
	base

	Keywords      []string `json:"keywords"                 validate:"min=1,dive,required"`
	Match         string   `json:"match,omitempty"          validate:"omitempty,oneof=exact contains starts_with"`
	CaseSensitive bool     `json:"case_sensitive,omitempty"`
}

func (c *KeywordConfig) Matches(event models.InboundEvent) bool {
	if event.Kind != models.EventMessageReceived {
		return false
	}

	text := strings.TrimSpace(event.Text)
	if !c.CaseSensitive {
		text = strings.ToLower(text)
	}

	for _, keyword := range c.Keywords {
		if !c.CaseSensitive {
			keyword = strings.ToLower(keyword)
		}

		switch c.Match {
		case MatchContains:
			if strings.Contains(text, keyword) {
				return true
			}
		case MatchStartsWith:
			if strings.HasPrefix(text, keyword) {
				return true
			}
		default:
			if text == keyword {
				return true
			}
		}
	}

	return false
}

// WebhookConfig fires on an external webhook call addressed to the flow.
// When Event is set the payload "event" field must equal it.
type WebhookConfig struct {
	base

	Event string `json:"event,omitempty"`
}

func (c *WebhookConfig) Matches(event models.InboundEvent) bool {
	if event.Kind != models.EventWebhook {
		return false
	}

	if c.Event == "" {
		return true
	}

	name, _ := event.Payload["event"].(string)

	return name == c.Event
}

type MessageReceivedConfig struct {
	base
}

func (c *MessageReceivedConfig) Matches(event models.InboundEvent) bool {
	return event.Kind == models.EventMessageReceived
}

type ContactCreatedConfig struct {
	base
}

func (c *ContactCreatedConfig) Matches(event models.InboundEvent) bool {
	return event.Kind == models.EventContactCreated
}
