// Package action provides the data and control node types.
package action

import (
	"context"
	"net/http"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/template"
)

const (
	defaultResponseVariable = "webhook_response"
	defaultReplyVariable    = "last_reply"
	TimedOutVariable        = "reply_timed_out"
)

type single struct {
	protocol.SingleOutput
	protocol.Pure
}

// suspending is embedded by single output configs that always suspend.
type suspending struct {
	protocol.SingleOutput
}

func (suspending) Suspends() bool {
	return true
}

func (suspending) Resume(_ context.Context, _ protocol.EvalContext, _ models.InboundEvent) (protocol.Outcome, error) {
	return protocol.Next(protocol.HandleDefault), nil
}

func effect(e *protocol.SideEffect) protocol.Outcome {
	return protocol.Outcome{NextHandle: protocol.HandleDefault, SideEffect: e}
}

type AddTagConfig struct {
	single

	Tag string `json:"tag" validate:"required"`
}

func (c *AddTagConfig) Evaluate(_ context.Context, _ protocol.EvalContext) (protocol.Outcome, error) {
	return effect(&protocol.SideEffect{Kind: protocol.SideEffectAddTag, Tag: c.Tag}), nil
}

type RemoveTagConfig struct {
	single

	Tag string `json:"tag" validate:"required"`
}

func (c *RemoveTagConfig) Evaluate(_ context.Context, _ protocol.EvalContext) (protocol.Outcome, error) {
	return effect(&protocol.SideEffect{Kind: protocol.SideEffectRemoveTag, Tag: c.Tag}), nil
}

// UpdateFieldConfig sets a custom field on the contact. String values are
// rendered as templates.
type UpdateFieldConfig struct {
	single

	Field string `json:"field" validate:"required"`
	Value any    `json:"value"`
}

func (c *UpdateFieldConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	value, err := template.RenderValue(c.Value, in.TemplateData())
	if err != nil {
		return protocol.Outcome{}, err
	}

	return effect(&protocol.SideEffect{Kind: protocol.SideEffectUpdateField, Field: c.Field, Value: value}), nil
}

// CallWebhookConfig calls an external endpoint and stores the response in
// the variable named by SaveResponseAs.
type CallWebhookConfig struct {
	single

	URL            string            `json:"url"                        validate:"required"`
	Method         string            `json:"method,omitempty"           validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           any               `json:"body,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"  validate:"gte=0,lte=300"`
	SaveResponseAs string            `json:"save_response_as,omitempty"`
}

func (c *CallWebhookConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	data := in.TemplateData()

	url, err := template.RenderString(c.URL, data)
	if err != nil {
		return protocol.Outcome{}, err
	}

	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		rendered, err := template.RenderString(v, data)
		if err != nil {
			return protocol.Outcome{}, err
		}

		headers[k] = rendered
	}

	body, err := template.RenderValue(c.Body, data)
	if err != nil {
		return protocol.Outcome{}, err
	}

	method := c.Method
	if method == "" {
		method = http.MethodPost
	}

	resultKey := c.SaveResponseAs
	if resultKey == "" {
		resultKey = defaultResponseVariable
	}

	return effect(&protocol.SideEffect{
		Kind: protocol.SideEffectCallWebhook,
		Webhook: &protocol.WebhookRequest{
			URL:     url,
			Method:  method,
			Headers: headers,
			Body:    body,
			Timeout: time.Duration(c.TimeoutSeconds) * time.Second,
		},
		ResultKey: resultKey,
	}), nil
}

var units = map[string]time.Duration{
	"seconds": time.Second,
	"minutes": time.Minute,
	"hours":   time.Hour,
	"days":    24 * time.Hour,
}

type DelayConfig struct {
	suspending

	Amount int    `json:"amount" validate:"min=1"`
	Unit   string `json:"unit"   validate:"required,oneof=seconds minutes hours days"`
}

func (c *DelayConfig) Duration() time.Duration {
	return time.Duration(c.Amount) * units[c.Unit]
}

func (c *DelayConfig) Evaluate(_ context.Context, _ protocol.EvalContext) (protocol.Outcome, error) {
	return protocol.Outcome{Suspend: &protocol.Suspend{Delay: c.Duration()}}, nil
}

// WaitForReplyConfig suspends until the contact sends a message or, when
// TimeoutSeconds is set, until the timeout elapses.
type WaitForReplyConfig struct {
	protocol.SingleOutput

	SaveAs         string `json:"save_as,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" validate:"gte=0"`
}

func (c *WaitForReplyConfig) Suspends() bool {
	return true
}

func (c *WaitForReplyConfig) Evaluate(_ context.Context, _ protocol.EvalContext) (protocol.Outcome, error) {
	return protocol.Outcome{Suspend: &protocol.Suspend{
		Events: []models.EventKind{models.EventMessageReceived},
		Delay:  time.Duration(c.TimeoutSeconds) * time.Second,
	}}, nil
}

func (c *WaitForReplyConfig) Resume(_ context.Context, _ protocol.EvalContext, event models.InboundEvent) (protocol.Outcome, error) {
	if event.Kind == models.EventTimer {
		return protocol.Outcome{
			NextHandle:   protocol.HandleDefault,
			ContextPatch: map[string]any{TimedOutVariable: true},
		}, nil
	}

	saveAs := c.SaveAs
	if saveAs == "" {
		saveAs = defaultReplyVariable
	}

	return protocol.Outcome{
		NextHandle:   protocol.HandleDefault,
		ContextPatch: map[string]any{saveAs: event.Text, TimedOutVariable: false},
	}, nil
}

// TransferToHumanConfig hands the conversation to an agent and waits until
// the agent releases it.
type TransferToHumanConfig struct {
	suspending

	Team string `json:"team,omitempty"`
	Note string `json:"note,omitempty"`
}

func (c *TransferToHumanConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	note, err := template.RenderString(c.Note, in.TemplateData())
	if err != nil {
		return protocol.Outcome{}, err
	}

	return protocol.Outcome{
		SideEffect: &protocol.SideEffect{
			Kind:    protocol.SideEffectTransferToHuman,
			Handoff: &protocol.Handoff{Team: c.Team, Note: note},
		},
		Suspend: &protocol.Suspend{Events: []models.EventKind{models.EventAgentReleased}},
	}, nil
}

// EndConfig terminates the execution. It has no outputs.
type EndConfig struct {
	protocol.Pure
}

func (c *EndConfig) Handles() []string {
	return nil
}

func (c *EndConfig) RequiredHandles() []string {
	return nil
}

func (c *EndConfig) Evaluate(_ context.Context, _ protocol.EvalContext) (protocol.Outcome, error) {
	return protocol.Outcome{Terminal: true}, nil
}
