// Package message provides the node types that send a message to the contact.
package message

import (
	"context"
	"errors"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/template"
)

var errButtonsRequired = errors.New("wait_for_button_response requires at least one button")

func outbound(in protocol.EvalContext, kind protocol.MessageKind) *protocol.OutboundMessage {
	msg := &protocol.OutboundMessage{Kind: kind}

	if in.Contact != nil {
		msg.ContactID = in.Contact.ID
		msg.Phone = in.Contact.Phone
	}

	return msg
}

func send(msg *protocol.OutboundMessage) protocol.Outcome {
	return protocol.Outcome{
		NextHandle: protocol.HandleDefault,
		SideEffect: &protocol.SideEffect{Kind: protocol.SideEffectSendMessage, Message: msg},
	}
}

func buttons(options []protocol.Option) []protocol.Button {
	out := make([]protocol.Button, 0, len(options))

	for _, o := range options {
		out = append(out, protocol.Button{ID: o.Handle(), Text: o.Text})
	}

	return out
}

type single struct {
	protocol.SingleOutput
	protocol.Pure
}

type SendTextConfig struct {
	single

	Text string `json:"text" validate:"required"`
}

func (c *SendTextConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	text, err := template.RenderString(c.Text, in.TemplateData())
	if err != nil {
		return protocol.Outcome{}, err
	}

	msg := outbound(in, protocol.MessageText)
	msg.Text = text

	return send(msg), nil
}

// SendTemplateConfig sends an approved template. With WaitForButtonResponse
// the execution suspends until one of the template buttons is clicked and
// leaves through that button's handle.
type SendTemplateConfig struct {
	TemplateName          string            `json:"template_name"                      validate:"required"`
	Language              string            `json:"language,omitempty"`
	Parameters            []string          `json:"parameters,omitempty"`
	Buttons               []protocol.Option `json:"buttons,omitempty"                  validate:"dive"`
	WaitForButtonResponse bool              `json:"wait_for_button_response,omitempty"`
}

func (c *SendTemplateConfig) Validate() error {
	if c.WaitForButtonResponse && len(c.Buttons) == 0 {
		return errButtonsRequired
	}

	return protocol.ValidateOptions(c.Buttons)
}

func (c *SendTemplateConfig) Handles() []string {
	if c.WaitForButtonResponse {
		return protocol.OptionHandles(c.Buttons)
	}

	return []string{protocol.HandleDefault}
}

func (c *SendTemplateConfig) RequiredHandles() []string {
	if c.WaitForButtonResponse {
		return protocol.RequiredOptionHandles(c.Buttons)
	}

	return nil
}

func (c *SendTemplateConfig) Suspends() bool {
	return c.WaitForButtonResponse
}

func (c *SendTemplateConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	data := in.TemplateData()

	params := make([]string, 0, len(c.Parameters))
	for _, p := range c.Parameters {
		rendered, err := template.RenderString(p, data)
		if err != nil {
			return protocol.Outcome{}, err
		}

		params = append(params, rendered)
	}

	msg := outbound(in, protocol.MessageTemplate)
	msg.TemplateName = c.TemplateName
	msg.Language = c.Language
	msg.Parameters = params
	msg.Buttons = buttons(c.Buttons)

	outcome := send(msg)

	if c.WaitForButtonResponse {
		outcome.NextHandle = ""
		outcome.Suspend = &protocol.Suspend{Events: []models.EventKind{models.EventButtonClick}}
	}

	return outcome, nil
}

func (c *SendTemplateConfig) ResumeHandle(event models.InboundEvent) string {
	return protocol.MatchOption(c.Buttons, event.ButtonText)
}

func (c *SendTemplateConfig) Resume(_ context.Context, _ protocol.EvalContext, event models.InboundEvent) (protocol.Outcome, error) {
	return protocol.Outcome{
		NextHandle:   c.ResumeHandle(event),
		ContextPatch: map[string]any{"template_response": event.ButtonText},
	}, nil
}

// SendButtonsConfig sends an interactive message with up to three reply buttons.
type SendButtonsConfig struct {
	single

	Text    string            `json:"text"    validate:"required"`
	Buttons []protocol.Option `json:"buttons" validate:"min=1,max=3,dive"`
}

func (c *SendButtonsConfig) Validate() error {
	return protocol.ValidateOptions(c.Buttons)
}

func (c *SendButtonsConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	text, err := template.RenderString(c.Text, in.TemplateData())
	if err != nil {
		return protocol.Outcome{}, err
	}

	msg := outbound(in, protocol.MessageButtons)
	msg.Text = text
	msg.Buttons = buttons(c.Buttons)

	return send(msg), nil
}

type ListSection struct {
	Title string             `json:"title" validate:"required"`
	Rows  []protocol.ListRow `json:"rows"  validate:"min=1,max=10"`
}

type SendListConfig struct {
	single

	Text       string        `json:"text"        validate:"required"`
	ButtonText string        `json:"button_text" validate:"required"`
	Sections   []ListSection `json:"sections"    validate:"min=1,max=10,dive"`
}

func (c *SendListConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	text, err := template.RenderString(c.Text, in.TemplateData())
	if err != nil {
		return protocol.Outcome{}, err
	}

	msg := outbound(in, protocol.MessageList)
	msg.Text = text
	msg.ButtonText = c.ButtonText

	for _, s := range c.Sections {
		msg.Sections = append(msg.Sections, protocol.ListSection{Title: s.Title, Rows: s.Rows})
	}

	return send(msg), nil
}

type SendMediaConfig struct {
	single

	MediaType string `json:"media_type"        validate:"required,oneof=image video audio document"`
	URL       string `json:"url"               validate:"required,url"`
	Caption   string `json:"caption,omitempty"`
}

func (c *SendMediaConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	caption, err := template.RenderString(c.Caption, in.TemplateData())
	if err != nil {
		return protocol.Outcome{}, err
	}

	msg := outbound(in, protocol.MessageMedia)
	msg.MediaType = c.MediaType
	msg.MediaURL = c.URL
	msg.Caption = caption

	return send(msg), nil
}

type SendCTAURLConfig struct {
	single

	Text       string `json:"text"        validate:"required"`
	ButtonText string `json:"button_text" validate:"required"`
	URL        string `json:"url"         validate:"required"`
}

func (c *SendCTAURLConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	data := in.TemplateData()

	text, err := template.RenderString(c.Text, data)
	if err != nil {
		return protocol.Outcome{}, err
	}

	url, err := template.RenderString(c.URL, data)
	if err != nil {
		return protocol.Outcome{}, err
	}

	msg := outbound(in, protocol.MessageCTAURL)
	msg.Text = text
	msg.ButtonText = c.ButtonText
	msg.URL = url

	return send(msg), nil
}
