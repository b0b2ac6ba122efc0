package protocol

import "time"

type SideEffectKind string

const (
	SideEffectSendMessage     SideEffectKind = "send_message"
	SideEffectCallWebhook     SideEffectKind = "call_webhook"
	SideEffectAddTag          SideEffectKind = "add_tag"
	SideEffectRemoveTag       SideEffectKind = "remove_tag"
	SideEffectUpdateField     SideEffectKind = "update_field"
	SideEffectTransferToHuman SideEffectKind = "transfer_to_human"
)

// MutatesContact reports whether the effect writes to the contact record.
func (k SideEffectKind) MutatesContact() bool {
	return k == SideEffectAddTag || k == SideEffectRemoveTag || k == SideEffectUpdateField
}

// SideEffect is an externally visible action requested by a node. Only the
// fields matching Kind are set.
type SideEffect struct {
	Kind    SideEffectKind   `json:"kind"`
	Message *OutboundMessage `json:"message,omitempty"`
	Webhook *WebhookRequest  `json:"webhook,omitempty"`
	Tag     string           `json:"tag,omitempty"`
	Field   string           `json:"field,omitempty"`
	Value   any              `json:"value,omitempty"`
	Handoff *Handoff         `json:"handoff,omitempty"`
	// ResultKey names the variable the effect output is stored under.
	ResultKey string `json:"result_key,omitempty"`
}

type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageTemplate MessageKind = "template"
	MessageButtons  MessageKind = "buttons"
	MessageList     MessageKind = "list"
	MessageMedia    MessageKind = "media"
	MessageCTAURL   MessageKind = "cta_url"
)

type Button struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// OutboundMessage is what the message transport receives.
type OutboundMessage struct {
	Kind         MessageKind   `json:"kind"`
	ContactID    string        `json:"contact_id"`
	Phone        string        `json:"phone,omitempty"`
	Text         string        `json:"text,omitempty"`
	TemplateName string        `json:"template_name,omitempty"`
	Language     string        `json:"language,omitempty"`
	Parameters   []string      `json:"parameters,omitempty"`
	Buttons      []Button      `json:"buttons,omitempty"`
	ButtonText   string        `json:"button_text,omitempty"`
	Sections     []ListSection `json:"sections,omitempty"`
	MediaType    string        `json:"media_type,omitempty"`
	MediaURL     string        `json:"media_url,omitempty"`
	Caption      string        `json:"caption,omitempty"`
	URL          string        `json:"url,omitempty"`
}

type WebhookRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
	// Timeout overrides the dispatcher default when positive.
	Timeout time.Duration `json:"timeout,omitempty"`
}

type WebhookResponse struct {
	StatusCode int `json:"status_code"`
	Body       any `json:"body,omitempty"`
}

type Handoff struct {
	Team string `json:"team,omitempty"`
	Note string `json:"note,omitempty"`
}
