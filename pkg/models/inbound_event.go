package models

type EventKind string

const (
	EventButtonClick     EventKind = "button_click"
	EventMessageReceived EventKind = "message_received"
	EventWebhook         EventKind = "webhook"
	EventContactCreated  EventKind = "contact_created"
	EventAgentReleased   EventKind = "agent_released"

	// EventTimer is never received from outside; the scheduler resumes
	// timer waits with it.
	EventTimer EventKind = "timer"
)

// InboundEvent is a signal from the outside world about one contact. FlowID,
// ExecutionID and NodeID narrow the waiting executions it may resume.
type InboundEvent struct {
	Kind           EventKind      `json:"kind"                   validate:"required,oneof=button_click message_received webhook contact_created agent_released"`
	OrganizationID string         `json:"organization_id"        validate:"required"`
	ContactID      string         `json:"contact_id"             validate:"required"`
	FlowID         string         `json:"flow_id,omitempty"`
	ExecutionID    string         `json:"execution_id,omitempty"`
	NodeID         string         `json:"node_id,omitempty"`
	ButtonID       string         `json:"button_id,omitempty"`
	ButtonText     string         `json:"button_text,omitempty"`
	Text           string         `json:"text,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Addressed reports whether the event names the flow, execution or node it
// is meant for.
func (e InboundEvent) Addressed() bool {
	return e.FlowID != "" || e.ExecutionID != "" || e.NodeID != ""
}

// Variables is the part of the event merged into an execution's variables.
func (e InboundEvent) Variables() map[string]any {
	vars := map[string]any{"last_event": string(e.Kind)}

	if e.ButtonText != "" {
		vars["button_text"] = e.ButtonText
	}

	if e.ButtonID != "" {
		vars["button_id"] = e.ButtonID
	}

	if e.Text != "" {
		vars["last_message"] = e.Text
	}

	if len(e.Payload) > 0 {
		vars["payload"] = e.Payload
	}

	return vars
}
