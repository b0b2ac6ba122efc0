package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
)

// triggerTypes maps an inbound event kind to the trigger node types it can start.
var triggerTypes = map[models.EventKind][]string{
	models.EventButtonClick:     {"trigger:button_click"},
	models.EventMessageReceived: {"trigger:keyword", "trigger:message_received"},
	models.EventWebhook:         {"trigger:webhook"},
	models.EventContactCreated:  {"trigger:contact_created"},
}

// matchingFlows returns the runnable flows of the event's organization whose
// trigger accepts event. Webhook events only address the flow they name.
func (e *Engine) matchingFlows(ctx context.Context, event models.InboundEvent) ([]*models.Flow, error) {
	var matched []*models.Flow

	for _, triggerType := range triggerTypes[event.Kind] {
		flows, err := e.flows.ActiveByTrigger(ctx, event.OrganizationID, triggerType)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s flows: %w", triggerType, err)
		}

		for _, flow := range flows {
			if event.FlowID != "" && flow.ID != event.FlowID {
				continue
			}

			g, err := e.Graph(ctx, flow)
			if errors.Is(err, models.ErrGraphInvalid) || errors.Is(err, models.ErrConfigInvalid) {
				e.logger.WarnContext(ctx, "Skipping active flow with invalid graph", "flow_id", flow.ID, "error", err)

				continue
			}

			if err != nil {
				return nil, err
			}

			if g.Trigger().Matches(event) {
				matched = append(matched, flow)
			}
		}
	}

	return matched, nil
}
