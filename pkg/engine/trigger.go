package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
)

// TriggerRequest starts flowID for contactID. Event, when set, is the
// inbound event that matched the flow trigger.
type TriggerRequest struct {
	FlowID    string
	ContactID string
	Event     *models.InboundEvent
	Variables map[string]any
}

// Trigger creates an execution of the flow for the contact at the trigger
// node and runs it. When the contact already runs the flow, or its re-entry
// policy forbids another run, the existing execution is returned with an
// error wrapping models.ErrDuplicateTrigger.
func (e *Engine) Trigger(ctx context.Context, req TriggerRequest) (*models.ExecutionContext, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.trigger",
		attribute.String(otelhelper.FlowIDKey, req.FlowID),
		attribute.String(otelhelper.ContactIDKey, req.ContactID),
	)
	defer span.End()

	logger := e.logger.With("flow_id", req.FlowID, "contact_id", req.ContactID)

	flow, err := e.flows.GetByID(ctx, req.FlowID)
	if err != nil {
		return nil, err
	}

	if !flow.Runnable() {
		return nil, fmt.Errorf("flow %s is %s: %w", flow.ID, flow.Status, models.ErrFlowNotActive)
	}

	g, err := e.Graph(ctx, flow)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	_, err = e.ensureContact(ctx, flow.OrganizationID, req.ContactID, req.Event)
	if err != nil {
		return nil, err
	}

	prior, err := e.executions.Latest(ctx, flow.ID, req.ContactID)

	switch {
	case errors.Is(err, models.ErrExecutionNotFound):
	case err != nil:
		return nil, err
	case !prior.Status.Terminal():
		return prior, fmt.Errorf("contact %s already runs flow %s: %w", req.ContactID, flow.ID, models.ErrDuplicateTrigger)
	case !flow.AllowsReentry(prior, e.now()):
		return prior, fmt.Errorf("re-entry policy %q of flow %s: %w", flow.Reentry.Policy, flow.ID, models.ErrDuplicateTrigger)
	}

	vars := map[string]any{"trigger_type": flow.Trigger.Type}
	if req.Event != nil {
		for k, v := range req.Event.Variables() {
			vars[k] = v
		}
	}

	for k, v := range req.Variables {
		vars[k] = v
	}

	ec, created, err := e.executions.CreateIfAbsent(ctx, &models.ExecutionContext{
		FlowID:         flow.ID,
		ContactID:      req.ContactID,
		OrganizationID: flow.OrganizationID,
		CurrentNodeID:  g.EntryNodeID(),
		Variables:      vars,
		Status:         models.ExecutionStatusRunning,
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if !created {
		return ec, fmt.Errorf("contact %s already runs flow %s: %w", req.ContactID, flow.ID, models.ErrDuplicateTrigger)
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, ec.ID))
	logger.InfoContext(ctx, "Execution created", "execution_id", ec.ID, "entry_node_id", ec.CurrentNodeID)

	r := &run{ec: ec, flow: flow, graph: g, logger: logger.With("execution_id", ec.ID)}
	e.transition(ctx, r, map[string]any{"status": string(ec.Status), "trigger_type": flow.Trigger.Type})

	err = e.effects.UpdateContactPosition(ctx, ec.ContactID, ec.FlowID, ec.CurrentNodeID)
	if err != nil {
		logger.WarnContext(ctx, "Failed to update contact position", "error", err)
	}

	err = e.schedule(ctx, ec.ID)
	if err != nil {
		logger.WarnContext(ctx, "Execution not started, left for recovery", "execution_id", ec.ID, "error", err)

		return ec, fmt.Errorf("execution %s created but not started: %w", ec.ID, err)
	}

	return e.executions.GetByID(ctx, ec.ID)
}

// ensureContact returns the contact, creating it in organizationID when the
// contact store does not know it yet.
func (e *Engine) ensureContact(ctx context.Context, organizationID, contactID string, event *models.InboundEvent) (*models.Contact, error) {
	contact, err := e.contacts.GetByID(ctx, contactID)
	if !errors.Is(err, models.ErrContactNotFound) {
		return contact, err
	}

	contact = &models.Contact{ID: contactID, OrganizationID: organizationID}

	if event != nil {
		contact.Phone, _ = event.Payload["phone"].(string)
		contact.Name, _ = event.Payload["name"].(string)
	}

	err = e.contacts.Save(ctx, contact)
	if errors.Is(err, models.ErrStorageConflict) {
		return e.contacts.GetByID(ctx, contactID)
	}

	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Contact created", "contact_id", contactID, "organization_id", organizationID)

	return contact, nil
}

// HandleEvent delivers an inbound event. An event naming its flow, execution
// or node resumes the waiting executions it names. Any other event resumes
// only the most recently suspended execution of the contact that can take
// it. When nothing is resumed, the event starts every active flow of the
// organization whose trigger matches it. The touched executions are
// returned.
func (e *Engine) HandleEvent(ctx context.Context, event models.InboundEvent) ([]*models.ExecutionContext, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.handle_event",
		attribute.String(otelhelper.EventKindKey, string(event.Kind)),
		attribute.String(otelhelper.ContactIDKey, event.ContactID),
	)
	defer span.End()

	resumed, err := e.resumeWaiting(ctx, event)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if len(resumed) > 0 {
		return resumed, nil
	}

	flows, err := e.matchingFlows(ctx, event)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	started := make([]*models.ExecutionContext, 0, len(flows))

	for _, flow := range flows {
		ec, err := e.Trigger(ctx, TriggerRequest{FlowID: flow.ID, ContactID: event.ContactID, Event: &event})

		switch {
		case errors.Is(err, models.ErrDuplicateTrigger):
			e.logger.DebugContext(ctx, "Ignoring duplicate trigger", "flow_id", flow.ID, "contact_id", event.ContactID)
		case err != nil:
			return started, err
		default:
			started = append(started, ec)
		}
	}

	return started, nil
}

func (e *Engine) resumeWaiting(ctx context.Context, event models.InboundEvent) ([]*models.ExecutionContext, error) {
	waiting, err := e.executions.Waiting(ctx, event.ContactID)
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.ExecutionContext, 0, len(waiting))

	for _, ec := range waiting {
		if accepts(ec, event) {
			candidates = append(candidates, ec)
		}
	}

	if !event.Addressed() {
		candidates = e.consumer(ctx, candidates, event)
	}

	var resumed []*models.ExecutionContext

	for _, ec := range candidates {
		ok, err := e.resume(ctx, ec.ID, ec.Epoch, event)
		if err != nil {
			return resumed, err
		}

		if !ok {
			continue
		}

		current, err := e.executions.GetByID(ctx, ec.ID)
		if err != nil {
			return resumed, err
		}

		resumed = append(resumed, current)
	}

	return resumed, nil
}

// consumer picks, among candidates, the most recently suspended execution
// whose waiting node has an output for event.
func (e *Engine) consumer(ctx context.Context, candidates []*models.ExecutionContext, event models.InboundEvent) []*models.ExecutionContext {
	var best *models.ExecutionContext

	for _, ec := range candidates {
		if !e.consumes(ctx, ec, event) {
			continue
		}

		if best == nil || suspendedAfter(ec, best) {
			best = ec
		}
	}

	if best == nil {
		return nil
	}

	return []*models.ExecutionContext{best}
}

func (e *Engine) consumes(ctx context.Context, ec *models.ExecutionContext, event models.InboundEvent) bool {
	flow, err := e.flows.GetByID(ctx, ec.FlowID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to load flow of waiting execution", "execution_id", ec.ID, "error", err)

		return false
	}

	g, err := e.Graph(ctx, flow)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to compile flow of waiting execution", "execution_id", ec.ID, "error", err)

		return false
	}

	node, ok := g.Node(ec.Wait.NodeID)
	if !ok {
		return false
	}

	matcher, ok := node.Config.(protocol.HandleMatcher)
	if !ok {
		return true
	}

	if matcher.ResumeHandle(event) != protocol.HandleNoMatch {
		return true
	}

	_, ok = g.Next(node.ID, protocol.HandleNoMatch)

	return ok
}

func suspendedAfter(a, b *models.ExecutionContext) bool {
	if !a.Wait.Since.Equal(b.Wait.Since) {
		return a.Wait.Since.After(b.Wait.Since)
	}

	return a.UpdatedAt.After(b.UpdatedAt)
}

func accepts(ec *models.ExecutionContext, event models.InboundEvent) bool {
	switch {
	case !ec.Wait.Accepts(event.Kind):
		return false
	case event.OrganizationID != "" && event.OrganizationID != ec.OrganizationID:
		return false
	case event.FlowID != "" && event.FlowID != ec.FlowID:
		return false
	case event.ExecutionID != "" && event.ExecutionID != ec.ID:
		return false
	case event.NodeID != "" && event.NodeID != ec.Wait.NodeID:
		return false
	default:
		return true
	}
}
