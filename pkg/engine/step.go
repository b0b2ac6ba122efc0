package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/chatflow/pkg/dispatcher"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/graph"
	"github.com/dukex/chatflow/pkg/lock"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
)

var errNodeMissing = errors.New("current node is not part of the flow")

// run is the state of one execution while the engine holds its lock.
type run struct {
	ec      *models.ExecutionContext
	flow    *models.Flow
	graph   *graph.Graph
	contact *models.Contact
	logger  *slog.Logger
}

// Step advances a running execution until it suspends, ends or fails.
// Executions in any other state are left untouched.
func (e *Engine) Step(ctx context.Context, executionID string) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.step",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	unlock, err := e.locker.Lock(ctx, lock.ExecutionKey(executionID))
	if err != nil {
		return err
	}
	defer unlock()

	err = e.withConflictRetry(ctx, func() error {
		r, ok, err := e.load(ctx, executionID, func(ec *models.ExecutionContext) bool {
			return ec.Status == models.ExecutionStatusRunning
		})
		if err != nil || !ok {
			return err
		}

		if !r.flow.Runnable() {
			return e.hold(ctx, r, nil)
		}

		return e.loop(ctx, r)
	})
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

// load reads the execution and, when accept approves its state, its flow,
// compiled graph and contact. A graph that no longer compiles fails the
// execution.
func (e *Engine) load(ctx context.Context, executionID string, accept func(*models.ExecutionContext) bool) (*run, bool, error) {
	ec, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, false, err
	}

	if !accept(ec) {
		return nil, false, nil
	}

	r := &run{
		ec:     ec,
		logger: e.logger.With("execution_id", ec.ID, "flow_id", ec.FlowID, "contact_id", ec.ContactID),
	}

	r.flow, err = e.flows.GetByID(ctx, ec.FlowID)
	if err != nil {
		return nil, false, err
	}

	r.graph, err = e.Graph(ctx, r.flow)
	if errors.Is(err, models.ErrGraphInvalid) || errors.Is(err, models.ErrConfigInvalid) {
		return nil, false, e.fail(ctx, r, err)
	}

	if err != nil {
		return nil, false, err
	}

	r.contact, err = e.contacts.GetByID(ctx, ec.ContactID)
	if err != nil && !errors.Is(err, models.ErrContactNotFound) {
		return nil, false, err
	}

	return r, true, nil
}

// hold parks the execution of a flow that is not runnable. A pending event
// is kept until the flow is activated again.
func (e *Engine) hold(ctx context.Context, r *run, deferred *models.InboundEvent) error {
	if r.ec.FlowPaused && deferred == nil {
		return nil
	}

	r.ec.FlowPaused = true

	if deferred != nil && r.ec.Wait != nil {
		r.ec.Wait.Deferred = deferred
	}

	err := e.save(ctx, r.ec)
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Flow is not active, holding execution", "flow_status", r.flow.Status)

	return nil
}

func (e *Engine) loop(ctx context.Context, r *run) error {
	for steps := 0; ; steps++ {
		if steps >= e.maxSteps {
			return e.fail(ctx, r, fmt.Errorf("%w: %d nodes evaluated in one run", models.ErrStepLimitExceeded, steps))
		}

		done, err := e.evaluate(ctx, r)
		if err != nil || done {
			return err
		}
	}
}

// evaluate runs the current node. It returns true once the execution left
// the running state.
func (e *Engine) evaluate(ctx context.Context, r *run) (bool, error) {
	ec := r.ec

	node, ok := r.graph.Node(ec.CurrentNodeID)
	if !ok {
		return true, e.fail(ctx, r, fmt.Errorf("%w: %s: %w", models.ErrGraphInvalid, ec.CurrentNodeID, errNodeMissing))
	}

	ec.Epoch++

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.evaluate",
		attribute.String(otelhelper.ExecutionIDKey, ec.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
		attribute.Int64(otelhelper.EpochKey, ec.Epoch),
	)
	defer span.End()

	in := e.evalContext(r, node.ID)

	outcome, err := node.Config.Evaluate(ctx, in)
	if err != nil {
		otelhelper.SetError(span, err)
		e.logStep(ctx, r, node, nil, err)

		return true, e.fail(ctx, r, err)
	}

	if outcome.SideEffect != nil {
		result, err := e.effects.Dispatch(ctx, dispatcher.Request{
			ExecutionID: ec.ID,
			FlowID:      ec.FlowID,
			NodeID:      node.ID,
			ContactID:   ec.ContactID,
			Epoch:       ec.Epoch,
			Effect:      outcome.SideEffect,
		})
		if err != nil {
			otelhelper.SetError(span, err)

			if ctx.Err() != nil {
				return true, ctx.Err()
			}

			e.logStep(ctx, r, node, nil, err)

			return true, e.fail(ctx, r, err)
		}

		ec.Merge(result.Variables)

		if result.Contact != nil {
			r.contact = result.Contact
		}
	}

	ec.Merge(outcome.ContextPatch)
	e.logStep(ctx, r, node, &outcome, nil)

	switch {
	case outcome.Terminal:
		return true, e.complete(ctx, r)
	case outcome.Suspend != nil:
		return true, e.suspend(ctx, r, node, outcome.Suspend)
	}

	return e.advance(ctx, r, node, outcome.NextHandle)
}

// advance follows the edge leaving node through handle. A missing edge ends
// the execution, unless the handle is no_match.
func (e *Engine) advance(ctx context.Context, r *run, node *graph.Node, handle string) (bool, error) {
	handle = graph.NormalizeHandle(node.Config, handle)

	next, ok := r.graph.Next(node.ID, handle)
	if !ok {
		if handle == protocol.HandleNoMatch {
			return true, e.fail(ctx, r, fmt.Errorf("%w: node %s has no output for the observed value", models.ErrUnhandledBranch, node.ID))
		}

		return true, e.complete(ctx, r)
	}

	r.ec.CurrentNodeID = next

	err := e.save(ctx, r.ec)
	if err != nil {
		return true, err
	}

	e.mirror(ctx, r, next)

	return false, nil
}

func (e *Engine) suspend(ctx context.Context, r *run, node *graph.Node, s *protocol.Suspend) error {
	ec := r.ec

	ec.Status = models.ExecutionStatusWaitingTimer
	if len(s.Events) > 0 {
		ec.Status = models.ExecutionStatusWaitingExternal
	}

	ec.Wait = &models.Wait{NodeID: node.ID, Events: s.Events, Since: e.now().UTC()}

	if s.Delay > 0 {
		due := e.now().UTC().Add(s.Delay)
		ec.Wait.DueAt = &due

		err := e.timers.ScheduleResume(ctx, ec.ID, ec.Epoch, due)
		if err != nil {
			return err
		}
	}

	err := e.save(ctx, ec)
	if err != nil {
		return err
	}

	e.transition(ctx, r, map[string]any{"status": string(ec.Status), "node_id": node.ID})
	r.logger.DebugContext(ctx, "Execution suspended", "node_id", node.ID, "status", ec.Status)

	return nil
}

func (e *Engine) complete(ctx context.Context, r *run) error {
	now := e.now().UTC()

	r.ec.Status = models.ExecutionStatusCompleted
	r.ec.CurrentNodeID = ""
	r.ec.Wait = nil
	r.ec.CompletedAt = &now

	err := e.save(ctx, r.ec)
	if err != nil {
		return err
	}

	e.finish(ctx, r)

	return nil
}

// fail moves the execution to failed with cause recorded. The failure
// itself is not returned: it belongs to this execution only.
func (e *Engine) fail(ctx context.Context, r *run, cause error) error {
	now := e.now().UTC()

	r.ec.Status = models.ExecutionStatusFailed
	r.ec.Wait = nil
	r.ec.CompletedAt = &now
	r.ec.Error = &models.ExecutionError{Kind: models.KindOf(cause), Message: cause.Error()}

	err := e.save(ctx, r.ec)
	if err != nil {
		return err
	}

	r.logger.WarnContext(ctx, "Execution failed", "kind", r.ec.Error.Kind, "error", cause)

	e.finish(ctx, r)

	return nil
}

// finish records a terminal transition: flow counters, the contact mirror,
// the execution log and the finished event.
func (e *Engine) finish(ctx context.Context, r *run) {
	ec := r.ec

	err := e.flows.IncrementCounters(ctx, ec.FlowID, ec.Status, *ec.CompletedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to increment flow counters", "error", err)
	}

	e.mirror(ctx, r, "")

	output := map[string]any{"status": string(ec.Status)}
	if ec.Error != nil {
		output["error_kind"] = string(ec.Error.Kind)
	}

	e.transition(ctx, r, output)

	r.logger.InfoContext(ctx, "Execution finished", "status", ec.Status)

	if e.publisher == nil {
		return
	}

	err = e.publisher.Publish(ctx, ec.ID, &events.ExecutionFinished{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFinishedEvent, ec.FlowID),
		ExecutionID: ec.ID,
		ContactID:   ec.ContactID,
		Status:      ec.Status,
		Error:       ec.Error,
		Duration:    ec.CompletedAt.Sub(ec.CreatedAt),
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish execution finished", "error", err)
	}
}

func (e *Engine) mirror(ctx context.Context, r *run, nodeID string) {
	if r.contact == nil {
		return
	}

	err := e.effects.UpdateContactPosition(ctx, r.ec.ContactID, r.ec.FlowID, nodeID)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to update contact position", "node_id", nodeID, "error", err)
	}
}

func (e *Engine) save(ctx context.Context, ec *models.ExecutionContext) error {
	return e.executions.Update(ctx, ec)
}

func (e *Engine) evalContext(r *run, nodeID string) protocol.EvalContext {
	return protocol.EvalContext{
		ExecutionID: r.ec.ID,
		FlowID:      r.ec.FlowID,
		NodeID:      nodeID,
		Epoch:       r.ec.Epoch,
		Contact:     r.contact,
		Variables:   r.ec.Variables,
		Now:         e.now(),
	}
}

func (e *Engine) logStep(ctx context.Context, r *run, node *graph.Node, outcome *protocol.Outcome, cause error) {
	entry := &models.ExecutionLogEntry{
		ExecutionID: r.ec.ID,
		NodeID:      node.ID,
		Kind:        models.LogKindStep,
		Status:      models.LogStatusSuccess,
		Input:       map[string]any{"type": node.Type, "epoch": r.ec.Epoch},
		Timestamp:   e.now().UTC(),
	}

	if cause != nil {
		entry.Status = models.LogStatusError
		entry.Error = cause.Error()
	}

	if outcome != nil {
		entry.Output = map[string]any{"handle": graph.NormalizeHandle(node.Config, outcome.NextHandle)}

		if len(outcome.ContextPatch) > 0 {
			entry.Output["patch"] = outcome.ContextPatch
		}

		if outcome.Suspend != nil {
			entry.Output["suspended"] = true
		}
	}

	e.appendLog(ctx, r, entry)
}

func (e *Engine) transition(ctx context.Context, r *run, output map[string]any) {
	e.appendLog(ctx, r, &models.ExecutionLogEntry{
		ExecutionID: r.ec.ID,
		NodeID:      r.ec.CurrentNodeID,
		Kind:        models.LogKindTransition,
		Status:      models.LogStatusSuccess,
		Output:      output,
		Timestamp:   e.now().UTC(),
	})
}

func (e *Engine) appendLog(ctx context.Context, r *run, entry *models.ExecutionLogEntry) {
	if entry.Output != nil && entry.Output["status"] == string(models.ExecutionStatusFailed) && r.ec.Error != nil {
		entry.Status = models.LogStatusError
		entry.Error = r.ec.Error.Message
	}

	err := e.logs.Append(ctx, entry)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to append execution log", "error", err)
	}
}
