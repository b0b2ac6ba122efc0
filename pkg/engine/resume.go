package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/chatflow/pkg/lock"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
)

// Resume delivers a due timer. It does nothing unless the execution still
// waits on a timer at epoch, so repeated and stale deliveries are harmless.
func (e *Engine) Resume(ctx context.Context, executionID string, epoch int64) error {
	_, err := e.resume(ctx, executionID, epoch, models.InboundEvent{Kind: models.EventTimer})

	return err
}

// resume wakes the execution waiting at epoch with event and runs it. It
// reports whether the event was consumed.
func (e *Engine) resume(ctx context.Context, executionID string, epoch int64, event models.InboundEvent) (bool, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.resume",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.Int64(otelhelper.EpochKey, epoch),
		attribute.String(otelhelper.EventKindKey, string(event.Kind)),
	)
	defer span.End()

	consumed, running, err := e.wakeLocked(ctx, executionID, epoch, event)
	if err != nil {
		otelhelper.SetError(span, err)

		return consumed, err
	}

	if running {
		return consumed, e.schedule(ctx, executionID)
	}

	return consumed, nil
}

func (e *Engine) wakeLocked(ctx context.Context, executionID string, epoch int64, event models.InboundEvent) (bool, bool, error) {
	unlock, err := e.locker.Lock(ctx, lock.ExecutionKey(executionID))
	if err != nil {
		return false, false, err
	}
	defer unlock()

	var consumed, running bool

	err = e.withConflictRetry(ctx, func() error {
		consumed, running = false, false

		r, ok, err := e.load(ctx, executionID, func(ec *models.ExecutionContext) bool {
			if !ec.Status.Waiting() || ec.Epoch != epoch || ec.Wait == nil {
				return false
			}

			if event.Kind == models.EventTimer {
				return ec.Wait.DueAt != nil
			}

			return ec.Wait.Accepts(event.Kind)
		})
		if err != nil || !ok {
			return err
		}

		consumed = true

		if !r.flow.Runnable() {
			if event.Kind == models.EventTimer {
				return e.hold(ctx, r, nil)
			}

			return e.hold(ctx, r, &event)
		}

		err = e.wake(ctx, r, event)
		if err != nil {
			return err
		}

		running = r.ec.Status == models.ExecutionStatusRunning

		return nil
	})

	return consumed, running, err
}

// wake maps event to the outgoing handle of the waiting node and moves the
// execution to the next node.
func (e *Engine) wake(ctx context.Context, r *run, event models.InboundEvent) error {
	ec := r.ec

	node, ok := r.graph.Node(ec.Wait.NodeID)
	if !ok {
		return e.fail(ctx, r, fmt.Errorf("%w: %s: %w", models.ErrGraphInvalid, ec.Wait.NodeID, errNodeMissing))
	}

	outcome := protocol.Next("")

	if resumer, ok := node.Config.(protocol.Resumer); ok {
		var err error

		outcome, err = resumer.Resume(ctx, e.evalContext(r, node.ID), event)
		if err != nil {
			return e.fail(ctx, r, err)
		}
	}

	hadTimer := ec.Wait.DueAt != nil

	if event.Kind != models.EventTimer {
		ec.Merge(event.Variables())
	}

	ec.Merge(outcome.ContextPatch)
	ec.Status = models.ExecutionStatusRunning
	ec.Wait = nil
	ec.FlowPaused = false

	e.logResume(ctx, r, node.ID, event, outcome)

	if hadTimer && event.Kind != models.EventTimer {
		err := e.timers.Cancel(ctx, ec.ID)
		if err != nil {
			r.logger.WarnContext(ctx, "Failed to cancel pending timer", "error", err)
		}
	}

	_, err := e.advance(ctx, r, node, outcome.NextHandle)

	return err
}

func (e *Engine) logResume(ctx context.Context, r *run, nodeID string, event models.InboundEvent, outcome protocol.Outcome) {
	output := map[string]any{"handle": outcome.NextHandle}
	if len(outcome.ContextPatch) > 0 {
		output["patch"] = outcome.ContextPatch
	}

	e.appendLog(ctx, r, &models.ExecutionLogEntry{
		ExecutionID: r.ec.ID,
		NodeID:      nodeID,
		Kind:        models.LogKindStep,
		Status:      models.LogStatusSuccess,
		Input:       map[string]any{"event": string(event.Kind), "epoch": r.ec.Epoch},
		Output:      output,
		Timestamp:   e.now().UTC(),
	})
}

// Release continues the executions held back while flowID was not active:
// running ones are stepped, deferred events are delivered and timers that
// came due in the meantime fire.
func (e *Engine) Release(ctx context.Context, flowID string) (int, error) {
	flow, err := e.flows.GetByID(ctx, flowID)
	if err != nil {
		return 0, err
	}

	if !flow.Runnable() {
		return 0, fmt.Errorf("flow %s is %s: %w", flow.ID, flow.Status, models.ErrFlowNotActive)
	}

	held, err := e.executions.PausedByFlow(ctx, flowID)
	if err != nil {
		return 0, err
	}

	released := 0

	for _, ec := range held {
		ok, err := e.release(ctx, ec.ID)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to release execution", "execution_id", ec.ID, "error", err)

			continue
		}

		if ok {
			released++
		}
	}

	e.logger.InfoContext(ctx, "Released held executions", "flow_id", flowID, "released", released)

	return released, nil
}

func (e *Engine) release(ctx context.Context, executionID string) (bool, error) {
	var (
		ec       *models.ExecutionContext
		deferred *models.InboundEvent
	)

	err := e.withLock(ctx, executionID, func() error {
		return e.withConflictRetry(ctx, func() error {
			current, err := e.executions.GetByID(ctx, executionID)
			if err != nil {
				return err
			}

			ec, deferred = nil, nil

			if !current.FlowPaused || current.Status.Terminal() {
				return nil
			}

			current.FlowPaused = false

			if current.Wait != nil {
				deferred = current.Wait.Deferred
				current.Wait.Deferred = nil
			}

			err = e.save(ctx, current)
			if err != nil {
				return err
			}

			ec = current

			return nil
		})
	})
	if err != nil || ec == nil {
		return false, err
	}

	switch {
	case ec.Status == models.ExecutionStatusRunning:
		return true, e.schedule(ctx, ec.ID)
	case deferred != nil:
		_, err = e.resume(ctx, ec.ID, ec.Epoch, *deferred)
	case ec.Wait.Expired(e.now()):
		_, err = e.resume(ctx, ec.ID, ec.Epoch, models.InboundEvent{Kind: models.EventTimer})
	}

	return true, err
}

func (e *Engine) withLock(ctx context.Context, executionID string, fn func() error) error {
	unlock, err := e.locker.Lock(ctx, lock.ExecutionKey(executionID))
	if err != nil {
		return err
	}
	defer unlock()

	return fn()
}

// Cancel stops a non-terminal execution and drops its pending timers. Side
// effects already applied stay applied.
func (e *Engine) Cancel(ctx context.Context, executionID string) (*models.ExecutionContext, error) {
	var r *run

	err := e.withConflictRetry(ctx, func() error {
		ec, err := e.executions.GetByID(ctx, executionID)
		if err != nil {
			return err
		}

		if ec.Status.Terminal() {
			return fmt.Errorf("execution %s is %s: %w", ec.ID, ec.Status, models.ErrExecutionFinished)
		}

		now := e.now().UTC()

		ec.Status = models.ExecutionStatusCancelled
		ec.Wait = nil
		ec.CompletedAt = &now

		err = e.save(ctx, ec)
		if err != nil {
			return err
		}

		r = &run{ec: ec, logger: e.logger.With("execution_id", ec.ID, "flow_id", ec.FlowID, "contact_id", ec.ContactID)}

		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.timers.Cancel(ctx, executionID)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to cancel pending timers", "error", err)
	}

	contact, err := e.contacts.GetByID(ctx, r.ec.ContactID)
	if err != nil && !errors.Is(err, models.ErrContactNotFound) {
		r.logger.WarnContext(ctx, "Failed to load contact", "error", err)
	}

	r.contact = contact

	e.finish(ctx, r)

	return r.ec, nil
}
