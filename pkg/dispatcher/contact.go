package dispatcher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/lock"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// mutateContact applies a tag or field change under the contact lock. An
// effect whose idempotency key was already recorded is not applied again.
func (d *Dispatcher) mutateContact(ctx context.Context, req Request, logger *slog.Logger) (*Result, error) {
	unlock, err := d.locker.Lock(ctx, lock.ContactKey(req.ContactID))
	if err != nil {
		return nil, &SideEffectError{Kind: req.Effect.Kind, NodeID: req.NodeID, Err: err}
	}
	defer unlock()

	key := req.idempotencyKey()

	seen, err := d.idempotency.Seen(ctx, key)
	if err != nil {
		return nil, &SideEffectError{Kind: req.Effect.Kind, NodeID: req.NodeID, Err: err}
	}

	if seen {
		contact, err := d.contacts.GetByID(ctx, req.ContactID)
		if err != nil {
			return nil, &SideEffectError{Kind: req.Effect.Kind, NodeID: req.NodeID, Err: err}
		}

		result := &Result{Variables: map[string]any{}, Contact: contact, Duplicate: true}
		d.audit(ctx, req, result, nil)

		logger.InfoContext(ctx, "Skipping contact mutation already applied", "key", key)

		return result, nil
	}

	var contact *models.Contact

	result, err := d.retry(ctx, req, logger, isTransient(req.Effect.Kind), func(ctx context.Context, _ *Result) error {
		current, err := d.contacts.GetByID(ctx, req.ContactID)
		if err != nil {
			return err
		}

		if apply(current, req.Effect) {
			err = d.contacts.Save(ctx, current)
			if err != nil {
				return err
			}
		}

		contact = current

		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Contact = contact

	err = d.idempotency.Remember(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "Failed to record idempotency key", "key", key, "error", err)
	}

	return result, nil
}

// apply mutates contact and reports whether anything changed.
func apply(contact *models.Contact, effect *protocol.SideEffect) bool {
	switch effect.Kind {
	case protocol.SideEffectAddTag:
		return contact.AddTag(effect.Tag)
	case protocol.SideEffectRemoveTag:
		return contact.RemoveTag(effect.Tag)
	case protocol.SideEffectUpdateField:
		contact.SetField(effect.Field, effect.Value)

		return true
	default:
		return false
	}
}

// UpdateContactPosition mirrors the node a contact is at in flowID. An empty
// nodeID clears the mirror, unless the contact has since moved to another flow.
func (d *Dispatcher) UpdateContactPosition(ctx context.Context, contactID, flowID, nodeID string) error {
	unlock, err := d.locker.Lock(ctx, lock.ContactKey(contactID))
	if err != nil {
		return err
	}
	defer unlock()

	policy := d.policies[protocol.SideEffectUpdateField]

	return backoff.Retry(func() error {
		contact, err := d.contacts.GetByID(ctx, contactID)
		if errors.Is(err, models.ErrContactNotFound) {
			return nil
		}

		if err != nil {
			return backoff.Permanent(err)
		}

		if nodeID == "" {
			if contact.CurrentFlowID != flowID {
				return nil
			}

			contact.CurrentFlowID = ""
			contact.CurrentNodeID = ""
		} else {
			if contact.CurrentFlowID == flowID && contact.CurrentNodeID == nodeID {
				return nil
			}

			contact.CurrentFlowID = flowID
			contact.CurrentNodeID = nodeID
		}

		err = d.contacts.Save(ctx, contact)
		if err != nil && !errors.Is(err, models.ErrStorageConflict) {
			return backoff.Permanent(err)
		}

		return err
	}, policy.backOff(ctx))
}

func newHandoffEvent(req Request, handoff *protocol.Handoff) *events.HumanHandoffRequested {
	return &events.HumanHandoffRequested{
		BaseEvent:   events.NewBaseEvent(events.HumanHandoffRequestedEvent, req.FlowID),
		ExecutionID: req.ExecutionID,
		ContactID:   req.ContactID,
		NodeID:      req.NodeID,
		Team:        handoff.Team,
		Note:        handoff.Note,
	}
}
