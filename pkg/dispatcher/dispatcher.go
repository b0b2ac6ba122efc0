// Package dispatcher applies the side effects requested by nodes: outbound
// messages, webhook calls, contact mutations and human handoffs.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/idempotency"
	"github.com/dukex/chatflow/pkg/lock"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var errUnknownEffect = errors.New("unknown side effect kind")

// RetryPolicy bounds the attempts of one side effect kind.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.InitialInterval
	expo.MaxInterval = p.MaxInterval
	expo.MaxElapsedTime = 0
	expo.Reset()

	attempts := max(p.MaxAttempts, 1)

	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(attempts-1)), ctx)
}

func DefaultMessagePolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialInterval: time.Second, MaxInterval: 30 * time.Second}
}

func DefaultWebhookPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 10 * time.Second}
}

func DefaultMutationPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialInterval: 20 * time.Millisecond, MaxInterval: time.Second}
}

type Config struct {
	Sender      protocol.MessageSender
	Webhooks    protocol.WebhookCaller
	Contacts    persistence.ContactRepository
	Logs        persistence.LogRepository
	Locker      lock.Locker
	Idempotency idempotency.Store
	// Publisher receives handoff notifications. Optional.
	Publisher eventbus.EventPublisher
	Tracer    trace.Tracer
	Logger    *slog.Logger

	MessagePolicy  RetryPolicy
	WebhookPolicy  RetryPolicy
	MutationPolicy RetryPolicy
}

type Dispatcher struct {
	sender      protocol.MessageSender
	webhooks    protocol.WebhookCaller
	contacts    persistence.ContactRepository
	logs        persistence.LogRepository
	locker      lock.Locker
	idempotency idempotency.Store
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	policies    map[protocol.SideEffectKind]RetryPolicy
}

func New(cfg Config) *Dispatcher {
	if cfg.MessagePolicy.MaxAttempts == 0 {
		cfg.MessagePolicy = DefaultMessagePolicy()
	}

	if cfg.WebhookPolicy.MaxAttempts == 0 {
		cfg.WebhookPolicy = DefaultWebhookPolicy()
	}

	if cfg.MutationPolicy.MaxAttempts == 0 {
		cfg.MutationPolicy = DefaultMutationPolicy()
	}

	if cfg.Tracer == nil {
		cfg.Tracer = otelhelper.Noop()
	}

	if cfg.Locker == nil {
		cfg.Locker = lock.NewLocal()
	}

	if cfg.Idempotency == nil {
		cfg.Idempotency = idempotency.NewMemory()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Dispatcher{
		sender:      cfg.Sender,
		webhooks:    cfg.Webhooks,
		contacts:    cfg.Contacts,
		logs:        cfg.Logs,
		locker:      cfg.Locker,
		idempotency: cfg.Idempotency,
		publisher:   cfg.Publisher,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger.With("module", "dispatcher"),
		policies: map[protocol.SideEffectKind]RetryPolicy{
			protocol.SideEffectSendMessage:     cfg.MessagePolicy,
			protocol.SideEffectCallWebhook:     cfg.WebhookPolicy,
			protocol.SideEffectAddTag:          cfg.MutationPolicy,
			protocol.SideEffectRemoveTag:       cfg.MutationPolicy,
			protocol.SideEffectUpdateField:     cfg.MutationPolicy,
			protocol.SideEffectTransferToHuman: cfg.MessagePolicy,
		},
	}
}

// Request is one side effect of one node evaluation.
type Request struct {
	ExecutionID string
	FlowID      string
	NodeID      string
	ContactID   string
	Epoch       int64
	Effect      *protocol.SideEffect
}

func (r Request) idempotencyKey() string {
	return idempotency.Key(r.ExecutionID, r.NodeID, r.Epoch)
}

// Result is what the engine merges back into the execution.
type Result struct {
	Variables map[string]any
	// Contact is the contact after a mutation.
	Contact *models.Contact
	// Duplicate is set when the mutation was already applied by an earlier
	// attempt of the same step.
	Duplicate bool
	Attempts  int
}

// SideEffectError is returned when an effect failed permanently or ran out
// of attempts.
type SideEffectError struct {
	Kind     protocol.SideEffectKind
	NodeID   string
	Attempts int
	Err      error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("%s on node %s failed after %d attempt(s): %v", e.Kind, e.NodeID, e.Attempts, e.Err)
}

func (e *SideEffectError) Unwrap() error {
	return e.Err
}

func (e *SideEffectError) Is(target error) bool {
	return target == models.ErrSideEffectFailed
}

type attemptFunc func(ctx context.Context, result *Result) error

// Dispatch applies req.Effect with the retry policy of its kind and writes
// one execution log entry per attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatcher.dispatch",
		attribute.String(otelhelper.ExecutionIDKey, req.ExecutionID),
		attribute.String(otelhelper.NodeIDKey, req.NodeID),
		attribute.String(otelhelper.SideEffectKindKey, string(req.Effect.Kind)),
		attribute.Int64(otelhelper.EpochKey, req.Epoch),
	)
	defer span.End()

	logger := d.logger.With(
		"execution_id", req.ExecutionID,
		"node_id", req.NodeID,
		"contact_id", req.ContactID,
		"kind", req.Effect.Kind,
	)

	var fn attemptFunc

	switch req.Effect.Kind {
	case protocol.SideEffectSendMessage:
		fn = d.sendMessage(req)
	case protocol.SideEffectCallWebhook:
		fn = d.callWebhook(req)
	case protocol.SideEffectAddTag, protocol.SideEffectRemoveTag, protocol.SideEffectUpdateField:
		return d.mutateContact(ctx, req, logger)
	case protocol.SideEffectTransferToHuman:
		fn = d.handoff(req)
	default:
		err := &SideEffectError{Kind: req.Effect.Kind, NodeID: req.NodeID, Err: errUnknownEffect}
		otelhelper.SetError(span, err)

		return nil, err
	}

	result, err := d.retry(ctx, req, logger, isTransient(req.Effect.Kind), fn)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return result, err
}

func (d *Dispatcher) retry(ctx context.Context, req Request, logger *slog.Logger, transient func(error) bool, fn attemptFunc) (*Result, error) {
	result := &Result{Variables: map[string]any{}}

	err := backoff.Retry(func() error {
		result.Attempts++

		err := fn(ctx, result)
		d.audit(ctx, req, result, err)

		if err == nil {
			return nil
		}

		if errors.Is(err, errUnknownEffect) || !transient(err) {
			return backoff.Permanent(err)
		}

		logger.WarnContext(ctx, "Side effect attempt failed", "attempt", result.Attempts, "error", err)

		return err
	}, d.policies[req.Effect.Kind].backOff(ctx))
	if err != nil {
		logger.ErrorContext(ctx, "Side effect failed", "attempts", result.Attempts, "error", err)

		return nil, &SideEffectError{Kind: req.Effect.Kind, NodeID: req.NodeID, Attempts: result.Attempts, Err: err}
	}

	logger.DebugContext(ctx, "Side effect applied", "attempts", result.Attempts)

	return result, nil
}

func (d *Dispatcher) sendMessage(req Request) attemptFunc {
	return func(ctx context.Context, result *Result) error {
		if req.Effect.Message == nil {
			return fmt.Errorf("%w: message missing", errUnknownEffect)
		}

		id, err := d.sender.Send(ctx, *req.Effect.Message)
		if err != nil {
			return err
		}

		result.Variables["last_delivery_id"] = id

		return nil
	}
}

func (d *Dispatcher) callWebhook(req Request) attemptFunc {
	return func(ctx context.Context, result *Result) error {
		if req.Effect.Webhook == nil {
			return fmt.Errorf("%w: webhook missing", errUnknownEffect)
		}

		resp, err := d.webhooks.Call(ctx, *req.Effect.Webhook)
		if err != nil {
			return err
		}

		if req.Effect.ResultKey != "" {
			result.Variables[req.Effect.ResultKey] = map[string]any{
				"status_code": resp.StatusCode,
				"body":        resp.Body,
			}
		}

		return nil
	}
}

func (d *Dispatcher) handoff(req Request) attemptFunc {
	return func(ctx context.Context, result *Result) error {
		handoff := req.Effect.Handoff
		if handoff == nil {
			handoff = &protocol.Handoff{}
		}

		result.Variables["handoff_team"] = handoff.Team

		if d.publisher == nil {
			d.logger.InfoContext(ctx, "Human handoff requested", "execution_id", req.ExecutionID, "team", handoff.Team)

			return nil
		}

		event := newHandoffEvent(req, handoff)

		return d.publisher.Publish(ctx, req.ContactID, event)
	}
}

// isTransient returns the retry classification of kind. Messages retry only
// rate limiting. Webhooks retry everything but 4xx answers. Contact
// mutations retry version conflicts.
func isTransient(kind protocol.SideEffectKind) func(error) bool {
	switch kind {
	case protocol.SideEffectSendMessage:
		return func(err error) bool {
			return errors.Is(err, protocol.ErrRateLimited)
		}
	case protocol.SideEffectCallWebhook:
		return func(err error) bool {
			var statusErr *protocol.StatusError
			if errors.As(err, &statusErr) {
				return statusErr.Transient()
			}

			return !errors.Is(err, context.Canceled)
		}
	case protocol.SideEffectAddTag, protocol.SideEffectRemoveTag, protocol.SideEffectUpdateField:
		return func(err error) bool {
			return errors.Is(err, models.ErrStorageConflict)
		}
	default:
		return func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}
	}
}

func (d *Dispatcher) audit(ctx context.Context, req Request, result *Result, err error) {
	if d.logs == nil {
		return
	}

	entry := &models.ExecutionLogEntry{
		ExecutionID: req.ExecutionID,
		NodeID:      req.NodeID,
		Kind:        models.LogKindSideEffect,
		Status:      models.LogStatusSuccess,
		Attempt:     result.Attempts,
		Input:       map[string]any{"kind": string(req.Effect.Kind), "epoch": req.Epoch},
		Timestamp:   time.Now().UTC(),
	}

	if err != nil {
		entry.Status = models.LogStatusError
		entry.Error = err.Error()
	} else if len(result.Variables) > 0 {
		entry.Output = result.Variables
	}

	if result.Duplicate {
		entry.Output = map[string]any{"duplicate": true}
	}

	logErr := d.logs.Append(ctx, entry)
	if logErr != nil {
		d.logger.ErrorContext(ctx, "Failed to write audit log", "execution_id", req.ExecutionID, "error", logErr)
	}
}
