package protocol

import (
	"context"
	"errors"
	"fmt"
)

// Message transport errors. Only ErrRateLimited is worth retrying.
var (
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrProviderError    = errors.New("provider error")
)

// Webhook caller errors.
var (
	ErrWebhookTimeout    = errors.New("webhook timeout")
	ErrConnectionRefused = errors.New("connection refused")
)

// MessageSender delivers outbound messages and returns the provider delivery id.
type MessageSender interface {
	Send(ctx context.Context, message OutboundMessage) (string, error)
}

// WebhookCaller performs one HTTP call. It must honour ctx cancellation.
type WebhookCaller interface {
	Call(ctx context.Context, request WebhookRequest) (*WebhookResponse, error)
}

// StatusError is returned with a response whose status code is not 2xx.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}

// Transient reports whether a retry may succeed.
func (e *StatusError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429 || e.StatusCode == 408
}
