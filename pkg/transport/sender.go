package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPMessageSender posts outbound messages as JSON to a provider endpoint
// that answers {"id": "<delivery id>"}.
type HTTPMessageSender struct {
	client   *http.Client
	endpoint string
	token    string
	logger   *slog.Logger
}

func NewHTTPMessageSender(logger *slog.Logger, endpoint, token string, timeout time.Duration) *HTTPMessageSender {
	return &HTTPMessageSender{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		endpoint: endpoint,
		token:    token,
		logger:   logger.With("module", "message_sender"),
	}
}

type deliveryReceipt struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

func (s *HTTPMessageSender) Send(ctx context.Context, message protocol.OutboundMessage) (string, error) {
	raw, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("%w: %w", protocol.ErrProviderError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", protocol.ErrProviderError, err)
	}

	req.Header.Set("Content-Type", "application/json")

	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", protocol.ErrProviderError, err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", protocol.ErrProviderError, err)
	}

	var receipt deliveryReceipt

	_ = json.Unmarshal(body, &receipt)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: %s", protocol.ErrRateLimited, receipt.Error)
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %s", protocol.ErrInvalidRecipient, receipt.Error)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("%w: status %d", protocol.ErrProviderError, resp.StatusCode)
	}

	if receipt.ID == "" {
		return "", fmt.Errorf("%w: response without delivery id", protocol.ErrProviderError)
	}

	return receipt.ID, nil
}

// LogMessageSender logs messages instead of delivering them.
type LogMessageSender struct {
	logger *slog.Logger
}

func NewLogMessageSender(logger *slog.Logger) *LogMessageSender {
	return &LogMessageSender{logger: logger.With("module", "message_sender")}
}

func (s *LogMessageSender) Send(ctx context.Context, message protocol.OutboundMessage) (string, error) {
	id := uuid.NewString()

	s.logger.InfoContext(ctx, "Sending message",
		"delivery_id", id,
		"contact_id", message.ContactID,
		"kind", message.Kind,
		"text", message.Text,
		"template", message.TemplateName,
	)

	return id, nil
}
