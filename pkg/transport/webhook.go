// Package transport implements the message sender and webhook caller
// collaborators over HTTP.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/dukex/chatflow/pkg/protocol"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultWebhookTimeout = 30 * time.Second
	// MaxResponseBody caps the bytes read from a webhook response.
	MaxResponseBody = 1 << 20
)

// HTTPWebhookCaller performs webhook side effects. Every call is bounded by
// the request timeout or, when unset, by the caller default.
type HTTPWebhookCaller struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewHTTPWebhookCaller(logger *slog.Logger, timeout time.Duration) *HTTPWebhookCaller {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}

	return &HTTPWebhookCaller{
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: timeout,
		logger:  logger.With("module", "webhook_caller"),
	}
}

func (c *HTTPWebhookCaller) Call(ctx context.Context, request protocol.WebhookRequest) (*protocol.WebhookResponse, error) {
	timeout := c.timeout
	if request.Timeout > 0 {
		timeout = request.Timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, contentType, err := encodeBody(request.Body)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(request.Method)
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, request.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classify(err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			c.logger.ErrorContext(ctx, "Failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBody))
	if err != nil {
		return nil, classify(err)
	}

	response := &protocol.WebhookResponse{StatusCode: resp.StatusCode, Body: decodeBody(raw)}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response, &protocol.StatusError{StatusCode: resp.StatusCode}
	}

	return response, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		if b == "" {
			return nil, "", nil
		}

		return strings.NewReader(b), "text/plain; charset=utf-8", nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode webhook body: %w", err)
		}

		return bytes.NewReader(raw), "application/json", nil
	}
}

func decodeBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}

	var body any

	err := json.Unmarshal(raw, &body)
	if err != nil {
		return string(raw)
	}

	return body
}

func classify(err error) error {
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", protocol.ErrWebhookTimeout, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %w", protocol.ErrConnectionRefused, err)
	default:
		return fmt.Errorf("webhook request failed: %w", err)
	}
}
