package transport_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWebhookCaller_PostsJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ana", body["name"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score": 7}`))
	}))
	defer server.Close()

	caller := transport.NewHTTPWebhookCaller(testLogger(), time.Second)

	resp, err := caller.Call(t.Context(), protocol.WebhookRequest{
		URL:     server.URL,
		Method:  "post",
		Headers: map[string]string{"X-Token": "secret"},
		Body:    map[string]any{"name": "Ana"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"score": float64(7)}, resp.Body)
}

func TestWebhookCaller_StatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	caller := transport.NewHTTPWebhookCaller(testLogger(), time.Second)

	resp, err := caller.Call(t.Context(), protocol.WebhookRequest{URL: server.URL, Method: http.MethodGet})

	var statusErr *protocol.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.Transient())
	assert.Equal(t, "upstream down", resp.Body)
}

func TestWebhookCaller_CapsResponseBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), 2*transport.MaxResponseBody))
	}))
	defer server.Close()

	caller := transport.NewHTTPWebhookCaller(testLogger(), time.Second)

	resp, err := caller.Call(t.Context(), protocol.WebhookRequest{URL: server.URL, Method: http.MethodGet})
	require.NoError(t, err)

	body, ok := resp.Body.(string)
	require.True(t, ok)
	assert.Len(t, body, transport.MaxResponseBody)
}

func TestWebhookCaller_Timeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	caller := transport.NewHTTPWebhookCaller(testLogger(), time.Minute)

	start := time.Now()
	_, err := caller.Call(t.Context(), protocol.WebhookRequest{URL: server.URL, Timeout: 50 * time.Millisecond})

	require.ErrorIs(t, err, protocol.ErrWebhookTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWebhookCaller_ConnectionRefused(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	caller := transport.NewHTTPWebhookCaller(testLogger(), time.Second)

	_, err := caller.Call(t.Context(), protocol.WebhookRequest{URL: url})
	require.ErrorIs(t, err, protocol.ErrConnectionRefused)
}

func TestHTTPMessageSender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantID  string
		wantErr error
	}{
		{name: "delivered", status: http.StatusAccepted, body: `{"id":"wamid.1"}`, wantID: "wamid.1"},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, wantErr: protocol.ErrRateLimited},
		{name: "invalid recipient", status: http.StatusUnprocessableEntity, body: `{"error":"no such number"}`, wantErr: protocol.ErrInvalidRecipient},
		{name: "provider down", status: http.StatusInternalServerError, wantErr: protocol.ErrProviderError},
		{name: "missing id", status: http.StatusOK, body: `{}`, wantErr: protocol.ErrProviderError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

				raw, _ := io.ReadAll(r.Body)

				var msg protocol.OutboundMessage
				assert.NoError(t, json.Unmarshal(raw, &msg))
				assert.Equal(t, "c-1", msg.ContactID)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			sender := transport.NewHTTPMessageSender(testLogger(), server.URL, "token", time.Second)

			id, err := sender.Send(t.Context(), protocol.OutboundMessage{Kind: protocol.MessageText, ContactID: "c-1", Text: "hi"})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestLogMessageSender(t *testing.T) {
	t.Parallel()

	sender := transport.NewLogMessageSender(testLogger())

	id, err := sender.Send(t.Context(), protocol.OutboundMessage{Kind: protocol.MessageText, ContactID: "c-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
