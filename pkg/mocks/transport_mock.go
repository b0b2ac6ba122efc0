package mocks

import (
	"context"

	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockMessageSender is a mock implementation of protocol.MessageSender.
type MockMessageSender struct {
	mock.Mock
}

func (m *MockMessageSender) Send(ctx context.Context, message protocol.OutboundMessage) (string, error) {
	args := m.Called(ctx, message)

	return args.String(0), args.Error(1)
}

// MockWebhookCaller is a mock implementation of protocol.WebhookCaller.
type MockWebhookCaller struct {
	mock.Mock
}

func (m *MockWebhookCaller) Call(ctx context.Context, request protocol.WebhookRequest) (*protocol.WebhookResponse, error) {
	args := m.Called(ctx, request)

	resp, _ := args.Get(0).(*protocol.WebhookResponse)

	return resp, args.Error(1)
}
