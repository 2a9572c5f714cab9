package twiliosms

import (
	"context"
	"sync"
)

// SentMessage is one SMS recorded by MockClient.
type SentMessage struct {
	To       string
	Body     string
	SenderID string
}

// PlacedCall is one voice call recorded by MockClient.
type PlacedCall struct {
	To      string
	Message string
}

// MockClient records outbound traffic instead of calling Twilio.
// Set Err to make every send fail.
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	Calls        []PlacedCall
	Err          error
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendSMS(ctx context.Context, to, body, senderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body, SenderID: senderID})
	return nil
}

func (m *MockClient) PlaceCall(ctx context.Context, to, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Calls = append(m.Calls, PlacedCall{To: to, Message: message})
	return nil
}

// Messages returns a snapshot of the recorded SMS.
func (m *MockClient) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.SentMessages...)
}

// PlacedCalls returns a snapshot of the recorded calls.
func (m *MockClient) PlacedCalls() []PlacedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PlacedCall(nil), m.Calls...)
}
