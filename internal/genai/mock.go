package genai

import (
	"context"
	"sync"
	"time"
)

// MockCall records one prompt seen by MockGenerator.
type MockCall struct {
	SystemPrompt string
	UserPrompt   string
}

// MockGenerator is a Generator for tests. It returns Response or Err, optionally
// after Delay, and stops early if ctx is done.
type MockGenerator struct {
	Response string
	Err      error
	Delay    time.Duration

	mu    sync.Mutex
	Calls []MockCall
}

// GeneratePromptWithContext records the call and returns the canned result.
func (m *MockGenerator) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// CallCount returns how many prompts were received.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
