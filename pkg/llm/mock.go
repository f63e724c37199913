package llm

import (
	"context"
	"sync"
)

// MockTextClient is a configurable mock for testing.
// Set GenerateResponseFunc to control behavior.
type MockTextClient struct {
	// GenerateResponseFunc is called when GenerateResponse is invoked.
	// If nil, returns an empty string and nil error.
	GenerateResponseFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	mu      sync.Mutex
	prompts []string
}

// NewMockTextClient creates a mock with sensible defaults.
func NewMockTextClient() *MockTextClient {
	return &MockTextClient{Model: "mock-model"}
}

// GenerateResponse implements TextClient.
func (m *MockTextClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, prompt, systemMessage, temperature)
	}
	return "", nil
}

// GetModel implements TextClient.
func (m *MockTextClient) GetModel() string {
	return m.Model
}

// Calls returns the number of GenerateResponse calls.
func (m *MockTextClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns the prompts received so far.
func (m *MockTextClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

var _ TextClient = (*MockTextClient)(nil)
