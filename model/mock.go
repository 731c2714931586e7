package model

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a deterministic Client for tests and examples.
type MockClient struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	err       error
	calls     []map[string]any
}

// NewMockClient creates a MockClient.
func NewMockClient(name string) *MockClient {
	return &MockClient{info: Info{Name: name, Provider: "mock"}, responses: make(map[string]string)}
}

// AddResponse registers a canned completion for prompt.
func (m *MockClient) AddResponse(prompt, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = text
}

// FailWith makes every subsequent Predict return err.
func (m *MockClient) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the inputs of every Predict call.
func (m *MockClient) Calls() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.calls...)
}

// Predict implements Client.
func (m *MockClient) Predict(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in, err := ParseTextInput(inputs)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, inputs)
	if m.err != nil {
		return nil, m.err
	}
	text, ok := m.responses[in.Prompt]
	if !ok {
		text = fmt.Sprintf("Mock response to: %s", in.Prompt)
	}
	return map[string]any{
		OutputText:         text,
		OutputModel:        m.info.Name,
		OutputFinishReason: "stop",
	}, nil
}

// Info implements Client.
func (m *MockClient) Info() Info { return m.info }
