package agent

import (
	"context"
	"fmt"
	"sync"

	"messagecraft/pkg/agent/llm"
)

// MockLLMClient provides a controllable implementation of llm.LLMClient for testing.
// Responses and errors are consumed in order; a nil error slot means the
// corresponding call succeeds with the next response.
type MockLLMClient struct {
	mu            sync.Mutex
	responses     []llm.CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
	requests      []llm.CompletionRequest
}

// NewMockLLMClient creates a new mock client with predefined responses.
func NewMockLLMClient(responses []llm.CompletionResponse, errors []error) *MockLLMClient {
	return &MockLLMClient{
		responses: responses,
		errors:    errors,
	}
}

// Complete returns the next predefined response or error.
func (m *MockLLMClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.errorIndex < len(m.errors) {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		if err != nil {
			return llm.CompletionResponse{}, err
		}
	}

	if m.responseIndex >= len(m.responses) {
		return llm.CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}

	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// GetModelName returns a fixed mock model name.
func (m *MockLLMClient) GetModelName() string {
	return "mock-model"
}

// CallCount returns the number of Complete calls made so far.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of all requests seen so far.
func (m *MockLLMClient) Requests() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
