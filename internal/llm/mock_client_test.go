package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// mockLLMClient is a hand-rolled LLMClient stub for advisor/consultant
// tests, returning scripted responses or a transport error.
type mockLLMClient struct {
	responses []string // successive CompleteWithSystem responses, in order
	calls     int
	err       error // if set, every call fails with this error
}

func (m *mockLLMClient) Complete(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func (m *mockLLMClient) CompleteWithRetry(ctx context.Context, messages []ChatMessage, maxRetries int) (*ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func (m *mockLLMClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.calls >= len(m.responses) {
		return "", errors.New("mock exhausted")
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func (m *mockLLMClient) ParseJSONResponse(content string, target interface{}) error {
	return json.Unmarshal([]byte(content), target)
}

var _ LLMClient = (*mockLLMClient)(nil)
