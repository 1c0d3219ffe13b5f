package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLM provides deterministic model responses for testing.
// It matches the last user message against registered patterns and
// returns the corresponding response; unmatched messages get the
// fallback. A failure count can be set to exercise retry paths.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu        sync.Mutex
	responses []mockRule
	fallback  string
	failures  int // remaining calls that return failErr before succeeding
	failErr   error
	calls     []MockCall
}

type mockRule struct {
	pattern  string // substring match in user message, lowercase
	response string
}

// MockCall records a single call to the mock model.
type MockCall struct {
	UserMessage string
	Response    string
}

// NewMockLLM creates a mock LLM with the given fallback response.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair. Patterns are matched
// case-insensitively in registration order; first match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// FailNext makes the next n calls return err before responding normally.
func (m *MockLLM) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	if err == nil {
		err = errors.New("mock model failure")
	}
	m.failErr = err
}

// Calls returns a copy of all recorded successful calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// RegisterModel registers the mock as a Genkit model named
// "mock/test-model".
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
		},
	}, m.generate)
}

// generate is the Genkit model function.
func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
			break
		}
	}

	m.mu.Lock()
	if m.failures > 0 {
		m.failures--
		err := m.failErr
		m.mu.Unlock()
		return nil, err
	}

	responseText := m.fallback
	lower := strings.ToLower(userText)
	for _, rule := range m.responses {
		if strings.Contains(lower, rule.pattern) {
			responseText = rule.response
			break
		}
	}
	m.calls = append(m.calls, MockCall{UserMessage: userText, Response: responseText})
	m.mu.Unlock()

	if cb != nil {
		_ = cb(ctx, &ai.ModelResponseChunk{
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		})
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		},
	}, nil
}
