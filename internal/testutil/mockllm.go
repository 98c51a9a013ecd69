// Package testutil provides deterministic test doubles for the LLM
// surface.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLM provides deterministic model responses for testing. It
// matches the last user message against registered substring patterns
// and returns the matching rule's text or tool requests.
//
// Rules are checked in registration order; first match wins, so
// register the most specific pattern first. Thread-safe.
type MockLLM struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	calls    []MockCall
}

type mockRule struct {
	pattern  string
	response string
	tools    []*ai.ToolRequest
	consume  bool // rule is removed after one match
}

// MockCall records a single call to the mock model.
type MockCall struct {
	UserMessage string
	Response    string
	ToolNames   []string
}

// NewMockLLM creates a mock with the given fallback text, returned when
// no pattern matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern that yields a text response.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), response: response})
}

// AddToolResponse registers a pattern that yields tool-call requests.
func (m *MockLLM) AddToolResponse(pattern string, tools []*ai.ToolRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), tools: tools})
}

// AddOnceToolResponse registers a tool-call rule that fires a single
// time, so a follow-up call with the same context falls through to
// later rules. Useful for scripting a reasoning pass followed by a
// plain answer.
func (m *MockLLM) AddOnceToolResponse(pattern string, tools []*ai.ToolRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), tools: tools, consume: true})
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// RegisterModel registers the mock as a genkit model named
// "mock/test-model".
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
		},
	}, m.generate)
}

// ModelName is the name RegisterModel registers under, for
// ai.WithModelName.
const ModelName = "mock/test-model"

func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
			break
		}
	}

	m.mu.Lock()
	var matched *mockRule
	lower := strings.ToLower(userText)
	for i := range m.rules {
		if strings.Contains(lower, m.rules[i].pattern) {
			matched = &m.rules[i]
			if m.rules[i].consume {
				consumed := m.rules[i]
				m.rules = append(m.rules[:i], m.rules[i+1:]...)
				matched = &consumed
			}
			break
		}
	}

	responseText := m.fallback
	var toolReqs []*ai.ToolRequest
	if matched != nil {
		if matched.response != "" {
			responseText = matched.response
		}
		toolReqs = matched.tools
	}

	call := MockCall{UserMessage: userText, Response: responseText}
	for _, tr := range toolReqs {
		call.ToolNames = append(call.ToolNames, tr.Name)
	}
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	if cb != nil {
		_ = cb(ctx, &ai.ModelResponseChunk{
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		})
	}

	var parts []*ai.Part
	for _, tr := range toolReqs {
		parts = append(parts, &ai.Part{Kind: ai.PartToolRequest, ToolRequest: tr})
	}
	if len(parts) == 0 {
		parts = append(parts, ai.NewTextPart(responseText))
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{Role: ai.RoleModel, Content: parts},
	}, nil
}
