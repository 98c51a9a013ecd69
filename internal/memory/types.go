// Package memory owns the conversation memory schema on top of the
// graph store: episodic memory (Thread and Message chains), procedural
// memory (ReasoningStep, ToolCall, Tool), and the structural invariants
// between them. Declarative memory lives in internal/preferences.
package memory

import "time"

// Node labels.
const (
	LabelThread        = "Thread"
	LabelMessage       = "Message"
	LabelReasoningStep = "ReasoningStep"
	LabelToolCall      = "ToolCall"
	LabelTool          = "Tool"
)

// Relationship types.
const (
	RelFirstMessage = "FIRST_MESSAGE"
	RelNextMessage  = "NEXT_MESSAGE"
	RelFirstStep    = "FIRST_STEP"
	RelNextStep     = "NEXT_STEP"
	RelUsesTool     = "USES_TOOL"
	RelInstanceOf   = "INSTANCE_OF"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Thread is a persisted conversation. Messages is populated only by
// GetThread; listing operations leave it nil.
type Thread struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastMessageAt time.Time `json:"last_message_at"`
	Messages      []Message `json:"messages,omitempty"`
}

// Message is one entry in a thread's chain. Immutable after creation;
// StepsSummary and AgentContext are written exactly once, at creation.
type Message struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"thread_id"`
	Sender       Sender    `json:"sender"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
	StepsSummary string    `json:"steps_summary,omitempty"`
	AgentContext string    `json:"agent_context,omitempty"`
}

// ReasoningStep is one iteration of the agent loop for a message.
// Number is 1-based and assigned by the orchestrator.
type ReasoningStep struct {
	ID        string     `json:"id"`
	Number    int        `json:"step_number"`
	Reasoning string     `json:"reasoning,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall records one tool invocation, including retried attempts.
// Attempt is 1-based within its step's retry loop for a given tool.
type ToolCall struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Output    string         `json:"output,omitempty"`
	Attempt   int            `json:"attempt"`
	Empty     bool           `json:"empty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Tool is the canonical record of a named tool, shared across threads.
type Tool struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
	UsageCount  int       `json:"usage_count"`
}
