// Package llm provides the gateway to LLM providers: profile-based routing,
// streamed completions, and error classification.
package llm

import (
	"context"
	"encoding/json"
)

// Message is a single turn handed to a provider.
// Role values follow the usual user/assistant/system/tool convention.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolCalls carries tool requests on assistant turns.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-role turn to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a provider-emitted request to execute a tool.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolSchema describes a callable tool to the provider.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Request is a completion request addressed to a routing profile.
type Request struct {
	// Profile is an opaque routing target (planner, composer, supervisor, ...).
	Profile string

	System   string
	Messages []Message
	Tools    []ToolSchema

	MaxTokens int
}

// Response is a structured, non-streamed completion.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Chunk is one element of a streamed completion. The final chunk has Done set;
// tool calls, if any, arrive complete on the final chunk.
type Chunk struct {
	Delta     string
	ToolCalls []ToolCall
	Done      bool
	Err       error
}

// Gateway is the single surface the core consumes for LLM access.
//
// Implementations must be safe for concurrent use; every request is
// independent.
type Gateway interface {
	// Complete returns a structured completion, optionally with tool calls.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream returns a channel of token deltas. The channel is closed after
	// the Done chunk (or an Err chunk) is delivered.
	Stream(ctx context.Context, req *Request) (<-chan *Chunk, error)
}

// Provider is a concrete LLM backend. The Router resolves a profile to a
// (provider, model) pair and delegates.
type Provider interface {
	Name() string
	Complete(ctx context.Context, model string, req *Request) (*Response, error)
	Stream(ctx context.Context, model string, req *Request) (<-chan *Chunk, error)
}
