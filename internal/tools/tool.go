// Package tools defines the tool abstraction, the registry with cloning and
// permission filtering, and the native tool set.
package tools

import (
	"context"
	"encoding/json"
)

// Tool is a named capability exposed to the model.
//
// Implementations must be safe for concurrent invocation: the same tool value
// is shared by every registry clone derived from the base template.
type Tool interface {
	// Name is the unique registry key.
	Name() string

	// Description is shown to the model when selecting tools.
	Description() string

	// Schema is the JSON schema of the tool's arguments.
	Schema() json.RawMessage

	// Category groups tools for display and policy purposes.
	Category() string

	// RequiresConfirmation marks tools that need explicit user approval
	// before execution.
	RequiresConfirmation() bool

	// Execute runs the tool. External failures are reported as an error
	// Result, not a Go error; a non-nil error means the invocation itself
	// could not be carried out.
	Execute(ctx context.Context, args json.RawMessage) (*Result, error)
}

// Result is the outcome of a tool invocation.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

type invocationKey struct{}

// Invocation carries per-request parameters that tools may need: the tenant
// context, the conversation, the working directory, and the confirmation
// token, if the caller already approved a gated action. The executor injects
// it; tools read it via FromContext.
type Invocation struct {
	ContextID      string
	ConversationID string
	WorkingDir     string
	ConfirmToken   string
}

// WithInvocation attaches the invocation to the context.
func WithInvocation(ctx context.Context, inv Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// FromContext returns the invocation attached to the context, if any.
func FromContext(ctx context.Context) (Invocation, bool) {
	inv, ok := ctx.Value(invocationKey{}).(Invocation)
	return inv, ok
}
