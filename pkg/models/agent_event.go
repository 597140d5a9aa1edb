package models

import (
	"time"
)

// AgentEvent is the unified event model for streaming a single request.
//
// Design principles:
//   - Single Kind discriminator with optional payload pointers
//   - Monotonic Seq for ordering guarantees within a request
//   - Self-describing: safe to serialize as-is for adapters
type AgentEvent struct {
	// Seq is monotonic within a request for ordering guarantees.
	Seq uint64 `json:"seq"`

	// RequestID identifies the request this event belongs to.
	RequestID string `json:"request_id"`

	// Kind identifies the kind of event.
	Kind AgentEventKind `json:"kind"`

	// Time is when the event occurred.
	Time time.Time `json:"time"`

	// Exactly one payload is non-nil for a given Kind.
	Thinking     *ThinkingPayload     `json:"thinking,omitempty"`
	Plan         *PlanPayload         `json:"plan,omitempty"`
	Step         *StepPayload         `json:"step,omitempty"`
	Tool         *ToolPayload         `json:"tool,omitempty"`
	Skill        *SkillPayload        `json:"skill,omitempty"`
	Content      *ContentPayload      `json:"content,omitempty"`
	Error        *ErrorPayload        `json:"error,omitempty"`
	History      *HistoryPayload      `json:"history,omitempty"`
	Confirmation *ConfirmationPayload `json:"confirmation,omitempty"`
}

// AgentEventKind identifies the kind of agent event.
type AgentEventKind string

const (
	EventThinking             AgentEventKind = "thinking"
	EventPlan                 AgentEventKind = "plan"
	EventStepStart            AgentEventKind = "step_start"
	EventToolStart            AgentEventKind = "tool_start"
	EventToolOutput           AgentEventKind = "tool_output"
	EventSkillActivity        AgentEventKind = "skill_activity"
	EventContent              AgentEventKind = "content"
	EventError                AgentEventKind = "error"
	EventHistorySnapshot      AgentEventKind = "history_snapshot"
	EventConfirmationRequired AgentEventKind = "confirmation_required"
)

// ThinkingPayload carries intermediate reasoning text.
type ThinkingPayload struct {
	Text string `json:"text"`
}

// PlanPayload carries the accepted plan.
type PlanPayload struct {
	Steps []Step `json:"steps"`
}

// StepPayload announces the start of a plan step.
type StepPayload struct {
	Index  int      `json:"index"`
	Kind   StepKind `json:"kind"`
	Target string   `json:"target,omitempty"`
}

// ToolPayload describes tool invocations and their outputs.
// Args are redacted before emission; secrets never leave the process.
type ToolPayload struct {
	Index     int            `json:"index"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args_redacted,omitempty"`
	Text      string         `json:"text,omitempty"`
	Truncated bool           `json:"truncated,omitempty"`
}

// SkillPayload reports skill worker-loop activity.
type SkillPayload struct {
	Index int    `json:"index"`
	Skill string `json:"skill"`
	Phase string `json:"phase"`
	Text  string `json:"text,omitempty"`
}

// ContentPayload is a token delta of the assistant answer. The terminal
// content event has an empty Delta and Finish set to "stop".
type ContentPayload struct {
	Delta  string `json:"delta"`
	Finish string `json:"finish,omitempty"`
}

// ErrorPayload standardizes errors on the stream.
type ErrorPayload struct {
	// Code is stable across revisions (e.g. AUTH_MISSING_TOKEN, PLAN_INVALID).
	Code string `json:"code"`

	// Message is human-readable and redacts secrets.
	Message string `json:"message"`

	// Retryable is advisory for callers.
	Retryable bool `json:"retryable"`
}

// HistoryPayload is the final conversation snapshot for a request.
type HistoryPayload struct {
	Messages []Message `json:"messages"`
}

// ConfirmationPayload asks the caller to confirm a gated tool invocation.
// The next request on the same conversation may carry TokenToConfirm to
// authorize the action.
type ConfirmationPayload struct {
	Tool           string         `json:"tool"`
	Args           map[string]any `json:"args_redacted,omitempty"`
	TokenToConfirm string         `json:"token_to_confirm"`
}

// Terminal reports whether the event closes the stream: either the finishing
// content event or an error.
func (e *AgentEvent) Terminal() bool {
	switch e.Kind {
	case EventError:
		return true
	case EventContent:
		return e.Content != nil && e.Content.Finish != ""
	default:
		return false
	}
}
