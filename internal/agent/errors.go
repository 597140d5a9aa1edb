package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/conductor-ai/conductor/internal/llm"
	"github.com/conductor-ai/conductor/internal/mcp"
	"github.com/conductor-ai/conductor/pkg/models"
)

// ErrorKind places a failure in the recovery taxonomy.
type ErrorKind int

const (
	// KindTransient covers timeouts, rate limits, 5xx and network flakes.
	// Recovery: retry at step level, then replan.
	KindTransient ErrorKind = iota

	// KindSemantic covers wrong tool, wrong arguments, off-intent output.
	// Recovery: replan.
	KindSemantic

	// KindAuthorization covers missing or expired credentials. Recovery:
	// abort with an actionable error.
	KindAuthorization

	// KindValidation covers plan parse failures and schema violations.
	// Recovery: replan until the budget is spent, then abort.
	KindValidation

	// KindFatal covers persistence failures and corrupted state.
	KindFatal

	// KindCancelled covers caller cancellation.
	KindCancelled
)

// Stable error codes carried on error events. These never change between
// releases; adapters key behaviour off them.
const (
	CodeAuthMissingToken  = "AUTH_MISSING_TOKEN"
	CodePlanInvalid       = "PLAN_INVALID"
	CodeStepAborted       = "STEP_ABORTED"
	CodeCancelled         = "CANCELLED"
	CodeLLMUnavailable    = "LLM_UNAVAILABLE"
	CodeToolFailed        = "TOOL_FAILED"
	CodeSkillNotFound     = "SKILL_NOT_FOUND"
	CodePersistenceFailed = "PERSISTENCE_FAILED"
	CodeInternal          = "INTERNAL"
)

// Error is a classified failure crossing the agent boundary.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether callers may usefully retry.
func (e *Error) Retryable() bool { return e.Kind == KindTransient }

// Payload renders the error for the event stream, with secrets redacted.
func (e *Error) Payload() *models.ErrorPayload {
	return &models.ErrorPayload{
		Code:      e.Code,
		Message:   redactSecrets(e.Message),
		Retryable: e.Retryable(),
	}
}

// newError builds a classified error.
func newError(kind ErrorKind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Classify maps an arbitrary error into the taxonomy. Already-classified
// errors pass through unchanged.
func Classify(err error) *Error {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr
	}
	switch {
	case errors.Is(err, context.Canceled):
		return newError(KindCancelled, CodeCancelled, "request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTransient, CodeLLMUnavailable, "request timed out", err)
	case errors.Is(err, mcp.ErrMissingToken):
		return newError(KindAuthorization, CodeAuthMissingToken,
			"no OAuth token is stored for this context; connect the provider first", err)
	case llm.IsRetryable(err):
		return newError(KindTransient, CodeLLMUnavailable, "language model unavailable", err)
	}
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return newError(KindSemantic, CodeLLMUnavailable, "language model rejected the request", err)
	}
	return newError(KindFatal, CodeInternal, "internal failure", err)
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{8,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)["':=\s]+[^\s"']+`),
}

// redactSecrets masks credential-looking substrings in user-visible text.
func redactSecrets(s string) string {
	for _, pattern := range secretPatterns {
		s = pattern.ReplaceAllString(s, "[redacted]")
	}
	return s
}

// sensitiveArgKeys match argument names whose values never leave the process.
var sensitiveArgKeys = regexp.MustCompile(`(?i)token|secret|password|authorization|api[_-]?key|credential`)

// RedactArgs returns a copy of args safe for event emission.
func RedactArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for key, value := range args {
		if sensitiveArgKeys.MatchString(key) {
			out[key] = "[redacted]"
			continue
		}
		if s, ok := value.(string); ok {
			out[key] = redactSecrets(s)
			continue
		}
		out[key] = value
	}
	return out
}
