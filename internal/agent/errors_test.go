package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/conductor-ai/conductor/internal/mcp"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantKind ErrorKind
	}{
		{"cancellation", context.Canceled, CodeCancelled, KindCancelled},
		{"deadline", context.DeadlineExceeded, CodeLLMUnavailable, KindTransient},
		{"missing token", fmt.Errorf("server files: %w", mcp.ErrMissingToken), CodeAuthMissingToken, KindAuthorization},
		{"unknown", errors.New("disk on fire"), CodeInternal, KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Code != tt.wantCode || got.Kind != tt.wantKind {
				t.Errorf("Classify(%v) = {%s %d}, want {%s %d}", tt.err, got.Code, got.Kind, tt.wantCode, tt.wantKind)
			}
		})
	}
}

func TestClassify_PassesThroughClassifiedErrors(t *testing.T) {
	original := newError(KindValidation, CodePlanInvalid, "bad plan", nil)
	wrapped := fmt.Errorf("pipeline: %w", original)
	if got := Classify(wrapped); got != original {
		t.Errorf("Classify re-classified an already classified error: %v", got)
	}
}

func TestErrorPayload_RedactsSecrets(t *testing.T) {
	err := newError(KindAuthorization, CodeAuthMissingToken,
		"refresh failed with api_key=sk-verysecret12345678", nil)
	payload := err.Payload()
	if strings.Contains(payload.Message, "verysecret") {
		t.Errorf("payload leaks the key: %q", payload.Message)
	}
	if payload.Code != CodeAuthMissingToken {
		t.Errorf("code = %q", payload.Code)
	}
	if payload.Retryable {
		t.Error("authorization failures must not be retryable")
	}
}
