package agent

import (
	"context"
	"testing"

	"github.com/conductor-ai/conductor/pkg/models"
)

func TestStepSupervisor_RetryBecomesReplanWhenBudgetSpent(t *testing.T) {
	gateway := newRoutedGateway()
	gateway.push("supervisor", `{"outcome":"retry","feedback":"timed out"}`)

	sup := NewStepSupervisor(gateway, "supervisor", 1, discardLogger())
	step := models.Step{Kind: models.StepTool, Target: "web_fetch"}

	outcome := sup.Classify(context.Background(), step, StepResult{Observation: "request timed out", Failed: true}, 1)
	if outcome.Kind != models.OutcomeReplan {
		t.Errorf("outcome = %s, want replan after the retry budget", outcome.Kind)
	}
	if outcome.Feedback == "" {
		t.Error("replan carries no feedback")
	}
}

func TestStepSupervisor_SuccessCarriesObservation(t *testing.T) {
	gateway := newRoutedGateway()
	gateway.push("supervisor", `{"outcome":"success"}`)

	sup := NewStepSupervisor(gateway, "supervisor", 1, discardLogger())
	outcome := sup.Classify(context.Background(), models.Step{Kind: models.StepTool}, StepResult{Observation: "page text"}, 0)
	if outcome.Kind != models.OutcomeSuccess || outcome.Observation != "page text" {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestStepSupervisor_FallsBackToHeuristicOnGarbageVerdict(t *testing.T) {
	gateway := newRoutedGateway()
	gateway.push("supervisor", "the step definitely worked, trust me")

	sup := NewStepSupervisor(gateway, "supervisor", 1, discardLogger())
	outcome := sup.Classify(context.Background(), models.Step{Kind: models.StepTool}, StepResult{Observation: "done"}, 0)
	if outcome.Kind != models.OutcomeSuccess {
		t.Errorf("outcome = %s, want heuristic success for a non-failed result", outcome.Kind)
	}
}

func TestHeuristicOutcome(t *testing.T) {
	tests := []struct {
		name        string
		observation string
		failed      bool
		want        models.OutcomeKind
	}{
		{"clean result", "fetched 200 OK", false, models.OutcomeSuccess},
		{"timeout", "request timed out after 30s", true, models.OutcomeRetry},
		{"rate limit", "429 rate limit exceeded", true, models.OutcomeRetry},
		{"bad gateway", "upstream returned 502", true, models.OutcomeRetry},
		{"unauthorized", "401 unauthorized", true, models.OutcomeAbort},
		{"permission denied", "permission denied for /etc", true, models.OutcomeAbort},
		{"semantic failure", "page does not mention the topic", true, models.OutcomeReplan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := heuristicOutcome(StepResult{Observation: tt.observation, Failed: tt.failed})
			if got.Kind != tt.want {
				t.Errorf("heuristicOutcome(%q) = %s, want %s", tt.observation, got.Kind, tt.want)
			}
		})
	}
}
