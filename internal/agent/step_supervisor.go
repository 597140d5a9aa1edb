package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/conductor-ai/conductor/internal/llm"
	"github.com/conductor-ai/conductor/pkg/models"
)

const supervisorPrompt = `You judge whether an agent step achieved its intent.

Respond with ONLY a JSON object: {"outcome":"success|retry|replan|abort","feedback":"short explanation"}

Rules:
- success: the observation satisfies the step's intent.
- retry: transient failure (timeout, rate limit, 5xx, network error, flake).
- replan: wrong tool, wrong arguments, or an off-intent/empty result.
- abort: authorisation denied, invalid context, or an explicitly fatal error.`

// StepSupervisor classifies step observations into outcomes, consulting a
// short LLM call with a heuristic fallback. Budget tie-breaks are applied
// here: an exhausted retry budget turns RETRY into REPLAN.
type StepSupervisor struct {
	gateway    llm.Gateway
	profile    string
	maxRetries int
	logger     *slog.Logger
}

// NewStepSupervisor creates a supervisor with the per-step retry budget.
func NewStepSupervisor(gateway llm.Gateway, profile string, maxRetries int, logger *slog.Logger) *StepSupervisor {
	if profile == "" {
		profile = "supervisor"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StepSupervisor{
		gateway:    gateway,
		profile:    profile,
		maxRetries: maxRetries,
		logger:     logger.With("component", "supervisor"),
	}
}

// Classify maps (step, result) to an outcome. retriesUsed is how many times
// this step has already been retried.
func (s *StepSupervisor) Classify(ctx context.Context, step models.Step, result StepResult, retriesUsed int) models.StepOutcome {
	outcome := s.consult(ctx, step, result)

	// Tie-break: once the retry budget is spent, further non-success
	// becomes a replan, never a second retry.
	if outcome.Kind == models.OutcomeRetry && retriesUsed >= s.maxRetries {
		outcome.Kind = models.OutcomeReplan
		if outcome.Feedback == "" {
			outcome.Feedback = "step kept failing transiently; plan around it"
		}
	}
	if outcome.Kind == models.OutcomeSuccess {
		outcome.Observation = result.Observation
	}
	return outcome
}

// consult asks the LLM for a verdict; on any failure it falls back to the
// mechanical classification.
func (s *StepSupervisor) consult(ctx context.Context, step models.Step, result StepResult) models.StepOutcome {
	resp, err := s.gateway.Complete(ctx, &llm.Request{
		Profile: s.profile,
		System:  supervisorPrompt,
		Messages: []llm.Message{{
			Role: "user",
			Content: fmt.Sprintf("Step: kind=%s target=%s rationale=%s\nObservation:\n%s",
				step.Kind, step.Target, step.Rationale, result.Observation),
		}},
	})
	if err != nil {
		s.logger.Warn("supervisor consult failed, using heuristic", "error", err)
		return heuristicOutcome(result)
	}

	var verdict struct {
		Outcome  string `json:"outcome"`
		Feedback string `json:"feedback"`
	}
	text := resp.Text
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		s.logger.Warn("supervisor verdict unparseable, using heuristic", "error", err)
		return heuristicOutcome(result)
	}

	switch verdict.Outcome {
	case "success":
		return models.StepOutcome{Kind: models.OutcomeSuccess}
	case "retry":
		return models.StepOutcome{Kind: models.OutcomeRetry, Feedback: verdict.Feedback}
	case "replan":
		return models.StepOutcome{Kind: models.OutcomeReplan, Feedback: verdict.Feedback}
	case "abort":
		return models.StepOutcome{Kind: models.OutcomeAbort, Reason: verdict.Feedback}
	default:
		return heuristicOutcome(result)
	}
}

var transientMarkers = []string{
	"timeout", "timed out", "rate limit", "429", "502", "503", "504",
	"connection reset", "connection refused", "temporarily", "network",
}

var fatalMarkers = []string{
	"unauthorized", "401", "403", "forbidden", "invalid credentials",
	"permission denied", "authorisation denied",
}

// heuristicOutcome classifies from the observation text alone.
func heuristicOutcome(result StepResult) models.StepOutcome {
	if !result.Failed {
		return models.StepOutcome{Kind: models.OutcomeSuccess}
	}
	lower := strings.ToLower(result.Observation)
	for _, marker := range fatalMarkers {
		if strings.Contains(lower, marker) {
			return models.StepOutcome{Kind: models.OutcomeAbort, Reason: result.Observation}
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return models.StepOutcome{Kind: models.OutcomeRetry, Feedback: result.Observation}
		}
	}
	return models.StepOutcome{Kind: models.OutcomeReplan, Feedback: result.Observation}
}
