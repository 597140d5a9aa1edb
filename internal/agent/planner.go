package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/conductor-ai/conductor/internal/llm"
	"github.com/conductor-ai/conductor/pkg/models"
)

// maxParseRetries is how often the planner feeds a parse error back to the
// model before giving up.
const maxParseRetries = 2

const plannerSystemPrompt = `You are a planning agent. Produce a JSON plan for the user's request.

Respond with ONLY a JSON object of this shape, no prose around it:
{"steps":[{"kind":"tool|skill|memory|completion","target":"name","args":{},"rationale":"why"}]}

Rules:
- Use only the tools and skills listed below. Never invent names.
- "memory" steps search long-term memory; args: {"query": "..."} and optional {"conversation_id": "..."}.
- The LAST step must be the only "completion" step; it has no target and no args.
- Prefer the fewest steps that satisfy the request.`

const forceCompletionPrompt = `You are a planning agent. The step budget for this request is spent.
Produce a JSON plan containing EXACTLY ONE step: {"steps":[{"kind":"completion"}]}.
The completion will answer from what is already known.`

// PlanInput is everything the planner sees for one planning cycle.
type PlanInput struct {
	History  []models.Message
	Prompt   string
	Tools    map[string]string
	Skills   map[string]string
	Feedback []string

	// ForceCompletion asks for a completion-only plan, used after the
	// replan budget is exhausted.
	ForceCompletion bool
}

// Planner turns a prompt plus context into a structured plan, streaming its
// intermediate tokens as thinking text.
type Planner struct {
	gateway llm.Gateway
	profile string
	logger  *slog.Logger
}

// NewPlanner creates a planner on the given routing profile.
func NewPlanner(gateway llm.Gateway, profile string, logger *slog.Logger) *Planner {
	if profile == "" {
		profile = "planner"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{gateway: gateway, profile: profile, logger: logger.With("component", "planner")}
}

// BuildPlan streams the model and parses its output into a plan. Parse
// failures are retried with the parse error fed back; after the retries a
// PLAN_INVALID error is returned. In force-completion mode an unparseable
// answer degrades to the canonical single-step plan instead of failing.
func (p *Planner) BuildPlan(ctx context.Context, in PlanInput, onThinking func(string)) (*models.Plan, error) {
	messages := p.buildMessages(in)

	var lastErr error
	for attempt := 0; attempt <= maxParseRetries; attempt++ {
		text, err := p.streamText(ctx, messages, onThinking)
		if err != nil {
			return nil, err
		}
		plan, err := parsePlan(text)
		if err == nil {
			return plan, nil
		}
		lastErr = err
		p.logger.Debug("plan parse failed", "attempt", attempt+1, "error", err)
		messages = append(messages,
			llm.Message{Role: "assistant", Content: text},
			llm.Message{Role: "user", Content: fmt.Sprintf(
				"That was not a valid plan: %v. Respond again with only the JSON object.", err)},
		)
	}

	if in.ForceCompletion {
		return &models.Plan{Steps: []models.Step{{Kind: models.StepCompletion}}}, nil
	}
	return nil, newError(KindValidation, CodePlanInvalid,
		"planner did not produce a parseable plan", lastErr)
}

func (p *Planner) buildMessages(in PlanInput) []llm.Message {
	var sb strings.Builder
	if in.ForceCompletion {
		sb.WriteString(forceCompletionPrompt)
	} else {
		sb.WriteString(plannerSystemPrompt)
		sb.WriteString("\n\nAvailable tools:\n")
		writeCatalogue(&sb, in.Tools)
		sb.WriteString("\nAvailable skills:\n")
		writeCatalogue(&sb, in.Skills)
	}

	messages := make([]llm.Message, 0, len(in.History)+len(in.Feedback)+2)
	messages = append(messages, llm.Message{Role: "system", Content: sb.String()})
	for _, m := range in.History {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: in.Prompt})
	for _, feedback := range in.Feedback {
		messages = append(messages, llm.Message{
			Role:    "user",
			Content: "Supervisor feedback on the previous attempt: " + feedback,
		})
	}
	return messages
}

func (p *Planner) streamText(ctx context.Context, messages []llm.Message, onThinking func(string)) (string, error) {
	chunks, err := p.gateway.Stream(ctx, &llm.Request{Profile: p.profile, Messages: messages})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		if chunk.Delta != "" {
			sb.WriteString(chunk.Delta)
			if onThinking != nil {
				onThinking(chunk.Delta)
			}
		}
	}
	return sb.String(), nil
}

// parsePlan extracts the JSON object from the model output and normalises
// step indexes to their position.
func parsePlan(text string) (*models.Plan, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in planner output")
	}

	var plan models.Plan
	if err := json.Unmarshal([]byte(text[start:end+1]), &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	for i := range plan.Steps {
		plan.Steps[i].Index = i
		switch plan.Steps[i].Kind {
		case models.StepTool, models.StepSkill, models.StepMemory, models.StepCompletion:
		default:
			return nil, fmt.Errorf("step %d has unknown kind %q", i, plan.Steps[i].Kind)
		}
	}
	return &plan, nil
}

func writeCatalogue(sb *strings.Builder, entries map[string]string) {
	if len(entries) == 0 {
		sb.WriteString("(none)\n")
		return
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(sb, "- %s: %s\n", name, entries[name])
	}
}
