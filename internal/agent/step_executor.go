package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/conductor-ai/conductor/internal/llm"
	"github.com/conductor-ai/conductor/internal/memory"
	"github.com/conductor-ai/conductor/internal/skills"
	"github.com/conductor-ai/conductor/internal/tools"
	"github.com/conductor-ai/conductor/pkg/models"
)

// toolOutputLimit bounds tool text carried on events; the full observation
// still reaches the supervisor and the history.
const toolOutputLimit = 4000

// StepResult is what one executed step hands to the supervisor.
type StepResult struct {
	// Observation is the step's textual result.
	Observation string

	// Failed marks observations that describe an error. The executor does
	// not classify; the supervisor does.
	Failed bool

	// Confirmation is set when a gated tool needs user approval before it
	// may run. The step did not execute.
	Confirmation *models.ConfirmationPayload
}

// StepExecutor dispatches plan steps by kind. It owns no policy: outcomes
// are classified elsewhere.
type StepExecutor struct {
	registry    *tools.Registry
	skills      *skills.Registry
	skillExec   *skills.Executor
	memory      *memory.Store
	gateway     llm.Gateway
	profile     string
	stepTimeout time.Duration
	logger      *slog.Logger
}

// NewStepExecutor wires an executor for one request.
func NewStepExecutor(
	registry *tools.Registry,
	skillRegistry *skills.Registry,
	skillExec *skills.Executor,
	memoryStore *memory.Store,
	gateway llm.Gateway,
	composerProfile string,
	stepTimeout time.Duration,
	logger *slog.Logger,
) *StepExecutor {
	if composerProfile == "" {
		composerProfile = "composer"
	}
	if stepTimeout <= 0 {
		stepTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StepExecutor{
		registry:    registry,
		skills:      skillRegistry,
		skillExec:   skillExec,
		memory:      memoryStore,
		gateway:     gateway,
		profile:     composerProfile,
		stepTimeout: stepTimeout,
		logger:      logger.With("component", "executor"),
	}
}

// Execute runs one non-completion step and returns its result. Completion
// steps go through StreamCompletion instead.
func (e *StepExecutor) Execute(ctx context.Context, step models.Step, inv tools.Invocation, emitter *Emitter) (StepResult, error) {
	switch step.Kind {
	case models.StepTool:
		return e.executeTool(ctx, step, inv, emitter)
	case models.StepSkill:
		return e.executeSkill(ctx, step, inv, emitter)
	case models.StepMemory:
		return e.executeMemory(ctx, step)
	default:
		return StepResult{}, fmt.Errorf("step %d: kind %q is not executable here", step.Index, step.Kind)
	}
}

func (e *StepExecutor) executeTool(ctx context.Context, step models.Step, inv tools.Invocation, emitter *Emitter) (StepResult, error) {
	tool, ok := e.registry.Get(step.Target)
	if !ok {
		// The plan was validated against this registry; reaching here means
		// the step targets a tool that vanished mid-request.
		return StepResult{
			Observation: fmt.Sprintf("tool %q is not available", step.Target),
			Failed:      true,
		}, nil
	}

	if tool.RequiresConfirmation() && inv.ConfirmToken == "" {
		return StepResult{
			Confirmation: &models.ConfirmationPayload{
				Tool:           step.Target,
				Args:           step.Args,
				TokenToConfirm: uuid.New().String(),
			},
		}, nil
	}

	emitter.ToolStart(ctx, step.Index, step.Target, step.Args)

	args, err := json.Marshal(step.Args)
	if err != nil {
		return StepResult{}, fmt.Errorf("encode arguments for %q: %w", step.Target, err)
	}

	runCtx, cancel := context.WithTimeout(tools.WithInvocation(ctx, inv), e.stepTimeout)
	defer cancel()
	result, err := tool.Execute(runCtx, args)
	if err != nil {
		return StepResult{}, fmt.Errorf("tool %q: %w", step.Target, err)
	}

	text, truncated := truncate(result.Content, toolOutputLimit)
	emitter.ToolOutput(ctx, step.Index, step.Target, text, truncated)
	return StepResult{Observation: result.Content, Failed: result.IsError}, nil
}

func (e *StepExecutor) executeSkill(ctx context.Context, step models.Step, inv tools.Invocation, emitter *Emitter) (StepResult, error) {
	skill, err := e.skills.Get(step.Target)
	if err != nil {
		return StepResult{}, newError(KindValidation, CodeSkillNotFound,
			fmt.Sprintf("skill %q is not loaded", step.Target), err)
	}

	arguments := skillArguments(step.Args)
	emitter.SkillActivity(ctx, step.Index, skill.Name, "start", "")

	runCtx, cancel := context.WithTimeout(tools.WithInvocation(ctx, inv), e.stepTimeout)
	defer cancel()
	output, err := e.skillExec.Execute(runCtx, skill, arguments, e.registry, func(a skills.Activity) {
		emitter.SkillActivity(ctx, step.Index, a.Skill, "tool", a.Note)
	})
	if err != nil {
		return StepResult{}, err
	}

	emitter.SkillActivity(ctx, step.Index, skill.Name, "finish", "")
	return StepResult{Observation: output}, nil
}

func (e *StepExecutor) executeMemory(ctx context.Context, step models.Step) (StepResult, error) {
	if e.memory == nil {
		return StepResult{Observation: "memory is not enabled for this context"}, nil
	}
	query, _ := step.Args["query"].(string)
	conversationID, _ := step.Args["conversation_id"].(string)
	limit := 5
	if v, ok := step.Args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	results, err := e.memory.Search(ctx, query, conversationID, limit)
	if err != nil {
		return StepResult{Observation: fmt.Sprintf("memory search failed: %v", err), Failed: true}, nil
	}
	return StepResult{Observation: formatMemories(results)}, nil
}

// StreamCompletion runs the final completion step: stream the composer over
// the augmented history, forwarding deltas as content events.
func (e *StepExecutor) StreamCompletion(ctx context.Context, system string, history []llm.Message, emitter *Emitter) (string, error) {
	chunks, err := e.gateway.Stream(ctx, &llm.Request{
		Profile:  e.profile,
		System:   system,
		Messages: history,
	})
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
			emitter.Content(ctx, chunk.Delta)
		}
	}
	return sb.String(), nil
}

// formatMemories renders search hits as a numbered list with attribution.
func formatMemories(results []models.MemoryResult) string {
	if len(results) == 0 {
		return "no relevant memories found"
	}
	var sb strings.Builder
	for i, r := range results {
		source := "context memory"
		if r.Record.ConversationID != "" {
			source = "conversation " + r.Record.ConversationID
		}
		fmt.Fprintf(&sb, "%d. %s (from %s, score %.2f)\n", i+1, r.Record.Text, source, r.Score)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// skillArguments flattens step args into the textual $ARGUMENTS slot.
func skillArguments(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	if s, ok := args["arguments"].(string); ok && len(args) == 1 {
		return s
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}

// truncate cuts s to at most limit bytes, backing off to a rune boundary so
// multi-byte characters are never split.
func truncate(s string, limit int) (string, bool) {
	if len(s) <= limit {
		return s, false
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "...", true
}
