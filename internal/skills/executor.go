package skills

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/conductor-ai/conductor/internal/llm"
	"github.com/conductor-ai/conductor/internal/tools"
)

// TurnBudgetNote is appended to a skill's output when the worker loop ran out
// of turns before the model produced a final answer.
const TurnBudgetNote = "reached turn budget before completing"

// Activity reports progress from inside a running skill.
type Activity struct {
	Skill string
	Turn  int
	Tool  string
	Note  string
}

// Executor runs skills in a bounded tool-calling loop. Each run sees only
// the intersection of the skill's declared tools with the request's registry.
type Executor struct {
	gateway         llm.Gateway
	defaultProfile  string
	defaultMaxTurns int
	logger          *slog.Logger
}

// NewExecutor creates a skill executor.
func NewExecutor(gateway llm.Gateway, defaultProfile string, defaultMaxTurns int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultProfile == "" {
		defaultProfile = "composer"
	}
	if defaultMaxTurns <= 0 {
		defaultMaxTurns = 5
	}
	return &Executor{
		gateway:         gateway,
		defaultProfile:  defaultProfile,
		defaultMaxTurns: defaultMaxTurns,
		logger:          logger.With("component", "skills"),
	}
}

// Execute runs the skill until the model stops calling tools or the turn
// budget is spent. notify may be nil.
func (e *Executor) Execute(ctx context.Context, skill *Skill, arguments string, available *tools.Registry, notify func(Activity)) (string, error) {
	scoped := available.Intersect(skill.Tools)
	profile := skill.Profile
	if profile == "" {
		profile = e.defaultProfile
	}
	maxTurns := skill.MaxTurns
	if maxTurns <= 0 {
		maxTurns = e.defaultMaxTurns
	}

	schemas := toolSchemas(scoped)
	messages := []llm.Message{{Role: "user", Content: skill.Prompt(arguments)}}
	var lastText string
	var observations []string

	for turn := 1; turn <= maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		resp, err := e.gateway.Complete(ctx, &llm.Request{
			Profile:  profile,
			System:   fmt.Sprintf("You are running the %q skill. Follow its instructions exactly.", skill.Name),
			Messages: messages,
			Tools:    schemas,
		})
		if err != nil {
			return "", fmt.Errorf("skill %q turn %d: %w", skill.Name, turn, err)
		}
		if resp.Text != "" {
			lastText = resp.Text
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result := e.runScopedTool(ctx, skill, scoped, call, turn, notify)
			observations = append(observations, result)
			messages = append(messages, llm.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}

	e.logger.Warn("skill exhausted its turn budget",
		"skill", skill.Name,
		"max_turns", maxTurns)

	// No final answer: hand back whatever the tools produced so the work is
	// not lost, annotated so the caller knows the skill was cut short.
	parts := make([]string, 0, len(observations)+1)
	if lastText != "" {
		parts = append(parts, lastText)
	}
	parts = append(parts, observations...)
	if len(parts) == 0 {
		return fmt.Sprintf("[%s]", TurnBudgetNote), nil
	}
	return fmt.Sprintf("%s\n\n[%s]", strings.Join(parts, "\n"), TurnBudgetNote), nil
}

// runScopedTool executes one tool call inside the skill's scope. Calls to
// tools outside the scope are answered with a synthetic error message rather
// than failing the skill.
func (e *Executor) runScopedTool(ctx context.Context, skill *Skill, scoped *tools.Registry, call llm.ToolCall, turn int, notify func(Activity)) string {
	tool, ok := scoped.Get(call.Name)
	if !ok {
		e.logger.Warn("skill requested out-of-scope tool",
			"skill", skill.Name,
			"tool", call.Name)
		return fmt.Sprintf("tool %q is not available in this skill", call.Name)
	}

	if notify != nil {
		notify(Activity{
			Skill: skill.Name,
			Turn:  turn,
			Tool:  call.Name,
			Note:  fmt.Sprintf("calling %s", call.Name),
		})
	}

	result, err := tool.Execute(ctx, call.Args)
	if err != nil {
		return fmt.Sprintf("tool %q failed: %v", call.Name, err)
	}
	if result.IsError {
		return fmt.Sprintf("tool %q returned an error: %s", call.Name, result.Content)
	}
	return result.Content
}

func toolSchemas(registry *tools.Registry) []llm.ToolSchema {
	list := registry.List()
	schemas := make([]llm.ToolSchema, 0, len(list))
	for _, tool := range list {
		schemas = append(schemas, llm.ToolSchema{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return schemas
}
