package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-ai/conductor/internal/config"
	"github.com/conductor-ai/conductor/internal/llm"
	"github.com/conductor-ai/conductor/internal/memory"
	"github.com/conductor-ai/conductor/internal/skills"
	"github.com/conductor-ai/conductor/internal/storage"
	"github.com/conductor-ai/conductor/internal/tools"
	"github.com/conductor-ai/conductor/pkg/models"
)

// Request is one agentic invocation handed to a Service.
type Request struct {
	RequestID      string
	ConversationID string
	Prompt         string

	// ConfirmToken authorises previously-gated tool calls on this request.
	ConfirmToken string
}

// Service runs exactly one agentic request: plan, execute, supervise, answer.
// A Service is built per request by the Factory and never reused.
type Service struct {
	tenant   *models.Context
	registry *tools.Registry
	memory   *memory.Store
	skills   *skills.Registry
	gateway  llm.Gateway
	messages storage.MessageStore

	planner  *Planner
	planSup  *PlanSupervisor
	executor *StepExecutor
	stepSup  *StepSupervisor

	cfg    config.AgentConfig
	logger *slog.Logger
}

// Handle runs the request and returns its event stream. The stream closes
// after the terminal event; cancelling ctx truncates it safely.
func (s *Service) Handle(ctx context.Context, req Request) <-chan *models.AgentEvent {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	emitter := NewEmitter(req.RequestID, 0)
	go s.run(ctx, req, emitter)
	return emitter.Events()
}

func (s *Service) run(ctx context.Context, req Request, emitter *Emitter) {
	defer emitter.Close()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.AgenticTimeout)
	defer cancel()

	if err := s.runPipeline(ctx, req, emitter); err != nil {
		classified := Classify(err)
		s.logger.Error("agentic request failed",
			"request_id", req.RequestID,
			"context_id", s.tenant.ID,
			"code", classified.Code,
			"error", err)
		emitter.Error(ctx, classified)
	}
}

// runPipeline is the plan/execute/supervise loop. A nil return means the
// stream was closed cleanly (terminal content or confirmation).
func (s *Service) runPipeline(ctx context.Context, req Request, emitter *Emitter) error {
	history, err := s.loadHistory(ctx, req.ConversationID)
	if err != nil {
		return newError(KindFatal, CodePersistenceFailed, "could not load conversation history", err)
	}
	// The orchestrator already persisted the incoming user turn; the prompt
	// is passed separately, so drop the trailing duplicate.
	if n := len(history); n > 0 && history[n-1].Role == models.RoleUser && history[n-1].Content == req.Prompt {
		history = history[:n-1]
	}

	inv := tools.Invocation{
		ContextID:      s.tenant.ID,
		ConversationID: req.ConversationID,
		WorkingDir:     s.tenant.WorkingDir,
		ConfirmToken:   req.ConfirmToken,
	}

	emitter.Thinking(ctx, "planning")

	replansUsed := 0
	var feedback []string
	forceCompletion := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		plan, err := s.planner.BuildPlan(ctx, PlanInput{
			History:         history,
			Prompt:          req.Prompt,
			Tools:           s.toolCatalogue(),
			Skills:          s.skillCatalogue(),
			Feedback:        feedback,
			ForceCompletion: forceCompletion,
		}, func(delta string) { emitter.Thinking(ctx, delta) })
		if err != nil {
			return err
		}
		emitter.Plan(ctx, plan)

		if err := s.planSup.Validate(plan, s.registry); err != nil {
			if replansUsed >= s.cfg.MaxReplans {
				return err
			}
			replansUsed++
			feedback = append(feedback, fmt.Sprintf("plan rejected: %v", err))
			emitter.Thinking(ctx, "replanning")
			continue
		}

		outcome, err := s.executePlan(ctx, req, plan, history, inv, emitter)
		if err != nil {
			return err
		}
		switch outcome.verdict {
		case planDone:
			return nil
		case planReplan:
			history = outcome.history
			if replansUsed >= s.cfg.MaxReplans {
				// Budget spent: ask for a completion-only plan instead of
				// stalling or aborting.
				forceCompletion = true
				feedback = nil
				emitter.Thinking(ctx, "wrapping up")
				continue
			}
			replansUsed++
			feedback = append(feedback, outcome.feedback)
			emitter.Thinking(ctx, "replanning")
		}
	}
}

type planVerdict int

const (
	planDone planVerdict = iota
	planReplan
)

type planOutcome struct {
	verdict  planVerdict
	feedback string
	history  []models.Message
}

// executePlan walks the steps in order. It returns planReplan when a step
// demands a new plan, planDone when the stream was closed (completion or
// confirmation), and an error for aborts and infrastructure failures.
func (s *Service) executePlan(ctx context.Context, req Request, plan *models.Plan, history []models.Message, inv tools.Invocation, emitter *Emitter) (planOutcome, error) {
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return planOutcome{}, err
		}
		emitter.StepStart(ctx, step)

		if step.Kind == models.StepCompletion {
			if err := s.finish(ctx, req, history, emitter); err != nil {
				return planOutcome{}, err
			}
			return planOutcome{verdict: planDone}, nil
		}

		retriesUsed := 0
		for {
			result, err := s.executor.Execute(ctx, step, inv, emitter)
			if err != nil {
				return planOutcome{}, err
			}

			if result.Confirmation != nil {
				if err := s.pauseForConfirmation(ctx, req, step, result.Confirmation, emitter); err != nil {
					return planOutcome{}, err
				}
				return planOutcome{verdict: planDone}, nil
			}

			outcome := s.stepSup.Classify(ctx, step, result, retriesUsed)
			switch outcome.Kind {
			case models.OutcomeSuccess:
				history = append(history, models.Message{
					ConversationID: req.ConversationID,
					Role:           models.RoleTool,
					Content:        fmt.Sprintf("[%s %s] %s", step.Kind, step.Target, outcome.Observation),
				})
			case models.OutcomeRetry:
				retriesUsed++
				// The feedback stays in the history so the retry's outcome is
				// read in context and the final answer can mention the hiccup.
				history = append(history, models.Message{
					ConversationID: req.ConversationID,
					Role:           models.RoleTool,
					Content:        fmt.Sprintf("[%s %s retrying] %s", step.Kind, step.Target, outcome.Feedback),
				})
				s.logger.Debug("retrying step",
					"request_id", req.RequestID,
					"step", step.Index,
					"feedback", outcome.Feedback)
				continue
			case models.OutcomeReplan:
				history = append(history, models.Message{
					ConversationID: req.ConversationID,
					Role:           models.RoleTool,
					Content:        fmt.Sprintf("[%s %s failed] %s", step.Kind, step.Target, outcome.Feedback),
				})
				return planOutcome{verdict: planReplan, feedback: outcome.Feedback, history: history}, nil
			case models.OutcomeAbort:
				return planOutcome{}, newError(KindSemantic, CodeStepAborted,
					fmt.Sprintf("step %d (%s %s) aborted: %s", step.Index, step.Kind, step.Target, outcome.Reason), nil)
			}
			break
		}
	}
	// Validation guarantees a completion step, so this is unreachable for
	// accepted plans.
	return planOutcome{}, newError(KindValidation, CodePlanInvalid, "plan ended without a completion step", nil)
}

// finish streams the assistant answer, persists it, and closes the
// stream with the terminal content marker and a history snapshot.
func (s *Service) finish(ctx context.Context, req Request, history []models.Message, emitter *Emitter) error {
	system := fmt.Sprintf(
		"You are an assistant operating in the %q workspace. Answer using the conversation and the tool observations above.",
		s.tenant.Name)

	llmHistory := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		role := string(m.Role)
		if m.Role == models.RoleTool {
			// Observations travel as user-visible context, not provider
			// tool turns: they have no call ids.
			role = "user"
		}
		llmHistory = append(llmHistory, llm.Message{Role: role, Content: m.Content})
	}
	llmHistory = append(llmHistory, llm.Message{Role: "user", Content: req.Prompt})

	answer, err := s.executor.StreamCompletion(ctx, system, llmHistory, emitter)
	if err != nil {
		return err
	}

	if err := s.persistAssistant(ctx, req, answer); err != nil {
		return newError(KindFatal, CodePersistenceFailed, "could not persist the assistant turn", err)
	}

	emitter.ContentFinish(ctx)
	s.emitSnapshot(ctx, req.ConversationID, emitter)
	return nil
}

// pauseForConfirmation emits the confirmation request, persists a system
// message describing the pending action, and ends the request. The pause does
// not consume retry or replan budget.
func (s *Service) pauseForConfirmation(ctx context.Context, req Request, step models.Step, confirmation *models.ConfirmationPayload, emitter *Emitter) error {
	emitter.ConfirmationRequired(ctx, confirmation)

	pending := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Role:           models.RoleSystem,
		Content: fmt.Sprintf("pending confirmation: tool %q awaits approval (token %s)",
			step.Target, confirmation.TokenToConfirm),
		CreatedAt: time.Now(),
	}
	if err := s.messages.Append(ctx, pending); err != nil {
		return newError(KindFatal, CodePersistenceFailed, "could not record pending confirmation", err)
	}
	s.logger.Info("request paused for confirmation",
		"request_id", req.RequestID,
		"tool", step.Target)
	return nil
}

// persistAssistant writes the assistant turn exactly once. The user turn was
// persisted by the orchestrator before this service existed. Nothing is
// persisted when the request was cancelled mid-stream.
func (s *Service) persistAssistant(ctx context.Context, req Request, answer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	assistant := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Role:           models.RoleAssistant,
		Content:        answer,
		CreatedAt:      time.Now(),
	}
	return s.messages.Append(ctx, assistant)
}

func (s *Service) emitSnapshot(ctx context.Context, conversationID string, emitter *Emitter) {
	recent, err := s.messages.Recent(ctx, conversationID, s.cfg.HistoryWindow)
	if err != nil {
		s.logger.Warn("history snapshot unavailable", "error", err)
		return
	}
	snapshot := make([]models.Message, len(recent))
	for i, m := range recent {
		snapshot[i] = *m
	}
	emitter.HistorySnapshot(ctx, snapshot)
}

func (s *Service) loadHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	recent, err := s.messages.Recent(ctx, conversationID, s.cfg.HistoryWindow)
	if err != nil {
		return nil, err
	}
	history := make([]models.Message, len(recent))
	for i, m := range recent {
		history[i] = *m
	}
	return history, nil
}

func (s *Service) toolCatalogue() map[string]string {
	catalogue := make(map[string]string)
	for _, tool := range s.registry.List() {
		catalogue[tool.Name()] = tool.Description()
	}
	return catalogue
}

func (s *Service) skillCatalogue() map[string]string {
	catalogue := make(map[string]string)
	if s.skills == nil {
		return catalogue
	}
	for _, skill := range s.skills.List() {
		catalogue[skill.Name] = skill.Description
	}
	return catalogue
}
