// Package orchestrator receives inbound messages, persists them, decides
// between direct chat and the agentic pipeline, and returns the event stream
// for the chosen path.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/conductor-ai/conductor/internal/agent"
	"github.com/conductor-ai/conductor/internal/config"
	"github.com/conductor-ai/conductor/internal/llm"
	"github.com/conductor-ai/conductor/internal/storage"
	"github.com/conductor-ai/conductor/pkg/models"
)

// Mode is the outcome of request classification.
type Mode string

const (
	ModeChat    Mode = "chat"
	ModeAgentic Mode = "agentic"
)

const classifierPrompt = `Classify the user message as CHAT or AGENTIC.

AGENTIC: the message asks for actions, tool use, file or web access, research
across sources, multi-step work, or anything with side effects.
CHAT: greetings, opinions, explanations, and questions answerable from the
conversation alone.

Respond with exactly one word: CHAT or AGENTIC.`

const chatSystemPrompt = `You are a helpful assistant in the %q workspace. Answer directly from the conversation.`

// Inbound is one message arriving from a platform adapter.
type Inbound struct {
	// Platform and PlatformID locate the conversation thread (e.g. "cli",
	// "slack" plus the channel or session identifier).
	Platform   string
	PlatformID string

	// ContextID selects the tenant. Empty resolves the default context,
	// creating it on first use.
	ContextID string

	Text string

	// ConfirmToken authorises a previously gated tool call.
	ConfirmToken string
}

// Dispatcher is the single entry point for inbound messages.
type Dispatcher struct {
	cfg     config.AgentConfig
	stores  storage.StoreSet
	gateway llm.Gateway
	factory *agent.Factory
	logger  *slog.Logger

	// classifierProfile routes the classification call; tests override it.
	classifierProfile string
}

// NewDispatcher wires the orchestrator.
func NewDispatcher(cfg config.AgentConfig, stores storage.StoreSet, gateway llm.Gateway, factory *agent.Factory, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:               cfg,
		stores:            stores,
		gateway:           gateway,
		factory:           factory,
		logger:            logger.With("component", "orchestrator"),
		classifierProfile: "classifier",
	}
}

// Stream handles one inbound message end to end and returns its event stream.
// The user turn is persisted before classification; if that write fails the
// request is aborted and no stream is produced.
func (d *Dispatcher) Stream(ctx context.Context, in Inbound) (<-chan *models.AgentEvent, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, fmt.Errorf("orchestrator: empty message")
	}

	ctx, span := otel.Tracer("conductor").Start(ctx, "orchestrator.dispatch",
		trace.WithAttributes(attribute.String("platform", in.Platform)))
	defer span.End()

	tenant, err := d.resolveContext(ctx, in.ContextID)
	if err != nil {
		return nil, err
	}

	conv, err := d.stores.Conversations.Upsert(ctx, in.Platform, in.PlatformID, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve conversation: %w", err)
	}

	requestID := uuid.New().String()
	userTurn := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        in.Text,
		TraceID:        requestID,
		CreatedAt:      time.Now(),
	}
	if err := d.stores.Messages.Append(ctx, userTurn); err != nil {
		return nil, fmt.Errorf("orchestrator: persist user turn: %w", err)
	}

	mode := d.classify(ctx, in.Text)
	d.logger.Info("request classified",
		"request_id", requestID,
		"context_id", tenant.ID,
		"conversation_id", conv.ID,
		"mode", mode)

	if mode == ModeAgentic {
		service, err := d.factory.CreateService(ctx, tenant.ID)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: build agent service: %w", err)
		}
		return service.Handle(ctx, agent.Request{
			RequestID:      requestID,
			ConversationID: conv.ID,
			Prompt:         in.Text,
			ConfirmToken:   in.ConfirmToken,
		}), nil
	}

	emitter := agent.NewEmitter(requestID, 0)
	go d.runChat(ctx, tenant, conv.ID, in.Text, emitter)
	return emitter.Events(), nil
}

// classify decides the mode. A leading "/" always selects the agentic path;
// otherwise a short classifier call decides, defaulting to chat on any
// failure or unrecognised answer.
func (d *Dispatcher) classify(ctx context.Context, text string) Mode {
	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		return ModeAgentic
	}

	resp, err := d.gateway.Complete(ctx, &llm.Request{
		Profile:  d.classifierProfile,
		System:   classifierPrompt,
		Messages: []llm.Message{{Role: "user", Content: text}},
	})
	if err != nil {
		d.logger.Warn("classification failed, defaulting to chat", "error", err)
		return ModeChat
	}
	switch strings.ToUpper(strings.TrimSpace(resp.Text)) {
	case "AGENTIC":
		return ModeAgentic
	case "CHAT":
		return ModeChat
	default:
		d.logger.Warn("unrecognised classification, defaulting to chat", "verdict", resp.Text)
		return ModeChat
	}
}

// runChat streams the composer over the recent history and persists the
// assistant turn. Chat never plans: the stream carries only content events.
func (d *Dispatcher) runChat(ctx context.Context, tenant *models.Context, conversationID, prompt string, emitter *agent.Emitter) {
	defer emitter.Close()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.ChatTimeout)
	defer cancel()

	history, err := d.loadHistory(ctx, conversationID, prompt)
	if err != nil {
		emitter.Error(ctx, agent.Classify(err))
		return
	}

	chunks, err := d.gateway.Stream(ctx, &llm.Request{
		Profile:  "composer",
		System:   fmt.Sprintf(chatSystemPrompt, tenant.Name),
		Messages: history,
	})
	if err != nil {
		emitter.Error(ctx, agent.Classify(err))
		return
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			emitter.Error(ctx, agent.Classify(chunk.Err))
			return
		}
		if chunk.Delta != "" {
			sb.WriteString(chunk.Delta)
			emitter.Content(ctx, chunk.Delta)
		}
	}

	if ctx.Err() == nil {
		assistant := &models.Message{
			ID:             uuid.New().String(),
			ConversationID: conversationID,
			Role:           models.RoleAssistant,
			Content:        sb.String(),
			CreatedAt:      time.Now(),
		}
		if err := d.stores.Messages.Append(ctx, assistant); err != nil {
			emitter.Error(ctx, agent.Classify(err))
			return
		}
	}
	emitter.ContentFinish(ctx)
}

// loadHistory returns the window as LLM messages ending with the user prompt.
// The prompt was already persisted, so it arrives as the last stored turn.
func (d *Dispatcher) loadHistory(ctx context.Context, conversationID, prompt string) ([]llm.Message, error) {
	recent, err := d.stores.Messages.Recent(ctx, conversationID, d.cfg.HistoryWindow)
	if err != nil {
		return nil, err
	}
	history := make([]llm.Message, 0, len(recent)+1)
	for _, m := range recent {
		role := string(m.Role)
		if m.Role == models.RoleTool || m.Role == models.RoleSystem {
			role = "user"
		}
		history = append(history, llm.Message{Role: role, Content: m.Content})
	}
	if len(history) == 0 || history[len(history)-1].Content != prompt {
		history = append(history, llm.Message{Role: "user", Content: prompt})
	}
	return history, nil
}

// resolveContext loads the requested context, or resolves the default one,
// creating it on first use so a fresh install works without setup.
func (d *Dispatcher) resolveContext(ctx context.Context, contextID string) (*models.Context, error) {
	if contextID != "" {
		tenant, err := d.stores.Contexts.Get(ctx, contextID)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: load context %q: %w", contextID, err)
		}
		return tenant, nil
	}

	tenant, err := d.stores.Contexts.GetByName(ctx, "default")
	if err == nil {
		return tenant, nil
	}
	created := &models.Context{
		ID:        uuid.New().String(),
		Name:      "default",
		Type:      "personal",
		CreatedAt: time.Now(),
	}
	if err := d.stores.Contexts.Create(ctx, created); err != nil {
		return nil, fmt.Errorf("orchestrator: create default context: %w", err)
	}
	d.logger.Info("created default context", "context_id", created.ID)
	return created, nil
}
