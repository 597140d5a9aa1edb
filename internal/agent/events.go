package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conductor-ai/conductor/pkg/models"
)

// defaultEventBuffer bounds the event channel. When the adapter cannot drain
// fast enough, producers block here, which backpressures upstream LLM reads.
// Events are never dropped.
const defaultEventBuffer = 64

// Emitter serialises the event stream for one request and stamps each event
// with a strictly increasing sequence number.
//
// Single-producer: the request's main flow is the only goroutine that emits
// and the one that eventually calls Close.
type Emitter struct {
	requestID string
	seq       atomic.Uint64
	ch        chan *models.AgentEvent

	mu     sync.Mutex
	closed bool
}

// NewEmitter creates an emitter with the given buffer (0 means default).
func NewEmitter(requestID string, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Emitter{
		requestID: requestID,
		ch:        make(chan *models.AgentEvent, buffer),
	}
}

// Events returns the stream consumed by the adapter.
func (e *Emitter) Events() <-chan *models.AgentEvent { return e.ch }

// Close closes the stream. Safe to call more than once.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// send stamps and delivers one event, blocking until the consumer accepts it
// or ctx is cancelled. Events after Close are dropped silently: the consumer
// is gone.
func (e *Emitter) send(ctx context.Context, event *models.AgentEvent) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	event.Seq = e.seq.Add(1)
	event.RequestID = e.requestID
	event.Time = time.Now()
	select {
	case e.ch <- event:
		e.mu.Unlock()
		return true
	default:
	}
	e.mu.Unlock()

	// Buffer full: block outside the lock so Close cannot deadlock.
	select {
	case e.ch <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Emitter) Thinking(ctx context.Context, text string) {
	e.send(ctx, &models.AgentEvent{
		Kind:     models.EventThinking,
		Thinking: &models.ThinkingPayload{Text: text},
	})
}

func (e *Emitter) Plan(ctx context.Context, plan *models.Plan) {
	steps := make([]models.Step, len(plan.Steps))
	copy(steps, plan.Steps)
	e.send(ctx, &models.AgentEvent{
		Kind: models.EventPlan,
		Plan: &models.PlanPayload{Steps: steps},
	})
}

func (e *Emitter) StepStart(ctx context.Context, step models.Step) {
	e.send(ctx, &models.AgentEvent{
		Kind: models.EventStepStart,
		Step: &models.StepPayload{Index: step.Index, Kind: step.Kind, Target: step.Target},
	})
}

func (e *Emitter) ToolStart(ctx context.Context, index int, tool string, args map[string]any) {
	e.send(ctx, &models.AgentEvent{
		Kind: models.EventToolStart,
		Tool: &models.ToolPayload{Index: index, Tool: tool, Args: RedactArgs(args)},
	})
}

func (e *Emitter) ToolOutput(ctx context.Context, index int, tool, text string, truncated bool) {
	e.send(ctx, &models.AgentEvent{
		Kind: models.EventToolOutput,
		Tool: &models.ToolPayload{Index: index, Tool: tool, Text: text, Truncated: truncated},
	})
}

func (e *Emitter) SkillActivity(ctx context.Context, index int, skill, phase, text string) {
	e.send(ctx, &models.AgentEvent{
		Kind:  models.EventSkillActivity,
		Skill: &models.SkillPayload{Index: index, Skill: skill, Phase: phase, Text: text},
	})
}

func (e *Emitter) Content(ctx context.Context, delta string) {
	e.send(ctx, &models.AgentEvent{
		Kind:    models.EventContent,
		Content: &models.ContentPayload{Delta: delta},
	})
}

// ContentFinish emits the terminal content marker.
func (e *Emitter) ContentFinish(ctx context.Context) {
	e.send(ctx, &models.AgentEvent{
		Kind:    models.EventContent,
		Content: &models.ContentPayload{Finish: "stop"},
	})
}

func (e *Emitter) Error(ctx context.Context, err *Error) {
	e.send(ctx, &models.AgentEvent{
		Kind:  models.EventError,
		Error: err.Payload(),
	})
}

func (e *Emitter) HistorySnapshot(ctx context.Context, messages []models.Message) {
	e.send(ctx, &models.AgentEvent{
		Kind:    models.EventHistorySnapshot,
		History: &models.HistoryPayload{Messages: messages},
	})
}

func (e *Emitter) ConfirmationRequired(ctx context.Context, payload *models.ConfirmationPayload) {
	payload.Args = RedactArgs(payload.Args)
	e.send(ctx, &models.AgentEvent{
		Kind:         models.EventConfirmationRequired,
		Confirmation: payload,
	})
}
