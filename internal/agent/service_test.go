package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conductor-ai/conductor/internal/config"
	"github.com/conductor-ai/conductor/internal/llm"
	"github.com/conductor-ai/conductor/internal/memory"
	"github.com/conductor-ai/conductor/internal/skills"
	"github.com/conductor-ai/conductor/internal/storage"
	"github.com/conductor-ai/conductor/internal/tools"
	"github.com/conductor-ai/conductor/pkg/models"
)

// routedGateway replays canned responses per routing profile and records the
// requests it saw.
type routedGateway struct {
	mu      sync.Mutex
	scripts map[string][]string
	seen    map[string][]*llm.Request
}

func newRoutedGateway() *routedGateway {
	return &routedGateway{
		scripts: make(map[string][]string),
		seen:    make(map[string][]*llm.Request),
	}
}

func (g *routedGateway) push(profile string, responses ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[profile] = append(g.scripts[profile], responses...)
}

func (g *routedGateway) pop(req *llm.Request) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[req.Profile] = append(g.seen[req.Profile], req)
	queue := g.scripts[req.Profile]
	if len(queue) == 0 {
		return ""
	}
	g.scripts[req.Profile] = queue[1:]
	return queue[0]
}

func (g *routedGateway) requests(profile string) []*llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen[profile]
}

func (g *routedGateway) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	return &llm.Response{Text: g.pop(req)}, nil
}

func (g *routedGateway) Stream(_ context.Context, req *llm.Request) (<-chan *llm.Chunk, error) {
	text := g.pop(req)
	ch := make(chan *llm.Chunk, 4)
	go func() {
		defer close(ch)
		// Split into two deltas so callers see real streaming.
		half := len(text) / 2
		if half > 0 {
			ch <- &llm.Chunk{Delta: text[:half]}
		}
		ch <- &llm.Chunk{Delta: text[half:]}
		ch <- &llm.Chunk{Done: true}
	}()
	return ch, nil
}

// flakyTool fails transiently a configured number of times, then succeeds.
type flakyTool struct {
	name     string
	failures int

	mu    sync.Mutex
	calls []json.RawMessage
}

func (f *flakyTool) Name() string { return f.name }
func (f *flakyTool) Description() string { return "test tool" }
func (f *flakyTool) Category() string { return "test" }
func (f *flakyTool) RequiresConfirmation() bool { return false }
func (f *flakyTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`)
}

func (f *flakyTool) Execute(_ context.Context, args json.RawMessage) (*tools.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	if len(f.calls) <= f.failures {
		return &tools.Result{Content: "request timed out", IsError: true}, nil
	}
	return &tools.Result{Content: "Example Domain page text"}, nil
}

func (f *flakyTool) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type gatedTool struct{ executed bool }

func (g *gatedTool) Name() string { return "file_write" }
func (g *gatedTool) Description() string { return "writes files" }
func (g *gatedTool) Category() string { return "test" }
func (g *gatedTool) RequiresConfirmation() bool { return true }
func (g *gatedTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (g *gatedTool) Execute(context.Context, json.RawMessage) (*tools.Result, error) {
	g.executed = true
	return &tools.Result{Content: "written"}, nil
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxReplans:        3,
		MaxRetriesPerStep: 1,
		MaxSkillTurns:     5,
		HistoryWindow:     20,
		AgenticTimeout:    30 * time.Second,
		StepTimeout:       5 * time.Second,
	}
}

// newTestService builds a service over in-memory stores and the given
// registry, returning the stores for persistence assertions.
func newTestService(t *testing.T, gateway llm.Gateway, registry *tools.Registry, cfg config.AgentConfig) (*Service, storage.StoreSet, string) {
	t.Helper()
	stores := storage.NewMemoryStores()
	tenant := &models.Context{ID: "ctx-test", Name: "test", CreatedAt: time.Now()}
	if err := stores.Contexts.Create(context.Background(), tenant); err != nil {
		t.Fatal(err)
	}
	conv, err := stores.Conversations.Upsert(context.Background(), "cli", "session-1", tenant.ID)
	if err != nil {
		t.Fatal(err)
	}

	skillRegistry := skills.NewRegistry(nil)
	return &Service{
		tenant:   tenant,
		registry: registry,
		skills:   skillRegistry,
		gateway:  gateway,
		messages: stores.Messages,
		planner:  NewPlanner(gateway, "planner", nil),
		planSup:  NewPlanSupervisor(skillRegistry),
		executor: NewStepExecutor(registry, skillRegistry, skills.NewExecutor(gateway, "composer", cfg.MaxSkillTurns, nil), nil, gateway, "composer", cfg.StepTimeout, nil),
		stepSup:  NewStepSupervisor(gateway, "supervisor", cfg.MaxRetriesPerStep, nil),
		cfg:      cfg,
		logger:   discardLogger(),
	}, stores, conv.ID
}

func collect(t *testing.T, events <-chan *models.AgentEvent) []*models.AgentEvent {
	t.Helper()
	var out []*models.AgentEvent
	deadline := time.After(10 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, event)
		case <-deadline:
			t.Fatalf("event stream did not close; got %d events", len(out))
		}
	}
}

func kinds(events []*models.AgentEvent) []models.AgentEventKind {
	out := make([]models.AgentEventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func firstIndex(events []*models.AgentEvent, kind models.AgentEventKind) int {
	for i, e := range events {
		if e.Kind == kind {
			return i
		}
	}
	return -1
}

const fetchPlan = `{"steps":[{"kind":"tool","target":"web_fetch","args":{"url":"https://example.org/a.html"},"rationale":"fetch the page"},{"kind":"completion"}]}`

func TestService_ToolCallThroughPlan(t *testing.T) {
	fetch := &flakyTool{name: "web_fetch"}
	registry := tools.NewRegistry()
	registry.Register(fetch)

	gateway := newRoutedGateway()
	gateway.push("planner", fetchPlan)
	gateway.push("supervisor", `{"outcome":"success"}`)
	gateway.push("composer", "Example Domain is a reserved page.")

	service, _, convID := newTestService(t, gateway, registry, testAgentConfig())

	events := collect(t, service.Handle(context.Background(), Request{
		RequestID:      "req-1",
		ConversationID: convID,
		Prompt:         "Summarise https://example.org/a.html in one sentence.",
	}))

	// Ordering: plan before first step_start, steps in index order,
	// terminal content last.
	planIdx := firstIndex(events, models.EventPlan)
	stepIdx := firstIndex(events, models.EventStepStart)
	if planIdx < 0 || stepIdx < 0 || planIdx > stepIdx {
		t.Fatalf("plan must precede step_start; kinds = %v", kinds(events))
	}
	toolStart := firstIndex(events, models.EventToolStart)
	toolOutput := firstIndex(events, models.EventToolOutput)
	if toolStart < stepIdx || toolOutput < toolStart {
		t.Errorf("tool events out of order; kinds = %v", kinds(events))
	}
	if events[toolStart].Tool.Args["url"] != "https://example.org/a.html" {
		t.Errorf("tool_start args = %v", events[toolStart].Tool.Args)
	}

	last := events[len(events)-2] // history_snapshot follows the terminal content
	final := events[len(events)-1]
	if final.Kind == models.EventHistorySnapshot {
		final = last
	}
	if !final.Terminal() || final.Kind != models.EventContent {
		t.Errorf("final event = %+v", final)
	}

	var answer strings.Builder
	for _, e := range events {
		if e.Kind == models.EventContent && e.Content.Finish == "" {
			answer.WriteString(e.Content.Delta)
		}
	}
	if answer.String() != "Example Domain is a reserved page." {
		t.Errorf("answer = %q", answer.String())
	}

	// Sequence numbers strictly increase.
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Fatalf("seq not strictly increasing at %d: %d then %d", i, events[i-1].Seq, events[i].Seq)
		}
	}
}

func TestService_RetryThenSuccess(t *testing.T) {
	fetch := &flakyTool{name: "web_fetch", failures: 1}
	registry := tools.NewRegistry()
	registry.Register(fetch)

	gateway := newRoutedGateway()
	gateway.push("planner", fetchPlan)
	gateway.push("supervisor",
		`{"outcome":"retry","feedback":"transient timeout"}`,
		`{"outcome":"success"}`)
	gateway.push("composer", "All done.")

	service, _, convID := newTestService(t, gateway, registry, testAgentConfig())

	events := collect(t, service.Handle(context.Background(), Request{
		ConversationID: convID,
		Prompt:         "fetch it",
	}))

	if fetch.callCount() != 2 {
		t.Errorf("tool calls = %d, want 2 (one retry)", fetch.callCount())
	}
	// Identical arguments on the retry.
	if string(fetch.calls[0]) != string(fetch.calls[1]) {
		t.Errorf("retry arguments differ: %s vs %s", fetch.calls[0], fetch.calls[1])
	}
	var toolStarts int
	for _, e := range events {
		if e.Kind == models.EventToolStart {
			toolStarts++
		}
	}
	if toolStarts != 2 {
		t.Errorf("tool_start events = %d, want 2", toolStarts)
	}
	if firstIndex(events, models.EventError) >= 0 {
		t.Errorf("unexpected error event; kinds = %v", kinds(events))
	}

	// The supervisor's feedback joined the history, so the composer can
	// mention the hiccup in its answer.
	composer := gateway.requests("composer")
	if len(composer) != 1 {
		t.Fatalf("composer requests = %d, want 1", len(composer))
	}
	var sawFeedback bool
	for _, m := range composer[0].Messages {
		if strings.Contains(m.Content, "transient timeout") {
			sawFeedback = true
		}
	}
	if !sawFeedback {
		t.Error("retry feedback missing from the composer history")
	}
}

func TestService_RetryBudgetTurnsIntoReplan(t *testing.T) {
	// The tool always fails transiently; the supervisor keeps saying retry.
	fetch := &flakyTool{name: "web_fetch", failures: 100}
	registry := tools.NewRegistry()
	registry.Register(fetch)

	gateway := newRoutedGateway()
	gateway.push("planner", fetchPlan)
	// First verdict: retry. Second: retry again, but the budget (1) is
	// spent, so the supervisor must map it to replan.
	gateway.push("supervisor",
		`{"outcome":"retry","feedback":"timeout"}`,
		`{"outcome":"retry","feedback":"timeout"}`)
	// The replanned attempt goes straight to completion.
	gateway.push("planner", `{"steps":[{"kind":"completion"}]}`)
	gateway.push("composer", "Could not fetch the page.")

	service, _, convID := newTestService(t, gateway, registry, testAgentConfig())

	events := collect(t, service.Handle(context.Background(), Request{
		ConversationID: convID,
		Prompt:         "fetch it",
	}))

	if fetch.callCount() != 2 {
		t.Errorf("tool calls = %d, want 2 (single retry, then replan)", fetch.callCount())
	}
	var plans int
	for _, e := range events {
		if e.Kind == models.EventPlan {
			plans++
		}
	}
	if plans != 2 {
		t.Errorf("plan events = %d, want 2 (replan)", plans)
	}
	if firstIndex(events, models.EventError) >= 0 {
		t.Errorf("unexpected error; kinds = %v", kinds(events))
	}
}

func TestService_ReplanOnForbiddenTool(t *testing.T) {
	// The context forbids shell: it is absent from the filtered registry.
	fetch := &flakyTool{name: "web_fetch"}
	registry := tools.NewRegistry()
	registry.Register(fetch)

	gateway := newRoutedGateway()
	gateway.push("planner",
		`{"steps":[{"kind":"tool","target":"shell","args":{"command":"curl"}},{"kind":"completion"}]}`,
		fetchPlan)
	gateway.push("supervisor", `{"outcome":"success"}`)
	gateway.push("composer", "Done via web_fetch.")

	service, _, convID := newTestService(t, gateway, registry, testAgentConfig())

	events := collect(t, service.Handle(context.Background(), Request{
		ConversationID: convID,
		Prompt:         "summarise the page",
	}))

	// First plan rejected before any step ran; second plan executed.
	plans := 0
	for _, e := range events {
		if e.Kind == models.EventPlan {
			plans++
		}
	}
	if plans != 2 {
		t.Fatalf("plan events = %d, want 2; kinds = %v", plans, kinds(events))
	}
	if idx := firstIndex(events, models.EventStepStart); idx >= 0 {
		for _, e := range events[:idx] {
			if e.Kind == models.EventPlan {
				plans--
			}
		}
		// Both plans were emitted before the first step only if the first
		// was rejected without execution.
		if plans != 0 {
			t.Errorf("a step started before the accepted plan; kinds = %v", kinds(events))
		}
	}
	if firstIndex(events, models.EventError) >= 0 {
		t.Errorf("unexpected error; kinds = %v", kinds(events))
	}
	if fetch.callCount() != 1 {
		t.Errorf("web_fetch calls = %d, want 1", fetch.callCount())
	}
}

func TestService_ZeroReplanBudgetAbortsInvalidPlan(t *testing.T) {
	registry := tools.NewRegistry()

	gateway := newRoutedGateway()
	// Plan references a tool that does not exist; budget is zero.
	gateway.push("planner", `{"steps":[{"kind":"tool","target":"shell","args":{}},{"kind":"completion"}]}`)

	cfg := testAgentConfig()
	cfg.MaxReplans = 0
	service, _, convID := newTestService(t, gateway, registry, cfg)

	events := collect(t, service.Handle(context.Background(), Request{
		ConversationID: convID,
		Prompt:         "do something",
	}))

	if idx := firstIndex(events, models.EventStepStart); idx >= 0 {
		t.Errorf("step_start emitted for a rejected plan; kinds = %v", kinds(events))
	}
	errIdx := firstIndex(events, models.EventError)
	if errIdx < 0 {
		t.Fatalf("no error event; kinds = %v", kinds(events))
	}
	if events[errIdx].Error.Code != CodePlanInvalid {
		t.Errorf("error code = %q, want %q", events[errIdx].Error.Code, CodePlanInvalid)
	}
}

func TestService_ForceContinueAfterExhaustedReplans(t *testing.T) {
	// Every execution fails semantically; the supervisor always replans.
	fetch := &flakyTool{name: "web_fetch", failures: 100}
	registry := tools.NewRegistry()
	registry.Register(fetch)

	cfg := testAgentConfig()
	cfg.MaxReplans = 1

	gateway := newRoutedGateway()
	gateway.push("planner", fetchPlan, fetchPlan)
	gateway.push("supervisor",
		`{"outcome":"replan","feedback":"wrong page"}`,
		`{"outcome":"replan","feedback":"wrong page"}`)
	// Force-completion cycle.
	gateway.push("planner", `{"steps":[{"kind":"completion"}]}`)
	gateway.push("composer", "Here is what I know so far.")

	service, _, convID := newTestService(t, gateway, registry, cfg)

	events := collect(t, service.Handle(context.Background(), Request{
		ConversationID: convID,
		Prompt:         "fetch it",
	}))

	if firstIndex(events, models.EventError) >= 0 {
		t.Fatalf("force continue must not error; kinds = %v", kinds(events))
	}
	final := events[len(events)-1]
	if final.Kind == models.EventHistorySnapshot {
		final = events[len(events)-2]
	}
	if !final.Terminal() {
		t.Errorf("stream did not end with terminal content; kinds = %v", kinds(events))
	}
}

func TestService_ConfirmationPausesRequest(t *testing.T) {
	gated := &gatedTool{}
	registry := tools.NewRegistry()
	registry.Register(gated)

	gateway := newRoutedGateway()
	gateway.push("planner", `{"steps":[{"kind":"tool","target":"file_write","args":{}},{"kind":"completion"}]}`)

	service, stores, convID := newTestService(t, gateway, registry, testAgentConfig())

	events := collect(t, service.Handle(context.Background(), Request{
		ConversationID: convID,
		Prompt:         "write the report",
	}))

	confIdx := firstIndex(events, models.EventConfirmationRequired)
	if confIdx < 0 {
		t.Fatalf("no confirmation_required; kinds = %v", kinds(events))
	}
	if gated.executed {
		t.Error("gated tool executed without confirmation")
	}
	if events[confIdx].Confirmation.TokenToConfirm == "" {
		t.Error("confirmation carries no token")
	}

	// A system message records the pending action.
	messages, err := stores.Messages.Recent(context.Background(), convID, 10)
	if err != nil {
		t.Fatal(err)
	}
	var pending bool
	for _, m := range messages {
		if m.Role == models.RoleSystem && strings.Contains(m.Content, "pending confirmation") {
			pending = true
		}
		if m.Role == models.RoleAssistant {
			t.Error("assistant message persisted for a paused request")
		}
	}
	if !pending {
		t.Error("no pending-confirmation system message persisted")
	}
}

func TestService_ConfirmTokenAuthorisesGatedTool(t *testing.T) {
	gated := &gatedTool{}
	registry := tools.NewRegistry()
	registry.Register(gated)

	gateway := newRoutedGateway()
	gateway.push("planner", `{"steps":[{"kind":"tool","target":"file_write","args":{}},{"kind":"completion"}]}`)
	gateway.push("supervisor", `{"outcome":"success"}`)
	gateway.push("composer", "Report written.")

	service, _, convID := newTestService(t, gateway, registry, testAgentConfig())

	events := collect(t, service.Handle(context.Background(), Request{
		ConversationID: convID,
		Prompt:         "write the report",
		ConfirmToken:   "approved-token",
	}))

	if !gated.executed {
		t.Error("gated tool did not execute despite confirmation token")
	}
	if firstIndex(events, models.EventConfirmationRequired) >= 0 {
		t.Error("confirmation requested although a token was supplied")
	}
}

func TestService_CancellationEmitsNoAssistantMessage(t *testing.T) {
	fetch := &flakyTool{name: "web_fetch"}
	registry := tools.NewRegistry()
	registry.Register(fetch)

	gateway := newRoutedGateway()
	gateway.push("planner", fetchPlan)

	service, stores, convID := newTestService(t, gateway, registry, testAgentConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := collect(t, service.Handle(ctx, Request{
		ConversationID: convID,
		Prompt:         "fetch it",
	}))

	errIdx := firstIndex(events, models.EventError)
	if errIdx < 0 || events[errIdx].Error.Code != CodeCancelled {
		t.Fatalf("want CANCELLED error; kinds = %v", kinds(events))
	}

	messages, err := stores.Messages.Recent(context.Background(), convID, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range messages {
		if m.Role == models.RoleAssistant {
			t.Error("assistant message persisted for a cancelled request")
		}
	}
}

// sharedVectors is one word-overlap vector backend serving every context, so
// isolation depends entirely on the search filter.
type sharedVectors struct {
	mu      sync.Mutex
	records []models.MemoryRecord
	vectors [][]float32
}

func (s *sharedVectors) EnsureCollection(context.Context, string, int) error { return nil }

func (s *sharedVectors) Upsert(_ context.Context, _ string, record models.MemoryRecord, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	s.vectors = append(s.vectors, vector)
	return nil
}

func (s *sharedVectors) Search(_ context.Context, _ string, vector []float32, filter memory.SearchFilter, limit int) ([]models.MemoryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MemoryResult
	for i, record := range s.records {
		if record.ContextID != filter.ContextID {
			continue
		}
		if filter.ConversationID != "" && record.ConversationID != filter.ConversationID {
			continue
		}
		var score float32
		for j := range min(len(vector), len(s.vectors[i])) {
			if vector[j] != 0 && vector[j] == s.vectors[i][j] {
				score++
			}
		}
		out = append(out, models.MemoryResult{Record: record, Score: score})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *sharedVectors) DeleteByContext(context.Context, string, string) error { return nil }
func (s *sharedVectors) Close() error                                          { return nil }

// hashEmbedder buckets words so equal words produce overlapping vectors.
type hashEmbedder struct{}

func (hashEmbedder) Dimension() int { return 64 }

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 64)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		var h uint32
		for _, r := range word {
			h = h*31 + uint32(r)
		}
		v[h%64] = float32(h%97) + 1
	}
	return v, nil
}

func TestService_ConcurrentContextsSearchOwnMemoriesOnly(t *testing.T) {
	manager, err := memory.NewManager(context.Background(), &sharedVectors{}, hashEmbedder{}, "test-memories", nil)
	if err != nil {
		t.Fatal(err)
	}

	const memoryPlan = `{"steps":[{"kind":"memory","args":{"query":"the launch code"}},{"kind":"completion"}]}`

	type run struct {
		contextID string
		secret    string
		gateway   *routedGateway
		service   *Service
		convID    string
		events    []*models.AgentEvent
	}
	build := func(contextID, secret string) *run {
		stores := storage.NewMemoryStores()
		tenant := &models.Context{ID: contextID, Name: contextID, CreatedAt: time.Now()}
		if err := stores.Contexts.Create(context.Background(), tenant); err != nil {
			t.Fatal(err)
		}
		conv, err := stores.Conversations.Upsert(context.Background(), "cli", "session-"+contextID, tenant.ID)
		if err != nil {
			t.Fatal(err)
		}
		store := manager.ForContext(contextID)
		if _, err := store.Save(context.Background(), "", secret, nil); err != nil {
			t.Fatal(err)
		}

		gateway := newRoutedGateway()
		gateway.push("planner", memoryPlan)
		gateway.push("supervisor", `{"outcome":"success"}`)
		gateway.push("composer", "noted")

		registry := tools.NewRegistry()
		skillRegistry := skills.NewRegistry(nil)
		cfg := testAgentConfig()
		service := &Service{
			tenant:   tenant,
			registry: registry,
			memory:   store,
			skills:   skillRegistry,
			gateway:  gateway,
			messages: stores.Messages,
			planner:  NewPlanner(gateway, "planner", nil),
			planSup:  NewPlanSupervisor(skillRegistry),
			executor: NewStepExecutor(registry, skillRegistry, skills.NewExecutor(gateway, "composer", cfg.MaxSkillTurns, nil), store, gateway, "composer", cfg.StepTimeout, nil),
			stepSup:  NewStepSupervisor(gateway, "supervisor", cfg.MaxRetriesPerStep, nil),
			cfg:      cfg,
			logger:   discardLogger(),
		}
		return &run{contextID: contextID, secret: secret, gateway: gateway, service: service, convID: conv.ID}
	}

	alpha := build("ctx-alpha", "the alpha launch code is A-111")
	beta := build("ctx-beta", "the beta launch code is B-222")

	var wg sync.WaitGroup
	for _, r := range []*run{alpha, beta} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range r.service.Handle(context.Background(), Request{
				ConversationID: r.convID,
				Prompt:         "what is the launch code?",
			}) {
				r.events = append(r.events, event)
			}
		}()
	}
	wg.Wait()

	checks := []struct {
		run   *run
		other *run
	}{{alpha, beta}, {beta, alpha}}
	for _, c := range checks {
		if idx := firstIndex(c.run.events, models.EventError); idx >= 0 {
			t.Fatalf("%s: error event %+v", c.run.contextID, c.run.events[idx].Error)
		}
		// The stream must never carry the other context's records.
		for _, event := range c.run.events {
			raw, err := json.Marshal(event)
			if err != nil {
				t.Fatal(err)
			}
			if strings.Contains(string(raw), c.other.secret) {
				t.Errorf("%s: event leaked a foreign memory: %s", c.run.contextID, raw)
			}
		}
		// The composer saw its own context's memory and only that one.
		composer := c.run.gateway.requests("composer")
		if len(composer) != 1 {
			t.Fatalf("%s: composer requests = %d, want 1", c.run.contextID, len(composer))
		}
		var sawOwn bool
		for _, m := range composer[0].Messages {
			if strings.Contains(m.Content, c.run.secret) {
				sawOwn = true
			}
			if strings.Contains(m.Content, c.other.secret) {
				t.Errorf("%s: composer history contains a foreign memory: %q", c.run.contextID, m.Content)
			}
		}
		if !sawOwn {
			t.Errorf("%s: composer history is missing the context's own memory", c.run.contextID)
		}
	}
}

func TestRedactArgs(t *testing.T) {
	args := map[string]any{
		"url":       "https://example.org",
		"api_key":   "sk-abcdefgh12345678",
		"AuthToken": "xyz",
		"note":      "Bearer abc.def-ghi",
	}
	redacted := RedactArgs(args)
	if redacted["url"] != "https://example.org" {
		t.Errorf("url = %v", redacted["url"])
	}
	if redacted["api_key"] != "[redacted]" || redacted["AuthToken"] != "[redacted]" {
		t.Errorf("credentials leaked: %v", redacted)
	}
	if s, _ := redacted["note"].(string); strings.Contains(s, "abc.def") {
		t.Errorf("bearer token leaked: %q", s)
	}
	// The input map is untouched.
	if args["api_key"] != "sk-abcdefgh12345678" {
		t.Error("RedactArgs mutated its input")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
