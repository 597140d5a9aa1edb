package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/conductor-ai/conductor/internal/config"
	"github.com/conductor-ai/conductor/internal/llm"
	"github.com/conductor-ai/conductor/internal/mcp"
	"github.com/conductor-ai/conductor/internal/memory"
	"github.com/conductor-ai/conductor/internal/skills"
	"github.com/conductor-ai/conductor/internal/storage"
	"github.com/conductor-ai/conductor/internal/tools"
)

// Factory builds one isolated Service per request. The base registry and the
// skill registry are immutable after boot; everything mutable is cloned or
// scoped here.
type Factory struct {
	cfg     config.AgentConfig
	base    *tools.Registry
	skills  *skills.Registry
	gateway llm.Gateway
	stores  storage.StoreSet
	memory  *memory.Manager
	pool    *mcp.Pool
	logger  *slog.Logger
}

// NewFactory wires the shared dependencies. memoryManager and pool may be nil
// when those subsystems are disabled.
func NewFactory(
	cfg config.AgentConfig,
	base *tools.Registry,
	skillRegistry *skills.Registry,
	gateway llm.Gateway,
	stores storage.StoreSet,
	memoryManager *memory.Manager,
	pool *mcp.Pool,
	logger *slog.Logger,
) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cfg:     cfg,
		base:    base,
		skills:  skillRegistry,
		gateway: gateway,
		stores:  stores,
		memory:  memoryManager,
		pool:    pool,
		logger:  logger.With("component", "factory"),
	}
}

// CreateService builds a Service bound to one context: a permission-filtered
// registry clone with the context's MCP tools, a scoped memory view, and the
// shared gateway. The clone is never reinserted into the base.
func (f *Factory) CreateService(ctx context.Context, contextID string) (*Service, error) {
	tenant, err := f.stores.Contexts.Get(ctx, contextID)
	if err != nil {
		return nil, fmt.Errorf("load context %q: %w", contextID, err)
	}

	registry := f.base.Clone()

	permissions, err := f.stores.Permissions.List(ctx, contextID)
	if err != nil {
		return nil, fmt.Errorf("load permissions for %q: %w", contextID, err)
	}
	if len(permissions) > 0 {
		permMap := make(map[string]bool, len(permissions))
		for _, p := range permissions {
			permMap[p.ToolName] = p.Allowed
		}
		registry.FilterByPermissions(permMap)
	}

	if f.pool != nil {
		clients, err := f.pool.ForContext(ctx, contextID)
		if err != nil {
			// Unreachable servers degrade to fewer tools, not a failed
			// request.
			f.logger.Warn("some mcp servers unavailable",
				"context_id", contextID,
				"error", err)
		}
		if n := mcp.RegisterTools(registry, clients); n > 0 {
			f.logger.Debug("registered mcp tools", "context_id", contextID, "count", n)
		}
	}

	var memoryView *memory.Store
	if f.memory != nil {
		memoryView = f.memory.ForContext(contextID)
	}

	skillExec := skills.NewExecutor(f.gateway, "composer", f.cfg.MaxSkillTurns, f.logger)

	return &Service{
		tenant:   tenant,
		registry: registry,
		memory:   memoryView,
		skills:   f.skills,
		gateway:  f.gateway,
		messages: f.stores.Messages,
		planner:  NewPlanner(f.gateway, "planner", f.logger),
		planSup:  NewPlanSupervisor(f.skills),
		executor: NewStepExecutor(registry, f.skills, skillExec, memoryView, f.gateway, "composer", f.cfg.StepTimeout, f.logger),
		stepSup:  NewStepSupervisor(f.gateway, "supervisor", f.cfg.MaxRetriesPerStep, f.logger),
		cfg:      f.cfg,
		logger:   f.logger.With("component", "agent"),
	}, nil
}

// TokenResolverFor adapts the token store to the MCP pool's resolver shape.
func TokenResolverFor(tokens storage.TokenStore) mcp.TokenResolver {
	return func(ctx context.Context, contextID, provider string) (string, error) {
		token, err := tokens.Get(ctx, contextID, provider)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return "", mcp.ErrMissingToken
			}
			return "", err
		}
		if token.AccessToken == "" {
			return "", mcp.ErrMissingToken
		}
		return token.AccessToken, nil
	}
}
