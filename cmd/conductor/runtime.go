package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/conductor-ai/conductor/internal/agent"
	"github.com/conductor-ai/conductor/internal/config"
	"github.com/conductor-ai/conductor/internal/llm"
	"github.com/conductor-ai/conductor/internal/mcp"
	"github.com/conductor-ai/conductor/internal/memory"
	"github.com/conductor-ai/conductor/internal/observability"
	"github.com/conductor-ai/conductor/internal/orchestrator"
	"github.com/conductor-ai/conductor/internal/skills"
	"github.com/conductor-ai/conductor/internal/storage"
	"github.com/conductor-ai/conductor/internal/tools"
)

// runtime holds every long-lived subsystem behind the CLI commands.
type runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	stores     storage.StoreSet
	dispatcher *orchestrator.Dispatcher

	shutdowns []func(context.Context) error
}

// buildRuntime boots the core from a config file: logging, tracing, storage,
// the LLM router, native tools, skills, the MCP pool, vector memory, and the
// orchestrator on top.
func buildRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	rt := &runtime{cfg: cfg, logger: logger}

	_, stopTracing, err := observability.NewTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	rt.shutdowns = append(rt.shutdowns, stopTracing)

	stores, err := openStores(cfg.Database)
	if err != nil {
		return nil, err
	}
	rt.stores = stores
	rt.shutdowns = append(rt.shutdowns, func(context.Context) error { return stores.Close() })

	gateway, err := llm.NewRouter(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	registry, err := tools.LoadRegistry(cfg.Tools.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("load tools: %w", err)
	}

	skillRegistry := skills.NewRegistry(logger)
	if err := skillRegistry.LoadDir(cfg.Skills.Dir, registry); err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}
	logger.Info("skills loaded", "count", skillRegistry.Len(), "dir", cfg.Skills.Dir)

	var pool *mcp.Pool
	if len(cfg.MCP.Servers) > 0 {
		pool = mcp.NewPool(cfg.MCP, agent.TokenResolverFor(stores.Tokens), logger)
		rt.shutdowns = append(rt.shutdowns, func(context.Context) error {
			pool.Shutdown()
			return nil
		})
	}

	var memoryManager *memory.Manager
	if cfg.Memory.Enabled {
		vectors, err := memory.NewQdrantClient(cfg.Memory.Qdrant)
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		embedder, err := memory.NewOpenAIEmbedder(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.BaseURL, cfg.Memory.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("init embeddings: %w", err)
		}
		memoryManager, err = memory.NewManager(ctx, vectors, embedder, cfg.Memory.Collection, logger)
		if err != nil {
			return nil, fmt.Errorf("init memory: %w", err)
		}
		rt.shutdowns = append(rt.shutdowns, func(context.Context) error { return memoryManager.Close() })
	}

	factory := agent.NewFactory(cfg.Agent, registry, skillRegistry, gateway, stores, memoryManager, pool, logger)
	rt.dispatcher = orchestrator.NewDispatcher(cfg.Agent, stores, gateway, factory, logger)
	return rt, nil
}

func openStores(cfg config.DatabaseConfig) (storage.StoreSet, error) {
	if cfg.Path == ":memory:" {
		return storage.NewMemoryStores(), nil
	}
	stores, err := storage.NewSQLiteStores(cfg.Path)
	if err != nil {
		return storage.StoreSet{}, fmt.Errorf("open database %q: %w", cfg.Path, err)
	}
	return stores, nil
}

// close tears subsystems down in reverse boot order.
func (rt *runtime) close(ctx context.Context) {
	for i := len(rt.shutdowns) - 1; i >= 0; i-- {
		if err := rt.shutdowns[i](ctx); err != nil {
			rt.logger.Warn("shutdown step failed", "error", err)
		}
	}
}
