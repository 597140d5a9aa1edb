package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conductor-ai/conductor/internal/config"
)

// TokenResolver returns the OAuth access token for a context and provider.
// It returns ErrMissingToken (possibly wrapped) when none is stored.
type TokenResolver func(ctx context.Context, contextID, provider string) (string, error)

// Pool hands out per-context MCP clients. Connections are cached per context
// and revalidated with a ping once the health TTL elapses. Connecting is
// guarded by a per-context mutex so concurrent requests for the same context
// share one connection attempt.
type Pool struct {
	cfg          config.MCPConfig
	logger       *slog.Logger
	connector    Connector
	resolveToken TokenResolver
	now          func() time.Time

	mu       sync.Mutex
	contexts map[string]*contextEntry
}

type contextEntry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// PoolOption adjusts pool construction.
type PoolOption func(*Pool)

// WithConnector replaces the mcp-go connector, used by tests.
func WithConnector(c Connector) PoolOption {
	return func(p *Pool) { p.connector = c }
}

// WithClock replaces the pool clock, used by tests.
func WithClock(now func() time.Time) PoolOption {
	return func(p *Pool) { p.now = now }
}

// NewPool creates a pool over the configured servers.
func NewPool(cfg config.MCPConfig, resolver TokenResolver, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HealthTTL <= 0 {
		cfg.HealthTTL = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if cfg.ConnectParallelism <= 0 {
		cfg.ConnectParallelism = 4
	}
	p := &Pool{
		cfg:          cfg,
		logger:       logger.With("component", "mcp"),
		connector:    DefaultConnector,
		resolveToken: resolver,
		now:          time.Now,
		contexts:     make(map[string]*contextEntry),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ForContext returns connected clients for every configured server, dialing
// or revalidating as needed. Servers that cannot be reached are skipped; the
// aggregated error reports them so the caller can decide how loudly to fail.
// With no servers configured it returns nothing and no error.
func (p *Pool) ForContext(ctx context.Context, contextID string) ([]*Client, error) {
	if len(p.cfg.Servers) == 0 {
		return nil, nil
	}

	entry := p.entryFor(contextID)

	// Fast path: everything cached and fresh. The read lock keeps the scan
	// safe against a concurrent slow-path populating entry.clients.
	entry.mu.RLock()
	clients, ok := p.liveClients(ctx, entry)
	entry.mu.RUnlock()
	if ok {
		return clients, nil
	}

	// Slow path: connect under the per-context lock, re-checking freshness
	// first since another request may have finished the work.
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if clients, ok := p.liveClients(ctx, entry); ok {
		return clients, nil
	}

	now := p.now()
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.cfg.ConnectParallelism)

	var (
		errMu  sync.Mutex
		joined []error
	)
	for _, server := range p.cfg.Servers {
		client := entry.clients[server.Name]
		if client == nil {
			client = &Client{server: server}
			entry.clients[server.Name] = client
		}
		if client.ensureAlive(ctx, p.cfg.HealthTTL, now) {
			continue
		}
		group.Go(func() error {
			token, err := p.tokenFor(groupCtx, contextID, server)
			if err == nil {
				connectCtx, cancel := context.WithTimeout(groupCtx, p.cfg.ConnectTimeout)
				err = client.connect(connectCtx, p.connector, token, now)
				cancel()
			} else {
				client.fail(err)
			}
			if err != nil {
				p.logger.Warn("mcp server unavailable",
					"server", server.Name,
					"context_id", contextID,
					"error", err)
				errMu.Lock()
				joined = append(joined, err)
				errMu.Unlock()
			}
			// Connection failures are reported via joined, not the group,
			// so one bad server does not cancel the rest.
			return nil
		})
	}
	group.Wait()

	var connected []*Client
	for _, server := range p.cfg.Servers {
		if client := entry.clients[server.Name]; client != nil && client.State() == StateConnected {
			connected = append(connected, client)
		}
	}
	return connected, errors.Join(joined...)
}

// tokenFor resolves the bearer token for a server: per-context OAuth token
// first, static token fallback, empty for unauthenticated servers.
func (p *Pool) tokenFor(ctx context.Context, contextID string, server config.MCPServerConfig) (string, error) {
	if server.AuthProvider == "" {
		return server.StaticToken, nil
	}
	if p.resolveToken == nil {
		if server.StaticToken != "" {
			return server.StaticToken, nil
		}
		return "", fmt.Errorf("server %q: %w", server.Name, ErrMissingToken)
	}
	token, err := p.resolveToken(ctx, contextID, server.AuthProvider)
	if err != nil || token == "" {
		if server.StaticToken != "" {
			return server.StaticToken, nil
		}
		if err != nil {
			return "", fmt.Errorf("server %q: %w", server.Name, err)
		}
		return "", fmt.Errorf("server %q: %w", server.Name, ErrMissingToken)
	}
	return token, nil
}

func (p *Pool) entryFor(contextID string) *contextEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.contexts[contextID]
	if !ok {
		entry = &contextEntry{clients: make(map[string]*Client)}
		p.contexts[contextID] = entry
	}
	return entry
}

// liveClients returns the cached clients when every configured server is
// connected and fresh. Callers must hold entry.mu, read or write.
func (p *Pool) liveClients(ctx context.Context, entry *contextEntry) ([]*Client, bool) {
	now := p.now()
	clients := make([]*Client, 0, len(p.cfg.Servers))
	for _, server := range p.cfg.Servers {
		client := entry.clients[server.Name]
		if client == nil || !client.ensureAlive(ctx, p.cfg.HealthTTL, now) {
			return nil, false
		}
		clients = append(clients, client)
	}
	return clients, true
}

// DisconnectContext closes every connection held for a context.
func (p *Pool) DisconnectContext(contextID string) {
	p.mu.Lock()
	entry, ok := p.contexts[contextID]
	if ok {
		delete(p.contexts, contextID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	for _, client := range entry.clients {
		client.close()
	}
	p.logger.Info("disconnected mcp clients", "context_id", contextID)
}

// Shutdown closes every connection in the pool.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	entries := p.contexts
	p.contexts = make(map[string]*contextEntry)
	p.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		for _, client := range entry.clients {
			client.close()
		}
		entry.mu.Unlock()
	}
}

// ServerHealth is a point-in-time view of one connection.
type ServerHealth struct {
	ContextID string    `json:"context_id"`
	Server    string    `json:"server"`
	State     string    `json:"state"`
	Tools     int       `json:"tools"`
	LastPing  time.Time `json:"last_ping,omitzero"`
}

// HealthStatus reports the state of every tracked connection.
func (p *Pool) HealthStatus() []ServerHealth {
	p.mu.Lock()
	entries := make(map[string]*contextEntry, len(p.contexts))
	for id, entry := range p.contexts {
		entries[id] = entry
	}
	p.mu.Unlock()

	var out []ServerHealth
	for contextID, entry := range entries {
		entry.mu.RLock()
		for _, client := range entry.clients {
			client.mu.Lock()
			out = append(out, ServerHealth{
				ContextID: contextID,
				Server:    client.server.Name,
				State:     client.state.String(),
				Tools:     len(client.tools),
				LastPing:  client.lastPing,
			})
			client.mu.Unlock()
		}
		entry.mu.RUnlock()
	}
	return out
}
