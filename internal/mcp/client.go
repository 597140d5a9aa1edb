// Package mcp maintains per-context connections to MCP tool servers and
// exposes their tools through the shared tool registry.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpproto "github.com/mark3labs/mcp-go/mcp"

	"github.com/conductor-ai/conductor/internal/config"
)

// ErrMissingToken is returned when a server requires an OAuth provider and no
// token exists for the context.
var ErrMissingToken = errors.New("mcp: no oauth token for context")

// ConnState is the lifecycle state of one server connection.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ToolDescriptor is a remote tool as advertised by a server.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Session is one live server connection. The production implementation wraps
// an mcp-go client; tests substitute fakes.
type Session interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (content string, isError bool, err error)
	Ping(ctx context.Context) error
	Close() error
}

// Connector establishes a session against a configured server using the
// resolved bearer token (empty when the server is unauthenticated).
type Connector func(ctx context.Context, server config.MCPServerConfig, token string) (Session, error)

// Client tracks one server connection for one context, with a cached tool
// list and the time of the last successful liveness check.
type Client struct {
	server config.MCPServerConfig

	mu       sync.Mutex
	state    ConnState
	session  Session
	tools    []ToolDescriptor
	lastPing time.Time
	lastErr  error
}

// Server returns the server name this client is bound to.
func (c *Client) Server() string { return c.server.Name }

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Tools returns the tool descriptors cached at connect time.
func (c *Client) Tools() []ToolDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ToolDescriptor, len(c.tools))
	copy(out, c.tools)
	return out
}

// CallTool invokes a remote tool on the live session.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	c.mu.Lock()
	session := c.session
	state := c.state
	c.mu.Unlock()
	if state != StateConnected || session == nil {
		return "", false, fmt.Errorf("mcp: server %q is %s", c.server.Name, state)
	}
	return session.CallTool(ctx, name, args)
}

// connect establishes the session and caches the tool list.
func (c *Client) connect(ctx context.Context, connector Connector, token string, now time.Time) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	session, err := connector(ctx, c.server, token)
	if err != nil {
		c.fail(err)
		return fmt.Errorf("connect %q: %w", c.server.Name, err)
	}
	tools, err := session.ListTools(ctx)
	if err != nil {
		session.Close()
		c.fail(err)
		return fmt.Errorf("list tools on %q: %w", c.server.Name, err)
	}

	c.mu.Lock()
	c.session = session
	c.tools = tools
	c.state = StateConnected
	c.lastPing = now
	c.lastErr = nil
	c.mu.Unlock()
	return nil
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	c.state = StateFailed
	c.lastErr = err
	c.mu.Unlock()
}

// ensureAlive pings the session when the cached liveness is older than ttl.
// A failed ping tears the session down so the pool reconnects.
func (c *Client) ensureAlive(ctx context.Context, ttl time.Duration, now time.Time) bool {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return false
	}
	if now.Sub(c.lastPing) < ttl {
		c.mu.Unlock()
		return true
	}
	session := c.session
	c.mu.Unlock()

	if err := session.Ping(ctx); err != nil {
		c.mu.Lock()
		if c.session != nil {
			c.session.Close()
			c.session = nil
		}
		c.tools = nil
		c.state = StateDisconnected
		c.lastErr = err
		c.mu.Unlock()
		return false
	}

	c.mu.Lock()
	c.lastPing = now
	c.mu.Unlock()
	return true
}

// close tears the session down unconditionally.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
	c.tools = nil
	c.state = StateDisconnected
}

// DefaultConnector dials a server with mcp-go: stdio when a command is
// configured, streamable HTTP otherwise.
func DefaultConnector(ctx context.Context, server config.MCPServerConfig, token string) (Session, error) {
	var (
		c   *client.Client
		err error
	)
	if server.Command != "" {
		c, err = client.NewStdioMCPClient(server.Command, server.Env, server.Args...)
	} else {
		var opts []transport.StreamableHTTPCOption
		if token != "" {
			opts = append(opts, transport.WithHTTPHeaders(map[string]string{
				"Authorization": "Bearer " + token,
			}))
		}
		c, err = client.NewStreamableHttpClient(server.URL, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start client: %w", err)
	}

	initReq := mcpproto.InitializeRequest{}
	initReq.Params.ClientInfo = mcpproto.Implementation{
		Name:    "conductor",
		Version: "0.1.0",
	}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return &mcpSession{client: c}, nil
}

type mcpSession struct {
	client *client.Client
}

func (s *mcpSession) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := s.client.ListTools(ctx, mcpproto.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	descriptors := make([]ToolDescriptor, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %q: %w", t.Name, err)
		}
		descriptors = append(descriptors, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return descriptors, nil
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	req := mcpproto.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := s.client.CallTool(ctx, req)
	if err != nil {
		return "", false, err
	}
	var texts []string
	for _, content := range resp.Content {
		if tc, ok := content.(mcpproto.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return strings.Join(texts, "\n"), resp.IsError, nil
}

func (s *mcpSession) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *mcpSession) Close() error {
	return s.client.Close()
}
