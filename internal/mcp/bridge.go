package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conductor-ai/conductor/internal/tools"
)

// remoteTool adapts one server-advertised tool to the registry interface.
// Registry names are prefixed "mcp_<server>_" so remote tools can never
// shadow native ones.
type remoteTool struct {
	client     *Client
	descriptor ToolDescriptor
}

func (t *remoteTool) Name() string {
	return RegistryName(t.client.Server(), t.descriptor.Name)
}

func (t *remoteTool) Description() string {
	if t.descriptor.Description != "" {
		return t.descriptor.Description
	}
	return fmt.Sprintf("Remote tool %s on server %s", t.descriptor.Name, t.client.Server())
}

func (t *remoteTool) Schema() json.RawMessage {
	if len(t.descriptor.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return t.descriptor.InputSchema
}

func (t *remoteTool) Category() string { return "mcp" }
func (t *remoteTool) RequiresConfirmation() bool { return false }

func (t *remoteTool) Execute(ctx context.Context, args json.RawMessage) (*tools.Result, error) {
	var decoded map[string]any
	if err := tools.DecodeArgs(args, &decoded); err != nil {
		return &tools.Result{Content: err.Error(), IsError: true}, nil
	}
	content, isError, err := t.client.CallTool(ctx, t.descriptor.Name, decoded)
	if err != nil {
		return &tools.Result{Content: fmt.Sprintf("remote call failed: %v", err), IsError: true}, nil
	}
	return &tools.Result{Content: content, IsError: isError}, nil
}

// RegistryName builds the registry key for a remote tool.
func RegistryName(server, tool string) string {
	return fmt.Sprintf("mcp_%s_%s", server, tool)
}

// RegisterTools adds every tool advertised by the clients to the registry.
// Returns the number of tools registered.
func RegisterTools(registry *tools.Registry, clients []*Client) int {
	count := 0
	for _, client := range clients {
		for _, descriptor := range client.Tools() {
			registry.Register(&remoteTool{client: client, descriptor: descriptor})
			count++
		}
	}
	return count
}
