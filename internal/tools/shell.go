package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellConfig bounds shell tool behaviour.
type ShellConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxChars int           `yaml:"max_chars"`
}

// ShellTool runs a command in the context's working directory. Gated behind
// user confirmation.
type ShellTool struct {
	config ShellConfig
}

type shellArgs struct {
	Command string `json:"command" jsonschema:"required,description=Shell command to run"`
}

// NewShellTool creates the shell tool with defaults applied.
func NewShellTool(config ShellConfig) *ShellTool {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxChars <= 0 {
		config.MaxChars = 20000
	}
	return &ShellTool{config: config}
}

func (t *ShellTool) Name() string { return "shell" }
func (t *ShellTool) Category() string { return "system" }
func (t *ShellTool) Description() string {
	return "Run a shell command in the context's working directory. Requires confirmation."
}
func (t *ShellTool) RequiresConfirmation() bool { return true }

func (t *ShellTool) Schema() json.RawMessage {
	return SchemaOf(shellArgs{})
}

func (t *ShellTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var params shellArgs
	if err := DecodeArgs(args, &params); err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	if strings.TrimSpace(params.Command) == "" {
		return &Result{Content: "missing required parameter: command", IsError: true}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", params.Command)
	if inv, ok := FromContext(ctx); ok && inv.WorkingDir != "" {
		cmd.Dir = inv.WorkingDir
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	content := out.String()
	if len(content) > t.config.MaxChars {
		content = content[:t.config.MaxChars] + "\n... (truncated)"
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return &Result{Content: fmt.Sprintf("command timed out after %s\n%s", t.config.Timeout, content), IsError: true}, nil
	}
	if err != nil {
		return &Result{Content: fmt.Sprintf("command failed: %v\n%s", err, content), IsError: true}, nil
	}
	if content == "" {
		content = "(no output)"
	}
	return &Result{Content: content}, nil
}
