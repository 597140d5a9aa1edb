package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileConfig bounds file tool behaviour.
type FileConfig struct {
	MaxBytes int `yaml:"max_bytes"`
}

// FileReadTool reads a file inside the request's working directory.
type FileReadTool struct {
	config FileConfig
}

type fileReadArgs struct {
	Path string `json:"path" jsonschema:"required,description=File path relative to the working directory"`
}

// NewFileReadTool creates the file_read tool with defaults applied.
func NewFileReadTool(config FileConfig) *FileReadTool {
	if config.MaxBytes <= 0 {
		config.MaxBytes = 256 * 1024
	}
	return &FileReadTool{config: config}
}

func (t *FileReadTool) Name() string { return "file_read" }
func (t *FileReadTool) Category() string { return "filesystem" }
func (t *FileReadTool) Description() string {
	return "Read a text file from the context's working directory."
}
func (t *FileReadTool) RequiresConfirmation() bool { return false }

func (t *FileReadTool) Schema() json.RawMessage {
	return SchemaOf(fileReadArgs{})
}

func (t *FileReadTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var params fileReadArgs
	if err := DecodeArgs(args, &params); err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	path, errResult := resolveWorkingPath(ctx, params.Path)
	if errResult != nil {
		return errResult, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return &Result{Content: fmt.Sprintf("read failed: %v", err), IsError: true}, nil
	}
	if len(data) > t.config.MaxBytes {
		data = data[:t.config.MaxBytes]
		return &Result{Content: string(data) + "\n... (truncated)"}, nil
	}
	return &Result{Content: string(data)}, nil
}

// FileWriteTool writes a file inside the request's working directory. Gated
// behind user confirmation.
type FileWriteTool struct {
	config FileConfig
}

type fileWriteArgs struct {
	Path    string `json:"path" jsonschema:"required,description=File path relative to the working directory"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
}

// NewFileWriteTool creates the file_write tool with defaults applied.
func NewFileWriteTool(config FileConfig) *FileWriteTool {
	if config.MaxBytes <= 0 {
		config.MaxBytes = 1024 * 1024
	}
	return &FileWriteTool{config: config}
}

func (t *FileWriteTool) Name() string { return "file_write" }
func (t *FileWriteTool) Category() string { return "filesystem" }
func (t *FileWriteTool) Description() string {
	return "Write a text file into the context's working directory. Requires confirmation."
}
func (t *FileWriteTool) RequiresConfirmation() bool { return true }

func (t *FileWriteTool) Schema() json.RawMessage {
	return SchemaOf(fileWriteArgs{})
}

func (t *FileWriteTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var params fileWriteArgs
	if err := DecodeArgs(args, &params); err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	if len(params.Content) > t.config.MaxBytes {
		return &Result{Content: fmt.Sprintf("content exceeds %d byte limit", t.config.MaxBytes), IsError: true}, nil
	}
	path, errResult := resolveWorkingPath(ctx, params.Path)
	if errResult != nil {
		return errResult, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Result{Content: fmt.Sprintf("write failed: %v", err), IsError: true}, nil
	}
	if err := os.WriteFile(path, []byte(params.Content), 0o644); err != nil {
		return &Result{Content: fmt.Sprintf("write failed: %v", err), IsError: true}, nil
	}
	return &Result{Content: fmt.Sprintf("wrote %d bytes to %s", len(params.Content), params.Path)}, nil
}

// resolveWorkingPath joins a relative path against the invocation's working
// directory and rejects escapes outside it.
func resolveWorkingPath(ctx context.Context, rel string) (string, *Result) {
	if rel == "" {
		return "", &Result{Content: "missing required parameter: path", IsError: true}
	}
	inv, ok := FromContext(ctx)
	if !ok || inv.WorkingDir == "" {
		return "", &Result{Content: "no working directory available for this context", IsError: true}
	}
	joined := filepath.Join(inv.WorkingDir, rel)
	root := filepath.Clean(inv.WorkingDir)
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", &Result{Content: "path escapes the working directory", IsError: true}
	}
	return joined, nil
}
