package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func invocationContext(dir string) context.Context {
	return WithInvocation(context.Background(), Invocation{ContextID: "ctx-1", WorkingDir: dir})
}

func TestFileRead(t *testing.T) {
	dir := t.TempDir()
	if err := writeTestFile(filepath.Join(dir, "notes.txt"), "hello"); err != nil {
		t.Fatal(err)
	}
	tool := NewFileReadTool(FileConfig{})

	res, err := tool.Execute(invocationContext(dir), json.RawMessage(`{"path":"notes.txt"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError || res.Content != "hello" {
		t.Errorf("result = %+v, want hello", res)
	}
}

func TestFileRead_RejectsEscape(t *testing.T) {
	tool := NewFileReadTool(FileConfig{})
	res, err := tool.Execute(invocationContext(t.TempDir()), json.RawMessage(`{"path":"../../etc/passwd"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "escapes") {
		t.Errorf("result = %+v, want escape rejection", res)
	}
}

func TestFileRead_NoWorkingDir(t *testing.T) {
	tool := NewFileReadTool(FileConfig{})
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"a.txt"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Error("expected error result without an invocation working directory")
	}
}

func TestFileWrite_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	tool := NewFileWriteTool(FileConfig{})

	res, err := tool.Execute(invocationContext(dir), json.RawMessage(`{"path":"out/report.md","content":"# done"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("result = %+v", res)
	}
	data, err := os.ReadFile(filepath.Join(dir, "out", "report.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# done" {
		t.Errorf("file content = %q", data)
	}
}

func TestFileWrite_RequiresConfirmation(t *testing.T) {
	if !NewFileWriteTool(FileConfig{}).RequiresConfirmation() {
		t.Error("file_write must require confirmation")
	}
	if !NewShellTool(ShellConfig{}).RequiresConfirmation() {
		t.Error("shell must require confirmation")
	}
	if NewFileReadTool(FileConfig{}).RequiresConfirmation() {
		t.Error("file_read must not require confirmation")
	}
}
