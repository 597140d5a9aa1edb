package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Agent.MaxReplans != 3 {
		t.Errorf("MaxReplans = %d, want 3", cfg.Agent.MaxReplans)
	}
	if cfg.Agent.MaxRetriesPerStep != 1 {
		t.Errorf("MaxRetriesPerStep = %d, want 1", cfg.Agent.MaxRetriesPerStep)
	}
	if cfg.Agent.HistoryWindow != 20 {
		t.Errorf("HistoryWindow = %d, want 20", cfg.Agent.HistoryWindow)
	}
	if cfg.MCP.HealthTTL != 30*time.Second {
		t.Errorf("HealthTTL = %v, want 30s", cfg.MCP.HealthTTL)
	}
	if cfg.Agent.ChatTimeout != 120*time.Second || cfg.Agent.AgenticTimeout != 600*time.Second {
		t.Errorf("timeouts = %v/%v, want 120s/600s", cfg.Agent.ChatTimeout, cfg.Agent.AgenticTimeout)
	}
	if _, ok := cfg.LLM.Profiles["planner"]; !ok {
		t.Error("expected default planner profile")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test-123")
	path := writeConfig(t, "llm:\n  openai:\n    api_key: ${TEST_OPENAI_KEY}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.OpenAI.APIKey != "sk-test-123" {
		t.Errorf("APIKey = %q, want expanded env value", cfg.LLM.OpenAI.APIKey)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad log level", "log:\n  level: loud\n"},
		{"unknown provider", "llm:\n  profiles:\n    planner:\n      provider: cohere\n      model: m\n"},
		{"mcp missing url", "mcp:\n  servers:\n    - name: files\n"},
		{"duplicate mcp server", "mcp:\n  servers:\n    - name: files\n      url: http://a\n    - name: files\n      url: http://b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			if _, err := Load(path); err == nil {
				t.Error("Load() error = nil, want validation error")
			}
		})
	}
}
