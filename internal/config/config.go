// Package config loads and validates the Conductor configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Memory   MemoryConfig   `yaml:"memory"`
	MCP      MCPConfig      `yaml:"mcp"`
	Tools    ToolsConfig    `yaml:"tools"`
	Skills   SkillsConfig   `yaml:"skills"`
	Agent    AgentConfig    `yaml:"agent"`
}

// LogConfig configures slog output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// TracingConfig configures the OTLP trace exporter.
// An empty endpoint disables exporting; spans become no-ops.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// DatabaseConfig configures relational persistence.
type DatabaseConfig struct {
	// Path is the sqlite database file. ":memory:" keeps state in-process.
	Path string `yaml:"path"`
}

// LLMConfig configures providers and routing profiles.
type LLMConfig struct {
	OpenAI    OpenAIConfig             `yaml:"openai"`
	Anthropic AnthropicConfig          `yaml:"anthropic"`
	Profiles  map[string]ProfileConfig `yaml:"profiles"`
}

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// ProfileConfig maps an opaque profile name (planner, composer, supervisor,
// researcher, ...) to a provider and model.
type ProfileConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// MemoryConfig configures the vector memory store.
type MemoryConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Collection string       `yaml:"collection"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
	Embeddings EmbedConfig  `yaml:"embeddings"`
}

// QdrantConfig configures the qdrant client.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// EmbedConfig configures the embedding provider.
type EmbedConfig struct {
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// MCPConfig configures MCP servers and pool behavior.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`

	// HealthTTL is the freshness threshold for cached liveness.
	HealthTTL time.Duration `yaml:"health_ttl"`

	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ConnectParallelism bounds concurrent connection attempts per context.
	ConnectParallelism int `yaml:"connect_parallelism"`
}

// MCPServerConfig describes one remote tool server. URL selects the
// streamable HTTP transport; Command selects stdio.
type MCPServerConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`

	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`

	// AuthProvider names the OAuth provider whose per-context token
	// authenticates this server. Empty means unauthenticated or static.
	AuthProvider string `yaml:"auth_provider"`

	// StaticToken is a fallback bearer token when no per-context token exists.
	StaticToken string `yaml:"static_token"`
}

// ToolsConfig locates the native tool declarations.
type ToolsConfig struct {
	Path string `yaml:"path"`
}

// SkillsConfig locates the skills directory.
type SkillsConfig struct {
	Dir string `yaml:"dir"`
}

// AgentConfig bounds the agentic pipeline.
type AgentConfig struct {
	// MaxReplans is the upper bound on replan cycles per request.
	MaxReplans int `yaml:"max_replans"`

	// MaxRetriesPerStep is the upper bound on retries per step.
	MaxRetriesPerStep int `yaml:"max_retries_per_step"`

	// MaxSkillTurns is the default skill worker-loop budget.
	MaxSkillTurns int `yaml:"max_skill_turns"`

	// HistoryWindow is how many recent messages enter the planner context.
	HistoryWindow int `yaml:"history_window_messages"`

	// ChatTimeout is the whole-request ceiling for direct chat.
	ChatTimeout time.Duration `yaml:"default_chat_timeout"`

	// AgenticTimeout is the whole-request ceiling for agentic requests.
	AgenticTimeout time.Duration `yaml:"default_agentic_timeout"`

	// StepTimeout bounds individual tool and LLM calls.
	StepTimeout time.Duration `yaml:"step_timeout"`
}

// Load reads, env-expands, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills unset fields with their defaults.
func (c *Config) SetDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "conductor"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 1.0
	}
	if c.Database.Path == "" {
		c.Database.Path = "conductor.db"
	}
	if c.Memory.Collection == "" {
		c.Memory.Collection = "conductor_memory"
	}
	if c.Memory.Qdrant.Host == "" {
		c.Memory.Qdrant.Host = "localhost"
	}
	if c.Memory.Qdrant.Port == 0 {
		c.Memory.Qdrant.Port = 6334
	}
	if c.Memory.Embeddings.Model == "" {
		c.Memory.Embeddings.Model = "text-embedding-3-small"
	}
	if c.Memory.Embeddings.Dimension == 0 {
		c.Memory.Embeddings.Dimension = 1536
	}
	if c.MCP.HealthTTL == 0 {
		c.MCP.HealthTTL = 30 * time.Second
	}
	if c.MCP.ConnectTimeout == 0 {
		c.MCP.ConnectTimeout = 15 * time.Second
	}
	if c.MCP.ConnectParallelism == 0 {
		c.MCP.ConnectParallelism = 4
	}
	if c.Tools.Path == "" {
		c.Tools.Path = "tools.yaml"
	}
	if c.Skills.Dir == "" {
		c.Skills.Dir = "skills"
	}
	if c.Agent.MaxReplans == 0 {
		c.Agent.MaxReplans = 3
	}
	if c.Agent.MaxRetriesPerStep == 0 {
		c.Agent.MaxRetriesPerStep = 1
	}
	if c.Agent.MaxSkillTurns == 0 {
		c.Agent.MaxSkillTurns = 5
	}
	if c.Agent.HistoryWindow == 0 {
		c.Agent.HistoryWindow = 20
	}
	if c.Agent.ChatTimeout == 0 {
		c.Agent.ChatTimeout = 120 * time.Second
	}
	if c.Agent.AgenticTimeout == 0 {
		c.Agent.AgenticTimeout = 600 * time.Second
	}
	if c.Agent.StepTimeout == 0 {
		c.Agent.StepTimeout = 60 * time.Second
	}
	if c.LLM.Profiles == nil {
		c.LLM.Profiles = map[string]ProfileConfig{}
	}
	for _, name := range []string{"planner", "composer", "supervisor", "classifier", "researcher"} {
		if _, ok := c.LLM.Profiles[name]; !ok {
			c.LLM.Profiles[name] = ProfileConfig{Provider: "openai", Model: "gpt-4o-mini"}
		}
	}
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	for name, p := range c.LLM.Profiles {
		switch p.Provider {
		case "openai", "anthropic":
		default:
			return fmt.Errorf("config: profile %q references unknown provider %q", name, p.Provider)
		}
		if p.Model == "" {
			return fmt.Errorf("config: profile %q has no model", name)
		}
	}
	seen := make(map[string]bool, len(c.MCP.Servers))
	for _, s := range c.MCP.Servers {
		if s.Name == "" {
			return fmt.Errorf("config: mcp server entries require a name")
		}
		if s.URL == "" && s.Command == "" {
			return fmt.Errorf("config: mcp server %q needs a url or a command", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("config: duplicate mcp server %q", s.Name)
		}
		seen[s.Name] = true
	}
	if c.Agent.MaxReplans < 0 || c.Agent.MaxRetriesPerStep < 0 {
		return fmt.Errorf("config: agent budgets must not be negative")
	}
	return nil
}
