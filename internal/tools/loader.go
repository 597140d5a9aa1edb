package tools

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// toolsFile is the on-disk shape of tools.yaml.
type toolsFile struct {
	Tools []toolDecl `yaml:"tools"`
}

type toolDecl struct {
	Type    string       `yaml:"type"`
	Enabled *bool        `yaml:"enabled"`
	Fetch   FetchConfig  `yaml:"fetch"`
	Search  SearchConfig `yaml:"search"`
	File    FileConfig   `yaml:"file"`
	Shell   ShellConfig  `yaml:"shell"`
}

// LoadRegistry builds the base tool registry. With an empty path it registers
// every native tool with defaults; otherwise tools.yaml selects and configures
// them. Declarations with an unknown type are logged and skipped so one bad
// entry does not take the whole tool set down.
func LoadRegistry(path string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tools")

	registry := NewRegistry()
	if path == "" {
		registerDefaults(registry)
		return registry, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool declarations: %w", err)
	}
	var file toolsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tool declarations: %w", err)
	}

	for _, decl := range file.Tools {
		if decl.Enabled != nil && !*decl.Enabled {
			continue
		}
		tool, ok := buildTool(decl)
		if !ok {
			logger.Warn("skipping unknown tool type", "type", decl.Type)
			continue
		}
		registry.Register(tool)
	}
	logger.Info("tool registry loaded", "count", registry.Len())
	return registry, nil
}

func buildTool(decl toolDecl) (Tool, bool) {
	switch decl.Type {
	case "web_fetch":
		return NewWebFetchTool(decl.Fetch), true
	case "web_search":
		return NewWebSearchTool(decl.Search), true
	case "file_read":
		return NewFileReadTool(decl.File), true
	case "file_write":
		return NewFileWriteTool(decl.File), true
	case "shell":
		return NewShellTool(decl.Shell), true
	case "current_time":
		return NewCurrentTimeTool(), true
	default:
		return nil, false
	}
}

func registerDefaults(registry *Registry) {
	registry.Register(NewWebFetchTool(FetchConfig{}))
	registry.Register(NewFileReadTool(FileConfig{}))
	registry.Register(NewFileWriteTool(FileConfig{}))
	registry.Register(NewShellTool(ShellConfig{}))
	registry.Register(NewCurrentTimeTool())
}
