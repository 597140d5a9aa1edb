package tools

import (
	"sort"
	"sync"
)

// Registry maps tool names to implementations with thread-safe registration
// and lookup. The base registry built at startup is an immutable template:
// per-request mutation (permission filtering, MCP registration) happens on
// clones only.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool by its name, replacing any existing entry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all tools ordered by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Tool, len(names))
	for i, name := range names {
		out[i] = r.tools[name]
	}
	return out
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Clone returns a shallow copy: the same tool values behind an independent
// name map. O(n), never invokes tool constructors.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := make(map[string]Tool, len(r.tools))
	for name, tool := range r.tools {
		clone[name] = tool
	}
	return &Registry{tools: clone}
}

// FilterByPermissions removes tools explicitly denied by the permission map.
// Absent entries default to allowed. Idempotent.
func (r *Registry) FilterByPermissions(perms map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, allowed := range perms {
		if !allowed {
			delete(r.tools, name)
		}
	}
}

// Intersect returns a new registry containing only the named tools that are
// present in this registry. Used for skill scoping.
func (r *Registry) Intersect(names []string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	scoped := make(map[string]Tool, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			scoped[name] = tool
		}
	}
	return &Registry{tools: scoped}
}
