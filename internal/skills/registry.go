package skills

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/conductor-ai/conductor/internal/tools"
)

// Registry holds the loaded skills. It is populated at startup and read-only
// afterwards.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*Skill
	logger *slog.Logger
}

// NewRegistry creates an empty skill registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		skills: make(map[string]*Skill),
		logger: logger.With("component", "skills"),
	}
}

// LoadDir parses every skill file under dir. Files that fail to parse are
// logged and skipped, as are skills declaring tools unknown to the base
// registry: a skill that names a tool it cannot get is invalid, not loaded
// with a silently narrowed scope. A missing directory is not an error.
func (r *Registry) LoadDir(dir string, base *tools.Registry) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		r.logger.Debug("skills directory does not exist", "dir", dir)
		return nil
	}

	paths, err := DiscoverSkillFiles(dir)
	if err != nil {
		return err
	}
	for _, path := range paths {
		skill, err := ParseSkillFile(path)
		if err != nil {
			r.logger.Warn("skipping invalid skill", "path", path, "error", err)
			continue
		}
		if unknown := unknownTools(skill, base); len(unknown) > 0 {
			r.logger.Warn("skipping skill with unknown tools",
				"path", path,
				"skill", skill.Name,
				"tools", unknown)
			continue
		}
		r.Register(skill)
	}
	r.logger.Info("skills loaded", "dir", dir, "count", r.Len())
	return nil
}

func unknownTools(skill *Skill, base *tools.Registry) []string {
	if base == nil {
		return nil
	}
	var unknown []string
	for _, name := range skill.Tools {
		if _, ok := base.Get(name); !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// Register adds a skill, replacing any existing entry with the same name.
func (r *Registry) Register(skill *Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[skill.Name] = skill
}

// Get returns a skill by name.
func (r *Registry) Get(name string) (*Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skill, ok := r.skills[name]
	if !ok {
		return nil, fmt.Errorf("skill %q not found", name)
	}
	return skill, nil
}

// List returns all skills ordered by name.
func (r *Registry) List() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Skill, 0, len(r.skills))
	for _, skill := range r.skills {
		out = append(out, skill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of loaded skills.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}
