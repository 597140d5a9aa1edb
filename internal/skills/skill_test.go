package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conductor-ai/conductor/internal/tools"
)

const validSkill = `---
name: weekly-report
description: Compose the weekly status report.
tools:
  - web_fetch
  - current_time
profile: researcher
max_turns: 3
---
Gather updates and write a report about: $ARGUMENTS

Keep it under one page.`

func TestParseSkill(t *testing.T) {
	skill, err := ParseSkill([]byte(validSkill))
	if err != nil {
		t.Fatalf("ParseSkill() error = %v", err)
	}
	if skill.Name != "weekly-report" {
		t.Errorf("Name = %q", skill.Name)
	}
	if len(skill.Tools) != 2 || skill.Tools[0] != "web_fetch" {
		t.Errorf("Tools = %v", skill.Tools)
	}
	if skill.Profile != "researcher" || skill.MaxTurns != 3 {
		t.Errorf("Profile = %q, MaxTurns = %d", skill.Profile, skill.MaxTurns)
	}
	if !strings.HasPrefix(skill.Body, "Gather updates") {
		t.Errorf("Body = %q", skill.Body)
	}
}

func TestParseSkill_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no frontmatter", "just a body"},
		{"unclosed frontmatter", "---\nname: x\ndescription: y"},
		{"missing name", "---\ndescription: y\n---\nbody"},
		{"bad name", "---\nname: Bad Name\ndescription: y\n---\nbody"},
		{"missing description", "---\nname: x\n---\nbody"},
		{"empty body", "---\nname: x\ndescription: y\n---\n"},
		{"negative turns", "---\nname: x\ndescription: y\nmax_turns: -1\n---\nbody"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSkill([]byte(tt.data)); err == nil {
				t.Error("ParseSkill() error = nil, want parse failure")
			}
		})
	}
}

func TestSkill_Prompt(t *testing.T) {
	skill := &Skill{Body: "Research $ARGUMENTS and summarize."}
	if got := skill.Prompt("go generics"); got != "Research go generics and summarize." {
		t.Errorf("Prompt() = %q", got)
	}

	noPlaceholder := &Skill{Body: "Do the thing."}
	if got := noPlaceholder.Prompt("with care"); !strings.Contains(got, "Arguments: with care") {
		t.Errorf("Prompt() = %q, arguments dropped", got)
	}
	if got := noPlaceholder.Prompt(""); got != "Do the thing." {
		t.Errorf("Prompt() = %q", got)
	}
}

func TestRegistry_LoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("report.md", validSkill)
	write("broken.md", "no frontmatter here")
	write("notes.txt", "not a skill")

	base := tools.NewRegistry()
	base.Register(tools.NewCurrentTimeTool())
	base.Register(tools.NewWebFetchTool(tools.FetchConfig{}))

	registry := NewRegistry(nil)
	if err := registry.LoadDir(dir, base); err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if registry.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (broken skill skipped)", registry.Len())
	}
	skill, err := registry.Get("weekly-report")
	if err != nil {
		t.Fatal(err)
	}
	if len(skill.Tools) != 2 {
		t.Errorf("Tools = %v", skill.Tools)
	}
}

func TestRegistry_LoadDirOmitsSkillsWithUnknownTools(t *testing.T) {
	dir := t.TempDir()
	content := `---
name: gapped
description: References a tool that does not exist.
tools:
  - current_time
  - nonexistent_tool
---
Do something.`
	if err := os.WriteFile(filepath.Join(dir, "gapped.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	intact := `---
name: timely
description: Uses only known tools.
tools:
  - current_time
---
Report the time.`
	if err := os.WriteFile(filepath.Join(dir, "timely.md"), []byte(intact), 0o644); err != nil {
		t.Fatal(err)
	}

	base := tools.NewRegistry()
	base.Register(tools.NewCurrentTimeTool())

	registry := NewRegistry(nil)
	if err := registry.LoadDir(dir, base); err != nil {
		t.Fatal(err)
	}
	// The skill naming a missing tool is invalid and must not load at all.
	if _, err := registry.Get("gapped"); err == nil {
		t.Error("Get(gapped) error = nil, want not found")
	}
	if _, err := registry.Get("timely"); err != nil {
		t.Errorf("Get(timely) error = %v", err)
	}
	if registry.Len() != 1 {
		t.Errorf("Len() = %d, want 1", registry.Len())
	}
}

func TestRegistry_MissingDirIsNotAnError(t *testing.T) {
	registry := NewRegistry(nil)
	if err := registry.LoadDir("/does/not/exist", nil); err != nil {
		t.Errorf("LoadDir() error = %v", err)
	}
}
