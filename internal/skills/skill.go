// Package skills loads markdown-defined procedures and runs them inside a
// bounded, tool-scoped execution loop.
package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// FrontmatterDelimiter marks the beginning and end of YAML frontmatter.
	FrontmatterDelimiter = "---"

	// ArgumentsPlaceholder is replaced with the caller's arguments when the
	// skill body becomes a prompt.
	ArgumentsPlaceholder = "$ARGUMENTS"
)

// Skill is one parsed skill definition.
type Skill struct {
	// Name is the unique skill identifier (lowercase, hyphens allowed).
	Name string `yaml:"name"`

	// Description explains what the skill does and when to use it.
	Description string `yaml:"description"`

	// Tools lists the registry names this skill may call. Empty means the
	// skill runs without tools.
	Tools []string `yaml:"tools"`

	// Profile selects the routing profile used to run the skill body.
	Profile string `yaml:"profile"`

	// MaxTurns overrides the default worker-loop budget when positive.
	MaxTurns int `yaml:"max_turns"`

	// Body is the markdown instruction template.
	Body string `yaml:"-"`

	// Path is the file the skill was loaded from.
	Path string `yaml:"-"`
}

var skillNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// ParseSkillFile parses one skill markdown file.
func ParseSkillFile(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill: %w", err)
	}
	skill, err := ParseSkill(data)
	if err != nil {
		return nil, err
	}
	skill.Path = path
	return skill, nil
}

// ParseSkill parses skill markdown: YAML frontmatter followed by the body.
func ParseSkill(data []byte) (*Skill, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var skill Skill
	if err := yaml.Unmarshal(frontmatter, &skill); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if skill.Name == "" {
		return nil, fmt.Errorf("skill name is required")
	}
	if !skillNamePattern.MatchString(skill.Name) {
		return nil, fmt.Errorf("skill name %q must be lowercase with hyphens", skill.Name)
	}
	if skill.Description == "" {
		return nil, fmt.Errorf("skill %q has no description", skill.Name)
	}
	if skill.MaxTurns < 0 {
		return nil, fmt.Errorf("skill %q has a negative turn budget", skill.Name)
	}

	skill.Body = strings.TrimSpace(string(body))
	if skill.Body == "" {
		return nil, fmt.Errorf("skill %q has no body", skill.Name)
	}
	return &skill, nil
}

// Prompt renders the skill body with the caller's arguments substituted. A
// body without the placeholder gets the arguments appended so they are never
// silently dropped.
func (s *Skill) Prompt(arguments string) string {
	arguments = strings.TrimSpace(arguments)
	if strings.Contains(s.Body, ArgumentsPlaceholder) {
		return strings.ReplaceAll(s.Body, ArgumentsPlaceholder, arguments)
	}
	if arguments == "" {
		return s.Body
	}
	return s.Body + "\n\nArguments: " + arguments
}

// splitFrontmatter separates YAML frontmatter from the markdown body.
func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty skill file")
	}
	if strings.TrimSpace(scanner.Text()) != FrontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var frontmatterLines []string
	foundClosing := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == FrontmatterDelimiter {
			foundClosing = true
			break
		}
		frontmatterLines = append(frontmatterLines, line)
	}
	if !foundClosing {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan skill file: %w", err)
	}

	return []byte(strings.Join(frontmatterLines, "\n")), []byte(strings.Join(bodyLines, "\n")), nil
}

// DiscoverSkillFiles lists skill markdown files under dir, sorted by name.
func DiscoverSkillFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read skills dir: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}
