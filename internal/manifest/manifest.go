// Package manifest parses and validates SKILL.md frontmatter.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skillfence/skillfence/internal/policy"
)

// StructureError reports a missing or malformed SKILL.md. Probe callers
// record it as a note; lint reports it as a finding. It is never fatal to
// an audit.
type StructureError struct {
	Reason string
}

func (e *StructureError) Error() string { return e.Reason }

// Metadata is the validated SKILL.md frontmatter.
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

// Find returns the manifest path inside a skill root, accepting both the
// canonical SKILL.md and lowercase skill.md.
func Find(skillRoot string) (string, bool) {
	for _, name := range []string{"SKILL.md", "skill.md"} {
		candidate := filepath.Join(skillRoot, name)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// Load parses SKILL.md frontmatter and validates it against policy limits.
// The markdown body after the frontmatter is returned for size checks.
func Load(skillRoot string, pol *policy.Policy) (*Metadata, string, error) {
	path, ok := Find(skillRoot)
	if !ok {
		return nil, "", &StructureError{Reason: fmt.Sprintf("missing SKILL.md in %s", skillRoot)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", &StructureError{Reason: fmt.Sprintf("unreadable SKILL.md: %v", err)}
	}
	front, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, "", err
	}
	var meta Metadata
	if err := yaml.Unmarshal([]byte(front), &meta); err != nil {
		return nil, "", &StructureError{Reason: fmt.Sprintf("invalid YAML front matter: %v", err)}
	}
	if strings.TrimSpace(meta.Name) == "" {
		return nil, "", &StructureError{Reason: "skill name must not be empty"}
	}
	if strings.TrimSpace(meta.Description) == "" {
		return nil, "", &StructureError{Reason: "skill description must not be empty"}
	}
	if pol != nil {
		if len(meta.Name) > pol.SkillNameMax {
			return nil, "", &StructureError{
				Reason: fmt.Sprintf("skill name exceeds maximum length (%d > %d)", len(meta.Name), pol.SkillNameMax),
			}
		}
		if len(meta.Description) > pol.SkillDescriptionMax {
			return nil, "", &StructureError{
				Reason: fmt.Sprintf("skill description exceeds maximum length (%d > %d)", len(meta.Description), pol.SkillDescriptionMax),
			}
		}
	}
	return &meta, body, nil
}

func splitFrontmatter(text string) (front, body string, err error) {
	if !strings.HasPrefix(text, "---") {
		return "", "", &StructureError{Reason: "SKILL.md must begin with YAML front matter delimited by ---"}
	}
	rest := text[3:]
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", "", &StructureError{Reason: "SKILL.md front matter is not terminated by ---"}
	}
	front = rest[:idx]
	body = rest[idx+len("\n---"):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	return front, body, nil
}
