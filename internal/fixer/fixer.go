// Package fixer applies deterministic, safe remediations to SKILL.md
// frontmatter. Every action is either proposed (dry run) or applied; nothing
// heuristic or destructive happens here.
package fixer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skillfence/skillfence/internal/manifest"
	"github.com/skillfence/skillfence/internal/policy"
)

var (
	namePattern   = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugCleanRe   = regexp.MustCompile(`[^a-z0-9-]+`)
	slugSqueezeRe = regexp.MustCompile(`-+`)
)

// Action is one remediation, proposed or applied.
type Action struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// Result records what a fix run did (or would do without --apply).
type Result struct {
	SkillName    string   `json:"skill_name"`
	Applied      []Action `json:"applied"`
	Skipped      []Action `json:"skipped"`
	Errors       []string `json:"errors"`
	ChangedFiles []string `json:"changed_files"`
}

// Proposed reports whether any remediation was identified.
func (r *Result) Proposed() bool { return len(r.Applied) > 0 || len(r.Skipped) > 0 }

// Changed reports whether any file was rewritten.
func (r *Result) Changed() bool { return len(r.ChangedFiles) > 0 }

// MarshalJSON keeps the slices non-nil in the emitted artifact.
func (r *Result) MarshalJSON() ([]byte, error) {
	type alias Result
	out := alias(*r)
	if out.Applied == nil {
		out.Applied = []Action{}
	}
	if out.Skipped == nil {
		out.Skipped = []Action{}
	}
	if out.Errors == nil {
		out.Errors = []string{}
	}
	if out.ChangedFiles == nil {
		out.ChangedFiles = []string{}
	}
	return json.Marshal(struct {
		alias
		Changed  bool `json:"changed"`
		Proposed bool `json:"proposed"`
	}{out, r.Changed(), r.Proposed()})
}

// Slugify normalizes a directory name into a valid skill name.
func Slugify(value string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	lowered = strings.NewReplacer("_", "-", " ", "-").Replace(lowered)
	cleaned := slugCleanRe.ReplaceAllString(lowered, "-")
	collapsed := strings.Trim(slugSqueezeRe.ReplaceAllString(cleaned, "-"), "-")
	if collapsed == "" {
		return "skill"
	}
	return collapsed
}

// Run inspects the skill's frontmatter and remediates what it safely can.
// With apply=false every action lands in Skipped and no file changes.
func Run(skillRoot string, pol *policy.Policy, apply bool) *Result {
	dirSlug := Slugify(filepath.Base(skillRoot))
	result := &Result{SkillName: dirSlug}

	path, found := manifest.Find(skillRoot)
	if !found {
		action := Action{Code: "SCHEMA_MISSING", Message: "Generate minimal SKILL.md template", Path: "SKILL.md"}
		if !apply {
			result.Skipped = append(result.Skipped, action)
			return result
		}
		content := fmt.Sprintf("---\nname: %s\ndescription: \"Skill %s\"\n---\n\n# %s\n", dirSlug, dirSlug, dirSlug)
		if err := os.WriteFile(filepath.Join(skillRoot, "SKILL.md"), []byte(content), 0o644); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("write SKILL.md: %v", err))
			return result
		}
		result.Applied = append(result.Applied, action)
		result.ChangedFiles = append(result.ChangedFiles, "SKILL.md")
		return result
	}

	original, err := os.ReadFile(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("read %s: %v", filepath.Base(path), err))
		return result
	}

	front, body, parsed := parseFrontmatter(string(original))
	if !parsed {
		front = map[string]any{
			"name":        dirSlug,
			"description": "Skill " + dirSlug,
		}
		result.Skipped = append(result.Skipped, Action{
			Code:    "SCHEMA_INVALID",
			Message: "Frontmatter parsing failed; rebuilt minimal frontmatter",
			Path:    filepath.Base(path),
		})
	}

	fixes, changed := fixFrontmatter(front, dirSlug, pol)
	if !changed {
		return result
	}
	if !apply {
		result.Skipped = append(result.Skipped, fixes...)
		return result
	}
	result.Applied = append(result.Applied, fixes...)

	rendered, err := renderSkillMD(front, body)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("render SKILL.md: %v", err))
		return result
	}
	if rendered != string(original) {
		if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("write %s: %v", filepath.Base(path), err))
			return result
		}
		result.ChangedFiles = append(result.ChangedFiles, filepath.Base(path))
	}
	return result
}

func parseFrontmatter(text string) (front map[string]any, body string, ok bool) {
	if !strings.HasPrefix(text, "---") {
		return nil, strings.TrimSpace(text) + "\n", false
	}
	parts := strings.SplitN(text, "---", 3)
	if len(parts) != 3 {
		return nil, strings.TrimSpace(text) + "\n", false
	}
	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(parts[1]), &parsed); err != nil || parsed == nil {
		return nil, strings.TrimLeft(parts[2], "\n"), false
	}
	return parsed, strings.TrimLeft(parts[2], "\n"), true
}

func fixFrontmatter(front map[string]any, dirSlug string, pol *policy.Policy) ([]Action, bool) {
	var fixes []Action

	name, _ := front["name"].(string)
	switch {
	case !namePattern.MatchString(name):
		front["name"] = dirSlug
		fixes = append(fixes, Action{Code: "FRONTMATTER_NAME", Message: "Normalized skill name to directory slug", Path: "SKILL.md"})
	case name != dirSlug:
		front["name"] = dirSlug
		fixes = append(fixes, Action{Code: "FRONTMATTER_NAME_MISMATCH", Message: "Aligned frontmatter name to directory", Path: "SKILL.md"})
	}

	description, _ := front["description"].(string)
	trimmed := strings.TrimSpace(description)
	switch {
	case trimmed == "":
		front["description"] = "Skill " + dirSlug
		fixes = append(fixes, Action{Code: "FRONTMATTER_DESCRIPTION", Message: "Added missing description", Path: "SKILL.md"})
	case len(trimmed) > pol.SkillDescriptionMax:
		front["description"] = strings.TrimRight(trimmed[:pol.SkillDescriptionMax], " ")
		fixes = append(fixes, Action{Code: "FRONTMATTER_DESCRIPTION", Message: "Trimmed description to policy limit", Path: "SKILL.md"})
	}

	return fixes, len(fixes) > 0
}

// renderSkillMD re-emits frontmatter with the well-known keys first so that
// repeated runs are stable.
func renderSkillMD(front map[string]any, body string) (string, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	emitted := map[string]bool{}
	appendKey := func(key string) error {
		value, ok := front[key]
		if !ok || emitted[key] {
			return nil
		}
		emitted[key] = true
		var valueNode yaml.Node
		if err := valueNode.Encode(value); err != nil {
			return err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&valueNode)
		return nil
	}
	for _, key := range []string{"name", "description", "version"} {
		if err := appendKey(key); err != nil {
			return "", err
		}
	}
	var rest []string
	for key := range front {
		if !emitted[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		if err := appendKey(key); err != nil {
			return "", err
		}
	}

	header, err := yaml.Marshal(node)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("---\n%s---\n\n%s\n", string(header), strings.TrimRight(strings.TrimLeft(body, "\n"), "\n")), nil
}
