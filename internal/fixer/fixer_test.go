package fixer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skillfence/skillfence/internal/manifest"
	"github.com/skillfence/skillfence/internal/policy"
)

func testPolicy() *policy.Policy {
	return &policy.Policy{SkillNameMax: 64, SkillDescriptionMax: 200}
}

func makeSkillDir(t *testing.T, dirName, skillMD string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), dirName)
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if skillMD != "" {
		if err := os.WriteFile(filepath.Join(root, "SKILL.md"), []byte(skillMD), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func hasAction(actions []Action, code string) bool {
	for _, a := range actions {
		if a.Code == code {
			return true
		}
	}
	return false
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"My Cool Skill", "my-cool-skill"},
		{"data_pipeline", "data-pipeline"},
		{"--weird--", "weird"},
		{"###", "skill"},
		{"already-fine", "already-fine"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRunDryRunProposesWithoutWriting(t *testing.T) {
	root := makeSkillDir(t, "my-skill", "---\nname: Wrong Name\ndescription: fine\n---\nbody\n")
	before, _ := os.ReadFile(filepath.Join(root, "SKILL.md"))

	result := Run(root, testPolicy(), false)
	if !result.Proposed() || result.Changed() {
		t.Fatalf("result = %+v", result)
	}
	if !hasAction(result.Skipped, "FRONTMATTER_NAME") {
		t.Fatalf("skipped = %+v", result.Skipped)
	}
	after, _ := os.ReadFile(filepath.Join(root, "SKILL.md"))
	if string(before) != string(after) {
		t.Fatal("dry run modified SKILL.md")
	}
}

func TestRunAppliesNameFix(t *testing.T) {
	root := makeSkillDir(t, "my-skill", "---\nname: Wrong Name\ndescription: fine\nversion: 1.0.0\n---\nbody text\n")
	result := Run(root, testPolicy(), true)
	if !result.Changed() {
		t.Fatalf("result = %+v", result)
	}
	meta, body, err := manifest.Load(root, testPolicy())
	if err != nil {
		t.Fatalf("reload after fix: %v", err)
	}
	if meta.Name != "my-skill" || meta.Version != "1.0.0" {
		t.Fatalf("meta = %+v", meta)
	}
	if !strings.Contains(body, "body text") {
		t.Fatalf("body = %q", body)
	}
}

func TestRunNameMismatchAligned(t *testing.T) {
	root := makeSkillDir(t, "actual-dir", "---\nname: other-name\ndescription: fine\n---\nbody\n")
	result := Run(root, testPolicy(), true)
	if !hasAction(result.Applied, "FRONTMATTER_NAME_MISMATCH") {
		t.Fatalf("applied = %+v", result.Applied)
	}
	meta, _, err := manifest.Load(root, testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if meta.Name != "actual-dir" {
		t.Fatalf("name = %q", meta.Name)
	}
}

func TestRunDescriptionFixes(t *testing.T) {
	pol := testPolicy()
	pol.SkillDescriptionMax = 20

	root := makeSkillDir(t, "long-desc", "---\nname: long-desc\ndescription: "+strings.Repeat("x", 40)+"\n---\nbody\n")
	result := Run(root, pol, true)
	if !hasAction(result.Applied, "FRONTMATTER_DESCRIPTION") {
		t.Fatalf("applied = %+v", result.Applied)
	}
	meta, _, err := manifest.Load(root, pol)
	if err != nil {
		t.Fatal(err)
	}
	if len(meta.Description) > 20 {
		t.Fatalf("description not trimmed: %q", meta.Description)
	}

	root = makeSkillDir(t, "no-desc", "---\nname: no-desc\ndescription: '   '\n---\nbody\n")
	result = Run(root, pol, true)
	if !hasAction(result.Applied, "FRONTMATTER_DESCRIPTION") {
		t.Fatalf("applied = %+v", result.Applied)
	}
}

func TestRunGeneratesMissingManifest(t *testing.T) {
	root := makeSkillDir(t, "bare-skill", "")

	dry := Run(root, testPolicy(), false)
	if !hasAction(dry.Skipped, "SCHEMA_MISSING") || dry.Changed() {
		t.Fatalf("dry result = %+v", dry)
	}

	result := Run(root, testPolicy(), true)
	if !hasAction(result.Applied, "SCHEMA_MISSING") || !result.Changed() {
		t.Fatalf("result = %+v", result)
	}
	meta, _, err := manifest.Load(root, testPolicy())
	if err != nil {
		t.Fatalf("generated manifest invalid: %v", err)
	}
	if meta.Name != "bare-skill" {
		t.Fatalf("name = %q", meta.Name)
	}
}

func TestRunCleanSkillNoChanges(t *testing.T) {
	root := makeSkillDir(t, "clean-skill", "---\nname: clean-skill\ndescription: all good\n---\nbody\n")
	result := Run(root, testPolicy(), true)
	if result.Proposed() || result.Changed() {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunIdempotent(t *testing.T) {
	root := makeSkillDir(t, "fix-me", "---\nname: Fix Me\ndescription: fine\nextra: value\n---\nbody\n")
	if result := Run(root, testPolicy(), true); !result.Changed() {
		t.Fatalf("first run = %+v", result)
	}
	first, _ := os.ReadFile(filepath.Join(root, "SKILL.md"))

	if result := Run(root, testPolicy(), true); result.Proposed() {
		t.Fatalf("second run proposed again: %+v", result)
	}
	second, _ := os.ReadFile(filepath.Join(root, "SKILL.md"))
	if string(first) != string(second) {
		t.Fatal("repeated runs are not stable")
	}
}
