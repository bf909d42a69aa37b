package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeArtifact(t *testing.T, dir, name string, doc map[string]any) {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func seedArtifacts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeArtifact(t, dir, "clean-skill.lint.json", map[string]any{
		"skill":   map[string]any{"name": "clean-skill", "version": "1.0.0"},
		"summary": map[string]any{"files_scanned": 3, "issue_count": 0, "violations_count": 0},
		"issues":  []any{},
	})
	writeArtifact(t, dir, "clean-skill.probe.json", map[string]any{
		"skill":   map[string]any{"name": "clean-skill", "version": "1.0.0"},
		"summary": map[string]any{"files_loaded_count": 3, "egress_attempts": 0, "disallowed_writes": 0},
	})
	writeArtifact(t, dir, "clean-skill.attestation.json", map[string]any{
		"skill":     map[string]any{"name": "clean-skill"},
		"policy":    map[string]any{"sha256": "cafe01"},
		"signature": map[string]any{"mode": "unsigned"},
	})
	writeArtifact(t, dir, "evil-skill.probe.json", map[string]any{
		"skill":   map[string]any{"name": "evil-skill", "version": "0.1.0"},
		"summary": map[string]any{"files_loaded_count": 1, "egress_attempts": 2, "disallowed_writes": 1},
	})
	return dir
}

func TestWriteMergesArtifacts(t *testing.T) {
	dir := seedArtifacts(t)
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	result, err := w.Write()
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %+v", result.Rows)
	}
	clean, evil := result.Rows[0], result.Rows[1]
	if clean.SkillName != "clean-skill" || clean.Status() != "pass" {
		t.Fatalf("clean row = %+v", clean)
	}
	if clean.PolicyHash != "cafe01" || clean.SignatureMode != "unsigned" {
		t.Fatalf("attestation fields not merged: %+v", clean)
	}
	if evil.SkillName != "evil-skill" || evil.Status() != "fail" {
		t.Fatalf("evil row = %+v", evil)
	}
	if evil.ProbeEgress != 2 || evil.ProbeWrites != 1 {
		t.Fatalf("probe counts = %+v", evil)
	}
	if result.Summary.Total != 2 || result.Summary.PassCount != 1 || result.Summary.FailCount != 1 {
		t.Fatalf("summary = %+v", result.Summary)
	}
}

func TestWriteEmitsAllFormats(t *testing.T) {
	dir := seedArtifacts(t)
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	result, err := w.Write()
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	csvData, err := os.ReadFile(result.CSVPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "skill_name,") {
		t.Fatalf("csv = %q", csvData)
	}

	mdData, err := os.ReadFile(result.MDPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(mdData), "| evil-skill |") || !strings.Contains(string(mdData), "FAIL") {
		t.Fatalf("markdown = %q", mdData)
	}

	jsonData, err := os.ReadFile(result.JSONPath)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Summary Summary `json:"summary"`
		Rows    []struct {
			SkillName string `json:"skill_name"`
			Status    string `json:"status"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Summary.Total != 2 || doc.Rows[1].Status != "fail" {
		t.Fatalf("json = %s", jsonData)
	}
}

func TestWriteEmptyDirectory(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	result, err := w.Write()
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(result.Rows) != 0 || result.Summary.Total != 0 {
		t.Fatalf("result = %+v", result)
	}
}

func TestWriteSkipsOwnOutputs(t *testing.T) {
	dir := seedArtifacts(t)
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(); err != nil {
		t.Fatal(err)
	}
	result, err := w.Write()
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("results files leaked into rows: %+v", result.Rows)
	}
}

func TestArtifactNameFallback(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "anon.lint.json", map[string]any{
		"summary": map[string]any{"violations_count": 1, "issue_count": 1},
	})
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	result, err := w.Write()
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 1 || result.Rows[0].SkillName != "anon" {
		t.Fatalf("rows = %+v", result.Rows)
	}
	if result.Rows[0].Status() != "fail" {
		t.Fatal("violations must fail the row")
	}
}
