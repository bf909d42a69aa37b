// Package report collates the JSON artifacts of previous runs (*.lint.json,
// *.probe.json, *.attestation.json) into CSV, Markdown, and JSON summaries.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Row is the per-skill line of the aggregate report.
type Row struct {
	SkillName      string `json:"skill_name"`
	SkillVersion   string `json:"skill_version"`
	LintViolations int    `json:"lint_violations"`
	LintIssues     int    `json:"lint_issues"`
	ProbeEgress    int    `json:"probe_egress"`
	ProbeWrites    int    `json:"probe_disallowed_writes"`
	PolicyHash     string `json:"policy_hash"`
	SignatureMode  string `json:"signature_mode"`
}

// Status is "pass" only when lint and probe both came back clean.
func (r Row) Status() string {
	if r.LintViolations == 0 && r.ProbeEgress == 0 && r.ProbeWrites == 0 {
		return "pass"
	}
	return "fail"
}

// Summary counts pass/fail across all rows.
type Summary struct {
	Total     int `json:"total"`
	PassCount int `json:"pass_count"`
	FailCount int `json:"fail_count"`
}

// Result names the written report files.
type Result struct {
	Rows     []Row
	Summary  Summary
	CSVPath  string
	MDPath   string
	JSONPath string
}

// Writer collates artifacts from one directory.
type Writer struct {
	artifactDir string
}

// NewWriter ensures the artifact directory exists.
func NewWriter(artifactDir string) (*Writer, error) {
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{artifactDir: artifactDir}, nil
}

// Write reads every artifact, merges rows per skill name, and emits
// results.csv, results.md, and results.json.
func (w *Writer) Write() (*Result, error) {
	rows, err := w.collectRows()
	if err != nil {
		return nil, err
	}
	summary := summarize(rows)

	csvPath, err := w.writeCSV(rows)
	if err != nil {
		return nil, err
	}
	mdPath, err := w.writeMarkdown(rows, summary)
	if err != nil {
		return nil, err
	}
	jsonPath, err := w.writeJSON(rows, summary)
	if err != nil {
		return nil, err
	}
	return &Result{Rows: rows, Summary: summary, CSVPath: csvPath, MDPath: mdPath, JSONPath: jsonPath}, nil
}

func (w *Writer) loadArtifacts(suffix string) (map[string]map[string]any, error) {
	matches, err := filepath.Glob(filepath.Join(w.artifactDir, "*"+suffix+".json"))
	if err != nil {
		return nil, err
	}
	out := map[string]map[string]any{}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		name := nestedString(doc, "skill", "name")
		if name == "" {
			base := filepath.Base(path)
			name = strings.SplitN(base, ".", 2)[0]
		}
		out[name] = doc
	}
	return out, nil
}

func (w *Writer) collectRows() ([]Row, error) {
	lintDocs, err := w.loadArtifacts(".lint")
	if err != nil {
		return nil, err
	}
	probeDocs, err := w.loadArtifacts(".probe")
	if err != nil {
		return nil, err
	}
	attestDocs, err := w.loadArtifacts(".attestation")
	if err != nil {
		return nil, err
	}

	names := map[string]bool{}
	for name := range lintDocs {
		names[name] = true
	}
	for name := range probeDocs {
		names[name] = true
	}
	for name := range attestDocs {
		names[name] = true
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	rows := make([]Row, 0, len(sorted))
	for _, name := range sorted {
		lintDoc := lintDocs[name]
		probeDoc := probeDocs[name]
		attestDoc := attestDocs[name]
		rows = append(rows, Row{
			SkillName:      name,
			SkillVersion:   nestedString(lintDoc, "skill", "version"),
			LintViolations: nestedInt(lintDoc, "summary", "violations_count"),
			LintIssues:     nestedInt(lintDoc, "summary", "issue_count"),
			ProbeEgress:    nestedInt(probeDoc, "summary", "egress_attempts"),
			ProbeWrites:    nestedInt(probeDoc, "summary", "disallowed_writes"),
			PolicyHash:     nestedString(attestDoc, "policy", "sha256"),
			SignatureMode:  nestedString(attestDoc, "signature", "mode"),
		})
	}
	return rows, nil
}

func summarize(rows []Row) Summary {
	s := Summary{Total: len(rows)}
	for _, row := range rows {
		if row.Status() == "pass" {
			s.PassCount++
		} else {
			s.FailCount++
		}
	}
	return s
}

func (w *Writer) writeCSV(rows []Row) (string, error) {
	path := filepath.Join(w.artifactDir, "results.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	header := []string{
		"skill_name", "skill_version", "lint_violations", "lint_issues",
		"probe_egress", "probe_disallowed_writes", "policy_hash", "signature_mode", "status",
	}
	if err := cw.Write(header); err != nil {
		return "", err
	}
	for _, row := range rows {
		record := []string{
			row.SkillName,
			row.SkillVersion,
			strconv.Itoa(row.LintViolations),
			strconv.Itoa(row.LintIssues),
			strconv.Itoa(row.ProbeEgress),
			strconv.Itoa(row.ProbeWrites),
			row.PolicyHash,
			row.SignatureMode,
			row.Status(),
		}
		if err := cw.Write(record); err != nil {
			return "", err
		}
	}
	cw.Flush()
	return path, cw.Error()
}

func (w *Writer) writeMarkdown(rows []Row, summary Summary) (string, error) {
	path := filepath.Join(w.artifactDir, "results.md")
	var b strings.Builder
	b.WriteString("# Skillfence Report\n\n")
	fmt.Fprintf(&b, "Total skills audited: **%d**\n", summary.Total)
	fmt.Fprintf(&b, "- Passes: **%d**\n", summary.PassCount)
	fmt.Fprintf(&b, "- Failures: **%d**\n\n", summary.FailCount)
	b.WriteString("| Skill | Version | Lint Violations | Lint Issues | Egress Attempts | Disallowed Writes | Policy Hash | Signature | Status |\n")
	b.WriteString("| --- | --- | --- | --- | --- | --- | --- | --- | --- |\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %d | %d | %s | %s | %s |\n",
			row.SkillName,
			orDash(row.SkillVersion),
			row.LintViolations,
			row.LintIssues,
			row.ProbeEgress,
			row.ProbeWrites,
			orDash(row.PolicyHash),
			orDash(row.SignatureMode),
			strings.ToUpper(row.Status()),
		)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (w *Writer) writeJSON(rows []Row, summary Summary) (string, error) {
	path := filepath.Join(w.artifactDir, "results.json")
	type rowJSON struct {
		Row
		Status string `json:"status"`
	}
	payload := struct {
		Summary Summary   `json:"summary"`
		Rows    []rowJSON `json:"rows"`
	}{Summary: summary, Rows: make([]rowJSON, 0, len(rows))}
	for _, row := range rows {
		payload.Rows = append(payload.Rows, rowJSON{Row: row, Status: row.Status()})
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func nestedString(doc map[string]any, keys ...string) string {
	v := nested(doc, keys...)
	s, _ := v.(string)
	return s
}

func nestedInt(doc map[string]any, keys ...string) int {
	switch v := nested(doc, keys...).(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func nested(doc map[string]any, keys ...string) any {
	var current any = doc
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}
