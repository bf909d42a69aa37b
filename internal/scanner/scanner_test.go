package scanner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skillfence/skillfence/internal/policy"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func findCode(findings []Finding, code string) bool {
	for _, f := range findings {
		if f.Code == code {
			return true
		}
	}
	return false
}

func TestScanDetectsEgress(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"SKILL.md": "---\nname: x\ndescription: y\n---\n",
		"main.py":  "import requests\nrequests.get(\"https://evil.example/api\")\n",
		"fetch.js": "fetch('https://exfil.example/drop')\n",
		"get.sh":   "curl https://blocked.example/data\n",
	})
	res, err := Scan(root, &policy.Policy{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !findCode(res.Egress, "EGRESS_REQUESTS_CALL") {
		t.Errorf("requests call not detected: %+v", res.Egress)
	}
	if !findCode(res.Egress, "EGRESS_FETCH_CALL") {
		t.Errorf("fetch call not detected: %+v", res.Egress)
	}
	if !findCode(res.Egress, "EGRESS_CURL_HTTP") {
		t.Errorf("curl not detected: %+v", res.Egress)
	}
}

func TestScanAllowedHostProducesNoFinding(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"main.py": "requests.get(\"https://api.example.com/v1\")\n",
	})
	pol := &policy.Policy{NetworkHosts: []string{"api.example.com"}}
	res, err := Scan(root, pol)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(res.Egress) != 0 {
		t.Fatalf("allowed host flagged: %+v", res.Egress)
	}
}

func TestScanDetectsWrites(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"main.py": strings.Join([]string{
			`open("../outside.txt", "w").write("x")`,
			`open("/etc/cron.d/job", "w")`,
			`open("notes.txt", "w")`,
			`open("output/ok.csv", "w")`,
		}, "\n"),
	})
	pol := &policy.Policy{WriteGlobs: []string{"output/**"}}
	res, err := Scan(root, pol)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(res.Writes) != 3 {
		t.Fatalf("expected 3 write findings, got %d: %+v", len(res.Writes), res.Writes)
	}
	var traversal, absolute, denied bool
	for _, f := range res.Writes {
		switch {
		case strings.Contains(f.Message, "escapes skill root"):
			traversal = true
		case strings.Contains(f.Message, "absolute path"):
			absolute = true
		case strings.Contains(f.Message, "not covered by policy"):
			denied = true
		}
	}
	if !traversal || !absolute || !denied {
		t.Fatalf("missing write categories: traversal=%v absolute=%v denied=%v", traversal, absolute, denied)
	}
}

func TestScanDuplicateFindingsPreserved(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"a.py": "requests.get(\"https://dup.example/one\")\nrequests.get(\"https://dup.example/one\")\n",
	})
	res, err := Scan(root, &policy.Policy{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(res.Egress) != 2 {
		t.Fatalf("duplicates collapsed: %d findings", len(res.Egress))
	}
}

func TestScanReadAllowlist(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"docs/readme.md": "safe",
		"secret/key.py":  "requests.get(\"https://evil.example\")\n",
	})
	pol := &policy.Policy{ReadGlobs: []string{"docs/**"}}
	res, err := Scan(root, pol)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.FilesLoaded != 1 {
		t.Errorf("files loaded = %d, want 1", res.FilesLoaded)
	}
	if len(res.Notes) != 1 || !strings.Contains(res.Notes[0], "secret/key.py") {
		t.Errorf("notes = %+v", res.Notes)
	}
}

func TestScanSkipsBinaryAndExcludedDirs(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"data.bin":             string([]byte{0xff, 0xfe, 0x00, 0x01}),
		"node_modules/mod.js":  "fetch('https://evil.example')\n",
		"__pycache__/cache.py": "requests.get(\"https://evil.example\")\n",
	})
	res, err := Scan(root, &policy.Policy{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(res.Egress) != 0 {
		t.Fatalf("excluded content scanned: %+v", res.Egress)
	}
	if res.FilesLoaded != 1 {
		t.Fatalf("files loaded = %d, want 1 (binary counted, excluded dirs skipped)", res.FilesLoaded)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		rel  string
		want Language
	}{
		{"main.py", LangPython | LangText},
		{"lib/util.ts", LangJavaScript | LangText},
		{"run.sh", LangShell | LangText},
		{"tool.ps1", LangPowerShell | LangText},
		{"scripts/noext", langAllScripts | LangText},
		{"README.md", LangText},
	}
	for _, tc := range cases {
		if got := Classify(tc.rel); got != tc.want {
			t.Errorf("Classify(%q) = %b, want %b", tc.rel, got, tc.want)
		}
	}
}
