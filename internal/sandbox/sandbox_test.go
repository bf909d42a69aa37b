package sandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/skillfence/skillfence/internal/policy"
)

// stubInterpreter installs a fake python3 in a fresh PATH so Runner tests do
// not depend on a real interpreter. The stub ignores the shim and prints a
// canned result line.
func stubInterpreter(t *testing.T, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	dir := t.TempDir()
	stub := filepath.Join(dir, "python3")
	content := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(stub, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir)
}

func writeSkill(t *testing.T, files map[string]string) string {
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

func testPolicy() *policy.Policy {
	return &policy.Policy{
		WriteGlobs: []string{"output/**"},
		Probe: policy.ProbeConfig{
			ExecGlobs: []string{"scripts/**/*.py", "*.py"},
			Timeout:   5,
		},
	}
}

func TestDetectInterpreterUnavailable(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	if _, status := DetectInterpreter(); status != InterpreterUnavailable {
		t.Fatal("expected unavailable with empty PATH")
	}
	if _, err := NewRunner(testPolicy()); err != ErrInterpreterUnavailable {
		t.Fatalf("NewRunner error = %v", err)
	}
}

func TestCollectTargets(t *testing.T) {
	stubInterpreter(t, "exit 0")
	root := writeSkill(t, map[string]string{
		"main.py":             "print()",
		"scripts/run.py":      "print()",
		"scripts/sub/deep.py": "print()",
		"scripts/data.txt":    "not python",
		"lib/helper.py":       "print()",
	})
	r, err := NewRunner(testPolicy())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	targets, err := r.CollectTargets(root)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	// "*.py" selects top-level scripts only; lib/helper.py matches no glob.
	want := []string{"main.py", "scripts/run.py", "scripts/sub/deep.py"}
	if len(targets) != len(want) {
		t.Fatalf("targets = %v, want %v", targets, want)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Fatalf("targets = %v, want %v", targets, want)
		}
	}
}

func TestExecuteParsesPayload(t *testing.T) {
	stubInterpreter(t, `echo 'application output'
echo '{"violations":[{"category":"network","detail":"socket connect to evil.example blocked"}],"returncode":1,"stdout":"hi","stderr":""}'`)
	root := writeSkill(t, map[string]string{"main.py": "print()"})

	r, err := NewRunner(testPolicy())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	outcome, err := r.Execute(root, "main.py")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.TimedOut {
		t.Fatal("unexpected timeout")
	}
	if outcome.Payload == nil {
		t.Fatal("payload not parsed")
	}
	if len(outcome.Payload.Violations) != 1 || outcome.Payload.Violations[0].Category != "network" {
		t.Fatalf("violations = %+v", outcome.Payload.Violations)
	}
	if outcome.Payload.Stdout != "hi" {
		t.Fatalf("stdout = %q", outcome.Payload.Stdout)
	}
}

func TestExecuteInvalidPayload(t *testing.T) {
	stubInterpreter(t, "echo 'not json at all'")
	root := writeSkill(t, map[string]string{"main.py": "print()"})

	r, err := NewRunner(testPolicy())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	outcome, err := r.Execute(root, "main.py")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Payload != nil {
		t.Fatalf("payload = %+v, want nil", outcome.Payload)
	}
}

func TestExecuteNoisyStdoutKeepsPayload(t *testing.T) {
	// A script flooding stdout must not push the result line out of the
	// capture window; only the head of the stream may be dropped.
	stubInterpreter(t, `i=0
while [ $i -lt 700 ]; do
  echo "noise noise noise noise noise noise noise noise noise noise noise noise 0123456789 0123456789"
  i=$((i+1))
done
echo '{"violations":[{"category":"network","detail":"socket connect to evil.example blocked"}],"returncode":1,"stdout":"","stderr":""}'`)
	root := writeSkill(t, map[string]string{"main.py": "print()"})

	r, err := NewRunner(testPolicy())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	outcome, err := r.Execute(root, "main.py")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Payload == nil {
		t.Fatal("payload lost behind noisy stdout")
	}
	if len(outcome.Payload.Violations) != 1 || outcome.Payload.Violations[0].Category != "network" {
		t.Fatalf("violations = %+v", outcome.Payload.Violations)
	}
}

func TestTailBufferKeepsMostRecentBytes(t *testing.T) {
	buf := newTailBuffer(8)
	for _, chunk := range []string{"aaaa", "bbbb", "cccc"} {
		if _, err := buf.Write([]byte(chunk)); err != nil {
			t.Fatal(err)
		}
	}
	if got := buf.String(); got != "bbbbcccc" {
		t.Fatalf("tail = %q", got)
	}
	if !buf.truncated {
		t.Fatal("truncation not recorded")
	}
}

func TestExecuteTimeout(t *testing.T) {
	// Busy loop on shell builtins: the stub PATH has no external commands.
	stubInterpreter(t, "while :; do :; done")
	root := writeSkill(t, map[string]string{"main.py": "print()"})

	pol := testPolicy()
	pol.Probe.Timeout = 0.2
	r, err := NewRunner(pol)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	outcome, err := r.Execute(root, "main.py")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !outcome.TimedOut {
		t.Fatal("expected timeout")
	}
	if outcome.Payload != nil {
		t.Fatal("timed-out run must not report a payload")
	}
}

func TestParseLastLine(t *testing.T) {
	payload := parseLastLine("noise\nmore noise\n{\"violations\":[],\"returncode\":0,\"stdout\":\"\",\"stderr\":\"\"}\n")
	if payload == nil || payload.Returncode != 0 {
		t.Fatalf("payload = %+v", payload)
	}
	if parseLastLine("") != nil {
		t.Fatal("empty stdout must yield nil payload")
	}
	if parseLastLine("garbage") != nil {
		t.Fatal("non-JSON final line must yield nil payload")
	}
}

func TestHashStable(t *testing.T) {
	if Hash() == "" || Hash() != Hash() {
		t.Fatal("shim hash must be non-empty and stable")
	}
}
