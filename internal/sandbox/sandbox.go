// Package sandbox executes skill entry scripts in an isolated child process.
//
// The two-process split is the security boundary: untrusted code runs in a
// disposable child working on a throwaway copy of the bundle, never
// in-process with the auditor. The child is a small embedded Python shim
// that routes file writes, socket connects, and process spawns through an
// interception layer before any skill code runs.
package sandbox

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/skillfence/skillfence/internal/policy"
)

//go:embed runner.py
var runnerScript []byte

// ErrInterpreterUnavailable indicates no Python interpreter exists in PATH.
// Exec-mode probes cannot run without one; this is a fatal configuration
// error, not a finding.
var ErrInterpreterUnavailable = errors.New("python interpreter not found in PATH")

// InterpreterStatus is the result of the one-time capability probe for the
// sandbox runtime. Call sites branch on this value instead of retrying
// discovery.
type InterpreterStatus int

const (
	InterpreterUnavailable InterpreterStatus = iota
	InterpreterAvailable
)

// DetectInterpreter probes PATH for a usable Python interpreter.
func DetectInterpreter() (string, InterpreterStatus) {
	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, InterpreterAvailable
		}
	}
	return "", InterpreterUnavailable
}

// Violation is one denied attempt recorded inside the child process.
type Violation struct {
	Category string `json:"category"`
	Detail   string `json:"detail"`
}

// Payload is the child's structured result, printed as the last line of its
// stdout.
type Payload struct {
	Violations []Violation `json:"violations"`
	Returncode int         `json:"returncode"`
	Stdout     string      `json:"stdout"`
	Stderr     string      `json:"stderr"`
}

// Outcome is the parent-side view of one script execution.
type Outcome struct {
	Script   string
	TimedOut bool
	Payload  *Payload
	Stderr   string
}

const maxCapturedOutput = 64 * 1024

// Runner launches sandboxed executions for one policy. Construction fails
// when no interpreter is available so that callers surface the problem
// before any scanning work is discarded.
type Runner struct {
	pol         *policy.Policy
	interpreter string
	timeout     time.Duration
}

// NewRunner probes for an interpreter and binds the policy's execution
// parameters.
func NewRunner(pol *policy.Policy) (*Runner, error) {
	interp, status := DetectInterpreter()
	if status != InterpreterAvailable {
		return nil, ErrInterpreterUnavailable
	}
	timeout := time.Duration(pol.Probe.Timeout * float64(time.Second))
	if timeout <= 0 {
		timeout = time.Duration(policy.DefaultExecTimeout * float64(time.Second))
	}
	return &Runner{pol: pol, interpreter: interp, timeout: timeout}, nil
}

// Timeout returns the per-script wall-clock budget.
func (r *Runner) Timeout() time.Duration { return r.timeout }

// CollectTargets matches the policy's exec globs against the skill root and
// returns sorted, deduplicated bundle-relative script paths. Only Python
// sources are runnable; other matches are skipped.
func (r *Runner) CollectTargets(skillRoot string) ([]string, error) {
	seen := map[string]bool{}
	var targets []string
	err := filepath.WalkDir(skillRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(skillRoot, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !strings.EqualFold(path.Ext(rel), ".py") {
			return nil
		}
		matched := false
		for _, glob := range r.pol.Probe.ExecGlobs {
			if policy.GlobMatchSegments(glob, rel) {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}
		resolved, resolveErr := filepath.EvalSymlinks(p)
		if resolveErr != nil {
			resolved = p
		}
		if seen[resolved] {
			return nil
		}
		seen[resolved] = true
		targets = append(targets, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect exec targets: %w", err)
	}
	sort.Strings(targets)
	return targets, nil
}

// Execute copies the bundle into a fresh temporary root and runs one script
// in the child process under the wall-clock timeout. The copy is removed on
// every path. A timed-out run returns Outcome.TimedOut with no payload;
// process-launch failures return an error.
func (r *Runner) Execute(skillRoot, relScript string) (*Outcome, error) {
	tmp, err := os.MkdirTemp("", "skillfence-sandbox-")
	if err != nil {
		return nil, fmt.Errorf("sandbox temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	copyRoot := filepath.Join(tmp, "skill")
	if err := copyTree(skillRoot, copyRoot); err != nil {
		return nil, fmt.Errorf("copy bundle: %w", err)
	}
	shimPath := filepath.Join(tmp, "runner.py")
	if err := os.WriteFile(shimPath, runnerScript, 0o600); err != nil {
		return nil, fmt.Errorf("write sandbox shim: %w", err)
	}

	args := []string{shimPath, "--script", relScript, "--skill-root", copyRoot}
	for _, glob := range r.pol.WriteGlobs {
		args = append(args, "--write-allow", glob)
	}
	for _, host := range r.pol.NetworkHosts {
		args = append(args, "--network-allow", host)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	stdout := newTailBuffer(maxCapturedOutput)
	stderr := newTailBuffer(maxCapturedOutput)
	cmd := exec.CommandContext(ctx, r.interpreter, args...)
	cmd.Dir = copyRoot
	cmd.Env = minimalChildEnv(tmp)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return &Outcome{Script: relScript, TimedOut: true}, nil
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// Launch failure, not a script failure.
			return nil, fmt.Errorf("launch sandbox child: %w", runErr)
		}
	}

	outcome := &Outcome{Script: relScript, Stderr: strings.TrimSpace(stderr.String())}
	outcome.Payload = parseLastLine(stdout.String())
	return outcome, nil
}

// parseLastLine extracts the child's JSON payload. Application output may
// precede it on the same stream, so only the final non-empty line counts.
func parseLastLine(stdout string) *Payload {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var payload Payload
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			return nil
		}
		return &payload
	}
	return nil
}

// Hash returns the digest of the embedded shim, recorded in attestations so
// a result can be tied to the exact interception code that produced it.
func Hash() string {
	sum := sha256.Sum256(runnerScript)
	return hex.EncodeToString(sum[:])
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if d.Type()&fs.ModeSymlink != 0 {
			// Symlinks could point outside the copy; skip them.
			return nil
		}
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}

func minimalChildEnv(home string) []string {
	pathEnv := os.Getenv("PATH")
	if strings.TrimSpace(pathEnv) == "" {
		pathEnv = "/usr/bin:/bin"
	}
	return []string{
		"PATH=" + pathEnv,
		"HOME=" + home,
		"TMPDIR=" + home,
		"LANG=C.UTF-8",
		"LC_ALL=C.UTF-8",
		"HTTP_PROXY=",
		"HTTPS_PROXY=",
		"ALL_PROXY=",
		"NO_PROXY=*",
	}
}

// tailBuffer keeps the most recent maxBytes written to it. The child's result
// is the last stdout line, so when a script floods the stream it is the head
// that must be dropped, never the tail; a head-truncating cap would let a
// chatty script push the result line out of the capture window.
type tailBuffer struct {
	buf       []byte
	maxBytes  int
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{maxBytes: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.maxBytes {
		t.truncated = true
		t.buf = t.buf[len(t.buf)-t.maxBytes:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }

var _ io.Writer = (*tailBuffer)(nil)
