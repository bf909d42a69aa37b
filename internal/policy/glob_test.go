package policy

import "testing"

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"*.py", "main.py", true},
		{"*.py", "main.js", false},
		{"scripts/**/*.py", "scripts/tools/run.py", true},
		{"scripts/*.py", "scripts/deep/run.py", true},
		{"api.example.com", "api.example.com", true},
		{"*.example.com", "api.example.com", true},
		{"*.example.com", "example.com", false},
		{"https://*.example.com", "https://api.example.com", true},
		{"file?.txt", "file1.txt", true},
		{"file?.txt", "file12.txt", false},
		{"[abc].txt", "b.txt", true},
		{"[!abc].txt", "b.txt", false},
		{"output/**", "output/a/b/c.bin", true},
	}
	for _, tc := range cases {
		if got := GlobMatch(tc.pattern, tc.name); got != tc.want {
			t.Errorf("GlobMatch(%q, %q) = %v, want %v", tc.pattern, tc.name, got, tc.want)
		}
	}
}

func TestGlobMatchSegments(t *testing.T) {
	cases := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"*.py", "main.py", true},
		{"*.py", "lib/helper.py", false},
		{"scripts/*.py", "scripts/run.py", true},
		{"scripts/*.py", "scripts/sub/deep.py", false},
		{"scripts/**/*.py", "scripts/run.py", true},
		{"scripts/**/*.py", "scripts/sub/deep.py", true},
		{"scripts/**/*.py", "other/run.py", false},
		{"**/*.py", "a/b/c.py", true},
		{"**/*.py", "top.py", true},
		{"output/**", "output/a/b/c.bin", true},
		{"run?.py", "run1.py", true},
		{"run?.py", "run/a.py", false},
		{"[abc].py", "b.py", true},
	}
	for _, tc := range cases {
		if got := GlobMatchSegments(tc.pattern, tc.name); got != tc.want {
			t.Errorf("GlobMatchSegments(%q, %q) = %v, want %v", tc.pattern, tc.name, got, tc.want)
		}
	}
}

func TestGlobMatchInvalidClass(t *testing.T) {
	if GlobMatch("[", "[") {
		// An unterminated class must not panic and must not over-match.
		t.Log("unterminated class matched literally")
	}
}
