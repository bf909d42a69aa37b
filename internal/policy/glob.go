package policy

import (
	"regexp"
	"strings"
	"sync"
)

// GlobMatch matches name against an fnmatch-style glob: '*' spans any run of
// characters including separators, '?' matches one character, '[...]' is a
// character class. Invalid patterns never match.
func GlobMatch(pattern, name string) bool {
	re, err := compileGlob(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(name)
}

// GlobMatchSegments matches a slash-separated path against a glob where '*'
// and '?' stop at separators and only a bare '**' segment spans directories.
// Used for exec-target selection, where "*.py" must mean top-level scripts
// only; host and filesystem policy globs keep the spanning GlobMatch above.
func GlobMatchSegments(pattern, name string) bool {
	re, err := compileSegmentGlob(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(name)
}

var (
	globMu    sync.Mutex
	globCache = map[string]*regexp.Regexp{}

	segmentMu    sync.Mutex
	segmentCache = map[string]*regexp.Regexp{}
)

func compileGlob(pattern string) (*regexp.Regexp, error) {
	globMu.Lock()
	re, ok := globCache[pattern]
	globMu.Unlock()
	if ok {
		return re, nil
	}
	var b strings.Builder
	b.WriteString(`(?s)^`)
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			// Consecutive stars collapse; each spans separators too.
			for i+1 < len(pattern) && pattern[i+1] == '*' {
				i++
			}
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				b.WriteString(regexp.QuoteMeta(string(c)))
				continue
			}
			class := pattern[i+1 : i+1+end]
			i += end + 1
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString(`$`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	globMu.Lock()
	globCache[pattern] = re
	globMu.Unlock()
	return re, nil
}

func compileSegmentGlob(pattern string) (*regexp.Regexp, error) {
	segmentMu.Lock()
	re, ok := segmentCache[pattern]
	segmentMu.Unlock()
	if ok {
		return re, nil
	}
	segments := strings.Split(pattern, "/")
	var b strings.Builder
	b.WriteString(`^`)
	for i, segment := range segments {
		last := i == len(segments)-1
		if segment == "**" {
			if last {
				b.WriteString(`.*`)
			} else {
				// Zero or more whole directory segments.
				b.WriteString(`(?:[^/]+/)*`)
			}
			continue
		}
		translateSegment(&b, segment)
		if !last {
			b.WriteString(`/`)
		}
	}
	b.WriteString(`$`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	segmentMu.Lock()
	segmentCache[pattern] = re
	segmentMu.Unlock()
	return re, nil
}

// translateSegment emits the regexp for one path segment: wildcards here
// never cross a separator.
func translateSegment(b *strings.Builder, segment string) {
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		switch c {
		case '*':
			for i+1 < len(segment) && segment[i+1] == '*' {
				i++
			}
			b.WriteString(`[^/]*`)
		case '?':
			b.WriteString(`[^/]`)
		case '[':
			end := strings.IndexByte(segment[i+1:], ']')
			if end < 0 {
				b.WriteString(regexp.QuoteMeta(string(c)))
				continue
			}
			class := segment[i+1 : i+1+end]
			i += end + 1
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
}
