package scanner

import "regexp"

// Language classification for pattern selection. A file may match several
// classes (scripts of unknown extension are candidate sources for all of
// them), so classes combine as a bitmask.
type Language uint8

const (
	LangText Language = 1 << iota
	LangPython
	LangJavaScript
	LangShell
	LangPowerShell

	langAllScripts = LangPython | LangJavaScript | LangShell | LangPowerShell
)

type patternDef struct {
	code  string
	langs Language
	re    *regexp.Regexp
}

// Egress patterns capture the target URL in the "url" group.
var egressPatterns = []patternDef{
	{"curl_http", LangShell | LangText, regexp.MustCompile("\\bcurl\\s+(?:-[A-Za-z-]+\\s+)*(?P<url>https?://[^\\s'\"`]+)")},
	{"wget_http", LangShell | LangText, regexp.MustCompile("\\bwget\\s+(?:-[A-Za-z-]+\\s+)*(?P<url>https?://[^\\s'\"`]+)")},
	{"requests_call", LangPython, regexp.MustCompile(`requests\.(?:get|post|put|delete|patch|head)\(\s*['"](?P<url>https?://[^'"]+)`)},
	{"urllib_urlopen", LangPython, regexp.MustCompile(`urlopen\(\s*['"](?P<url>https?://[^'"]+)`)},
	{"httpx_client", LangPython, regexp.MustCompile(`httpx\.\w+\(\s*['"](?P<url>https?://[^'"]+)`)},
	{"fetch_call", LangJavaScript, regexp.MustCompile(`\bfetch\(\s*['"](?P<url>https?://[^'"]+)`)},
	{"axios_call", LangJavaScript, regexp.MustCompile(`\baxios(?:\.\w+)?\(\s*['"](?P<url>https?://[^'"]+)`)},
	{"node_http_request", LangJavaScript, regexp.MustCompile(`\bhttps?\.(?:get|request)\(\s*['"](?P<url>https?://[^'"]+)`)},
	{"powershell_webrequest", LangPowerShell, regexp.MustCompile(`(?i)Invoke-(?:WebRequest|RestMethod)\s+(?:-Uri\s+)?['"]?(?P<url>https?://[^\s'"]+)`)},
}

// Write patterns capture the destination path in the "path" group.
var writePatterns = []patternDef{
	{"open_write", LangPython, regexp.MustCompile(`open\(\s*['"](?P<path>[^'"]+)['"],\s*['"][wax]`)},
	{"path_write_text", LangPython, regexp.MustCompile(`Path\(\s*['"](?P<path>[^'"]+)['"]\)\.write_text`)},
	{"path_write_bytes", LangPython, regexp.MustCompile(`Path\(\s*['"](?P<path>[^'"]+)['"]\)\.write_bytes`)},
	{"os_remove", LangPython, regexp.MustCompile(`os\.remove\(\s*['"](?P<path>[^'"]+)['"]\)`)},
	{"fs_write_file", LangJavaScript, regexp.MustCompile(`\bfs\.(?:writeFile|writeFileSync|appendFile|appendFileSync)\(\s*['"](?P<path>[^'"]+)['"]`)},
	// Redirections only flag targets that name a directory explicitly;
	// bare filenames produce too much noise in docs.
	{"shell_redirect", LangShell | LangText, regexp.MustCompile(`>{1,2}\s*['"]?(?P<path>(?:/|\.\.?/)[^\s;|&'"]+)`)},
	{"powershell_outfile", LangPowerShell, regexp.MustCompile(`(?i)(?:Out-File|Set-Content|Add-Content)\s+(?:-(?:File)?Path\s+)?['"]?(?P<path>[^\s'"]+)`)},
}

var extLanguages = map[string]Language{
	".py":   LangPython,
	".pyw":  LangPython,
	".js":   LangJavaScript,
	".mjs":  LangJavaScript,
	".cjs":  LangJavaScript,
	".ts":   LangJavaScript,
	".sh":   LangShell,
	".bash": LangShell,
	".zsh":  LangShell,
	".ps1":  LangPowerShell,
	".psm1": LangPowerShell,
}

// captureGroup returns the named group's text for a match slice.
func captureGroup(def patternDef, match []string, name string) string {
	idx := def.re.SubexpIndex(name)
	if idx < 0 || idx >= len(match) {
		return ""
	}
	return match[idx]
}
