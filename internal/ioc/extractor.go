// Package ioc extracts preliminary indicators of compromise from raw page
// content using fixed regex families. It is a pure function of the content
// and never calls the extraction collaborator.
package ioc

import (
	"regexp"
	"strings"
)

// DefaultConfidence is assigned to every regex-derived indicator. A later,
// higher-confidence source may overwrite it; a re-match never lowers it.
const DefaultConfidence = 0.6

// contextWindow is the number of bytes captured around a match.
const contextWindow = 80

// Indicator is a single extracted artifact.
type Indicator struct {
	Type       string
	Value      string
	Confidence float64
	Context    string
}

var patterns = []struct {
	iocType string
	re      *regexp.Regexp
}{
	{"cve", regexp.MustCompile(`\bCVE-\d{4}-\d{4,7}\b`)},
	{"ipv4", regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d{2}|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d{2}|[1-9]?\d)\b`)},
	{"ipv6", regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`)},
	{"email", regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)},
	{"sha256", regexp.MustCompile(`\b[a-fA-F0-9]{64}\b`)},
	{"sha1", regexp.MustCompile(`\b[a-fA-F0-9]{40}\b`)},
	{"md5", regexp.MustCompile(`\b[a-fA-F0-9]{32}\b`)},
	{"url", regexp.MustCompile(`\bhttps?://[^\s"'<>]+`)},
	{"domain", regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+(?:[a-zA-Z]{2,})\b`)},
}

// commonFileExtensions are domain-pattern matches that are almost always
// filenames, not hostnames.
var commonFileExtensions = map[string]bool{
	"exe": true, "dll": true, "zip": true, "rar": true, "doc": true,
	"docx": true, "xls": true, "xlsx": true, "pdf": true, "txt": true,
	"png": true, "jpg": true, "jpeg": true, "gif": true, "js": true,
	"css": true, "html": true, "htm": true, "php": true, "py": true,
	"sh": true, "bat": true, "ps1": true, "md": true,
}

// Extract scans content and returns indicators deduplicated by (type, value).
// Hash families are matched longest-first so a SHA-256 is not also reported
// as the MD5 of its prefix.
func Extract(content string) []Indicator {
	if content == "" {
		return nil
	}

	var out []Indicator
	seen := make(map[string]struct{})
	claimed := make([][2]int, 0) // spans already taken by an earlier family

	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(content, -1) {
			if overlapsAny(loc[0], loc[1], claimed) {
				continue
			}

			value := content[loc[0]:loc[1]]
			if p.iocType == "domain" && !plausibleDomain(value) {
				continue
			}

			key := p.iocType + "\x00" + strings.ToLower(value)
			if _, dup := seen[key]; dup {
				claimed = append(claimed, [2]int{loc[0], loc[1]})
				continue
			}
			seen[key] = struct{}{}
			claimed = append(claimed, [2]int{loc[0], loc[1]})

			out = append(out, Indicator{
				Type:       p.iocType,
				Value:      value,
				Confidence: DefaultConfidence,
				Context:    surrounding(content, loc[0], loc[1]),
			})
		}
	}

	return out
}

func overlapsAny(start, end int, spans [][2]int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}

// plausibleDomain filters out filename-like and version-like matches.
func plausibleDomain(v string) bool {
	parts := strings.Split(v, ".")
	if len(parts) < 2 {
		return false
	}
	tld := strings.ToLower(parts[len(parts)-1])
	if commonFileExtensions[tld] {
		return false
	}
	// Version strings such as 1.5.0 survive the regex only if the TLD part
	// is alphabetic, which digits are not, but be explicit anyway.
	for _, r := range tld {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func surrounding(content string, start, end int) string {
	from := start - contextWindow
	if from < 0 {
		from = 0
	}
	to := end + contextWindow
	if to > len(content) {
		to = len(content)
	}
	return strings.TrimSpace(content[from:to])
}
