package models

import (
	"regexp"
	"strings"
)

var (
	reUnsafeName = regexp.MustCompile(`[^\w\s.-]`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// NormalizeCourseCode uppercases a course code and strips hyphens and spaces,
// so "ucs-503", "UCS 503" and "ucs503" all become "UCS503".
func NormalizeCourseCode(code string) string {
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return strings.ToUpper(code)
}

// PathSegment keeps a table cell from escaping its directory when used in a
// file name: path separators become hyphens and dot-only names are replaced.
func PathSegment(s string) string {
	s = strings.NewReplacer("/", "-", "\\", "-").Replace(strings.TrimSpace(s))
	if s == "." || s == ".." {
		return "_"
	}
	return s
}

// SanitizeName makes text safe for a file or directory name: characters
// outside word/space/dot/hyphen are dropped and whitespace runs become
// underscores. The result is never empty.
func SanitizeName(s string) string {
	s = strings.TrimSpace(reUnsafeName.ReplaceAllString(s, ""))
	s = reWhitespace.ReplaceAllString(s, "_")
	if s == "" {
		return "file"
	}
	return s
}
