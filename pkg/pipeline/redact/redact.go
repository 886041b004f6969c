package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" and "Token <key>" authorization values.
	authHeaderRe = regexp.MustCompile(`(?i)\b(Bearer|Token)\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|borg[_-]?api[_-]?key|twitter[_-]?token|gemini[_-]?api[_-]?key|bearer[_-]?token)\b\s*[:=]\s*[^\s"']+`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = authHeaderRe.ReplaceAllString(out, "$1 <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	return strings.TrimSpace(out)
}

// Truncate shortens s to at most max bytes, appending "..." when it cut anything.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
