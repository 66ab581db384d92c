// Package redact strips credentials from text before it is persisted or logged.
package redact

import "regexp"

// Placeholder replaces every secret found.
const Placeholder = "[REDACTED]"

var (
	googleKeyPattern = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{30,}`)
	bearerPattern    = regexp.MustCompile(`(?i)\b(bearer)\s+[A-Za-z0-9._~+/=\-]+`)
	keyValuePattern  = regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?key|access[_-]?token|token|secret|password|passwd|pwd|key|auth)(\s*[=:]\s*)("[^"]*"|'[^']*'|[^\s&,;]+)`)
	userInfoPattern  = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.\-]*://)[^/\s:@]+(:[^/\s@]*)?@`)
	longTokenPattern = regexp.MustCompile(`\b[A-Za-z0-9_\-]{40,}\b`)
)

// String returns s with API keys, bearer tokens, key=value secrets, URL user-info
// and long opaque tokens replaced by Placeholder.
func String(s string) string {
	if s == "" {
		return s
	}
	s = googleKeyPattern.ReplaceAllString(s, Placeholder)
	s = bearerPattern.ReplaceAllString(s, "$1 "+Placeholder)
	s = keyValuePattern.ReplaceAllString(s, "$1$2"+Placeholder)
	s = userInfoPattern.ReplaceAllString(s, "${1}"+Placeholder+"@")
	// uuids and gen_ ids are shorter than 40 characters and survive
	return longTokenPattern.ReplaceAllString(s, Placeholder)
}

// Message returns the redacted text of err, or "" for a nil error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
