// Package redact masks credentials in free-form text before it is logged,
// persisted, streamed or embedded in an error.
package redact

import (
	"regexp"
	"strings"
)

const Mask = "***"

// The password runs to the last "@" before the host, so passwords holding
// "@" are masked whole.
var basicAuthPattern = regexp.MustCompile(`([A-Za-z][A-Za-z0-9+.\-]*://)([^/\s:@]+):([^/\s]+)@`)

type tokenPattern struct {
	prefix string
	re     *regexp.Regexp
}

// wordStart accepts what may precede the short "sk-" prefix: start of text,
// a non-alphanumeric, or an escaped \n, \r or \t from JSON output. Without
// it words like "task-" would be masked.
const wordStart = `(^|[^A-Za-z0-9]|\\[nrt])`

// token matches prefix+body anywhere. Its empty group keeps the replacement
// uniform with the anchored patterns.
func token(prefix string, body string) tokenPattern {
	return tokenPattern{prefix: prefix, re: regexp.MustCompile(`()` + regexp.QuoteMeta(prefix) + body)}
}

func anchoredToken(prefix string, body string) tokenPattern {
	return tokenPattern{prefix: prefix, re: regexp.MustCompile(wordStart + regexp.QuoteMeta(prefix) + body)}
}

// Longer prefixes sharing a stem come first so "sk-ant-" wins over "sk-".
var tokenPatterns = []tokenPattern{
	token("github_pat_", `[A-Za-z0-9_]{22,}`),
	token("ghp_", `[A-Za-z0-9]{36,}`),
	token("gho_", `[A-Za-z0-9]{36,}`),
	token("ghu_", `[A-Za-z0-9]{36,}`),
	token("ghs_", `[A-Za-z0-9]{36,}`),
	token("ghr_", `[A-Za-z0-9]{36,}`),
	token("glpat-", `[A-Za-z0-9_\-]{20,}`),
	token("sk-ant-", `[A-Za-z0-9_\-]{20,}`),
	token("sk-proj-", `[A-Za-z0-9_\-]{20,}`),
	anchoredToken("sk-", `[A-Za-z0-9]{20,}`),
	token("AIza", `[0-9A-Za-z_\-]{35}`),
}

// String strips URL basic-auth passwords and known token shapes from text.
// Applying it twice yields the same result as applying it once.
func String(text string) string {
	if text == "" {
		return text
	}
	if strings.Contains(text, "://") {
		text = basicAuthPattern.ReplaceAllString(text, "${1}${2}:"+Mask+"@")
	}
	for _, pattern := range tokenPatterns {
		if !strings.Contains(text, pattern.prefix) {
			continue
		}
		text = pattern.re.ReplaceAllString(text, "${1}"+pattern.prefix+Mask)
	}
	return text
}

// Lines redacts each line and returns a new slice.
func Lines(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = String(line)
	}
	return out
}

// Error returns the redacted message of err, or "" for nil.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
