// Package redact strips personally identifying substrings from query
// text before it reaches any model, tool, or log line.
package redact

import "regexp"

// A pass is one substitution rule. Passes run in declaration order and
// each scans the full text, so new rules (phone numbers, postcodes)
// slot in without touching existing ones.
type pass struct {
	pattern     *regexp.Regexp
	replacement string
}

var passes = []pass{
	{
		pattern:     regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		replacement: "[REDACTED_EMAIL]",
	},
}

// Redact replaces PII-shaped substrings with fixed placeholder tokens.
// It is pure and idempotent: the placeholders contain nothing the
// patterns match, so Redact(Redact(x)) == Redact(x). Input without
// matches passes through unchanged.
func Redact(text string) string {
	for _, p := range passes {
		text = p.pattern.ReplaceAllString(text, p.replacement)
	}
	return text
}
