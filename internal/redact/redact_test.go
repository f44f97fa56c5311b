package redact

import (
	"regexp"
	"strings"
	"testing"
)

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no pii", "Most deprived areas in Glasgow", "Most deprived areas in Glasgow"},
		{"empty", "", ""},
		{"plain email", "contact me at jo.bloggs@example.com please", "contact me at [REDACTED_EMAIL] please"},
		{"email with plus tag", "send to stats+simd@gov.scot", "send to [REDACTED_EMAIL]"},
		{"two emails", "a@b.co and c@d.org asked", "[REDACTED_EMAIL] and [REDACTED_EMAIL] asked"},
		{"bare at sign untouched", "meet @ the office", "meet @ the office"},
		{"single letter tld untouched", "not-an-email a@b.c here", "not-an-email a@b.c here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Redact(tt.in)
			if got != tt.want {
				t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRedactIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"no pii at all",
		"jo.bloggs@example.com",
		"first a@b.co then c@d.org",
		"[REDACTED_EMAIL] already clean",
	}

	for _, in := range inputs {
		once := Redact(in)
		twice := Redact(once)
		if once != twice {
			t.Errorf("Redact not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestRedactLeavesNoEmails(t *testing.T) {
	inputs := []string{
		"jo.bloggs@example.com",
		"mixed text with first.last@sub.domain.co.uk embedded",
		"UPPER@CASE.COM and lower@case.net",
	}

	for _, in := range inputs {
		got := Redact(in)
		if emailPattern.MatchString(got) {
			t.Errorf("Redact(%q) = %q still matches the email pattern", in, got)
		}
		if !strings.Contains(got, "[REDACTED_EMAIL]") {
			t.Errorf("Redact(%q) = %q lost the placeholder", in, got)
		}
	}
}
