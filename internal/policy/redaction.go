package policy

import (
	"regexp"
	"strings"

	"github.com/ent0n29/callbridge/internal/callrecord"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Cards before phones, otherwise a card number matches the phone pattern.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// MaskPhone keeps the country prefix and last four digits of a number.
func MaskPhone(number string) string {
	number = strings.TrimSpace(number)
	if len(number) <= 6 {
		return strings.Repeat("*", len(number))
	}
	head := 2
	if !strings.HasPrefix(number, "+") {
		head = 1
	}
	return number[:head] + strings.Repeat("*", len(number)-head-4) + number[len(number)-4:]
}

// Redactor applies RedactPII to log output when enabled.
type Redactor struct {
	enabled bool
}

func NewRedactor(enabled bool) Redactor {
	return Redactor{enabled: enabled}
}

func (r Redactor) Enabled() bool { return r.enabled }

func (r Redactor) Text(s string) string {
	if !r.enabled {
		return s
	}
	out, _ := RedactPII(s)
	return out
}

func (r Redactor) Phone(number string) string {
	if !r.enabled || number == "" {
		return number
	}
	return MaskPhone(number)
}

// Message returns a copy of m safe to log. The stored record is untouched.
func (r Redactor) Message(m callrecord.Message) callrecord.Message {
	if !r.enabled {
		return m
	}
	m.CallbackNumber = r.Phone(m.CallbackNumber)
	m.Body = r.Text(m.Body)
	m.CallerCompany = r.Text(m.CallerCompany)
	return m
}
