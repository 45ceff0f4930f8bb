package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ent0n29/callbridge/internal/callrecord"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	assert.True(t, changed)
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		assert.Contains(t, out, marker)
	}
	assert.NotContains(t, out, "sam@example.com")
}

func TestRedactPIILeavesPlainTextAlone(t *testing.T) {
	out, changed := RedactPII("Please ask Dana to call me back tomorrow.")
	assert.False(t, changed)
	assert.Equal(t, "Please ask Dana to call me back tomorrow.", out)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+1******4567", MaskPhone("+15551234567"))
	assert.Equal(t, "5*****4567", MaskPhone("5551234567"))
	assert.Equal(t, "****", MaskPhone("1234"))
}

func TestRedactorMessage(t *testing.T) {
	m := callrecord.Message{
		CallerName:     "Jane",
		CallbackNumber: "+15551234567",
		Body:           "reach me at jane@example.com",
	}

	redacted := NewRedactor(true).Message(m)
	assert.Equal(t, "Jane", redacted.CallerName)
	assert.Equal(t, "+1******4567", redacted.CallbackNumber)
	assert.Equal(t, "reach me at [REDACTED_EMAIL]", redacted.Body)
	assert.Equal(t, "+15551234567", m.CallbackNumber)

	assert.Equal(t, m, NewRedactor(false).Message(m))
}
