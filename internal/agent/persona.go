package agent

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultOwnerName is used when no owner is configured.
const DefaultOwnerName = "the owner"

var ErrMissingOwnerName = errors.New("agent persona owner name is required")

// Persona describes whose calls the assistant answers. It is a value and is
// never mutated once handed to a call.
type Persona struct {
	OwnerName           string
	Role                string
	AboutMe             string
	ShareEmail          string
	SpecialInstructions string
}

func (p Persona) Validate() error {
	if strings.TrimSpace(p.OwnerName) == "" {
		return ErrMissingOwnerName
	}
	return nil
}

// Normalized trims every field.
func (p Persona) Normalized() Persona {
	return Persona{
		OwnerName:           strings.TrimSpace(p.OwnerName),
		Role:                strings.TrimSpace(p.Role),
		AboutMe:             strings.TrimSpace(p.AboutMe),
		ShareEmail:          strings.TrimSpace(p.ShareEmail),
		SpecialInstructions: strings.TrimSpace(p.SpecialInstructions),
	}
}

// BuildInstructions renders the system prompt for the realtime session.
func BuildInstructions(p Persona) string {
	p = p.Normalized()
	owner := p.OwnerName
	description := owner
	if p.Role != "" {
		description = owner + ", " + p.Role
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an AI assistant answering calls on behalf of %s.\n\n", description)

	b.WriteString("## Opening\n")
	b.WriteString("In your FIRST response, always start by:\n")
	fmt.Fprintf(&b, "- Identifying yourself as %s's AI assistant\n", owner)
	b.WriteString("- Saying they're unavailable right now\n")
	b.WriteString("- Then addressing whatever the caller said or offering to help\n\n")
	fmt.Fprintf(&b, "Example first response: \"Hi, I'm %s's AI assistant. They're not available right now. [then respond to what the caller said or offer to take a message]\"\n\n", owner)

	b.WriteString("## Your Approach\n")
	b.WriteString("- Identify what type of caller this is (recruiter, client, sales, personal, etc.) based on context\n")
	b.WriteString("- Adapt your responses accordingly\n")
	b.WriteString("- Take messages: get their name, contact info, and reason for calling\n")
	b.WriteString("- Keep responses short and natural\n\n")

	b.WriteString("## Guidelines\n")
	b.WriteString("- Be friendly and professional\n")
	b.WriteString("- Confirm key details by repeating them back\n")
	fmt.Fprintf(&b, "- Don't make commitments on %s's behalf\n", owner)
	b.WriteString("- When the conversation is complete, say goodbye and use the end_call tool\n")

	if p.AboutMe != "" {
		fmt.Fprintf(&b, "\n## About %s\n", owner)
		b.WriteString(p.AboutMe)
		b.WriteString("\nUse this to answer relevant questions, but don't volunteer all of it unprompted.\n")
	}

	if p.ShareEmail != "" {
		b.WriteString("\n## Contact Info to Share\n")
		fmt.Fprintf(&b, "- Email: %s (share if asked or if caller needs to send information)\n", p.ShareEmail)
	} else {
		b.WriteString("\n## Contact Info\n")
		b.WriteString("- Don't share personal contact information. Take their contact info instead.\n")
	}

	if p.SpecialInstructions != "" {
		b.WriteString("\n## Special Instructions\n")
		b.WriteString(p.SpecialInstructions)
		b.WriteString("\n")
	}

	return b.String()
}

// BuildGreeting renders the suggested opening line.
func BuildGreeting(p Persona) string {
	return fmt.Sprintf(
		"Hi, this is %s's AI assistant. They're not available right now, but I can take a message or help answer questions. What can I do for you?",
		strings.TrimSpace(p.OwnerName),
	)
}

// OpeningTurn is the synthetic user turn that asks the model to greet a
// caller who just connected.
func OpeningTurn(p Persona) string {
	return "The caller just picked up. Greet them. Suggested greeting: " + BuildGreeting(p)
}
