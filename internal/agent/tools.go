package agent

import "github.com/ent0n29/callbridge/internal/protocol"

const (
	ToolTakeMessage = "take_message"
	ToolEndCall     = "end_call"
)

// Urgency levels accepted by take_message.
var UrgencyLevels = []string{"low", "medium", "high"}

// Tools returns the fixed tool catalog announced to the realtime session.
func Tools() []protocol.ToolDefinition {
	return []protocol.ToolDefinition{
		{
			Type:        "function",
			Name:        ToolTakeMessage,
			Description: "Record a message from the caller to be delivered to the owner",
			Parameters: protocol.ToolParameters{
				Type: "object",
				Properties: map[string]protocol.ToolProperty{
					"caller_name":     {Type: "string", Description: "Name of the person calling"},
					"caller_company":  {Type: "string", Description: "Company the caller represents (if any)"},
					"callback_number": {Type: "string", Description: "Phone number to call back"},
					"message":         {Type: "string", Description: "The message content"},
					"urgency": {
						Type:        "string",
						Description: "How urgent is this message",
						Enum:        append([]string(nil), UrgencyLevels...),
					},
				},
				Required: []string{"caller_name", "message"},
			},
		},
		{
			Type:        "function",
			Name:        ToolEndCall,
			Description: "End the call politely after the conversation is complete",
			Parameters: protocol.ToolParameters{
				Type: "object",
				Properties: map[string]protocol.ToolProperty{
					"reason": {Type: "string", Description: "Reason for ending the call"},
				},
			},
		},
	}
}
