package realtime

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/callbridge/internal/agent"
	"github.com/ent0n29/callbridge/internal/callrecord"
)

const (
	ToolStatusSuccess = "success"
	ToolStatusError   = "error"
)

// ToolCall is one model-issued function call.
type ToolCall struct {
	Name      string
	CallID    string
	Arguments map[string]any
}

// ToolOutput is the acknowledgment fed back into the conversation.
type ToolOutput struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (o ToolOutput) JSON() string {
	raw, err := json.Marshal(o)
	if err != nil {
		return `{"status":"error","message":"unencodable tool output"}`
	}
	return string(raw)
}

// ToolResult is the outcome of one tool call.
type ToolResult struct {
	Output ToolOutput
	// Message is set when take_message recorded something.
	Message *callrecord.Message
	// EndCall asks the connection to finish the current response and hang up.
	EndCall   bool
	EndReason string
}

// Toolbox executes the fixed tool catalog. It has no I/O of its own.
type Toolbox struct {
	now func() time.Time
}

func NewToolbox() *Toolbox {
	return &Toolbox{now: func() time.Time { return time.Now().UTC() }}
}

// ParseToolArguments decodes an arguments payload. Anything that is not a
// JSON object yields an empty, non-nil map.
func ParseToolArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil || decoded == nil {
		return args
	}
	return decoded
}

func (t *Toolbox) Execute(call ToolCall) ToolResult {
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	switch call.Name {
	case agent.ToolTakeMessage:
		return t.takeMessage(args)
	case agent.ToolEndCall:
		return ToolResult{
			Output:    ToolOutput{Status: ToolStatusSuccess, Message: "Call will end after your response"},
			EndCall:   true,
			EndReason: argString(args, "reason"),
		}
	default:
		return ToolResult{Output: ToolOutput{Status: ToolStatusError, Message: "Unknown tool: " + call.Name}}
	}
}

func (t *Toolbox) takeMessage(args map[string]any) ToolResult {
	for _, field := range []string{"caller_name", "message"} {
		if argString(args, field) == "" {
			return ToolResult{Output: ToolOutput{Status: ToolStatusError, Message: field + " is required"}}
		}
	}

	msg := callrecord.Message{
		CallerName:     argString(args, "caller_name"),
		CallerCompany:  argString(args, "caller_company"),
		CallbackNumber: argString(args, "callback_number"),
		Body:           argString(args, "message"),
		Urgency:        normalizeUrgency(argString(args, "urgency")),
		TakenAt:        t.now(),
	}
	return ToolResult{
		Output:  ToolOutput{Status: ToolStatusSuccess, Message: "Message recorded successfully"},
		Message: &msg,
	}
}

func normalizeUrgency(v string) string {
	v = strings.ToLower(v)
	for _, level := range agent.UrgencyLevels {
		if v == level {
			return v
		}
	}
	return ""
}

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
