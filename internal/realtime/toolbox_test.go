package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeMessageWithRequiredFieldsOnly(t *testing.T) {
	tb := NewToolbox()
	result := tb.Execute(ToolCall{
		Name:      "take_message",
		CallID:    "call_1",
		Arguments: ParseToolArguments(`{"caller_name":"Jane","message":"Call me back"}`),
	})

	assert.Equal(t, ToolOutput{Status: "success", Message: "Message recorded successfully"}, result.Output)
	require.NotNil(t, result.Message)
	assert.Equal(t, "Jane", result.Message.CallerName)
	assert.Equal(t, "Call me back", result.Message.Body)
	assert.Empty(t, result.Message.Urgency)
	assert.False(t, result.EndCall)
}

func TestTakeMessageMissingCallerNameIsToolError(t *testing.T) {
	result := NewToolbox().Execute(ToolCall{
		Name:      "take_message",
		Arguments: ParseToolArguments(`{"message":"Call me back"}`),
	})

	assert.Equal(t, ToolOutput{Status: "error", Message: "caller_name is required"}, result.Output)
	assert.Nil(t, result.Message)
}

func TestTakeMessageMissingMessageIsToolError(t *testing.T) {
	result := NewToolbox().Execute(ToolCall{
		Name:      "take_message",
		Arguments: ParseToolArguments(`{"caller_name":"Jane","message":"   "}`),
	})
	assert.Equal(t, "message is required", result.Output.Message)
}

func TestTakeMessageOptionalFields(t *testing.T) {
	tb := NewToolbox()
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tb.now = func() time.Time { return fixed }

	result := tb.Execute(ToolCall{
		Name: "take_message",
		Arguments: ParseToolArguments(`{"caller_name":"Jane","caller_company":"Acme","callback_number":5551234567,"message":"Renewal","urgency":"HIGH"}`),
	})
	require.NotNil(t, result.Message)
	assert.Equal(t, "Acme", result.Message.CallerCompany)
	assert.Equal(t, "5551234567", result.Message.CallbackNumber)
	assert.Equal(t, "high", result.Message.Urgency)
	assert.Equal(t, fixed, result.Message.TakenAt)

	result = tb.Execute(ToolCall{
		Name:      "take_message",
		Arguments: ParseToolArguments(`{"caller_name":"Jane","message":"Renewal","urgency":"asap"}`),
	})
	require.NotNil(t, result.Message)
	assert.Empty(t, result.Message.Urgency)
}

func TestEndCallRequestsClose(t *testing.T) {
	result := NewToolbox().Execute(ToolCall{Name: "end_call", Arguments: ParseToolArguments(`{"reason":"caller said goodbye"}`)})

	assert.Equal(t, ToolOutput{Status: "success", Message: "Call will end after your response"}, result.Output)
	assert.True(t, result.EndCall)
	assert.Equal(t, "caller said goodbye", result.EndReason)
}

func TestUnknownTool(t *testing.T) {
	result := NewToolbox().Execute(ToolCall{Name: "schedule_meeting"})
	assert.Equal(t, ToolOutput{Status: "error", Message: "Unknown tool: schedule_meeting"}, result.Output)
	assert.JSONEq(t, `{"status":"error","message":"Unknown tool: schedule_meeting"}`, result.Output.JSON())
}

func TestParseToolArgumentsFallsBackToEmpty(t *testing.T) {
	for _, raw := range []string{"", "not json", "[1,2]", "null", `"str"`} {
		args := ParseToolArguments(raw)
		require.NotNil(t, args, raw)
		assert.Empty(t, args, raw)
	}

	result := NewToolbox().Execute(ToolCall{Name: "take_message", Arguments: ParseToolArguments("{broken")})
	assert.Equal(t, "caller_name is required", result.Output.Message)
}
