package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRealtimeEventAudioDelta(t *testing.T) {
	evt, err := ParseRealtimeEvent([]byte(`{"type":"response.audio.delta","response_id":"r1","delta":"AAEC"}`))
	require.NoError(t, err)

	delta, ok := evt.(AudioDelta)
	require.True(t, ok, "event type = %T", evt)
	assert.Equal(t, "AAEC", delta.Delta)
}

func TestParseRealtimeEventFunctionCall(t *testing.T) {
	raw := `{"type":"response.function_call_arguments.done","name":"take_message","call_id":"call_1","arguments":"{\"caller_name\":\"Jane\"}"}`
	evt, err := ParseRealtimeEvent([]byte(raw))
	require.NoError(t, err)

	call, ok := evt.(FunctionCallArgumentsDone)
	require.True(t, ok)
	assert.Equal(t, "take_message", call.Name)
	assert.Equal(t, "call_1", call.CallID)
	assert.Equal(t, `{"caller_name":"Jane"}`, call.Arguments)
}

func TestParseRealtimeEventResponseDone(t *testing.T) {
	withTool, err := ParseRealtimeEvent([]byte(`{"type":"response.done","response":{"id":"r1","status":"completed","output":[{"id":"i1","type":"function_call","name":"end_call"}]}}`))
	require.NoError(t, err)
	assert.True(t, withTool.(ResponseDone).HasFunctionCall())

	spoken, err := ParseRealtimeEvent([]byte(`{"type":"response.done","response":{"id":"r2","status":"completed","output":[{"id":"i2","type":"message"}]}}`))
	require.NoError(t, err)
	assert.False(t, spoken.(ResponseDone).HasFunctionCall())

	bare, err := ParseRealtimeEvent([]byte(`{"type":"response.done"}`))
	require.NoError(t, err)
	assert.False(t, bare.(ResponseDone).HasFunctionCall())
}

func TestParseRealtimeEventTranscripts(t *testing.T) {
	evt, err := ParseRealtimeEvent([]byte(`{"type":"response.audio_transcript.done","transcript":"Goodbye!"}`))
	require.NoError(t, err)
	assert.Equal(t, "Goodbye!", evt.(AssistantTranscriptDone).Transcript)

	evt, err = ParseRealtimeEvent([]byte(`{"type":"conversation.item.input_audio_transcription.completed","item_id":"i1","transcript":"Hello?"}`))
	require.NoError(t, err)
	assert.Equal(t, "Hello?", evt.(InputTranscriptionCompleted).Transcript)
}

func TestParseRealtimeEventError(t *testing.T) {
	evt, err := ParseRealtimeEvent([]byte(`{"type":"error","error":{"type":"invalid_request_error","code":"invalid_value","message":"bad"}}`))
	require.NoError(t, err)

	e, ok := evt.(ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "invalid_value", e.Error.Code)
}

func TestParseRealtimeEventBookkeepingIsIgnored(t *testing.T) {
	for _, typ := range []string{"response.created", "rate_limits.updated", "input_audio_buffer.speech_started"} {
		evt, err := ParseRealtimeEvent([]byte(`{"type":"` + typ + `"}`))
		require.NoError(t, err)
		assert.Equal(t, IgnoredEvent{Type: typ}, evt)
	}
}

func TestParseRealtimeEventUnknownTypeIsUnrecognized(t *testing.T) {
	raw := []byte(`{"type":"response.brand_new","x":1}`)
	evt, err := ParseRealtimeEvent(raw)
	require.NoError(t, err)

	unknown, ok := evt.(UnrecognizedEvent)
	require.True(t, ok)
	assert.Equal(t, "response.brand_new", unknown.EventType())
	assert.JSONEq(t, string(raw), string(unknown.Raw))
}

func TestParseRealtimeEventRejectsInvalidJSON(t *testing.T) {
	_, err := ParseRealtimeEvent([]byte(`not json`))
	require.Error(t, err)
}

func TestClientMessagesWireShape(t *testing.T) {
	raw, err := json.Marshal(NewUserTextItem("The caller just picked up. Greet them."))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"conversation.item.create","item":{"type":"message","role":"user","content":[{"type":"input_text","text":"The caller just picked up. Greet them."}]}}`, string(raw))

	raw, err = json.Marshal(NewFunctionCallOutput("call_1", `{"status":"success"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"conversation.item.create","item":{"type":"function_call_output","call_id":"call_1","output":"{\"status\":\"success\"}"}}`, string(raw))

	raw, err = json.Marshal(NewResponseCreate())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"response.create"}`, string(raw))

	raw, err = json.Marshal(NewAudioAppend("AAEC"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"input_audio_buffer.append","audio":"AAEC"}`, string(raw))
}

func TestSessionUpdateCarriesAudioFormats(t *testing.T) {
	msg := NewSessionUpdate(SessionConfig{
		Instructions:      "be brief",
		Voice:             "verse",
		Modalities:        []string{"text", "audio"},
		TurnDetection:     &TurnDetection{Type: "server_vad", Threshold: 0.5},
		InputAudioFormat:  AudioFormatG711ULaw,
		OutputAudioFormat: AudioFormatG711ULaw,
	})
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, TypeSessionUpdate, decoded["type"])
	session := decoded["session"].(map[string]any)
	assert.Equal(t, "g711_ulaw", session["input_audio_format"])
	assert.Equal(t, "g711_ulaw", session["output_audio_format"])
	assert.Equal(t, "server_vad", session["turn_detection"].(map[string]any)["type"])
}
