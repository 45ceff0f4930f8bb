package protocol

import (
	"encoding/json"
	"fmt"
)

// Client → server message types.
const (
	TypeSessionUpdate          = "session.update"
	TypeConversationItemCreate = "conversation.item.create"
	TypeResponseCreate         = "response.create"
	TypeInputAudioBufferAppend = "input_audio_buffer.append"
)

// Server → client event types consumed by the bridge.
const (
	TypeSessionCreated              = "session.created"
	TypeSessionUpdated              = "session.updated"
	TypeResponseAudioDelta          = "response.audio.delta"
	TypeResponseAudioTranscriptDone = "response.audio_transcript.done"
	TypeInputTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeFunctionCallArgumentsDone   = "response.function_call_arguments.done"
	TypeResponseDone                = "response.done"
	TypeError                       = "error"
)

// Bookkeeping events that arrive at high frequency and carry nothing the
// bridge acts on.
var ignoredRealtimeTypes = map[string]struct{}{
	"response.created":                                  {},
	"response.output_item.added":                        {},
	"response.output_item.done":                         {},
	"response.content_part.added":                       {},
	"response.content_part.done":                        {},
	"response.audio.done":                               {},
	"response.audio_transcript.delta":                   {},
	"response.text.delta":                               {},
	"response.text.done":                                {},
	"response.function_call_arguments.delta":            {},
	"conversation.item.created":                         {},
	"input_audio_buffer.speech_started":                 {},
	"input_audio_buffer.speech_stopped":                 {},
	"input_audio_buffer.committed":                      {},
	"rate_limits.updated":                               {},
	"conversation.item.input_audio_transcription.delta": {},
}

// IsIgnoredRealtimeType reports whether t belongs to the documented set of
// accepted-but-ignored server events.
func IsIgnoredRealtimeType(t string) bool {
	_, ok := ignoredRealtimeTypes[t]
	return ok
}

type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
}

type InputAudioTranscription struct {
	Model string `json:"model"`
}

type ToolParameters struct {
	Type       string                  `json:"type"`
	Properties map[string]ToolProperty `json:"properties"`
	Required   []string                `json:"required,omitempty"`
}

type ToolProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type ToolDefinition struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

type SessionConfig struct {
	Instructions            string                   `json:"instructions"`
	Tools                   []ToolDefinition         `json:"tools"`
	Voice                   string                   `json:"voice,omitempty"`
	Modalities              []string                 `json:"modalities,omitempty"`
	TurnDetection           *TurnDetection           `json:"turn_detection"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription"`
	InputAudioFormat        string                   `json:"input_audio_format"`
	OutputAudioFormat       string                   `json:"output_audio_format"`
}

type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type ConversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
}

type ConversationItemCreate struct {
	Type string           `json:"type"`
	Item ConversationItem `json:"item"`
}

type ResponseCreate struct {
	Type string `json:"type"`
}

type InputAudioBufferAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func NewSessionUpdate(cfg SessionConfig) SessionUpdate {
	return SessionUpdate{Type: TypeSessionUpdate, Session: cfg}
}

// NewUserTextItem builds a user message item carrying one input_text part.
func NewUserTextItem(text string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: TypeConversationItemCreate,
		Item: ConversationItem{
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

func NewFunctionCallOutput(callID, output string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: TypeConversationItemCreate,
		Item: ConversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

func NewResponseCreate() ResponseCreate {
	return ResponseCreate{Type: TypeResponseCreate}
}

func NewAudioAppend(audio string) InputAudioBufferAppend {
	return InputAudioBufferAppend{Type: TypeInputAudioBufferAppend, Audio: audio}
}

// RealtimeEvent is one decoded server event. The set of implementations is
// closed; see ParseRealtimeEvent.
type RealtimeEvent interface {
	EventType() string
	realtimeEvent()
}

type SessionCreated struct{}

type SessionUpdated struct{}

type AudioDelta struct {
	ResponseID string `json:"response_id"`
	Delta      string `json:"delta"`
}

type AssistantTranscriptDone struct {
	Transcript string `json:"transcript"`
}

type InputTranscriptionCompleted struct {
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

type FunctionCallArgumentsDone struct {
	ResponseID string `json:"response_id"`
	Name       string `json:"name"`
	CallID     string `json:"call_id"`
	Arguments  string `json:"arguments"`
}

type ResponseOutputItem struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type ResponseBody struct {
	ID     string               `json:"id"`
	Status string               `json:"status"`
	Output []ResponseOutputItem `json:"output"`
}

type ResponseDone struct {
	Response ResponseBody `json:"response"`
}

// HasFunctionCall reports whether the finished response requested a tool.
func (r ResponseDone) HasFunctionCall() bool {
	for _, item := range r.Response.Output {
		if item.Type == "function_call" {
			return true
		}
	}
	return false
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	EventID string `json:"event_id,omitempty"`
}

type ErrorEvent struct {
	Error ErrorDetail `json:"error"`
}

// IgnoredEvent is a documented bookkeeping event.
type IgnoredEvent struct {
	Type string
}

// UnrecognizedEvent carries an event type the bridge does not know.
type UnrecognizedEvent struct {
	Type string
	Raw  json.RawMessage
}

func (SessionCreated) EventType() string              { return TypeSessionCreated }
func (SessionUpdated) EventType() string              { return TypeSessionUpdated }
func (AudioDelta) EventType() string                  { return TypeResponseAudioDelta }
func (AssistantTranscriptDone) EventType() string     { return TypeResponseAudioTranscriptDone }
func (InputTranscriptionCompleted) EventType() string { return TypeInputTranscriptionCompleted }
func (FunctionCallArgumentsDone) EventType() string   { return TypeFunctionCallArgumentsDone }
func (ResponseDone) EventType() string                { return TypeResponseDone }
func (ErrorEvent) EventType() string                  { return TypeError }
func (e IgnoredEvent) EventType() string              { return e.Type }
func (e UnrecognizedEvent) EventType() string         { return e.Type }

func (SessionCreated) realtimeEvent()              {}
func (SessionUpdated) realtimeEvent()              {}
func (AudioDelta) realtimeEvent()                  {}
func (AssistantTranscriptDone) realtimeEvent()     {}
func (InputTranscriptionCompleted) realtimeEvent() {}
func (FunctionCallArgumentsDone) realtimeEvent()   {}
func (ResponseDone) realtimeEvent()                {}
func (ErrorEvent) realtimeEvent()                  {}
func (IgnoredEvent) realtimeEvent()                {}
func (UnrecognizedEvent) realtimeEvent()           {}

type realtimeEnvelope struct {
	Type string `json:"type"`
}

// ParseRealtimeEvent decodes one server event.
func ParseRealtimeEvent(raw []byte) (RealtimeEvent, error) {
	var env realtimeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid realtime envelope: %w", err)
	}

	switch env.Type {
	case TypeSessionCreated:
		return SessionCreated{}, nil
	case TypeSessionUpdated:
		return SessionUpdated{}, nil
	case TypeResponseAudioDelta:
		return decodeEvent[AudioDelta](raw)
	case TypeResponseAudioTranscriptDone:
		return decodeEvent[AssistantTranscriptDone](raw)
	case TypeInputTranscriptionCompleted:
		return decodeEvent[InputTranscriptionCompleted](raw)
	case TypeFunctionCallArgumentsDone:
		return decodeEvent[FunctionCallArgumentsDone](raw)
	case TypeResponseDone:
		return decodeEvent[ResponseDone](raw)
	case TypeError:
		return decodeEvent[ErrorEvent](raw)
	}
	if IsIgnoredRealtimeType(env.Type) {
		return IgnoredEvent{Type: env.Type}, nil
	}
	return UnrecognizedEvent{Type: env.Type, Raw: append(json.RawMessage(nil), raw...)}, nil
}

func decodeEvent[T RealtimeEvent](raw []byte) (RealtimeEvent, error) {
	var evt T
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("invalid %s event: %w", evt.EventType(), err)
	}
	return evt, nil
}
