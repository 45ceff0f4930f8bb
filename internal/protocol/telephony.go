package protocol

import (
	"encoding/json"
	"fmt"
)

// TelephonyEvent is the `event` discriminant of a media stream frame.
type TelephonyEvent string

const (
	EventConnected TelephonyEvent = "connected"
	EventStart     TelephonyEvent = "start"
	EventMedia     TelephonyEvent = "media"
	EventStop      TelephonyEvent = "stop"
	EventMark      TelephonyEvent = "mark"
	EventDTMF      TelephonyEvent = "dtmf"
)

// TelephonyFrame is one decoded inbound media stream frame. The set of
// implementations is closed: ConnectedFrame, StartFrame, MediaFrame, StopFrame,
// MarkFrame, DTMFFrame and UnrecognizedFrame.
type TelephonyFrame interface {
	Event() TelephonyEvent
	telephonyFrame()
}

type ConnectedFrame struct {
	Protocol string `json:"protocol"`
	Version  string `json:"version"`
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type StartMetadata struct {
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
}

type StartFrame struct {
	SequenceNumber string        `json:"sequenceNumber"`
	Start          StartMetadata `json:"start"`
	StreamSID      string        `json:"streamSid"`
}

// StreamID prefers the stream id inside the start block, falling back to the envelope.
func (f StartFrame) StreamID() string {
	if f.Start.StreamSID != "" {
		return f.Start.StreamSID
	}
	return f.StreamSID
}

type MediaPayload struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

type MediaFrame struct {
	SequenceNumber string       `json:"sequenceNumber"`
	Media          MediaPayload `json:"media"`
	StreamSID      string       `json:"streamSid"`
}

type StopMetadata struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

type StopFrame struct {
	SequenceNumber string       `json:"sequenceNumber"`
	Stop           StopMetadata `json:"stop"`
	StreamSID      string       `json:"streamSid"`
}

type MarkFrame struct {
	SequenceNumber string `json:"sequenceNumber"`
	StreamSID      string `json:"streamSid"`
	Mark           struct {
		Name string `json:"name"`
	} `json:"mark"`
}

type DTMFFrame struct {
	SequenceNumber string `json:"sequenceNumber"`
	StreamSID      string `json:"streamSid"`
	DTMF           struct {
		Track string `json:"track"`
		Digit string `json:"digit"`
	} `json:"dtmf"`
}

// UnrecognizedFrame carries a frame whose event is unknown to this bridge.
type UnrecognizedFrame struct {
	Name string
	Raw  json.RawMessage
}

func (ConnectedFrame) Event() TelephonyEvent      { return EventConnected }
func (StartFrame) Event() TelephonyEvent          { return EventStart }
func (MediaFrame) Event() TelephonyEvent          { return EventMedia }
func (StopFrame) Event() TelephonyEvent           { return EventStop }
func (MarkFrame) Event() TelephonyEvent           { return EventMark }
func (DTMFFrame) Event() TelephonyEvent           { return EventDTMF }
func (f UnrecognizedFrame) Event() TelephonyEvent { return TelephonyEvent(f.Name) }

func (ConnectedFrame) telephonyFrame()    {}
func (StartFrame) telephonyFrame()        {}
func (MediaFrame) telephonyFrame()        {}
func (StopFrame) telephonyFrame()         {}
func (MarkFrame) telephonyFrame()         {}
func (DTMFFrame) telephonyFrame()         {}
func (UnrecognizedFrame) telephonyFrame() {}

type telephonyEnvelope struct {
	Event TelephonyEvent `json:"event"`
}

// ParseTelephonyFrame decodes one inbound frame. An error means the frame was
// not valid JSON for its variant; unknown events decode to UnrecognizedFrame.
func ParseTelephonyFrame(raw []byte) (TelephonyFrame, error) {
	var env telephonyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid telephony envelope: %w", err)
	}

	switch env.Event {
	case EventConnected:
		return decodeFrame[ConnectedFrame](raw)
	case EventStart:
		return decodeFrame[StartFrame](raw)
	case EventMedia:
		return decodeFrame[MediaFrame](raw)
	case EventStop:
		return decodeFrame[StopFrame](raw)
	case EventMark:
		return decodeFrame[MarkFrame](raw)
	case EventDTMF:
		return decodeFrame[DTMFFrame](raw)
	default:
		return UnrecognizedFrame{Name: string(env.Event), Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func decodeFrame[T TelephonyFrame](raw []byte) (TelephonyFrame, error) {
	var frame T
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("invalid %s frame: %w", frame.Event(), err)
	}
	return frame, nil
}

// OutboundMedia is the only frame the bridge writes to the telephony leg.
type OutboundMedia struct {
	Event     TelephonyEvent       `json:"event"`
	StreamSID string               `json:"streamSid"`
	Media     OutboundMediaPayload `json:"media"`
}

type OutboundMediaPayload struct {
	Payload string `json:"payload"`
}

func NewOutboundMedia(streamSID, payload string) OutboundMedia {
	return OutboundMedia{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     OutboundMediaPayload{Payload: payload},
	}
}
