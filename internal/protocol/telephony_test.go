package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTelephonyFrameStart(t *testing.T) {
	raw := []byte(`{"event":"start","sequenceNumber":"1","start":{"streamSid":"MZ1","accountSid":"AC1","callSid":"CA1","tracks":["inbound"],"customParameters":{"caller":"+15550001"},"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1}},"streamSid":"MZ1"}`)

	frame, err := ParseTelephonyFrame(raw)
	require.NoError(t, err)

	start, ok := frame.(StartFrame)
	require.True(t, ok, "frame type = %T", frame)
	assert.Equal(t, "MZ1", start.StreamID())
	assert.Equal(t, "CA1", start.Start.CallSID)
	assert.Equal(t, "+15550001", start.Start.CustomParameters["caller"])
	assert.Equal(t, MediaFormat{Encoding: EncodingMulaw, SampleRate: 8000, Channels: 1}, start.Start.MediaFormat)
}

func TestStartFrameStreamIDFallsBackToEnvelope(t *testing.T) {
	frame := StartFrame{StreamSID: "MZ-envelope"}
	assert.Equal(t, "MZ-envelope", frame.StreamID())
}

func TestParseTelephonyFrameMediaKeepsPayloadVerbatim(t *testing.T) {
	raw := []byte(`{"event":"media","sequenceNumber":"7","media":{"track":"inbound","chunk":"6","timestamp":"120","payload":"//79/Pv6"},"streamSid":"MZ1"}`)

	frame, err := ParseTelephonyFrame(raw)
	require.NoError(t, err)

	media, ok := frame.(MediaFrame)
	require.True(t, ok)
	assert.Equal(t, "//79/Pv6", media.Media.Payload)
	assert.Equal(t, "7", media.SequenceNumber)
}

func TestParseTelephonyFrameVariants(t *testing.T) {
	cases := []struct {
		raw  string
		want TelephonyEvent
	}{
		{`{"event":"connected","protocol":"Call","version":"1.0.0"}`, EventConnected},
		{`{"event":"stop","sequenceNumber":"9","stop":{"accountSid":"AC1","callSid":"CA1"},"streamSid":"MZ1"}`, EventStop},
		{`{"event":"mark","streamSid":"MZ1","mark":{"name":"greeting"}}`, EventMark},
		{`{"event":"dtmf","streamSid":"MZ1","dtmf":{"track":"inbound_track","digit":"5"}}`, EventDTMF},
	}
	for _, tc := range cases {
		t.Run(string(tc.want), func(t *testing.T) {
			frame, err := ParseTelephonyFrame([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, frame.Event())
		})
	}
}

func TestParseTelephonyFrameUnknownEventIsUnrecognized(t *testing.T) {
	raw := []byte(`{"event":"clear","streamSid":"MZ1"}`)

	frame, err := ParseTelephonyFrame(raw)
	require.NoError(t, err)

	unknown, ok := frame.(UnrecognizedFrame)
	require.True(t, ok)
	assert.Equal(t, "clear", unknown.Name)
	assert.JSONEq(t, string(raw), string(unknown.Raw))
}

func TestParseTelephonyFrameRejectsInvalidJSON(t *testing.T) {
	_, err := ParseTelephonyFrame([]byte(`{"event":`))
	require.Error(t, err)

	_, err = ParseTelephonyFrame([]byte(`{"event":"media","media":"not-an-object"}`))
	require.Error(t, err)
}

func TestOutboundMediaWireShape(t *testing.T) {
	raw, err := json.Marshal(NewOutboundMedia("MZ1", "AAEC"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"media","streamSid":"MZ1","media":{"payload":"AAEC"}}`, string(raw))
}

func TestRealtimeFormatFor(t *testing.T) {
	format, ok := RealtimeFormatFor(MediaFormat{Encoding: "audio/x-mulaw", SampleRate: 8000, Channels: 1})
	require.True(t, ok)
	assert.Equal(t, AudioFormatG711ULaw, format)

	format, ok = RealtimeFormatFor(MediaFormat{Encoding: "audio/x-alaw", SampleRate: 8000, Channels: 1})
	require.True(t, ok)
	assert.Equal(t, AudioFormatG711ALaw, format)

	_, ok = RealtimeFormatFor(MediaFormat{Encoding: "audio/x-mulaw", SampleRate: 16000, Channels: 1})
	assert.False(t, ok)
	_, ok = RealtimeFormatFor(MediaFormat{Encoding: "audio/l16", SampleRate: 8000, Channels: 1})
	assert.False(t, ok)
}
