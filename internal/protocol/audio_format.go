package protocol

import "strings"

// Realtime audio formats accepted by session.update.
const (
	AudioFormatG711ULaw = "g711_ulaw"
	AudioFormatG711ALaw = "g711_alaw"
	AudioFormatPCM16    = "pcm16"
)

// Telephony media encodings.
const (
	EncodingMulaw = "audio/x-mulaw"
	EncodingAlaw  = "audio/x-alaw"

	NarrowbandSampleRate = 8000
)

// RealtimeFormatFor maps a telephony media format onto the realtime audio
// format that carries the same bytes. ok is false when no realtime format
// matches the encoding, rate and channel count exactly.
func RealtimeFormatFor(mf MediaFormat) (format string, ok bool) {
	if mf.SampleRate != NarrowbandSampleRate || mf.Channels != 1 {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(mf.Encoding)) {
	case EncodingMulaw:
		return AudioFormatG711ULaw, true
	case EncodingAlaw:
		return AudioFormatG711ALaw, true
	default:
		return "", false
	}
}
